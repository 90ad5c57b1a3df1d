package promo

import (
	"math"
	"testing"
)

func twoTierPromo() Promotion {
	return Promotion{
		ProductID:     "sku-1",
		Enabled:       true,
		TotalQuantity: 20,
		SoldTotal:     5,
		Tiers: []Tier{
			{Capacity: 10, DiscountPercent: 30, Sold: 5},
			{Capacity: 10, DiscountPercent: 20},
		},
	}
}

func TestActiveTierFirstOpen(t *testing.T) {
	idx, discount, remaining := ActiveTier(twoTierPromo())
	if idx != 0 || discount != 30 || remaining != 5 {
		t.Fatalf("expected (0, 30, 5), got (%d, %v, %d)", idx, discount, remaining)
	}
}

func TestActiveTierNoneWhenDisabled(t *testing.T) {
	p := twoTierPromo()
	p.Enabled = false
	idx, _, _ := ActiveTier(p)
	if idx != -1 {
		t.Fatalf("expected no active tier, got %d", idx)
	}
}

func TestActiveTierNoneWhenAllFull(t *testing.T) {
	p := Promotion{
		Enabled:       true,
		TotalQuantity: 10,
		SoldTotal:     10,
		Tiers:         []Tier{{Capacity: 10, DiscountPercent: 30, Sold: 10}},
	}
	idx, _, _ := ActiveTier(p)
	if idx != -1 {
		t.Fatalf("expected no active tier, got %d", idx)
	}
}

func TestBlendedDiscountSpansTiers(t *testing.T) {
	// 5 units at 30% plus 3 at 20% over 8 units: (5*30+3*20)/8 = 26.25.
	got := BlendedDiscount(twoTierPromo(), 8)
	if math.Abs(got-26.25) > 1e-9 {
		t.Fatalf("expected blended 26.25, got %v", got)
	}
}

func TestBlendedDiscountExcessAtFullPrice(t *testing.T) {
	p := Promotion{
		Enabled:       true,
		TotalQuantity: 10,
		SoldTotal:     5,
		Tiers:         []Tier{{Capacity: 10, DiscountPercent: 30, Sold: 5}},
	}
	// Only 5 promotional units remain; 3 of the 8 are full price.
	got := BlendedDiscount(p, 8)
	if math.Abs(got-18.75) > 1e-9 {
		t.Fatalf("expected blended 18.75, got %v", got)
	}
}

func TestPlanAllocationExhaustedPromotion(t *testing.T) {
	p := Promotion{
		Enabled:       true,
		TotalQuantity: 10,
		SoldTotal:     10,
		Tiers:         []Tier{{Capacity: 10, DiscountPercent: 30, Sold: 10, NotifiedSoldOut: true}},
	}
	plan := PlanAllocation(p, 3)
	if plan.UnitsAllocated != 0 {
		t.Fatalf("expected 0 units allocated, got %d", plan.UnitsAllocated)
	}
	if plan.BlendedDiscountPercent != 0 {
		t.Fatalf("expected 0%% blended discount, got %v", plan.BlendedDiscountPercent)
	}
}

func TestPlanAllocationFillOrder(t *testing.T) {
	p := twoTierPromo()
	plan := PlanAllocation(p, 3)
	if len(plan.PerTier) != 1 || plan.PerTier[0].TierIndex != 0 || plan.PerTier[0].Units != 3 {
		t.Fatalf("expected all 3 units from tier 0, got %+v", plan.PerTier)
	}
}

func TestPlanAllocationFlagsNewlySoldOut(t *testing.T) {
	p := twoTierPromo()
	plan := PlanAllocation(p, 5)
	if len(plan.NewlySoldOut) != 1 || plan.NewlySoldOut[0] != 0 {
		t.Fatalf("expected tier 0 newly sold out, got %v", plan.NewlySoldOut)
	}
	plan = PlanAllocation(p, 4)
	if len(plan.NewlySoldOut) != 0 {
		t.Fatalf("expected no sold-out tiers, got %v", plan.NewlySoldOut)
	}
}

func TestPlanAllocationSkipsNotifiedTiers(t *testing.T) {
	p := twoTierPromo()
	p.Tiers[0].Sold = 10
	p.Tiers[0].NotifiedSoldOut = true
	p.SoldTotal = 10
	plan := PlanAllocation(p, 2)
	if len(plan.NewlySoldOut) != 0 {
		t.Fatalf("already notified tier flagged again: %v", plan.NewlySoldOut)
	}
	if plan.PerTier[0].TierIndex != 1 {
		t.Fatalf("expected draw from tier 1, got %+v", plan.PerTier)
	}
}

func TestPlanAllocationRespectsBudget(t *testing.T) {
	p := twoTierPromo()
	p.TotalQuantity = 8
	// Tier capacity would allow 15 more, but the budget caps the walk at 3.
	plan := PlanAllocation(p, 10)
	if plan.UnitsAllocated != 3 {
		t.Fatalf("expected budget-capped allocation of 3, got %d", plan.UnitsAllocated)
	}
}

func TestPlanAllocationDoesNotMutateInput(t *testing.T) {
	p := twoTierPromo()
	_ = PlanAllocation(p, 8)
	if p.Tiers[0].Sold != 5 || p.SoldTotal != 5 {
		t.Fatalf("input snapshot mutated: %+v", p)
	}
}

func TestApplyProducesConsistentCopy(t *testing.T) {
	p := twoTierPromo()
	plan := PlanAllocation(p, 8)
	next := Apply(p, plan)

	if err := next.Validate(); err != nil {
		t.Fatalf("applied promotion violates invariants: %v", err)
	}
	if next.SoldTotal != 13 {
		t.Fatalf("expected soldTotal 13, got %d", next.SoldTotal)
	}
	if !next.Tiers[0].Full() || !next.Tiers[0].NotifiedSoldOut {
		t.Fatalf("tier 0 should be full and marked notified: %+v", next.Tiers[0])
	}
	if p.Tiers[0].Sold != 5 {
		t.Fatalf("original snapshot mutated: %+v", p.Tiers[0])
	}
}

func TestValidateRejectsBrokenFillOrder(t *testing.T) {
	p := Promotion{
		Enabled:       true,
		TotalQuantity: 20,
		SoldTotal:     5,
		Tiers: []Tier{
			{Capacity: 10, DiscountPercent: 30, Sold: 2},
			{Capacity: 10, DiscountPercent: 20, Sold: 3},
		},
	}
	if err := p.Validate(); err == nil {
		t.Fatal("expected fill-order violation")
	}
}

func TestValidateRejectsCachedSumMismatch(t *testing.T) {
	p := twoTierPromo()
	p.SoldTotal = 4
	if err := p.Validate(); err == nil {
		t.Fatal("expected soldTotal mismatch to be rejected")
	}
}
