package promo

// TierDraw records how many units an allocation takes from one tier.
type TierDraw struct {
	TierIndex int `json:"tierIndex"`
	Units     int `json:"units"`
}

// AllocationResult is the outcome of a tier walk for a requested quantity.
// The same shape serves as the non-binding plan behind price estimates and as
// the committed result returned to the order workflow, so the two can never
// diverge algorithmically.
type AllocationResult struct {
	UnitsAllocated         int        `json:"unitsAllocated"`
	PerTier                []TierDraw `json:"perTier"`
	BlendedDiscountPercent float64    `json:"blendedDiscountPercent"`
	NewlySoldOut           []int      `json:"newlySoldOut,omitempty"`
}

// ActiveTier returns the index, discount, and remaining capacity of the first
// tier that still has room. The index is -1 when the promotion is disabled,
// has no tiers, or every tier is full.
func ActiveTier(p Promotion) (index int, discountPercent float64, remainingInTier int) {
	if !p.Enabled {
		return -1, 0, 0
	}
	for i, t := range p.Tiers {
		if !t.Full() {
			return i, t.DiscountPercent, t.Remaining()
		}
	}
	return -1, 0, 0
}

// BlendedDiscount simulates consuming quantity units starting at the active
// tier and returns the single effective discount percentage for the whole
// purchase. Units beyond the remaining promotional capacity are priced at
// full price, i.e. they contribute 0% to the blend. The input snapshot is
// never mutated.
func BlendedDiscount(p Promotion, quantity int) float64 {
	return PlanAllocation(p, quantity).BlendedDiscountPercent
}

// PlanAllocation walks the tiers in order, drawing up to quantity units, and
// records per-tier draws plus the tiers the draw would fill for the first
// time. The overall promotion budget (TotalQuantity - SoldTotal) caps the
// walk in addition to the per-tier capacities.
func PlanAllocation(p Promotion, quantity int) AllocationResult {
	result := AllocationResult{}
	if quantity <= 0 || !p.Enabled || len(p.Tiers) == 0 {
		return result
	}

	left := quantity
	budget := p.Remaining()
	var weighted float64
	for i, t := range p.Tiers {
		if left <= 0 || budget <= 0 {
			break
		}
		avail := t.Remaining()
		if avail <= 0 {
			continue
		}
		use := avail
		if left < use {
			use = left
		}
		if budget < use {
			use = budget
		}
		result.PerTier = append(result.PerTier, TierDraw{TierIndex: i, Units: use})
		weighted += float64(use) * t.DiscountPercent
		result.UnitsAllocated += use
		left -= use
		budget -= use
	}

	// Any shortfall is priced at 0%, so the divisor stays the full quantity.
	result.BlendedDiscountPercent = weighted / float64(quantity)

	for i, t := range p.Tiers {
		drawn := result.drawFor(i)
		if t.Sold+drawn >= t.Capacity && !t.NotifiedSoldOut {
			result.NewlySoldOut = append(result.NewlySoldOut, i)
		}
	}
	return result
}

// Apply returns a copy of the promotion with the planned draws recorded and
// the newly sold-out tiers marked as notified. The input snapshot is left
// untouched; the caller decides whether to persist the copy.
func Apply(p Promotion, plan AllocationResult) Promotion {
	next := p.Clone()
	for _, draw := range plan.PerTier {
		if draw.TierIndex < 0 || draw.TierIndex >= len(next.Tiers) {
			continue
		}
		next.Tiers[draw.TierIndex].Sold += draw.Units
	}
	for _, idx := range plan.NewlySoldOut {
		if idx >= 0 && idx < len(next.Tiers) {
			next.Tiers[idx].NotifiedSoldOut = true
		}
	}
	next.SoldTotal += plan.UnitsAllocated
	return next
}

func (r AllocationResult) drawFor(tierIndex int) int {
	for _, d := range r.PerTier {
		if d.TierIndex == tierIndex {
			return d.Units
		}
	}
	return 0
}
