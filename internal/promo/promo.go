package promo

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned when a promotion definition violates
	// its structural constraints. Rejected at configuration time; the
	// allocation path never sees an invalid promotion.
	ErrInvalidConfiguration = errors.New("invalid promotion configuration")
)

// Tier is an ordered capacity bucket with a fixed discount percentage. Tiers
// fill strictly in sequence order; a tier receives no units while an earlier
// tier still has capacity.
type Tier struct {
	Capacity        int     `json:"capacity"`
	DiscountPercent float64 `json:"discountPercent"`
	Sold            int     `json:"sold"`
	NotifiedSoldOut bool    `json:"notifiedSoldOut"`
}

// Remaining reports how many units the tier can still absorb.
func (t Tier) Remaining() int {
	if t.Sold >= t.Capacity {
		return 0
	}
	return t.Capacity - t.Sold
}

// Full reports whether the tier has reached capacity.
func (t Tier) Full() bool { return t.Sold >= t.Capacity }

// Promotion is the per-product record of a tiered fixed-allocation discount.
// SoldTotal is a cached sum of tier sold counters and must always equal it.
type Promotion struct {
	ProductID     string `json:"productId"`
	Enabled       bool   `json:"enabled"`
	TotalQuantity int    `json:"totalQuantity"`
	SoldTotal     int    `json:"soldTotal"`
	Tiers         []Tier `json:"tiers"`
}

// Remaining reports how many promotional units are left overall.
func (p Promotion) Remaining() int {
	if p.SoldTotal >= p.TotalQuantity {
		return 0
	}
	return p.TotalQuantity - p.SoldTotal
}

// Applicable reports whether the promotion currently constrains pricing.
func (p Promotion) Applicable() bool {
	return p.Enabled && len(p.Tiers) > 0 && p.Remaining() > 0
}

// Clone returns a deep copy. Allocation planning mutates copies only; stored
// snapshots are treated as immutable.
func (p Promotion) Clone() Promotion {
	out := p
	out.Tiers = make([]Tier, len(p.Tiers))
	copy(out.Tiers, p.Tiers)
	return out
}

// Validate checks the structural invariants of a promotion record: tier
// capacities and discounts in range, sold counters within capacity, the
// cached SoldTotal consistent with the tier counters, and the monotonic fill
// order (no tier holds units while an earlier tier has room).
func (p Promotion) Validate() error {
	var tierSum int
	openSeen := false
	for i, t := range p.Tiers {
		if t.Capacity < 1 {
			return fmt.Errorf("%w: tier %d capacity must be >= 1", ErrInvalidConfiguration, i)
		}
		if t.DiscountPercent < 0 || t.DiscountPercent > 100 {
			return fmt.Errorf("%w: tier %d discount must be within [0,100]", ErrInvalidConfiguration, i)
		}
		if t.Sold < 0 || t.Sold > t.Capacity {
			return fmt.Errorf("%w: tier %d sold out of range", ErrInvalidConfiguration, i)
		}
		if openSeen && t.Sold > 0 {
			return fmt.Errorf("%w: tier %d holds units while an earlier tier has capacity", ErrInvalidConfiguration, i)
		}
		if !t.Full() {
			openSeen = true
		}
		tierSum += t.Sold
	}
	if p.SoldTotal != tierSum {
		return fmt.Errorf("%w: soldTotal %d does not match tier counters %d", ErrInvalidConfiguration, p.SoldTotal, tierSum)
	}
	if p.TotalQuantity < 0 {
		return fmt.Errorf("%w: totalQuantity must be >= 0", ErrInvalidConfiguration)
	}
	if p.SoldTotal > p.TotalQuantity {
		return fmt.Errorf("%w: soldTotal %d exceeds totalQuantity %d", ErrInvalidConfiguration, p.SoldTotal, p.TotalQuantity)
	}
	return nil
}

// CapacitySum returns the combined capacity of all tiers. Configuration keeps
// TotalQuantity equal to this sum so the overall budget and the tier walk
// cannot disagree.
func (p Promotion) CapacitySum() int {
	var sum int
	for _, t := range p.Tiers {
		sum += t.Capacity
	}
	return sum
}
