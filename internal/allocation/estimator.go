package allocation

import (
	"context"
	"errors"
	"math"

	"github.com/noah-isme/promo-api/internal/catalog"
	"github.com/noah-isme/promo-api/internal/promo"
	"github.com/noah-isme/promo-api/internal/repo"
)

// Estimate annotates a prospective cart line with a discounted unit price.
// It reads a possibly stale snapshot and is advisory only; the authoritative
// figure is produced by Commit and may differ under concurrent purchases.
type Estimate struct {
	Applicable             bool             `json:"applicable"`
	Quantity               int              `json:"quantity"`
	RegularPrice           int64            `json:"regularPrice"`
	UnitPrice              int64            `json:"unitPrice"`
	BlendedDiscountPercent float64          `json:"blendedDiscountPercent"`
	UnitsDiscounted        int              `json:"unitsDiscounted"`
	PerTier                []promo.TierDraw `json:"perTier,omitempty"`
}

// Estimator prices prospective purchases against the current snapshot. It
// never writes.
type Estimator struct {
	Store   repo.Store
	Catalog catalog.Catalog
}

// Estimate returns the blended unit price for buying quantity units now.
// A missing, disabled, or exhausted promotion degrades to a not-applicable
// estimate at the regular price rather than an error.
func (e Estimator) Estimate(ctx context.Context, productID string, quantity int) (Estimate, error) {
	if quantity <= 0 {
		return Estimate{}, ErrInvalidQuantity
	}
	product, err := e.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return Estimate{}, err
	}

	est := Estimate{
		Quantity:     quantity,
		RegularPrice: product.RegularPrice,
		UnitPrice:    product.RegularPrice,
	}

	snap, err := e.Store.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return est, nil
		}
		return Estimate{}, storageErr("read promotion", err)
	}

	plan := promo.PlanAllocation(snap.Promotion, quantity)
	if plan.UnitsAllocated == 0 {
		return est, nil
	}

	est.Applicable = true
	est.BlendedDiscountPercent = plan.BlendedDiscountPercent
	est.UnitsDiscounted = plan.UnitsAllocated
	est.PerTier = plan.PerTier
	est.UnitPrice = discountedPrice(product.RegularPrice, plan.BlendedDiscountPercent)
	return est, nil
}

// discountedPrice applies a percentage discount to a minor-unit price,
// rounding half away from zero and flooring at 0.
func discountedPrice(regular int64, discountPercent float64) int64 {
	price := int64(math.Round(float64(regular) * (1 - discountPercent/100)))
	if price < 0 {
		return 0
	}
	return price
}
