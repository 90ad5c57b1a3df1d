package allocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/promo-api/internal/repo"
)

// Decision is the outcome of a pre-purchase capacity check.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Requested int    `json:"requested"`
	Remaining int    `json:"remaining"`
	Reason    string `json:"reason,omitempty"`
}

// Guard rejects add-to-cart requests that exceed the remaining promotional
// capacity. The check is advisory and reserves nothing; a passing check can
// still lose the race at commit time.
type Guard struct {
	Store repo.Store
}

// CheckAddToCart reads a snapshot and decides whether the requested quantity
// fits the remaining capacity. Products without an active promotion are
// unconstrained. Storage trouble degrades to a rejection instead of an error.
func (g Guard) CheckAddToCart(ctx context.Context, productID string, quantity int) (Decision, error) {
	if quantity <= 0 {
		return Decision{}, ErrInvalidQuantity
	}

	snap, err := g.Store.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Decision{Allowed: true, Requested: quantity, Remaining: -1}, nil
		}
		return Decision{
			Requested: quantity,
			Reason:    "inventory status unavailable, try again",
		}, nil
	}

	p := snap.Promotion
	if !p.Enabled || len(p.Tiers) == 0 {
		return Decision{Allowed: true, Requested: quantity, Remaining: -1}, nil
	}

	remaining := p.Remaining()
	if quantity > remaining {
		return Decision{
			Requested: quantity,
			Remaining: remaining,
			Reason:    fmt.Sprintf("only %d promotional units remain, requested %d", remaining, quantity),
		}, nil
	}
	return Decision{Allowed: true, Requested: quantity, Remaining: remaining}, nil
}
