// Package allocation implements the authoritative commit path that converts
// promotional capacity into recorded sales, plus the advisory read paths
// (price estimation and add-to-cart checks) built on the same tier walk.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/promo-api/internal/catalog"
	"github.com/noah-isme/promo-api/internal/common"
	"github.com/noah-isme/promo-api/internal/events"
	"github.com/noah-isme/promo-api/internal/lock"
	"github.com/noah-isme/promo-api/internal/notify"
	"github.com/noah-isme/promo-api/internal/obs"
	"github.com/noah-isme/promo-api/internal/promo"
	"github.com/noah-isme/promo-api/internal/repo"
)

// Error kinds surfaced by the commit path. The order workflow must treat all
// of them as order-line failures, never as silent success.
var (
	ErrInvalidQuantity = &common.AppError{
		Code:       "INVALID_QUANTITY",
		Message:    "quantity must be a positive integer",
		HTTPStatus: http.StatusBadRequest,
	}
	ErrPromotionNotFound = &common.AppError{
		Code:       "PROMOTION_NOT_FOUND",
		Message:    "no promotion configured for this product",
		HTTPStatus: http.StatusNotFound,
	}
	ErrInsufficientInventory = &common.AppError{
		Code:       "INSUFFICIENT_INVENTORY",
		Message:    "requested quantity exceeds remaining promotional capacity",
		HTTPStatus: http.StatusConflict,
	}
	ErrContention = &common.AppError{
		Code:       "ALLOCATION_CONTENTION",
		Message:    "allocation lost the race too many times, please retry",
		HTTPStatus: http.StatusConflict,
	}
	ErrStorageUnavailable = &common.AppError{
		Code:       "STORAGE_UNAVAILABLE",
		Message:    "promotion storage is unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// DefaultAttempts bounds the optimistic retry loop when no explicit bound is
// configured.
const DefaultAttempts = 3

// Service is the sole writer of promotion state. Every mutation goes through
// Commit's conditional write, so concurrent commits serialize through the
// store's version check rather than through in-process locking.
type Service struct {
	Store    repo.Store
	Events   *events.Bus
	Catalog  catalog.Catalog
	Log      zerolog.Logger
	Attempts int

	// Lock serializes commits per product when the backing store cannot do a
	// conditional write on its own. Leave nil when the store supports CAS.
	Lock    *lock.Locker
	LockTTL time.Duration
}

// Commit allocates quantity units against the product's promotion, invoked
// exactly once per confirmed order line. It either records the full quantity
// or fails; no partial allocation is ever written.
func (s *Service) Commit(ctx context.Context, productID string, quantity int) (promo.AllocationResult, error) {
	if quantity <= 0 {
		return promo.AllocationResult{}, ErrInvalidQuantity
	}
	if s.Lock != nil {
		var result promo.AllocationResult
		err := s.Lock.WithLock(ctx, "promo:commit:"+productID, s.LockTTL, func(ctx context.Context) error {
			var commitErr error
			result, commitErr = s.commit(ctx, productID, quantity)
			return commitErr
		})
		return result, err
	}
	return s.commit(ctx, productID, quantity)
}

func (s *Service) commit(ctx context.Context, productID string, quantity int) (promo.AllocationResult, error) {
	attempts := s.Attempts
	if attempts < 1 {
		attempts = DefaultAttempts
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		snap, err := s.Store.Get(ctx, productID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				obs.AllocationsTotal.WithLabelValues("not_found").Inc()
				return promo.AllocationResult{}, ErrPromotionNotFound
			}
			obs.AllocationsTotal.WithLabelValues("storage_error").Inc()
			return promo.AllocationResult{}, storageErr("read promotion", err)
		}

		p := snap.Promotion
		if !p.Enabled || p.Remaining() < quantity {
			obs.AllocationsTotal.WithLabelValues("insufficient").Inc()
			return promo.AllocationResult{}, insufficient(quantity, p.Remaining())
		}

		plan := promo.PlanAllocation(p, quantity)
		next := promo.Apply(p, plan)

		err = s.Store.UpdateIf(ctx, productID, snap.Version, next)
		if err == nil {
			obs.AllocationsTotal.WithLabelValues("committed").Inc()
			obs.AllocationUnitsTotal.Add(float64(plan.UnitsAllocated))
			s.Log.Info().
				Str("product_id", productID).
				Int("quantity", quantity).
				Int("attempt", attempt).
				Float64("blended_discount", plan.BlendedDiscountPercent).
				Msg("allocation committed")
			s.emitOutcome(ctx, productID, p, next, plan)
			return plan, nil
		}
		if errors.Is(err, repo.ErrVersionConflict) {
			obs.AllocationConflictsTotal.Inc()
			s.Log.Debug().
				Str("product_id", productID).
				Int("attempt", attempt).
				Msg("allocation lost version race")
			continue
		}
		if errors.Is(err, repo.ErrNotFound) {
			obs.AllocationsTotal.WithLabelValues("not_found").Inc()
			return promo.AllocationResult{}, ErrPromotionNotFound
		}
		obs.AllocationsTotal.WithLabelValues("storage_error").Inc()
		return promo.AllocationResult{}, storageErr("write promotion", err)
	}

	obs.AllocationsTotal.WithLabelValues("contention").Inc()
	return promo.AllocationResult{}, ErrContention
}

// emitOutcome publishes the post-commit events. The allocation is already
// durable at this point; event failures are logged and swallowed.
func (s *Service) emitOutcome(ctx context.Context, productID string, prev, next promo.Promotion, plan promo.AllocationResult) {
	if s.Events == nil {
		return
	}
	name := s.productName(ctx, productID)

	if _, err := s.Events.Emit(ctx, events.TopicAllocated, productID, map[string]any{
		"unitsAllocated":         plan.UnitsAllocated,
		"blendedDiscountPercent": plan.BlendedDiscountPercent,
		"perTier":                plan.PerTier,
		"remaining":              next.Remaining(),
	}); err != nil {
		s.Log.Error().Err(err).Str("product_id", productID).Msg("emit allocated event")
	}

	for _, idx := range plan.NewlySoldOut {
		if idx < 0 || idx >= len(prev.Tiers) {
			continue
		}
		obs.TierSoldOutTotal.Inc()
		tier := prev.Tiers[idx]
		if _, err := s.Events.Emit(ctx, events.TopicTierSoldOut, productID, notify.TierSoldOutPayload{
			ProductID:       productID,
			ProductName:     name,
			TierIndex:       idx,
			DiscountPercent: tier.DiscountPercent,
			Capacity:        tier.Capacity,
		}); err != nil {
			s.Log.Error().Err(err).Str("product_id", productID).Int("tier", idx).Msg("emit tier sold out event")
		}
	}

	if next.Remaining() == 0 && prev.Remaining() > 0 {
		if _, err := s.Events.Emit(ctx, events.TopicExhausted, productID, notify.ExhaustedPayload{
			ProductID:     productID,
			ProductName:   name,
			TotalQuantity: next.TotalQuantity,
		}); err != nil {
			s.Log.Error().Err(err).Str("product_id", productID).Msg("emit exhausted event")
		}
	}
}

func (s *Service) productName(ctx context.Context, productID string) string {
	if s.Catalog == nil {
		return ""
	}
	p, err := s.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return ""
	}
	return p.Name
}

func insufficient(requested, remaining int) *common.AppError {
	return &common.AppError{
		Code:       ErrInsufficientInventory.Code,
		Message:    ErrInsufficientInventory.Message,
		HTTPStatus: ErrInsufficientInventory.HTTPStatus,
		Err:        ErrInsufficientInventory,
		Details: map[string]any{
			"requested": requested,
			"remaining": remaining,
		},
	}
}

func storageErr(op string, err error) *common.AppError {
	return &common.AppError{
		Code:       ErrStorageUnavailable.Code,
		Message:    ErrStorageUnavailable.Message,
		HTTPStatus: ErrStorageUnavailable.HTTPStatus,
		Err:        fmt.Errorf("%s: %w", op, errors.Join(ErrStorageUnavailable, err)),
	}
}
