// Package admin exposes the authenticated configuration surface: defining
// tier schedules and reviewing allocation progress per product.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promo-api/internal/common"
	"github.com/noah-isme/promo-api/internal/events"
	"github.com/noah-isme/promo-api/internal/promo"
	"github.com/noah-isme/promo-api/internal/repo"
)

// Handlers owns the admin promotion routes.
type Handlers struct {
	Store    repo.Store
	Validate *validator.Validate
	Events   *events.Bus
	Log      zerolog.Logger
}

// Mount registers the admin promotion routes.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{productID}", h.Get)
	r.Put("/{productID}", h.Upsert)
}

type tierPayload struct {
	Capacity        int     `json:"capacity" validate:"gte=1"`
	DiscountPercent float64 `json:"discountPercent" validate:"gte=0,lte=100"`
}

type upsertRequest struct {
	Enabled       bool          `json:"enabled"`
	TotalQuantity int           `json:"totalQuantity" validate:"gte=0"`
	Tiers         []tierPayload `json:"tiers" validate:"required,min=1,dive"`

	// ResetSold zeroes the sold counters instead of carrying them over.
	ResetSold bool `json:"resetSold"`
}

type configUpdatedPayload struct {
	Enabled       bool          `json:"enabled"`
	TotalQuantity int           `json:"totalQuantity"`
	Tiers         []tierPayload `json:"tiers"`
	ResetSold     bool          `json:"resetSold"`
}

type promotionView struct {
	ProductID     string     `json:"productId"`
	Enabled       bool       `json:"enabled"`
	TotalQuantity int        `json:"totalQuantity"`
	SoldTotal     int        `json:"soldTotal"`
	Remaining     int        `json:"remaining"`
	Tiers         []tierView `json:"tiers"`
	Version       int64      `json:"version"`
}

type tierView struct {
	Capacity        int     `json:"capacity"`
	DiscountPercent float64 `json:"discountPercent"`
	Sold            int     `json:"sold"`
	SoldOut         bool    `json:"soldOut"`
}

// List returns the allocation summary for every configured promotion.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.Store.List(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "promotion storage is unavailable", nil)
		return
	}
	views := make([]promotionView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, viewOf(snap))
	}
	common.JSON(w, http.StatusOK, map[string]any{"promotions": views})
}

// Get returns one promotion with its storage version.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Store.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "PROMOTION_NOT_FOUND", "no promotion configured for this product", nil)
			return
		}
		common.JSONError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "promotion storage is unavailable", nil)
		return
	}
	common.JSON(w, http.StatusOK, viewOf(snap))
}

// Upsert creates or replaces the tier schedule for a product. Sold counters
// survive a reconfiguration unless resetSold is set, so editing a discount
// never re-opens a tier that already sold through.
func (h *Handlers) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid promotion configuration", validationDetails(err))
		return
	}

	productID := chi.URLParam(r, "productID")
	next := promo.Promotion{
		ProductID: productID,
		Enabled:   req.Enabled,
		Tiers:     make([]promo.Tier, 0, len(req.Tiers)),
	}
	for _, t := range req.Tiers {
		next.Tiers = append(next.Tiers, promo.Tier{Capacity: t.Capacity, DiscountPercent: t.DiscountPercent})
	}

	capSum := next.CapacitySum()
	switch {
	case req.TotalQuantity == 0:
		next.TotalQuantity = capSum
	case req.TotalQuantity != capSum:
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED",
			"totalQuantity must equal the sum of tier capacities (or be omitted)",
			map[string]any{"totalQuantity": req.TotalQuantity, "capacitySum": capSum})
		return
	default:
		next.TotalQuantity = req.TotalQuantity
	}

	if err := next.Validate(); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	if err := h.save(r.Context(), next, req.ResetSold); err != nil {
		if errors.Is(err, errSaveConflict) {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "promotion changed concurrently, retry", nil)
			return
		}
		common.JSONError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "promotion storage is unavailable", nil)
		return
	}

	h.Log.Info().
		Str("product_id", productID).
		Bool("enabled", next.Enabled).
		Int("tiers", len(next.Tiers)).
		Bool("reset_sold", req.ResetSold).
		Msg("promotion configured")

	if h.Events != nil {
		if _, err := h.Events.Emit(r.Context(), events.TopicConfigUpdated, productID, configUpdatedPayload{
			Enabled:       next.Enabled,
			TotalQuantity: next.TotalQuantity,
			Tiers:         req.Tiers,
			ResetSold:     req.ResetSold,
		}); err != nil {
			h.Log.Error().Err(err).Str("product_id", productID).Msg("journal config update")
		}
	}

	snap, err := h.Store.Get(r.Context(), productID)
	if err != nil {
		common.JSON(w, http.StatusOK, map[string]any{"productId": productID})
		return
	}
	common.JSON(w, http.StatusOK, viewOf(snap))
}

const saveAttempts = 3

var errSaveConflict = errors.New("admin: promotion changed concurrently")

// save persists the new schedule. A first-time creation is a plain Put; an
// existing promotion is written through the version check so an allocation
// landing between the carry-over read and the write is never reverted. The
// carry-over is recomputed against each fresh read.
func (h *Handlers) save(ctx context.Context, base promo.Promotion, resetSold bool) error {
	for attempt := 0; attempt < saveAttempts; attempt++ {
		prev, err := h.Store.Get(ctx, base.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return h.Store.Put(ctx, base.ProductID, base)
		}
		if err != nil {
			return err
		}

		next := base.Clone()
		if !resetSold {
			carrySold(&next, prev.Promotion)
		}
		if err := next.Validate(); err != nil {
			return err
		}

		err = h.Store.UpdateIf(ctx, base.ProductID, prev.Version, next)
		if err == nil {
			return nil
		}
		if errors.Is(err, repo.ErrVersionConflict) || errors.Is(err, repo.ErrNotFound) {
			continue
		}
		return err
	}
	return errSaveConflict
}

// carrySold redistributes the previously sold units across the new schedule
// in fill order. Units beyond the new total capacity are dropped. Tiers that
// come out full are marked notified so a reconfiguration never re-sends
// sold-out mail for inventory that moved under an old schedule.
func carrySold(next *promo.Promotion, prev promo.Promotion) {
	left := prev.SoldTotal
	total := 0
	for i := range next.Tiers {
		if left <= 0 {
			break
		}
		sold := next.Tiers[i].Capacity
		if left < sold {
			sold = left
		}
		next.Tiers[i].Sold = sold
		next.Tiers[i].NotifiedSoldOut = sold == next.Tiers[i].Capacity
		left -= sold
		total += sold
	}
	next.SoldTotal = total
}

func viewOf(snap repo.Snapshot) promotionView {
	p := snap.Promotion
	view := promotionView{
		ProductID:     p.ProductID,
		Enabled:       p.Enabled,
		TotalQuantity: p.TotalQuantity,
		SoldTotal:     p.SoldTotal,
		Remaining:     p.Remaining(),
		Tiers:         make([]tierView, 0, len(p.Tiers)),
		Version:       snap.Version,
	}
	for _, t := range p.Tiers {
		view.Tiers = append(view.Tiers, tierView{
			Capacity:        t.Capacity,
			DiscountPercent: t.DiscountPercent,
			Sold:            t.Sold,
			SoldOut:         t.Full(),
		})
	}
	return view
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+": "+fe.Tag())
	}
	return map[string]any{"fields": fields}
}
