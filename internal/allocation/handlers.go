package allocation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/promo-api/internal/common"
	"github.com/noah-isme/promo-api/internal/promo"
	"github.com/noah-isme/promo-api/internal/repo"
)

// Handlers exposes the promotion read paths and the commit endpoint.
type Handlers struct {
	Service   *Service
	Estimator Estimator
	Guard     Guard
	Store     repo.Store
}

// Mount registers the public promotion routes.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/{productID}/status", h.Status)
	r.Get("/{productID}/estimate", h.Estimate)
	r.Get("/{productID}/check", h.Check)
	r.Post("/{productID}/commit", h.Commit)
}

type tierStatus struct {
	Capacity        int     `json:"capacity"`
	DiscountPercent float64 `json:"discountPercent"`
	Sold            int     `json:"sold"`
	SoldOut         bool    `json:"soldOut"`
}

type statusResponse struct {
	ProductID           string       `json:"productId"`
	Enabled             bool         `json:"enabled"`
	TotalQuantity       int          `json:"totalQuantity"`
	SoldTotal           int          `json:"soldTotal"`
	Remaining           int          `json:"remaining"`
	ActiveTier          *int         `json:"activeTier,omitempty"`
	ActiveTierDiscount  float64      `json:"activeTierDiscount"`
	ActiveTierRemaining int          `json:"activeTierRemaining"`
	PerTier             []tierStatus `json:"perTier"`
}

// Status returns a read-only snapshot for display.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	snap, err := h.Store.Get(r.Context(), productID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeErr(w, ErrPromotionNotFound)
			return
		}
		writeErr(w, storageErr("read promotion", err))
		return
	}

	p := snap.Promotion
	resp := statusResponse{
		ProductID:     productID,
		Enabled:       p.Enabled,
		TotalQuantity: p.TotalQuantity,
		SoldTotal:     p.SoldTotal,
		Remaining:     p.Remaining(),
		PerTier:       make([]tierStatus, 0, len(p.Tiers)),
	}
	if idx, discount, remaining := promo.ActiveTier(p); idx >= 0 {
		resp.ActiveTier = &idx
		resp.ActiveTierDiscount = discount
		resp.ActiveTierRemaining = remaining
	}
	for _, t := range p.Tiers {
		resp.PerTier = append(resp.PerTier, tierStatus{
			Capacity:        t.Capacity,
			DiscountPercent: t.DiscountPercent,
			Sold:            t.Sold,
			SoldOut:         t.Full(),
		})
	}
	common.JSON(w, http.StatusOK, resp)
}

// Estimate prices a prospective purchase of qty units.
func (h *Handlers) Estimate(w http.ResponseWriter, r *http.Request) {
	qty, err := queryQty(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	est, err := h.Estimator.Estimate(r.Context(), chi.URLParam(r, "productID"), qty)
	if err != nil {
		writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, est)
}

// Check runs the advisory add-to-cart capacity check.
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	qty, err := queryQty(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	decision, err := h.Guard.CheckAddToCart(r.Context(), chi.URLParam(r, "productID"), qty)
	if err != nil {
		writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, decision)
}

type commitRequest struct {
	Quantity int `json:"quantity"`
}

type commitResponse struct {
	ProductID string                 `json:"productId"`
	Result    promo.AllocationResult `json:"result"`
}

// Commit performs the authoritative allocation for a confirmed order line.
func (h *Handlers) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	productID := chi.URLParam(r, "productID")
	result, err := h.Service.Commit(r.Context(), productID, req.Quantity)
	if err != nil {
		writeErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, commitResponse{ProductID: productID, Result: result})
}

func queryQty(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("qty"))
	if raw == "" {
		return 0, ErrInvalidQuantity
	}
	qty, err := strconv.Atoi(raw)
	if err != nil || qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	return qty, nil
}

func writeErr(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}
