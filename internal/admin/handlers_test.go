package admin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promo-api/internal/admin"
	"github.com/noah-isme/promo-api/internal/events"
	"github.com/noah-isme/promo-api/internal/promo"
	"github.com/noah-isme/promo-api/internal/repo"
)

func newAdminRouter(t *testing.T, store repo.Store) (*chi.Mux, *events.MemoryJournal) {
	t.Helper()
	journal := &events.MemoryJournal{}
	h := &admin.Handlers{
		Store:    store,
		Validate: validator.New(),
		Events:   &events.Bus{Journal: journal},
		Log:      zerolog.Nop(),
	}
	r := chi.NewRouter()
	r.Route("/admin/promotions", h.Mount)
	return r, journal
}

func putJSON(t *testing.T, r http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rr, req)
	return rr
}

func TestUpsertCreatesPromotion(t *testing.T) {
	store := repo.NewMemoryStore()
	r, journal := newAdminRouter(t, store)

	rr := putJSON(t, r, "/admin/promotions/sku-1", `{
		"enabled": true,
		"tiers": [
			{"capacity": 10, "discountPercent": 30},
			{"capacity": 10, "discountPercent": 20}
		]
	}`)
	require.Equal(t, http.StatusOK, rr.Code)

	snap, err := store.Get(context.Background(), "sku-1")
	require.NoError(t, err)
	require.True(t, snap.Promotion.Enabled)
	require.Equal(t, 20, snap.Promotion.TotalQuantity)
	require.Len(t, snap.Promotion.Tiers, 2)
	require.NoError(t, snap.Promotion.Validate())

	recorded := journal.Events()
	require.Len(t, recorded, 1)
	require.Equal(t, events.TopicConfigUpdated, recorded[0].Topic)
	require.Equal(t, "sku-1", recorded[0].ProductID)
}

func TestUpsertPreservesSoldCounters(t *testing.T) {
	store := repo.NewMemoryStore()
	existing := promo.Promotion{
		ProductID:     "sku-1",
		Enabled:       true,
		TotalQuantity: 20,
		SoldTotal:     12,
		Tiers: []promo.Tier{
			{Capacity: 10, DiscountPercent: 30, Sold: 10, NotifiedSoldOut: true},
			{Capacity: 10, DiscountPercent: 20, Sold: 2},
		},
	}
	require.NoError(t, store.Put(context.Background(), "sku-1", existing))
	r, _ := newAdminRouter(t, store)

	// Change the second tier's discount; progress must survive.
	rr := putJSON(t, r, "/admin/promotions/sku-1", `{
		"enabled": true,
		"tiers": [
			{"capacity": 10, "discountPercent": 30},
			{"capacity": 10, "discountPercent": 15}
		]
	}`)
	require.Equal(t, http.StatusOK, rr.Code)

	snap, err := store.Get(context.Background(), "sku-1")
	require.NoError(t, err)
	require.Equal(t, 12, snap.Promotion.SoldTotal)
	require.Equal(t, 10, snap.Promotion.Tiers[0].Sold)
	require.True(t, snap.Promotion.Tiers[0].NotifiedSoldOut)
	require.Equal(t, 2, snap.Promotion.Tiers[1].Sold)
	require.InDelta(t, 15, snap.Promotion.Tiers[1].DiscountPercent, 1e-9)
}

func TestUpsertResetSold(t *testing.T) {
	store := repo.NewMemoryStore()
	existing := promo.Promotion{
		ProductID:     "sku-1",
		Enabled:       true,
		TotalQuantity: 10,
		SoldTotal:     7,
		Tiers:         []promo.Tier{{Capacity: 10, DiscountPercent: 30, Sold: 7}},
	}
	require.NoError(t, store.Put(context.Background(), "sku-1", existing))
	r, _ := newAdminRouter(t, store)

	rr := putJSON(t, r, "/admin/promotions/sku-1", `{
		"enabled": true,
		"resetSold": true,
		"tiers": [{"capacity": 10, "discountPercent": 30}]
	}`)
	require.Equal(t, http.StatusOK, rr.Code)

	snap, err := store.Get(context.Background(), "sku-1")
	require.NoError(t, err)
	require.Zero(t, snap.Promotion.SoldTotal)
	require.Zero(t, snap.Promotion.Tiers[0].Sold)
}

func TestUpsertRejectsInvalidTiers(t *testing.T) {
	r, _ := newAdminRouter(t, repo.NewMemoryStore())

	cases := map[string]string{
		"zero capacity":     `{"tiers": [{"capacity": 0, "discountPercent": 30}]}`,
		"negative discount": `{"tiers": [{"capacity": 10, "discountPercent": -5}]}`,
		"discount over 100": `{"tiers": [{"capacity": 10, "discountPercent": 150}]}`,
		"no tiers":          `{"tiers": []}`,
	}
	for name, body := range cases {
		rr := putJSON(t, r, "/admin/promotions/sku-1", body)
		require.Equal(t, http.StatusBadRequest, rr.Code, name)
		require.Contains(t, rr.Body.String(), "VALIDATION_FAILED", name)
	}
}

func TestUpsertRejectsMismatchedTotalQuantity(t *testing.T) {
	r, _ := newAdminRouter(t, repo.NewMemoryStore())

	rr := putJSON(t, r, "/admin/promotions/sku-1", `{
		"totalQuantity": 30,
		"tiers": [{"capacity": 10, "discountPercent": 30}]
	}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "capacitySum")
}

// racingStore lands an allocation between the handler's carry-over read and
// its conditional write, like a commit racing a reconfiguration.
type racingStore struct {
	repo.Store
	raced bool
}

func (s *racingStore) Get(ctx context.Context, productID string) (repo.Snapshot, error) {
	snap, err := s.Store.Get(ctx, productID)
	if err != nil || s.raced {
		return snap, err
	}
	s.raced = true
	plan := promo.PlanAllocation(snap.Promotion, 3)
	committed := promo.Apply(snap.Promotion, plan)
	if err := s.Store.UpdateIf(ctx, productID, snap.Version, committed); err != nil {
		return repo.Snapshot{}, err
	}
	return snap, nil
}

func TestUpsertDoesNotRevertRacingCommit(t *testing.T) {
	mem := repo.NewMemoryStore()
	require.NoError(t, mem.Put(context.Background(), "sku-1", promo.Promotion{
		ProductID:     "sku-1",
		Enabled:       true,
		TotalQuantity: 20,
		SoldTotal:     5,
		Tiers: []promo.Tier{
			{Capacity: 10, DiscountPercent: 30, Sold: 5},
			{Capacity: 10, DiscountPercent: 20},
		},
	}))
	r, _ := newAdminRouter(t, &racingStore{Store: mem})

	rr := putJSON(t, r, "/admin/promotions/sku-1", `{
		"enabled": true,
		"tiers": [
			{"capacity": 10, "discountPercent": 30},
			{"capacity": 10, "discountPercent": 20}
		]
	}`)
	require.Equal(t, http.StatusOK, rr.Code)

	// 5 pre-sold plus the 3 committed mid-upsert; the racing allocation must
	// survive the reconfiguration.
	snap, err := mem.Get(context.Background(), "sku-1")
	require.NoError(t, err)
	require.Equal(t, 8, snap.Promotion.SoldTotal)
	require.Equal(t, 8, snap.Promotion.Tiers[0].Sold)
	require.NoError(t, snap.Promotion.Validate())
}

// contestedStore rejects every conditional write, as if reconfiguration always
// loses the version race.
type contestedStore struct {
	repo.Store
}

func (s contestedStore) UpdateIf(context.Context, string, int64, promo.Promotion) error {
	return repo.ErrVersionConflict
}

func TestUpsertConflictExhaustionReturns409(t *testing.T) {
	mem := repo.NewMemoryStore()
	require.NoError(t, mem.Put(context.Background(), "sku-1", promo.Promotion{
		ProductID:     "sku-1",
		Enabled:       true,
		TotalQuantity: 10,
		Tiers:         []promo.Tier{{Capacity: 10, DiscountPercent: 30}},
	}))
	r, _ := newAdminRouter(t, contestedStore{Store: mem})

	rr := putJSON(t, r, "/admin/promotions/sku-1", `{
		"enabled": true,
		"tiers": [{"capacity": 10, "discountPercent": 25}]
	}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "CONFLICT")
}

func TestListAndGet(t *testing.T) {
	store := repo.NewMemoryStore()
	for _, id := range []string{"sku-b", "sku-a"} {
		require.NoError(t, store.Put(context.Background(), id, promo.Promotion{
			ProductID:     id,
			Enabled:       true,
			TotalQuantity: 5,
			Tiers:         []promo.Tier{{Capacity: 5, DiscountPercent: 10}},
		}))
	}
	r, _ := newAdminRouter(t, store)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/promotions/", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var listBody struct {
		Promotions []struct {
			ProductID string `json:"productId"`
			Remaining int    `json:"remaining"`
		} `json:"promotions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listBody))
	require.Len(t, listBody.Promotions, 2)
	require.Equal(t, "sku-a", listBody.Promotions[0].ProductID)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/promotions/sku-a", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"version"`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/promotions/missing", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
