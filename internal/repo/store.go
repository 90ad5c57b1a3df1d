package repo

import (
	"context"
	"errors"

	"github.com/noah-isme/promo-api/internal/promo"
)

var (
	// ErrNotFound is returned when no promotion exists for the product.
	ErrNotFound = errors.New("promotion not found")
	// ErrVersionConflict is returned by UpdateIf when the stored version moved
	// since the snapshot was read. Callers re-read and retry.
	ErrVersionConflict = errors.New("promotion version conflict")
)

// Snapshot pairs a promotion with its storage version. The version is the
// compare-and-swap token: UpdateIf succeeds only against the exact version
// the writer read.
type Snapshot struct {
	Promotion promo.Promotion
	Version   int64
}

// Store is the durable home of promotion records. Every write against an
// existing record goes through UpdateIf, allocation commits and admin
// reconfigurations alike; Put is for first-time creation.
type Store interface {
	// Get returns the current snapshot for the product.
	Get(ctx context.Context, productID string) (Snapshot, error)
	// UpdateIf writes next only if the stored version still equals version,
	// bumping the version on success. Returns ErrVersionConflict otherwise.
	UpdateIf(ctx context.Context, productID string, version int64, next promo.Promotion) error
	// Put creates or replaces the promotion record unconditionally. Writers
	// racing live traffic use UpdateIf instead.
	Put(ctx context.Context, productID string, p promo.Promotion) error
	// List returns every stored promotion, for the admin summary.
	List(ctx context.Context) ([]Snapshot, error)
}
