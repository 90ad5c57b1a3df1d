package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/promo-api/internal/promo"
)

// PGStore persists promotion records in Postgres. The version column is the
// CAS token: conditional updates compare it in the WHERE clause so two racing
// commits can never both land on the same snapshot.
type PGStore struct {
	Pool *pgxpool.Pool
}

// NewPGStore constructs a Postgres-backed Store.
func NewPGStore(pool *pgxpool.Pool) (*PGStore, error) {
	if pool == nil {
		return nil, errors.New("repo: pool is required")
	}
	return &PGStore{Pool: pool}, nil
}

const getPromotionSQL = `
SELECT enabled, total_quantity, sold_total, tiers, version
FROM promotions
WHERE product_id = $1`

// Get implements Store.
func (s *PGStore) Get(ctx context.Context, productID string) (Snapshot, error) {
	var (
		p         promo.Promotion
		tiersJSON []byte
		version   int64
	)
	row := s.Pool.QueryRow(ctx, getPromotionSQL, productID)
	if err := row.Scan(&p.Enabled, &p.TotalQuantity, &p.SoldTotal, &tiersJSON, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("repo: get promotion: %w", err)
	}
	if err := json.Unmarshal(tiersJSON, &p.Tiers); err != nil {
		return Snapshot{}, fmt.Errorf("repo: decode tiers: %w", err)
	}
	p.ProductID = productID
	return Snapshot{Promotion: p, Version: version}, nil
}

const updateIfSQL = `
UPDATE promotions
SET enabled = $2,
    total_quantity = $3,
    sold_total = $4,
    tiers = $5,
    version = version + 1,
    updated_at = now()
WHERE product_id = $1 AND version = $6`

// UpdateIf implements Store.
func (s *PGStore) UpdateIf(ctx context.Context, productID string, version int64, next promo.Promotion) error {
	tiersJSON, err := json.Marshal(next.Tiers)
	if err != nil {
		return fmt.Errorf("repo: encode tiers: %w", err)
	}
	tag, err := s.Pool.Exec(ctx, updateIfSQL,
		productID, next.Enabled, next.TotalQuantity, next.SoldTotal, tiersJSON, version)
	if err != nil {
		return fmt.Errorf("repo: conditional update: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM promotions WHERE product_id = $1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("repo: conditional update: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

const putPromotionSQL = `
INSERT INTO promotions (product_id, enabled, total_quantity, sold_total, tiers, version, updated_at)
VALUES ($1, $2, $3, $4, $5, 1, now())
ON CONFLICT (product_id) DO UPDATE
SET enabled = EXCLUDED.enabled,
    total_quantity = EXCLUDED.total_quantity,
    sold_total = EXCLUDED.sold_total,
    tiers = EXCLUDED.tiers,
    version = promotions.version + 1,
    updated_at = now()`

// Put implements Store.
func (s *PGStore) Put(ctx context.Context, productID string, p promo.Promotion) error {
	tiersJSON, err := json.Marshal(p.Tiers)
	if err != nil {
		return fmt.Errorf("repo: encode tiers: %w", err)
	}
	if _, err := s.Pool.Exec(ctx, putPromotionSQL,
		productID, p.Enabled, p.TotalQuantity, p.SoldTotal, tiersJSON); err != nil {
		return fmt.Errorf("repo: upsert promotion: %w", err)
	}
	return nil
}

const listPromotionsSQL = `
SELECT product_id, enabled, total_quantity, sold_total, tiers, version
FROM promotions
ORDER BY product_id`

// List implements Store.
func (s *PGStore) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.Pool.Query(ctx, listPromotionsSQL)
	if err != nil {
		return nil, fmt.Errorf("repo: list promotions: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			p         promo.Promotion
			tiersJSON []byte
			version   int64
		)
		if err := rows.Scan(&p.ProductID, &p.Enabled, &p.TotalQuantity, &p.SoldTotal, &tiersJSON, &version); err != nil {
			return nil, fmt.Errorf("repo: scan promotion: %w", err)
		}
		if err := json.Unmarshal(tiersJSON, &p.Tiers); err != nil {
			return nil, fmt.Errorf("repo: decode tiers: %w", err)
		}
		out = append(out, Snapshot{Promotion: p, Version: version})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: list promotions: %w", err)
	}
	return out, nil
}
