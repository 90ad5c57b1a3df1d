// Package catalog resolves product metadata needed to price an allocation:
// the regular unit price and the display name used in notifications.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/promo-api/internal/common"
)

// ErrProductNotFound reports an unknown product id.
var ErrProductNotFound = &common.AppError{
	Code:       "PRODUCT_NOT_FOUND",
	Message:    "product not found",
	HTTPStatus: http.StatusNotFound,
}

// Product carries the catalog fields the promotion layer consumes. Prices are
// minor units.
type Product struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RegularPrice int64  `json:"regularPrice"`
}

// Catalog looks up a product by id.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
}

const getProductSQL = `
SELECT id, name, regular_price
FROM products
WHERE id = $1
`

// PGCatalog reads products from Postgres with an optional read-through cache.
type PGCatalog struct {
	Pool  *pgxpool.Pool
	Cache *Cache
}

// GetProduct returns the product row for id, serving from cache when present.
func (c *PGCatalog) GetProduct(ctx context.Context, productID string) (Product, error) {
	key := productCacheKey(productID)
	var cached Product
	if ok, err := c.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	var p Product
	err := c.Pool.QueryRow(ctx, getProductSQL, productID).Scan(&p.ID, &p.Name, &p.RegularPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	_ = c.Cache.SetJSON(ctx, key, p)
	return p, nil
}

func productCacheKey(productID string) string {
	return "catalog:product:" + productID
}

// StaticCatalog serves a fixed product set from memory. It backs the memory
// store mode and tests.
type StaticCatalog map[string]Product

func (s StaticCatalog) GetProduct(_ context.Context, productID string) (Product, error) {
	p, ok := s[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}
