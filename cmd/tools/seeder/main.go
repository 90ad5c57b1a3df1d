// Seeder populates a development database with demo products and a tiered
// promotion so the API has something to allocate against.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/noah-isme/promo-api/internal/promo"
	"github.com/noah-isme/promo-api/internal/repo"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedProducts(ctx, pool)
	seedPromotions(ctx, &repo.PGStore{Pool: pool})

	log.Println("Seeding completed successfully!")
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) {
	products := []struct {
		id    string
		name  string
		price int64
	}{
		{"sku-widget", "Widget Deluxe", 24900},
		{"sku-gadget", "Gadget Mini", 9900},
	}
	for _, p := range products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (id, name, regular_price)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, regular_price = EXCLUDED.regular_price
		`, p.id, p.name, p.price)
		if err != nil {
			log.Fatalf("Failed to seed product %s: %v", p.id, err)
		}
		log.Printf("Seeded product %s", p.id)
	}
}

func seedPromotions(ctx context.Context, store repo.Store) {
	p := promo.Promotion{
		ProductID:     "sku-widget",
		Enabled:       true,
		TotalQuantity: 20,
		Tiers: []promo.Tier{
			{Capacity: 10, DiscountPercent: 30},
			{Capacity: 10, DiscountPercent: 20},
		},
	}
	if err := p.Validate(); err != nil {
		log.Fatalf("Demo promotion invalid: %v", err)
	}
	if err := store.Put(ctx, p.ProductID, p); err != nil {
		log.Fatalf("Failed to seed promotion: %v", err)
	}
	log.Printf("Seeded promotion for %s", p.ProductID)
}
