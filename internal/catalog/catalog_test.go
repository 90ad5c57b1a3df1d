package catalog_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promo-api/internal/catalog"
)

func TestStaticCatalog(t *testing.T) {
	cat := catalog.StaticCatalog{
		"sku-1": {ID: "sku-1", Name: "Widget", RegularPrice: 2500},
	}

	p, err := cat.GetProduct(context.Background(), "sku-1")
	require.NoError(t, err)
	require.Equal(t, "Widget", p.Name)
	require.EqualValues(t, 2500, p.RegularPrice)

	_, err = cat.GetProduct(context.Background(), "missing")
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestCacheRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := catalog.NewCache(client, time.Minute)

	ctx := context.Background()
	var missed catalog.Product
	ok, err := cache.GetJSON(ctx, "catalog:product:sku-1", &missed)
	require.NoError(t, err)
	require.False(t, ok)

	want := catalog.Product{ID: "sku-1", Name: "Widget", RegularPrice: 2500}
	require.NoError(t, cache.SetJSON(ctx, "catalog:product:sku-1", want))

	var got catalog.Product
	ok, err = cache.GetJSON(ctx, "catalog:product:sku-1", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestCacheNilClientIsNoop(t *testing.T) {
	cache := catalog.NewCache(nil, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.SetJSON(ctx, "k", "v"))
	var dst string
	ok, err := cache.GetJSON(ctx, "k", &dst)
	require.NoError(t, err)
	require.False(t, ok)
}
