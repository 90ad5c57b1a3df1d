package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":            "postgres://localhost/promo",
		"REDIS_URL":               "redis://localhost:6379/0",
		"JWT_SECRET":              "secret",
		"PROMO_STORE_BACKEND":     "",
		"ALLOCATION_MAX_ATTEMPTS": "",
		"PORT":                    "",
	})
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.StoreBackend)
	require.Equal(t, 3, cfg.AllocationAttempts)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, time.Hour, cfg.AdminTokenTTL)
}

func TestLoadMemoryBackendSkipsDatabase(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":        "",
		"REDIS_URL":           "redis://localhost:6379/0",
		"JWT_SECRET":          "secret",
		"PROMO_STORE_BACKEND": "memory",
	})
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.StoreBackend)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"DATABASE_URL":        "postgres://localhost/promo",
		"REDIS_URL":           "redis://localhost:6379/0",
		"JWT_SECRET":          "secret",
		"PROMO_STORE_BACKEND": "dynamo",
	})
	require.Error(t, err)
}

func TestLoadRequiresRedis(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"DATABASE_URL":        "",
		"REDIS_URL":           "",
		"JWT_SECRET":          "secret",
		"PROMO_STORE_BACKEND": "memory",
	})
	require.Error(t, err)
}

func TestAttemptBoundFloor(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":            "",
		"REDIS_URL":               "redis://localhost:6379/0",
		"JWT_SECRET":              "secret",
		"PROMO_STORE_BACKEND":     "memory",
		"ALLOCATION_MAX_ATTEMPTS": "0",
	})
	require.NoError(t, err)
	require.Equal(t, 1, cfg.AllocationAttempts)
}
