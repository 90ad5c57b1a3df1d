package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	StoreBackend       string
	JWTSecret          string
	AdminPasswordHash  string
	AdminTokenTTL      time.Duration
	CORSAllowedOrigins []string

	AllocationAttempts int
	LockFallback       bool
	LockTTL            time.Duration
	LockRetryBackoff   time.Duration

	IdempotencyTTL  time.Duration
	CatalogCacheTTL time.Duration

	CommitRateWindow time.Duration
	CommitRateMax    int
	LoginRatePeriod  time.Duration
	LoginRateMax     int64

	NotifyEmailEnabled bool
	NotifyEmailFrom    string
	AdminEmail         string
	WorkerConcurrency  int

	MaxBodyBytes           int64
	SecurityHeadersEnabled bool
	EnableHSTS             bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		StoreBackend:       strings.ToLower(valueOrDefault(k.String("PROMO_STORE_BACKEND"), "postgres")),
		JWTSecret:          k.String("JWT_SECRET"),
		AdminPasswordHash:  k.String("ADMIN_PASSWORD_HASH"),
		AdminTokenTTL:      parseDuration(k.String("ADMIN_TOKEN_TTL"), "1h"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		AllocationAttempts: parseInt(k.String("ALLOCATION_MAX_ATTEMPTS"), 3),
		LockFallback:       parseBool(k.String("ALLOCATION_LOCK_FALLBACK")),
		LockTTL:            parseDuration(k.String("ALLOCATION_LOCK_TTL"), "10s"),
		LockRetryBackoff:   parseDuration(k.String("ALLOCATION_LOCK_RETRY_BACKOFF"), "50ms"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		CommitRateWindow:   parseDuration(k.String("COMMIT_RATE_WINDOW"), "1m"),
		CommitRateMax:      parseInt(k.String("COMMIT_RATE_MAX"), 60),
		LoginRatePeriod:    parseDuration(k.String("LOGIN_RATE_PERIOD"), "1m"),
		LoginRateMax:       int64(parseInt(k.String("LOGIN_RATE_MAX"), 10)),
		NotifyEmailEnabled: parseBool(k.String("NOTIFY_EMAIL_ENABLED")),
		NotifyEmailFrom:    valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "noreply@localhost"),
		AdminEmail:         k.String("ADMIN_EMAIL"),
		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 4),

		MaxBodyBytes:           int64(parseInt(k.String("MAX_BODY_BYTES"), 1<<20)),
		SecurityHeadersEnabled: parseBool(valueOrDefault(k.String("SECURITY_HEADERS_ENABLED"), "true")),
		EnableHSTS:             parseBool(k.String("SECURITY_ENABLE_HSTS")),
	}

	switch cfg.StoreBackend {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("unsupported PROMO_STORE_BACKEND: %s", cfg.StoreBackend)
	}
	if cfg.StoreBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.AllocationAttempts < 1 {
		cfg.AllocationAttempts = 1
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
