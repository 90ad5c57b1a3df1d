package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limitermw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/noah-isme/promo-api/internal/admin"
	"github.com/noah-isme/promo-api/internal/allocation"
	"github.com/noah-isme/promo-api/internal/app"
	"github.com/noah-isme/promo-api/internal/auth"
	"github.com/noah-isme/promo-api/internal/catalog"
	"github.com/noah-isme/promo-api/internal/common"
	"github.com/noah-isme/promo-api/internal/config"
	"github.com/noah-isme/promo-api/internal/events"
	"github.com/noah-isme/promo-api/internal/health"
	"github.com/noah-isme/promo-api/internal/lock"
	"github.com/noah-isme/promo-api/internal/notify"
	"github.com/noah-isme/promo-api/internal/obs"
	"github.com/noah-isme/promo-api/internal/ratelimit"
	"github.com/noah-isme/promo-api/internal/repo"
	"github.com/noah-isme/promo-api/internal/resilience"
	"github.com/noah-isme/promo-api/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(nil)
	resilience.MustRegister(nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "promo-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisClient := mustInitRedis(ctx, cfg.RedisURL, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	var (
		store   repo.Store
		journal events.Journal
		pool    *pgxpool.Pool
		cat     catalog.Catalog
	)
	switch cfg.StoreBackend {
	case "postgres":
		if envBool("DB_MIGRATE", true) {
			migrateUp(cfg.DatabaseURL, envOrDefault("DB_MIGRATIONS_DIR", "migrations"), logger)
		}
		pool = mustInitDatabase(ctx, cfg.DatabaseURL, logger)
		defer pool.Close()
		store = &repo.PGStore{Pool: pool}
		journal = &repo.PGJournal{Pool: pool}
		cat = &catalog.PGCatalog{
			Pool:  pool,
			Cache: catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		}
	case "memory":
		store = repo.NewMemoryStore()
		journal = &events.MemoryJournal{}
		cat = catalog.StaticCatalog{}
		logger.Warn().Msg("memory store backend: promotion state is not durable")
	}

	taskRedis, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	taskClient := asynq.NewClient(taskRedis)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	enqueueBreaker := resilience.NewBreaker("task_queue", 5, 30*time.Second)
	enqueueBreaker.Log = logger
	bus := &events.Bus{
		Journal:   journal,
		Notifiers: []events.Notifier{notify.TaskEnqueuer{Client: taskClient, Breaker: enqueueBreaker}},
	}

	allocSvc := &allocation.Service{
		Store:    store,
		Events:   bus,
		Catalog:  cat,
		Log:      logger,
		Attempts: cfg.AllocationAttempts,
	}
	if cfg.LockFallback {
		allocSvc.Lock = &lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff}
		allocSvc.LockTTL = cfg.LockTTL
	}

	allocHandlers := &allocation.Handlers{
		Service:   allocSvc,
		Estimator: allocation.Estimator{Store: store, Catalog: cat},
		Guard:     allocation.Guard{Store: store},
		Store:     store,
	}

	authSvc, err := auth.NewService(auth.Config{
		Secret:            cfg.JWTSecret,
		AdminPasswordHash: cfg.AdminPasswordHash,
		TokenTTL:          cfg.AdminTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("configure auth")
	}
	authHandlers := &auth.Handlers{Service: authSvc, Log: logger}
	authMiddleware := auth.Middleware{Service: authSvc}

	adminHandlers := &admin.Handlers{
		Store:    store,
		Validate: validator.New(),
		Events:   bus,
		Log:      logger,
	}

	loginLimiterStore, err := app.NewLimiterStore(redisClient, "ratelimit:login")
	if err != nil {
		logger.Fatal().Err(err).Msg("configure login rate limiter")
	}
	loginLimiter := limitermw.NewMiddleware(limiter.New(loginLimiterStore, limiter.Rate{
		Period: cfg.LoginRatePeriod,
		Limit:  cfg.LoginRateMax,
	}))

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	commitLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:commit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ClientKey,
			Window: cfg.CommitRateWindow,
			Max:    cfg.CommitRateMax,
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("rate limiter unavailable")
		},
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics("promo", buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:     cfg.SecurityHeadersEnabled,
		EnableHSTS: cfg.EnableHSTS,
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Store:        storeProbe(pool),
		Redis:        redisProbe(redisClient),
		StoreTimeout: envDurationMillis("HEALTH_READY_STORE_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/promotions", func(p chi.Router) {
			p.Get("/{productID}/status", allocHandlers.Status)
			p.Get("/{productID}/estimate", allocHandlers.Estimate)
			p.Get("/{productID}/check", allocHandlers.Check)
			p.With(commitLimiter.Middleware, idem.Middleware).
				Post("/{productID}/commit", allocHandlers.Commit)
		})

		v.Route("/admin", func(a chi.Router) {
			a.With(loginLimiter.Handler).Post("/login", authHandlers.Login)
			a.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAdmin)
				protected.Route("/promotions", adminHandlers.Mount)
			})
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-shutdownCtx.Done()
		health.SetReady(false)
		drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer drainCancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("store", cfg.StoreBackend).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server shutdown complete")
}

func migrateUp(databaseURL, dir string, logger zerolog.Logger) {
	m, err := migrate.New("file://"+dir, databaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open migrations")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Error().AnErr("source", srcErr).AnErr("database", dbErr).Msg("close migrations")
		}
	}()
	if err := app.RunMigrations(m); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}
}

func mustInitDatabase(ctx context.Context, databaseURL string, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "promo-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, redisURL string, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func storeProbe(pool *pgxpool.Pool) health.Probe {
	if pool == nil {
		return nil
	}
	return func(ctx context.Context, timeout time.Duration) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return pool.Ping(ctx)
	}
}

func redisProbe(client *redis.Client) health.Probe {
	return func(ctx context.Context, timeout time.Duration) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDurationMillis(key string, fallbackMillis int) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok {
		return time.Duration(fallbackMillis) * time.Millisecond
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || parsed <= 0 {
		return time.Duration(fallbackMillis) * time.Millisecond
	}
	return time.Duration(parsed) * time.Millisecond
}
