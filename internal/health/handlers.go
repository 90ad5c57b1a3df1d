// Package health exposes liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Probe checks one dependency within the given timeout. A nil Probe means
// the dependency is not part of the deployment (e.g. Postgres in memory
// store mode) and is reported as ok.
type Probe func(ctx context.Context, timeout time.Duration) error

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness gate; shutdown sets it to false so load
// balancers drain the instance before the listener closes.
func SetReady(v bool) { ready.Store(v) }

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Store        Probe
	Redis        Probe
	StoreTimeout time.Duration
	RedisTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	status := map[string]string{
		"store": probe(ctx, h.Store, h.storeTimeout()),
		"redis": probe(ctx, h.Redis, h.redisTimeout()),
	}
	w.Header().Set("Content-Type", "application/json")
	if status["store"] != "ok" || status["redis"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func probe(ctx context.Context, p Probe, timeout time.Duration) string {
	if p == nil {
		return "ok"
	}
	if err := p(ctx, timeout); err != nil {
		return err.Error()
	}
	return "ok"
}

func (h Handler) storeTimeout() time.Duration {
	if h.StoreTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.StoreTimeout
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
