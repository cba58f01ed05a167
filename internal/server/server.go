// Package server implements the HTTP transport layer for edgecache.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	edgecache "github.com/eugener/edgecache/internal"
	"github.com/eugener/edgecache/internal/cache"
	"github.com/eugener/edgecache/internal/origin"
	"github.com/eugener/edgecache/internal/ratelimit"
	"github.com/eugener/edgecache/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Authenticator validates admin API credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) error
}

// Origin fetches responses for cache misses and uncacheable requests.
type Origin interface {
	Fetch(ctx context.Context, r *http.Request) (*origin.Fetched, error)
}

// PurgeRecorder records purge audit events asynchronously.
type PurgeRecorder interface {
	Record(edgecache.PurgeEvent)
}

// PurgeLog serves the purge audit history.
type PurgeLog interface {
	ListPurges(ctx context.Context, f edgecache.PurgeFilter) ([]edgecache.PurgeEvent, error)
	CountPurges(ctx context.Context, f edgecache.PurgeFilter) (int, error)
}

// PurgeLimiter throttles purge requests per client.
type PurgeLimiter interface {
	Allow(key string) ratelimit.Result
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Cache          *cache.Cache
	Origin         Origin
	Auth           Authenticator      // nil = admin API disabled
	Purges         PurgeRecorder      // nil = no purge auditing
	PurgeLog       PurgeLog           // nil = purge history unavailable
	PurgeLimit     PurgeLimiter       // nil = purges are not rate limited
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
	Breaker        BreakerState       // nil = no origin breaker
	Metrics        *telemetry.Metrics // nil = no request metrics
	MetricsHandler http.Handler       // nil = no /metrics endpoint
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.tracing)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	if deps.Auth != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.authenticate)
			r.With(s.limitPurges).Post("/purge", s.handlePurge)
			r.Get("/purges", s.handleListPurges)
			r.Get("/stats", s.handleStats)
		})
	}

	// Everything else goes through the cache.
	r.HandleFunc("/*", s.handleProxy)

	return r
}

type server struct {
	deps Deps
}
