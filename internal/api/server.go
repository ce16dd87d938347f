// Package api provides the HTTP API of the sync service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/readlist/readlist-sync/internal/api/common"
	"github.com/readlist/readlist-sync/internal/sync/coordinator"
	"github.com/readlist/readlist-sync/internal/sync/state"
	"github.com/readlist/readlist-sync/internal/versions"
)

// ServerOption configures the API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	triggerSecret  string
	readiness      func(ctx context.Context) error
	metricsHandler http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithTriggerSecret sets the bearer secret of the trigger endpoint. Without
// it every trigger request is rejected.
func WithTriggerSecret(secret string) ServerOption {
	return func(cfg *serverConfig) {
		cfg.triggerSecret = secret
	}
}

// WithReadinessCheck sets the check behind /readiness
func WithReadinessCheck(check func(ctx context.Context) error) ServerOption {
	return func(cfg *serverConfig) {
		cfg.readiness = check
	}
}

// WithMetricsHandler mounts a Prometheus scrape handler on /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// NewServer creates the HTTP router
func NewServer(coord coordinator.Coordinator, store state.Store, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(cfg.readiness))
	r.Get("/version", versionHandler)
	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}

	r.Mount("/v1/sync", newSyncRoutes(coord, store, cfg.triggerSecret).router())

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

func readinessHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				slog.Warn("Readiness check failed", "error", err)
				common.WriteErrorResponse(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		common.WriteJSONResponse(w, HealthResponse{Status: "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
