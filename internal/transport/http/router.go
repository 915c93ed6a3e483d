// Package httptransport assembles the public HTTP surface: shared middleware,
// operational endpoints and the sharing routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"haven/internal/platform/metrics"
	"haven/internal/platform/middleware"
	"haven/internal/sharing/handler"
	"haven/pkg/platform/httputil"
	"haven/pkg/platform/middleware/auth"
	"haven/pkg/platform/middleware/metadata"
	"haven/pkg/platform/middleware/requesttime"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterConfig holds what the router needs from the process.
type RouterConfig struct {
	Logger             *slog.Logger
	Metrics            *metrics.Metrics
	Gatherer           prometheus.Gatherer
	Validator          auth.JWTValidator
	Sharing            *handler.Handler
	RequestTimeout     time.Duration
	MaxBodyBytes       int64
	RateLimitPerMinute int
	// Ready is consulted by /readyz; nil means always ready.
	Ready Pinger
}

// NewRouter wires the middleware chain and every route.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// order matters: the request id must exist before anything logs
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.LatencyMiddleware(cfg.Metrics))
	r.NotFound(middleware.NotFound)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(cfg.Ready, cfg.Logger))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		if cfg.MaxBodyBytes > 0 {
			r.Use(middleware.MaxBody(cfg.MaxBodyBytes))
		}
		r.Use(auth.RequireAuth(cfg.Validator, cfg.Logger))
		if cfg.RateLimitPerMinute > 0 {
			r.Use(middleware.RateLimitBySubject(cfg.RateLimitPerMinute, time.Minute, cfg.Metrics))
		}
		cfg.Sharing.Register(r)
	})
	return r
}

func readiness(p Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.PingContext(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
