package api

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/ratelimit"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig collects what NewRouter wires together. Metrics and Limiter
// are optional. Forwarding headers are ignored unless TrustProxy is set, so
// rate limiting keys on the peer address by default.
type RouterConfig struct {
	Handler        *Handler
	Health         *health.Checker
	Metrics        *metrics.Metrics
	Limiter        *ratelimit.Limiter
	CORSOrigins    []string
	RequestTimeout time.Duration
	TrustProxy     bool
}

// NewRouter builds the HTTP API.
//
//	GET /analytics/{top-searches,zero-results,popular-documents,performance-trends,stats}
//	GET /analytics/snapshots
//	DELETE /analytics/cache
//	GET /health, /health/live, /health/ready
//
// Middleware, outermost first: Recoverer, RequestID, RealIP (TrustProxy
// only), RequestLog, Metrics, CORS. Analytics routes add RateLimit and
// Timeout.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(pkgmw.RequestLog)
	if cfg.Metrics != nil {
		r.Use(pkgmw.Metrics(cfg.Metrics))
	}
	r.Use(pkgmw.CORS(pkgmw.DefaultCORSConfig(cfg.CORSOrigins)))

	r.Get("/health", cfg.Health.ReportHandler())
	r.Get("/health/live", cfg.Health.LiveHandler())
	r.Get("/health/ready", cfg.Health.ReadyHandler())

	r.Route("/analytics", func(r chi.Router) {
		if cfg.Limiter != nil {
			r.Use(pkgmw.RateLimit(cfg.Limiter))
		}
		if cfg.RequestTimeout > 0 {
			r.Use(pkgmw.Timeout(cfg.RequestTimeout))
		}
		for _, kind := range analytics.Kinds {
			r.Get("/"+string(kind), cfg.Handler.Aggregate(kind))
		}
		r.Get("/snapshots", cfg.Handler.Snapshots)
		r.Delete("/cache", cfg.Handler.InvalidateCache)
	})
	return r
}
