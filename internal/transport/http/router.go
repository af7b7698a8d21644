package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"compliance/pkg/platform/middleware/auth"
	"compliance/pkg/platform/middleware/request"
	"compliance/pkg/platform/middleware/requesttime"
	"compliance/pkg/platform/validation"
)

// Registrar mounts a module's routes on a router.
type Registrar interface {
	Register(r chi.Router)
}

// Config carries what the router needs beyond the module handlers.
type Config struct {
	Logger         *slog.Logger
	Validator      auth.TokenValidator
	Gatherer       prometheus.Gatherer
	Metrics        *request.Metrics
	TrustedProxies []netip.Prefix
	Health         Registrar
	// RateLimit runs after authentication when set.
	RateLimit      Limiter
	// BodyLimits replaces the default body cap for the listed paths.
	BodyLimits     map[string]int64
}

// Limiter wraps protected routes with a per-tenant limit.
type Limiter interface {
	PerTenant(next http.Handler) http.Handler
}

// NewRouter wires the shared middleware stack, the public probe and metrics
// endpoints, and every protected module behind operator authentication.
func NewRouter(cfg Config, protected ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.ClientMetadata(cfg.TrustedProxies))
	r.Use(request.Logger(cfg.Logger))
	r.Use(request.Latency(cfg.Metrics, routePattern))
	r.Use(request.BodyLimitByPath(validation.MaxBodySize, cfg.BodyLimits))
	r.Use(request.ContentTypeJSON)

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireActor(cfg.Validator, cfg.Logger))
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit.PerTenant)
		}
		for _, h := range protected {
			h.Register(r)
		}
	})

	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
