// Package ratelimit caps how many API calls one tenant can make per window.
// Checks fail open: a store outage is logged and the request goes through.
package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"compliance/pkg/platform/httputil"
	"compliance/pkg/requestcontext"
)

// Store consumes slots from a named sliding window.
type Store interface {
	AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*Result, error)
	Reset(ctx context.Context, key string) error
}

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"` // seconds
}

type Metrics struct {
	Decisions *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_ratelimit_decisions_total",
			Help: "Rate limit checks, labeled by outcome (allowed, rejected, error)",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(outcome).Inc()
}

// Middleware enforces a per-tenant limit on authenticated routes.
type Middleware struct {
	store   Store
	limit   int
	window  time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

func New(store Store, limit int, window time.Duration, logger *slog.Logger, metrics *Metrics) *Middleware {
	return &Middleware{
		store:   store,
		limit:   limit,
		window:  window,
		logger:  logger,
		metrics: metrics,
	}
}

// PerTenant must run after the auth middleware. Requests without a resolved
// actor pass through unchanged, as does everything when m is nil.
func (m *Middleware) PerTenant(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor := requestcontext.Actor(ctx)
		if actor.TenantID.IsNil() {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.store.AllowN(ctx, "tenant:"+actor.TenantID.String(), 1, m.limit, m.window)
		if err != nil {
			m.metrics.observe("error")
			m.logger.ErrorContext(ctx, "failed to check rate limit",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
				"tenant_id", actor.TenantID.String(),
			)
			next.ServeHTTP(w, r)
			return
		}

		addHeaders(w, result)
		if !result.Allowed {
			m.metrics.observe("rejected")
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"request_id", requestcontext.RequestID(ctx),
				"tenant_id", actor.TenantID.String(),
				"limit", result.Limit,
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, &ExceededResponse{
				Error:      "rate_limit_exceeded",
				Message:    "Too many requests for this tenant. Please try again later.",
				RetryAfter: result.RetryAfter,
			})
			return
		}
		m.metrics.observe("allowed")
		next.ServeHTTP(w, r)
	})
}

func addHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
