// Package dashboard rolls up per-tenant compliance counts. It only reads.
package dashboard

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"compliance/internal/platform/tracer"
	id "compliance/pkg/domain"
	"compliance/pkg/requestcontext"
)

const auditWindow = 30 * 24 * time.Hour

type RequestCounter interface {
	CountAll(ctx context.Context, tenantID id.TenantID) (int, error)
	CountPending(ctx context.Context, tenantID id.TenantID) (int, error)
	CountOverdue(ctx context.Context, tenantID id.TenantID, now time.Time) (int, error)
}

type ConsentCounter interface {
	CountActive(ctx context.Context, tenantID id.TenantID) (int, error)
}

type AuditCounter interface {
	CountSince(ctx context.Context, tenantID id.TenantID, since time.Time) (int, error)
}

// BreachCounter reads the incident register, which lives outside this system.
type BreachCounter interface {
	CountBreaches(ctx context.Context, tenantID id.TenantID) (int, error)
}

// Cache stores computed stats per tenant. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, tenantID id.TenantID) (*Stats, error)
	Set(ctx context.Context, tenantID id.TenantID, stats *Stats) error
}

// Stats is the dashboard payload.
type Stats struct {
	AccessRequestsCount   int       `json:"access_requests_count"`
	ActiveConsentsCount   int       `json:"active_consents_count"`
	BreachIncidentsCount  int       `json:"breach_incidents_count"`
	AuditLogsLast30d      int       `json:"audit_logs_last_30d"`
	PendingAccessRequests int       `json:"pending_access_requests"`
	OverdueAccessRequests int       `json:"overdue_access_requests"`
	GeneratedAt           time.Time `json:"generated_at"`
}

type Option func(*Service)

func WithBreachCounter(b BreachCounter) Option {
	return func(s *Service) {
		s.breaches = b
	}
}

func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

type Service struct {
	requests RequestCounter
	consents ConsentCounter
	audit    AuditCounter
	breaches BreachCounter
	cache    Cache
	metrics  *Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
}

func NewService(requests RequestCounter, consents ConsentCounter, audit AuditCounter, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		consents: consents,
		audit:    audit,
		tracer:   tracer.NewNoop(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetDashboard returns the tenant's stats. Sub-queries run concurrently and
// the first failure fails the whole call; there is no partial dashboard.
func (s *Service) GetDashboard(ctx context.Context, actor id.Actor) (*Stats, error) {
	if err := actor.Authenticate(); err != nil {
		return nil, err
	}
	tenantID := actor.TenantID

	if cached := s.cached(ctx, tenantID); cached != nil {
		return cached, nil
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanDashboard,
		tracer.String(tracer.AttrTenantID, tenantID.String()),
	)
	stats, err := s.aggregate(ctx, tenantID, requestcontext.Now(ctx))
	span.End(err)
	if err != nil {
		return nil, err
	}

	s.store(ctx, tenantID, stats)
	return stats, nil
}

func (s *Service) aggregate(ctx context.Context, tenantID id.TenantID, now time.Time) (*Stats, error) {
	g, ctx := errgroup.WithContext(ctx)

	// each goroutine owns one field
	var stats Stats
	g.Go(func() (err error) {
		stats.AccessRequestsCount, err = s.requests.CountAll(ctx, tenantID)
		return err
	})
	g.Go(func() (err error) {
		stats.PendingAccessRequests, err = s.requests.CountPending(ctx, tenantID)
		return err
	})
	g.Go(func() (err error) {
		stats.OverdueAccessRequests, err = s.requests.CountOverdue(ctx, tenantID, now)
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveConsentsCount, err = s.consents.CountActive(ctx, tenantID)
		return err
	})
	g.Go(func() (err error) {
		stats.AuditLogsLast30d, err = s.audit.CountSince(ctx, tenantID, now.Add(-auditWindow))
		return err
	})
	if s.breaches != nil {
		g.Go(func() (err error) {
			stats.BreachIncidentsCount, err = s.breaches.CountBreaches(ctx, tenantID)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	stats.GeneratedAt = now
	return &stats, nil
}

func (s *Service) cached(ctx context.Context, tenantID id.TenantID) *Stats {
	if s.cache == nil {
		return nil
	}
	stats, err := s.cache.Get(ctx, tenantID)
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "dashboard cache read failed",
			"request_id", requestcontext.RequestID(ctx),
			"tenant_id", tenantID.String(),
			"error", err,
		)
		s.recordCache(cacheError)
		return nil
	case stats == nil:
		s.recordCache(cacheMiss)
		return nil
	default:
		s.recordCache(cacheHit)
		return stats
	}
}

func (s *Service) store(ctx context.Context, tenantID id.TenantID, stats *Stats) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, tenantID, stats); err != nil {
		s.logger.WarnContext(ctx, "dashboard cache write failed",
			"request_id", requestcontext.RequestID(ctx),
			"tenant_id", tenantID.String(),
			"error", err,
		)
	}
}

func (s *Service) recordCache(result string) {
	if s.metrics != nil {
		s.metrics.IncrementCacheLookup(result)
	}
}
