// Package app assembles the compliance services from configuration. The HTTP
// server and the operator CLI share it so both run the same ledgers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"compliance/internal/anonymization"
	"compliance/internal/anonymization/bulk"
	"compliance/internal/audit"
	consentmetrics "compliance/internal/consent/metrics"
	consentservice "compliance/internal/consent/service"
	consentstore "compliance/internal/consent/store"
	"compliance/internal/dashboard"
	"compliance/internal/notification"
	"compliance/internal/platform/config"
	"compliance/internal/platform/database"
	"compliance/internal/platform/health"
	"compliance/internal/platform/kafka/producer"
	redisclient "compliance/internal/platform/redis"
	"compliance/internal/platform/tracer"
	"compliance/internal/ratelimit"
	requestmetrics "compliance/internal/requests/metrics"
	requestservice "compliance/internal/requests/service"
	requeststore "compliance/internal/requests/store"
	"compliance/internal/subject"
	"compliance/migrations"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// SubjectDirectory is every directory operation the services need.
type SubjectDirectory interface {
	anonymization.Directory
	requestservice.Directory
	bulk.CandidateSource
	Create(ctx context.Context, s *subject.Subject) error
}

type requestLedger interface {
	requestservice.Store
	dashboard.RequestCounter
}

type consentLedger interface {
	consentservice.Store
	dashboard.ConsentCounter
}

// App holds the wired services and the infrastructure behind them.
type App struct {
	Storage    string
	Directory  SubjectDirectory
	Consents   *consentservice.Service
	Requests   *requestservice.Service
	Audit      *audit.Service
	Anonymizer *anonymization.Service
	Bulk       *bulk.Orchestrator
	Dashboard  *dashboard.Service
	RateLimit  *ratelimit.Middleware

	limits   *ratelimit.InMemoryStore
	pool     *database.Pool
	redis    *redisclient.Client
	producer *producer.Producer
	auditor  *audit.Publisher
	checks   map[string]health.CheckFunc
}

// Build connects to whatever infrastructure cfg names and wires the services
// on top of it. Without DATABASE_URL every ledger is kept in memory. Redis
// and Kafka are optional.
func Build(cfg config.Server, reg prometheus.Registerer, logger *slog.Logger) (*App, error) {
	a := &App{
		Storage: StorageMemory,
		checks:  make(map[string]health.CheckFunc),
	}

	pool, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.pool = pool

	var (
		requests   requestLedger
		consents   consentLedger
		auditStore audit.Store
	)
	if pool != nil {
		if cfg.MigrateOnStart {
			if err := database.Migrate(pool.DB(), migrations.FS); err != nil {
				_ = a.Close()
				return nil, err
			}
			logger.Info("database migrations applied")
		}
		a.Storage = StoragePostgres
		a.Directory = subject.NewPostgresDirectory(pool.DB())
		requests = requeststore.NewPostgres(pool.DB())
		consents = consentstore.NewPostgres(pool.DB())
		auditStore = audit.NewPostgresStore(pool.DB())
		a.checks["database"] = pool.Health
	} else {
		a.Directory = subject.NewInMemoryDirectory()
		requests = requeststore.New()
		consents = consentstore.New()
		auditStore = audit.NewInMemoryStore()
	}

	rc, err := redisclient.New(cfg.Redis, reg)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.redis = rc

	var notifier notification.Sender = notification.NewLogSender(logger)
	auditOpts := []audit.PublisherOption{
		audit.WithPublisherLogger(logger),
		audit.WithAsyncBuffer(cfg.AuditBuffer),
	}
	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(cfg.Kafka, logger)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect kafka: %w", err)
		}
		a.producer = p
		a.checks["kafka"] = p.Health
		notifier = notification.NewKafkaSender(p, cfg.Notification.Topic, cfg.Notification.Timeout)
		auditOpts = append(auditOpts, audit.WithKafkaMirror(p, cfg.Kafka.AuditTopic))
	}
	a.auditor = audit.NewPublisher(auditStore, auditOpts...)

	t := tracer.NewOTel()

	a.Audit = audit.NewService(auditStore, logger)
	a.Consents = consentservice.NewService(consents, a.auditor, logger,
		consentservice.WithMetrics(consentmetrics.New(reg)),
	)
	a.Requests = requestservice.NewService(requests, a.Directory, a.auditor, logger,
		requestservice.WithMetrics(requestmetrics.New(reg)),
		requestservice.WithNotifier(notifier),
		requestservice.WithTracer(t),
	)
	a.Anonymizer = anonymization.NewService(a.Directory, a.auditor, logger,
		anonymization.WithMetrics(anonymization.NewMetrics(reg)),
		anonymization.WithTracer(t),
	)
	a.Bulk = bulk.NewOrchestrator(a.Anonymizer, a.Directory, logger,
		bulk.WithMetrics(bulk.NewMetrics(reg)),
		bulk.WithTracer(t),
	)

	dashOpts := []dashboard.Option{
		dashboard.WithMetrics(dashboard.NewMetrics(reg)),
		dashboard.WithTracer(t),
	}
	if rc != nil {
		a.checks["redis"] = rc.Health
		dashOpts = append(dashOpts, dashboard.WithCache(dashboard.NewRedisCache(rc, cfg.Dashboard.CacheTTL)))
	}
	a.Dashboard = dashboard.NewService(requests, consents, a.Audit, logger, dashOpts...)

	if cfg.RateLimit.Requests > 0 {
		var store ratelimit.Store
		if rc != nil {
			store = ratelimit.NewRedisStore(rc)
		} else {
			a.limits = ratelimit.NewInMemoryStore()
			store = a.limits
		}
		a.RateLimit = ratelimit.New(store, cfg.RateLimit.Requests, cfg.RateLimit.Window, logger, ratelimit.NewMetrics(reg))
	}

	return a, nil
}

// RegisterChecks adds a readiness probe for every connected dependency.
func (a *App) RegisterChecks(h *health.Handler) {
	for name, check := range a.checks {
		h.RegisterCheck(name, check)
	}
}

// RunHousekeeping samples connection pool gauges and drops expired
// in-memory rate limit windows until ctx is done.
func (a *App) RunHousekeeping(ctx context.Context, every time.Duration) {
	if a.redis == nil && a.limits == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.housekeep()
		}
	}
}

func (a *App) housekeep() {
	if a.redis != nil {
		a.redis.RecordPoolStats()
	}
	if a.limits != nil {
		a.limits.Sweep()
	}
}

// Close drains the audit publisher and releases every connection.
// Drain waits for detached bulk runs so Close does not pull the stores and
// the audit publisher out from under them.
func (a *App) Drain(ctx context.Context) error {
	return a.Bulk.Drain(ctx)
}

func (a *App) Close() error {
	if a.auditor != nil {
		a.auditor.Close()
	}
	var errs []error
	if a.producer != nil {
		errs = append(errs, a.producer.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.pool.Close())
	return errors.Join(errs...)
}
