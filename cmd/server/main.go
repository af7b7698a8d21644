package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"compliance/internal/anonymization"
	"compliance/internal/anonymization/bulk"
	"compliance/internal/app"
	"compliance/internal/audit"
	consenthandler "compliance/internal/consent/handler"
	"compliance/internal/dashboard"
	jwttoken "compliance/internal/jwt_token"
	"compliance/internal/platform/config"
	"compliance/internal/platform/health"
	"compliance/internal/platform/logger"
	requesthandler "compliance/internal/requests/handler"
	"compliance/internal/seeder"
	httptransport "compliance/internal/transport/http"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/middleware/request"
	"compliance/pkg/platform/validation"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
// bulkDrainTimeout bounds how long shutdown waits for detached bulk runs.
const bulkDrainTimeout = 2 * time.Minute

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if cfg.UsesDevSigningKey() && !cfg.IsLocal() {
		log.Error("JWT_SIGNING_KEY must be set outside local environments", "environment", cfg.Environment)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := app.Build(cfg, reg, log)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	log.Info("initializing compliance service",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"storage", a.Storage,
	)

	if cfg.Demo.Seed {
		if err := seedDemo(context.Background(), cfg.Demo, a, log); err != nil {
			log.Error("failed to seed demo data", "error", err)
			os.Exit(1)
		}
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)
	jwtService.SetEnv(cfg.Environment)

	healthHandler := health.New(cfg.Environment, a.Storage)
	a.RegisterChecks(healthHandler)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		Gatherer:       reg,
		Metrics:        request.NewMetrics(reg),
		TrustedProxies: cfg.TrustedProxies,
		Health:         healthHandler,
		RateLimit:      a.RateLimit,
		BodyLimits:     map[string]int64{bulk.RunPath: validation.MaxBulkBodySize},
	},
		consenthandler.New(a.Consents, log),
		requesthandler.New(a.Requests, log),
		audit.NewHandler(a.Audit, log),
		anonymization.NewHandler(a.Anonymizer, log),
		bulk.NewHandler(a.Bulk, log),
		dashboard.NewHandler(a.Dashboard, log),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	statsCtx, stopStats := context.WithCancel(context.Background())
	go a.RunHousekeeping(statsCtx, 15*time.Second)

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")
	stopStats()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), bulkDrainTimeout)
	defer cancelDrain()
	if err := a.Drain(drainCtx); err != nil {
		log.Error("bulk anonymization still running at shutdown", "error", err)
	}
	if err := a.Close(); err != nil {
		log.Error("failed to release resources", "error", err)
	}

	log.Info("server stopped")
}

// seedDemo fills the in-memory ledgers so a fresh local server has something to show.
func seedDemo(ctx context.Context, demo config.Demo, a *app.App, log *slog.Logger) error {
	if a.Storage != app.StorageMemory {
		log.Warn("SEED_DEMO ignored for persistent storage", "storage", a.Storage)
		return nil
	}
	tenantID, err := id.ParseTenantID(demo.TenantID)
	if err != nil {
		return err
	}
	actorID, err := id.ParseActorID(demo.ActorID)
	if err != nil {
		return err
	}
	_, err = seeder.New(a.Directory, a.Consents, a.Requests, log).SeedAll(ctx, id.NewActor(actorID, tenantID))
	return err
}
