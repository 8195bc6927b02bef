package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/lib/pq" // Postgres Driver
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/coherence/pkg/alerts"
	"github.com/Mindburn-Labs/coherence/pkg/audit"
	"github.com/Mindburn-Labs/coherence/pkg/cache"
	"github.com/Mindburn-Labs/coherence/pkg/coherence"
	"github.com/Mindburn-Labs/coherence/pkg/config"
	"github.com/Mindburn-Labs/coherence/pkg/contracts"
	"github.com/Mindburn-Labs/coherence/pkg/events"
	"github.com/Mindburn-Labs/coherence/pkg/observability"
	"github.com/Mindburn-Labs/coherence/pkg/reconcile"
	"github.com/Mindburn-Labs/coherence/pkg/store"
	"github.com/Mindburn-Labs/coherence/pkg/weights"
)

// app holds the adapters wired from configuration.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	repo      *store.SQLAlertRepository
	outbox    *events.OutboxPublisher
	redis     *cache.RedisCache
	telemetry *observability.Provider
	svc       *coherence.Service
}

// openApp wires the engine from configuration. Audit lines go to auditOut.
func openApp(ctx context.Context, cfg *config.Config, auditOut io.Writer) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.wire(ctx, auditOut); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, auditOut io.Writer) error {
	cfg := a.cfg

	registry, err := loadRegistry(cfg, "")
	if err != nil {
		return err
	}
	policy, err := reviewPolicy(cfg.ReviewPolicy)
	if err != nil {
		return err
	}

	var dialect store.Dialect
	a.db, a.repo, dialect, err = openStore(ctx, cfg)
	if err != nil {
		return err
	}

	a.outbox = events.NewOutboxPublisher(a.db, dialect)
	if err := a.outbox.Init(ctx); err != nil {
		return err
	}
	publisher := events.NewRateLimitedPublisher(
		events.FanOut{a.outbox, events.NewLogPublisher(slog.Default())},
		cfg.EventRateLimit, 1,
	)

	var results contracts.ResultCache = cache.NewMemoryCache()
	if cfg.RedisAddr != "" {
		a.redis = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		results = a.redis
	}

	a.telemetry = observability.Noop()
	if cfg.OTelEnabled {
		otelCfg := observability.DefaultConfig()
		otelCfg.ServiceVersion = version
		otelCfg.OTLPEndpoint = cfg.OTelEndpoint
		otelCfg.Insecure = cfg.OTelInsecure
		if a.telemetry, err = observability.New(ctx, otelCfg); err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
	}

	auditor := audit.NewLoggerWithWriter(auditOut)
	generator := alerts.NewGenerator()
	reconciler := reconcile.NewService(a.repo,
		reconcile.WithGenerator(generator),
		reconcile.WithReviewPolicy(policy),
		reconcile.WithAuditor(auditor),
	)

	a.svc = coherence.NewService(
		coherence.WithRegistry(registry),
		coherence.WithGenerator(generator),
		coherence.WithCache(results),
		coherence.WithPublisher(publisher),
		coherence.WithRepository(a.repo),
		coherence.WithReconciler(reconciler),
		coherence.WithTelemetry(a.telemetry),
		coherence.WithAuditor(auditor),
		coherence.WithGamingPenalty(cfg.GamingPenalty),
	)
	return nil
}

// Close releases every adapter. It is safe on a partially opened app.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg *config.Config) (*sql.DB, *store.SQLAlertRepository, store.Dialect, error) {
	if cfg.LiteMode() {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0750); err != nil {
			return nil, nil, 0, fmt.Errorf("failed to create data dir: %w", err)
		}
		slog.Default().Debug("lite mode", "sqlite", cfg.SQLitePath)

		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		repo, err := store.NewSQLiteAlertRepository(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, 0, fmt.Errorf("failed to init sqlite alert store: %w", err)
		}
		return db, repo, store.DialectSQLite, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to open postgres: %w", err)
	}
	repo := store.NewPostgresAlertRepository(db)
	if err := repo.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, 0, fmt.Errorf("failed to init postgres alert store: %w", err)
	}
	return db, repo, store.DialectPostgres, nil
}

// loadRegistry builds a registry and applies the profile document at path,
// or at WEIGHT_PROFILES_PATH when path is empty.
func loadRegistry(cfg *config.Config, path string) (*weights.Registry, error) {
	registry := weights.NewRegistry()
	if path == "" {
		path = cfg.WeightProfilesPath
	}
	if path == "" {
		return registry, nil
	}
	doc, err := config.LoadProfileDocument(path)
	if err != nil {
		return nil, err
	}
	if _, err := config.ApplyProfiles(registry, doc); err != nil {
		return nil, err
	}
	return registry, nil
}

func reviewPolicy(expr string) (reconcile.ReviewPolicy, error) {
	if expr == "" {
		return reconcile.DefaultReviewPolicy, nil
	}
	p, err := reconcile.NewCELReviewPolicy(expr, nil)
	if err != nil {
		return nil, fmt.Errorf("review policy: %w", err)
	}
	return p, nil
}
