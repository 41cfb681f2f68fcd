package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/animus-labs/animus-migrate/internal/auditlog"
	"github.com/animus-labs/animus-migrate/internal/consolidate"
	"github.com/animus-labs/animus-migrate/internal/executor"
	"github.com/animus-labs/animus-migrate/internal/generate"
	"github.com/animus-labs/animus-migrate/internal/generate/openaigen"
	"github.com/animus-labs/animus-migrate/internal/normalize"
	"github.com/animus-labs/animus-migrate/internal/observability"
	"github.com/animus-labs/animus-migrate/internal/plan"
	"github.com/animus-labs/animus-migrate/internal/platform/badgerdb"
	"github.com/animus-labs/animus-migrate/internal/platform/httpserver"
	platformstore "github.com/animus-labs/animus-migrate/internal/platform/objectstore"
	"github.com/animus-labs/animus-migrate/internal/platform/postgres"
	"github.com/animus-labs/animus-migrate/internal/schema"
	"github.com/animus-labs/animus-migrate/internal/service/migration"
	"github.com/animus-labs/animus-migrate/internal/storage"
	"github.com/animus-labs/animus-migrate/internal/storage/badgerstore"
	"github.com/animus-labs/animus-migrate/internal/storage/objectstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "migrator"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	profile := normalize.DefaultProfile()
	if cfg.ProfileFile != "" {
		profile, err = normalize.LoadProfile(cfg.ProfileFile)
		if err != nil {
			logger.Error("invalid normalizer profile", "path", cfg.ProfileFile, "error", err)
			os.Exit(2)
		}
	}
	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	genCfg, err := openaigen.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid generator config", "error", err)
		os.Exit(2)
	}

	checks := make([]httpserver.ReadinessCheck, 0, 2)
	store, closeStore, storeCheck, err := openStore(ctx, cfg.StoreBackend, logger)
	if err != nil {
		logger.Error("store unavailable", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	if storeCheck != nil {
		checks = append(checks, *storeCheck)
	}

	auditFile, err := os.OpenFile(cfg.AuditLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		logger.Error("audit log unavailable", "path", cfg.AuditLogPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = auditFile.Close() }()
	ndjson, err := auditlog.NewNDJSON(auditFile)
	if err != nil {
		logger.Error("audit log unavailable", "error", err)
		os.Exit(1)
	}
	audit := auditlog.Multi{ndjson}

	if dbCfg.Enabled() {
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		mirror, err := auditlog.NewPostgres(db)
		if err != nil {
			logger.Error("audit mirror unavailable", "error", err)
			os.Exit(1)
		}
		if err := mirror.EnsureSchema(ctx); err != nil {
			logger.Error("audit mirror unavailable", "error", err)
			os.Exit(1)
		}
		audit = append(audit, mirror)
		checks = append(checks, postgresCheck(db))
	}

	var gen generate.Generator = generate.Carryover{}
	if genCfg.Enabled() {
		client, err := openaigen.New(genCfg, logger)
		if err != nil {
			logger.Error("invalid generator config", "error", err)
			os.Exit(2)
		}
		gen = generate.NewThrottled(
			generate.WithPolicy(client, generate.Backoff{
				Attempts: cfg.GenerationAttempts,
				Initial:  cfg.GenerationBackoff,
				Max:      cfg.GenerationMaxBackoff,
			}),
			cfg.GenerationRate,
			cfg.GenerationBurst,
		)
		logger.Info("content generation via model", "model", genCfg.Model)
	} else {
		logger.Warn("MIGRATOR_OPENAI_API_KEY not set, carrying evidence over without a model")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	svc, err := buildService(store, profile, gen, audit, metrics, cfg.Concurrency, logger)
	if err != nil {
		logger.Error("service wiring failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks(serviceName, checks...))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	newMigrationAPI(logger, svc, cfg.RequestMaxBytes).register(mux)

	serverCfg := httpserver.Config{
		Service:         serviceName,
		Addr:            cfg.Addr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, serverCfg, httpserver.WrapObserved(logger, serviceName, metrics.ObserveRequest, mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// buildService wires the migration components on top of store.
func buildService(store storage.Store, profile normalize.Profile, gen generate.Generator, audit auditlog.Log, metrics *observability.Metrics, concurrency int, logger *slog.Logger) (*migration.Service, error) {
	normalizer, err := normalize.New(profile, logger)
	if err != nil {
		return nil, err
	}
	planner, err := plan.NewPlanner(normalizer, logger)
	if err != nil {
		return nil, err
	}
	validator, err := schema.New()
	if err != nil {
		return nil, err
	}
	workspace, err := executor.NewWorkspace(store, validator)
	if err != nil {
		return nil, err
	}
	var execMetrics executor.Metrics
	var consMetrics consolidate.Metrics
	if metrics != nil {
		execMetrics, consMetrics = metrics, metrics
	}
	exec, err := executor.New(executor.Config{
		Workspace: workspace,
		Store:     store,
		Generator: gen,
		Validator: validator,
		Audit:     audit,
		Metrics:   execMetrics,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	consolidator, err := consolidate.NewService(workspace, store, consMetrics, logger)
	if err != nil {
		return nil, err
	}
	return migration.New(migration.Config{
		Store:        store,
		Normalizer:   normalizer,
		Planner:      planner,
		Workspace:    workspace,
		Executor:     exec,
		Consolidator: consolidator,
		Concurrency:  concurrency,
		Logger:       logger,
	})
}

func openStore(ctx context.Context, backend string, logger *slog.Logger) (storage.Store, func(), *httpserver.ReadinessCheck, error) {
	switch backend {
	case storeMemory:
		return storage.NewMemory(), func() {}, nil, nil
	case storeBadger:
		bcfg, err := badgerdb.ConfigFromEnv()
		if err != nil {
			return nil, nil, nil, err
		}
		bcfg.Logger = logger
		db, err := badgerdb.Open(bcfg)
		if err != nil {
			return nil, nil, nil, err
		}
		store, err := badgerstore.New(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		check := &httpserver.ReadinessCheck{Name: "badger", Check: func(context.Context) error {
			if db.IsClosed() {
				return errors.New("database closed")
			}
			return nil
		}}
		return store, func() { _ = db.Close() }, check, nil
	case storeMinIO:
		mcfg, err := platformstore.ConfigFromEnv()
		if err != nil {
			return nil, nil, nil, err
		}
		client, err := platformstore.NewMinIOClient(mcfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := platformstore.EnsureBucket(ctx, client, mcfg); err != nil {
			return nil, nil, nil, err
		}
		store, err := objectstore.NewMinioStoreWithClient(client, mcfg.Bucket, mcfg.Prefix)
		if err != nil {
			return nil, nil, nil, err
		}
		check := &httpserver.ReadinessCheck{Name: "minio", Check: func(ctx context.Context) error {
			checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			return platformstore.CheckBucket(checkCtx, client, mcfg)
		}}
		return store, func() {}, check, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported store backend %q", backend)
	}
}

func postgresCheck(db *sql.DB) httpserver.ReadinessCheck {
	return httpserver.ReadinessCheck{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			return db.PingContext(checkCtx)
		},
	}
}
