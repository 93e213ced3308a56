// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/govdata-ingest/internal/api"
	"github.com/JakeFAU/govdata-ingest/internal/archive"
	"github.com/JakeFAU/govdata-ingest/internal/clock/system"
	"github.com/JakeFAU/govdata-ingest/internal/config"
	"github.com/JakeFAU/govdata-ingest/internal/dispatcher"
	"github.com/JakeFAU/govdata-ingest/internal/extract"
	"github.com/JakeFAU/govdata-ingest/internal/fetcher"
	collyfetcher "github.com/JakeFAU/govdata-ingest/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/govdata-ingest/internal/fetcher/headless"
	restyfetcher "github.com/JakeFAU/govdata-ingest/internal/fetcher/resty"
	"github.com/JakeFAU/govdata-ingest/internal/hash/sha256"
	"github.com/JakeFAU/govdata-ingest/internal/headless/detector"
	"github.com/JakeFAU/govdata-ingest/internal/id/uuid"
	"github.com/JakeFAU/govdata-ingest/internal/ingest"
	"github.com/JakeFAU/govdata-ingest/internal/metrics"
	"github.com/JakeFAU/govdata-ingest/internal/normalize"
	"github.com/JakeFAU/govdata-ingest/internal/pipeline"
	"github.com/JakeFAU/govdata-ingest/internal/policy/backoff"
	"github.com/JakeFAU/govdata-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/govdata-ingest/internal/policy/robots"
	gcppublisher "github.com/JakeFAU/govdata-ingest/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/govdata-ingest/internal/queue/memory"
	"github.com/JakeFAU/govdata-ingest/internal/registry"
	"github.com/JakeFAU/govdata-ingest/internal/report"
	gcsstorage "github.com/JakeFAU/govdata-ingest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/govdata-ingest/internal/storage/local"
	memoryStorage "github.com/JakeFAU/govdata-ingest/internal/storage/memory"
	pgstore "github.com/JakeFAU/govdata-ingest/internal/storage/postgres"
	"github.com/JakeFAU/govdata-ingest/internal/storage/sqldb"
	"github.com/JakeFAU/govdata-ingest/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Migrator applies pending schema migrations.
type Migrator interface {
	Migrate(ctx context.Context) (int, error)
}

// App contains the application's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *registry.Registry
	pipeline *pipeline.Pipeline
	store    ingest.EntityStore
	runs     ingest.RunStore
	migrator Migrator
	ready    api.ReadyFunc
	clock    *system.Clock
	ids      *uuid.Generator

	pgStore        *pgstore.Store
	sqlStore       *sqldb.Store
	gcsClose       func() error
	publisher      *gcppublisher.Publisher
	headless       *headlessfetcher.Engine
	tracerShutdown telemetry.ShutdownFunc
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("archive_backend", cfg.Archive.Backend),
		zap.String("fetch_engine", cfg.Fetch.Engine),
	)
	return &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}
}

// Build creates the application's dependencies. Anything opened before a
// failure is released before Build returns.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, version string) (app *App, err error) {
	app = NewApp(cfg, logger)
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.WithoutCancel(ctx))
			app = nil
		}
	}()

	metrics.Init()
	app.tracerShutdown, err = telemetry.Init(ctx, cfg.Telemetry, version, app.logger.Named("telemetry"))
	if err != nil {
		return app, fmt.Errorf("tracer init failed: %w", err)
	}

	app.logger.Info("building application dependencies")
	if err = setupRegistry(app); err != nil {
		return app, err
	}
	if err = setupStore(ctx, app); err != nil {
		return app, err
	}
	blobs, err := setupStorage(ctx, app)
	if err != nil {
		return app, err
	}
	archiver, err := setupArchive(app, blobs)
	if err != nil {
		return app, err
	}
	sink, err := setupReporting(ctx, app, blobs)
	if err != nil {
		return app, err
	}
	fetch, err := setupFetcher(app)
	if err != nil {
		return app, err
	}

	app.pipeline, err = pipeline.New(pipeline.Dependencies{
		Sources:    app.registry,
		Fetcher:    fetch,
		Extractor:  extract.New(extract.WithLogger(app.logger.Named("extract"))),
		Normalizer: normalize.New(),
		Store:      app.store,
		Runs:       app.runs,
		Sink:       sink,
		Archiver:   archiver,
		Pauser:     app.clock,
		Clock:      app.clock,
		IDs:        app.ids,
	}, pipeline.Config{ExtractConcurrency: cfg.Pipeline.ExtractConcurrency}, app.logger)
	if err != nil {
		return app, fmt.Errorf("pipeline init failed: %w", err)
	}
	return app, nil
}

// Registry exposes the configured source registry.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Runs exposes the run report store.
func (a *App) Runs() ingest.RunStore {
	return a.runs
}

// RunOnce executes a single ingestion run in the foreground.
func (a *App) RunOnce(ctx context.Context, filter ingest.Filter) (ingest.RunReport, error) {
	return a.pipeline.RunIngestion(ctx, filter)
}

// Migrate applies pending migrations for SQL-backed stores. The memory store
// has nothing to migrate.
func (a *App) Migrate(ctx context.Context) (int, error) {
	if a.migrator == nil {
		a.logger.Info("store has no schema to migrate", zap.String("driver", a.cfg.Store.Driver))
		return 0, nil
	}
	applied, err := a.migrator.Migrate(ctx)
	if err != nil {
		return applied, fmt.Errorf("migrate %s store: %w", a.cfg.Store.Driver, err)
	}
	return applied, nil
}

// Serve starts the HTTP API and the run dispatcher and blocks until ctx is
// canceled or a termination signal arrives. The caller still owns Close.
func (a *App) Serve(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := queueMemory.NewQueue(a.cfg.Pipeline.QueueDepth)
	dispatch := dispatcher.New(queue, a.pipeline, a.registry, a.runs, a.ids, a.clock, a.logger)
	apiServer := api.NewServer(a.registry, dispatch, a.runs, a.ready, a.cfg, a.logger.Named("api"))

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		a.logger.Info("dispatcher started")
		dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	select {
	case <-dispatched:
	case <-shutdownCtx.Done():
		a.logger.Warn("dispatcher did not stop before shutdown deadline")
	}
	return nil
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.headless != nil {
		a.headless.Close()
		a.headless = nil
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
		a.publisher = nil
	}
	if a.gcsClose != nil {
		if err := a.gcsClose(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcsClose = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
	if a.sqlStore != nil {
		if err := a.sqlStore.Close(); err != nil {
			a.logger.Warn("database close failed", zap.Error(err))
		}
		a.sqlStore = nil
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerShutdown = nil
	}
}

func (a *App) closeObservability(context.Context) {
	// Sync fails on stdout/stderr for some platforms; nothing to act on.
	_ = a.logger.Sync()
}

func setupRegistry(app *App) error {
	if len(app.cfg.Sources) == 0 {
		app.registry = registry.Default()
		app.logger.Info("using built-in source catalog", zap.Int("sources", app.registry.Len()))
		return nil
	}
	reg, err := registry.FromConfig(app.cfg.Sources)
	if err != nil {
		return fmt.Errorf("source registry init failed: %w", err)
	}
	app.registry = reg
	app.logger.Info("using configured sources", zap.Int("sources", reg.Len()))
	return nil
}

func setupStore(ctx context.Context, app *App) error {
	cfg := app.cfg.Store
	switch cfg.Driver {
	case "postgres":
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:            cfg.DSN,
			MaxConns:       int32(cfg.MaxOpenConns), //nolint:gosec // bounded by config validation
			MinConns:       int32(cfg.MaxIdleConns), //nolint:gosec // bounded by config validation
			FuzzyThreshold: cfg.FuzzyThreshold,
		}, app.logger.Named("postgres"))
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		app.pgStore = store
		app.store, app.runs, app.migrator, app.ready = store, store, store, store.Ping
		app.logger.Info("using postgres store")
	case "sqlite", "mysql":
		store, err := sqldb.Open(ctx, sqldb.Config{
			Driver:         cfg.Driver,
			DSN:            cfg.DSN,
			MaxOpenConns:   cfg.MaxOpenConns,
			MaxIdleConns:   cfg.MaxIdleConns,
			FuzzyThreshold: cfg.FuzzyThreshold,
		}, app.logger.Named(cfg.Driver))
		if err != nil {
			return fmt.Errorf("%s store init failed: %w", cfg.Driver, err)
		}
		app.sqlStore = store
		app.store, app.runs, app.migrator, app.ready = store, store, store, store.Ping
		app.logger.Info("using sql store", zap.String("driver", cfg.Driver))
	default:
		app.store = memoryStorage.NewEntityStore(cfg.FuzzyThreshold)
		app.runs = memoryStorage.NewRunStore(app.cfg.Pipeline.RunHistory)
		app.logger.Info("using in-memory store")
	}

	if app.migrator != nil && cfg.Migrate {
		applied, err := app.migrator.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
		app.logger.Info("schema migrations applied", zap.Int("applied", applied))
	}
	return nil
}

// setupStorage builds the blob store shared by the archive and the status
// file sink. A nil store means raw documents are not kept.
func setupStorage(ctx context.Context, app *App) (ingest.BlobStore, error) {
	cfg := app.cfg.Archive
	switch cfg.Backend {
	case "gcs":
		app.logger.Info("using GCS storage backend", zap.String("bucket", cfg.GCSBucket))
		blobs, closeFn, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.gcsClose = closeFn
		return blobs, nil
	case "local":
		app.logger.Info("using local storage backend", zap.String("path", cfg.LocalDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	case "memory":
		app.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	default:
		app.logger.Info("raw document archiving disabled")
		return nil, nil
	}
}

func setupArchive(app *App, blobs ingest.BlobStore) (*archive.Archiver, error) {
	if blobs == nil {
		return nil, nil
	}
	archiver, err := archive.New(blobs, sha256.New(), app.cfg.Archive.Prefix, app.logger.Named("archive"))
	if err != nil {
		return nil, fmt.Errorf("archive init failed: %w", err)
	}
	return archiver, nil
}

func setupReporting(ctx context.Context, app *App, blobs ingest.BlobStore) (ingest.ReportSink, error) {
	sinks := []ingest.ReportSink{report.NewLogSink(app.logger.Named("report"))}

	if app.cfg.Report.StatusFile {
		if blobs == nil {
			app.logger.Warn("status files requested but archive.backend is none; skipping")
		} else {
			sinks = append(sinks, report.NewStatusFileSink(blobs, app.cfg.Report.StatusPrefix))
			app.logger.Debug("added status file sink", zap.String("prefix", app.cfg.Report.StatusPrefix))
		}
	}

	if app.cfg.Report.TopicName != "" {
		client, err := pubsub.NewClient(ctx, app.cfg.Report.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		pub, err := gcppublisher.Open(client, app.cfg.Report.TopicName)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		app.publisher = pub
		sinks = append(sinks, report.NewPublishSink(pub, app.cfg.Report.TopicName))
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", app.cfg.Report.ProjectID),
			zap.String("topic", app.cfg.Report.TopicName),
		)
	}
	return report.NewFanout(app.logger.Named("report"), sinks...), nil
}

func setupFetcher(app *App) (*fetcher.Fetcher, error) {
	cfg := app.cfg
	var engine fetcher.Doer
	switch cfg.Fetch.Engine {
	case "resty":
		engine = restyfetcher.New(cfg.FetchTimeout())
		if !cfg.Fetch.IgnoreRobots {
			engine = robots.Wrap(engine, cfg.Fetch.AgentName, app.logger)
		}
	default:
		engine = collyfetcher.New(collyfetcher.Config{
			IgnoreRobots: cfg.Fetch.IgnoreRobots,
			Timeout:      cfg.FetchTimeout(),
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		})
	}
	app.logger.Info("fetch engine configured",
		zap.String("engine", cfg.Fetch.Engine),
		zap.String("user_agent", cfg.Fetch.UserAgent()),
	)

	opts := []fetcher.Option{fetcher.WithLogger(app.logger)}
	if cfg.Headless.Enabled {
		renderer, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			WaitSelector:      cfg.Headless.WaitSelector,
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		app.headless = renderer
		opts = append(opts, fetcher.WithRenderer(renderer))
		if cfg.Headless.AutoPromote {
			opts = append(opts, fetcher.WithPromoter(detector.NewHeuristic(cfg.Headless.PromotionThresh)))
		}
		app.logger.Info("using headless renderer",
			zap.Int("max_parallel", cfg.Headless.MaxParallel),
			zap.Bool("auto_promote", cfg.Headless.AutoPromote),
		)
	}
	if cfg.Fetch.RateLimitRPS > 0 {
		opts = append(opts, fetcher.WithLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Fetch.RateLimitRPS,
			DefaultBurst: cfg.Fetch.RateLimitBurst,
		})))
		app.logger.Info("rate limiter enabled",
			zap.Float64("default_rps", cfg.Fetch.RateLimitRPS),
			zap.Int("default_burst", cfg.Fetch.RateLimitBurst),
		)
	}

	return fetcher.New(fetcher.Config{
		UserAgent: cfg.Fetch.UserAgent(),
		From:      cfg.Fetch.From,
		Timeout:   cfg.FetchTimeout(),
		Retry: backoff.Policy{
			MaxAttempts:    cfg.Fetch.MaxRetries,
			BaseDelay:      cfg.BackoffInitial(),
			MaxDelay:       cfg.BackoffMax(),
			JitterFraction: cfg.Fetch.JitterFraction,
		},
	}, engine, opts...), nil
}
