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
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/socialpulse/crawl-ingest/internal/api"
	"github.com/socialpulse/crawl-ingest/internal/clock/system"
	"github.com/socialpulse/crawl-ingest/internal/config"
	"github.com/socialpulse/crawl-ingest/internal/engine"
	"github.com/socialpulse/crawl-ingest/internal/id/uuid"
	"github.com/socialpulse/crawl-ingest/internal/ingest"
	"github.com/socialpulse/crawl-ingest/internal/logging"
	"github.com/socialpulse/crawl-ingest/internal/parser"
	"github.com/socialpulse/crawl-ingest/internal/platform"
	"github.com/socialpulse/crawl-ingest/internal/poller"
	"github.com/socialpulse/crawl-ingest/internal/provider"
	"github.com/socialpulse/crawl-ingest/internal/provider/apify"
	"github.com/socialpulse/crawl-ingest/internal/provider/brightdata"
	memorypublisher "github.com/socialpulse/crawl-ingest/internal/publisher/memory"
	gcppublisher "github.com/socialpulse/crawl-ingest/internal/publisher/pubsub"
	gcsstorage "github.com/socialpulse/crawl-ingest/internal/storage/gcs"
	localstorage "github.com/socialpulse/crawl-ingest/internal/storage/local"
	memorystorage "github.com/socialpulse/crawl-ingest/internal/storage/memory"
	"github.com/socialpulse/crawl-ingest/internal/telemetry"
	"github.com/socialpulse/crawl-ingest/internal/warehouse"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	poll            *poller.Poller
	engine          *engine.Engine
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storage         *storage.Client
	postgres        *warehouse.PostgresStore
	tracerShutdown  func(context.Context) error
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) *App {
	// Log only non-sensitive config fields.
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("brightdata_enabled", cfg.Providers.BrightData.Enabled()),
		zap.Bool("apify_enabled", cfg.Providers.Apify.Enabled()),
	)
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := NewApp(cfg, logger)

	tp, err := telemetry.InitTracerProvider(ctx, ingest.EventSource)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	app.logger.Info("building application dependencies")

	registry, err := platform.NewRegistry(logger, cfg.PlatformConfigs())
	if err != nil {
		return nil, err
	}

	providers, err := setupProviders(app)
	if err != nil {
		return nil, err
	}

	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}

	store, err := setupWarehouse(ctx, app)
	if err != nil {
		return nil, err
	}

	pub, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	app.engine = engine.New(
		registry,
		providers,
		store,
		store,
		blobStore,
		pub,
		parser.New(logger),
		system.New(),
		uuid.New(),
		engine.Config{DownloadLimit: cfg.Engine.DownloadLimit},
		logger,
	)
	app.poll = poller.New(app.engine, cfg.Poller, logger)
	app.apiServer = api.NewServer(app.engine, app.poll, *cfg, logger)

	return app, nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("poller started")
		a.poll.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

func setupProviders(app *App) (map[ingest.ProviderKind]provider.Client, error) {
	clients := make(map[ingest.ProviderKind]provider.Client, 2)
	if pc := app.cfg.Providers.BrightData; pc.Enabled() {
		client, err := brightdata.New(httpConfig(pc), app.logger)
		if err != nil {
			return nil, fmt.Errorf("brightdata client init failed: %w", err)
		}
		clients[ingest.ProviderBrightData] = provider.NewRateLimited(client, rateLimitConfig(pc))
		app.logger.Info("brightdata client initialized",
			zap.Float64("requests_per_second", pc.RequestsPerSecond))
	}
	if pc := app.cfg.Providers.Apify; pc.Enabled() {
		client, err := apify.New(httpConfig(pc), app.logger)
		if err != nil {
			return nil, fmt.Errorf("apify client init failed: %w", err)
		}
		clients[ingest.ProviderApify] = provider.NewRateLimited(client, rateLimitConfig(pc))
		app.logger.Info("apify client initialized",
			zap.Float64("requests_per_second", pc.RequestsPerSecond))
	}
	if len(clients) == 0 {
		app.logger.Warn("no provider credentials configured; triggers will be refused")
	}
	return clients, nil
}

func httpConfig(pc config.ProviderConfig) provider.HTTPConfig {
	return provider.HTTPConfig{
		BaseURL:         pc.BaseURL,
		Token:           pc.Token,
		RequestTimeout:  pc.RequestTimeout,
		DownloadTimeout: pc.DownloadTimeout,
	}
}

func rateLimitConfig(pc config.ProviderConfig) provider.RateLimitConfig {
	return provider.RateLimitConfig{
		RequestsPerSecond: pc.RequestsPerSecond,
		Burst:             pc.Burst,
	}
}

func setupStorage(ctx context.Context, app *App) (ingest.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.logger.Info("using GCS storage backend", zap.String("bucket", app.cfg.Storage.Bucket))
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err := gcsstorage.New(ctx, app.storage, gcsstorage.Config{
			Bucket: app.cfg.Storage.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case "local":
		app.logger.Info("using local storage backend", zap.String("path", app.cfg.Storage.BaseDir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupWarehouse(ctx context.Context, app *App) (warehouse.Store, error) {
	if app.cfg.Database.DSN == "" {
		app.logger.Warn("no database DSN configured, using in-memory warehouse")
		return warehouse.NewMemoryStore(), nil
	}
	pg, err := warehouse.NewPostgresStore(ctx, app.cfg.Database.PostgresConfig)
	if err != nil {
		return nil, fmt.Errorf("warehouse init failed: %w", err)
	}
	app.postgres = pg
	app.logger.Info("warehouse initialized")
	if app.cfg.Database.FallbackEnabled {
		app.logger.Info("warehouse fallback enabled")
		return warehouse.NewFallbackStore(pg, warehouse.NewMemoryStore(), app.logger), nil
	}
	return pg, nil
}

func setupPublisher(ctx context.Context, app *App) (ingest.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = app.pubsubClient.Publisher(app.cfg.PubSub.TopicName)
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(app.pubsubPublisher), nil
}
