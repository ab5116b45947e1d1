// Package server builds the run's dependencies from configuration and drives
// a single search run.
package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch-crawler/internal/api"
	"github.com/JakeFAU/sitesearch-crawler/internal/config"
	"github.com/JakeFAU/sitesearch-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/sitesearch-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/sitesearch-crawler/internal/fetcher/headless"
	rodfetcher "github.com/JakeFAU/sitesearch-crawler/internal/fetcher/rod"
	"github.com/JakeFAU/sitesearch-crawler/internal/id/uuid"
	gcppublisher "github.com/JakeFAU/sitesearch-crawler/internal/publisher/pubsub"
	csvsink "github.com/JakeFAU/sitesearch-crawler/internal/sink/csv"
	"github.com/JakeFAU/sitesearch-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/sitesearch-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sitesearch-crawler/internal/storage/local"
	pgstore "github.com/JakeFAU/sitesearch-crawler/internal/storage/postgres"
)

// App contains the run's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runID  string

	runner  *crawler.Runner
	status  *api.Status
	csv     *csvsink.Sink
	archive storage.BlobStore
	prefix  string

	storageClient   *gcs.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	contentStore    *pgstore.ContentStore
}

// Build creates the run's dependencies. Only configuration problems and an
// unusable CSV path are fatal; optional outputs that fail to start are
// logged and left out.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID, err := uuid.NewRunID()
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("run_id", runID))
	if created, err := uuid.CreatedAt(runID); err == nil {
		logger.Info("run created", zap.Time("created_at", created))
	}
	app := &App{
		cfg:    cfg,
		logger: logger,
		runID:  runID,
		status: api.NewStatus(runID),
		prefix: cfg.GCS.Prefix,
	}

	app.csv, err = csvsink.New(cfg.Output.Path, logger.Named("csv"))
	if err != nil {
		return nil, err
	}

	runCfg := crawler.RunConfig{
		RunID:           runID,
		Topics:          cfg.Crawler.Topics,
		Sites:           cfg.Descriptors(),
		SiteParallelism: cfg.Crawler.SiteParallelism,
		EscapeTopics:    cfg.Crawler.EscapeTopics,
	}
	if err := runCfg.Validate(); err != nil {
		return nil, err
	}

	pages := crawler.NewPageFetcher(
		collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.HTTPTimeout(),
		}),
		app.browserDriver(),
		cfg.PageFetcherConfig(),
		logger.Named("fetcher"),
	)
	searcher := crawler.NewSearcher(pages, logger.Named("search"))

	store := app.setupPostgres(ctx)
	publisher := app.setupPublisher(ctx)
	app.setupArchive(ctx)

	app.runner = crawler.NewRunner(runCfg, searcher, []crawler.RecordSink{app.csv}, publisher, logger.Named("runner"))
	if store != nil {
		app.runner.AddOptionalSinks(store)
	}
	app.runner.OnPair(app.status.RecordPair)
	return app, nil
}

// RunID returns the ID tagging this run.
func (a *App) RunID() string { return a.runID }

func (a *App) browserDriver() crawler.BrowserDriver {
	h := a.cfg.Headless
	if !h.Enabled {
		a.logger.Info("headless rendering disabled")
		return headless.NewNoop()
	}
	switch h.Driver {
	case config.DriverRod:
		a.logger.Info("using rod render driver")
		return rodfetcher.New(rodfetcher.Config{
			UserAgent:         a.cfg.Crawler.UserAgent,
			NavigationTimeout: a.cfg.NavTimeout(),
			BrowserBin:        h.BrowserPath,
		})
	default:
		driver, err := headless.NewChromedp(headless.Config{
			UserAgent:         a.cfg.Crawler.UserAgent,
			NavigationTimeout: a.cfg.NavTimeout(),
			ExecPath:          h.BrowserPath,
		})
		if err != nil {
			a.logger.Warn("chromedp driver init failed, rendering disabled", zap.Error(err))
			return headless.NewNoop()
		}
		a.logger.Info("using chromedp render driver")
		return driver
	}
}

func (a *App) setupPostgres(ctx context.Context) *pgstore.ContentStore {
	if a.cfg.Postgres.DSN == "" {
		return nil
	}
	store, err := pgstore.NewContentStore(ctx, pgstore.ContentStoreConfig{
		DSN:   a.cfg.Postgres.DSN,
		Table: a.cfg.Postgres.Table,
	}, a.runID, a.logger.Named("postgres"))
	if err != nil {
		a.logger.Warn("postgres sink unavailable", zap.Error(err))
		return nil
	}
	if err := store.Migrate(ctx); err != nil {
		a.logger.Warn("postgres sink unavailable", zap.Error(err))
		store.Close()
		return nil
	}
	a.contentStore = store
	a.logger.Info("postgres sink initialized", zap.String("table", a.cfg.Postgres.Table))
	return store
}

func (a *App) setupPublisher(ctx context.Context) crawler.Publisher {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.Topic == "" {
		return nil
	}
	publisher, client, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
	if err != nil {
		a.logger.Warn("pubsub publisher unavailable", zap.Error(err))
		return nil
	}
	a.pubsubClient = client
	a.pubsubPublisher = publisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return publisher
}

func (a *App) setupArchive(ctx context.Context) {
	switch {
	case a.cfg.GCS.Bucket != "":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			a.logger.Warn("gcs archive unavailable", zap.Error(err))
			return
		}
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:   a.cfg.GCS.Bucket,
			Metadata: map[string]string{"run_id": a.runID},
		})
		if err != nil {
			_ = client.Close()
			a.logger.Warn("gcs archive unavailable", zap.Error(err))
			return
		}
		a.storageClient = client
		a.archive = store
		a.logger.Info("archiving output to GCS", zap.String("bucket", a.cfg.GCS.Bucket))
	case a.cfg.Archive.LocalDir != "":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			a.logger.Warn("local archive unavailable", zap.Error(err))
			return
		}
		a.archive = store
		a.logger.Info("archiving output locally", zap.String("dir", a.cfg.Archive.LocalDir))
	}
}

// Run executes the search run. SIGINT/SIGTERM cancel the searches; records
// gathered so far are still written. The returned error carries CSV sink
// failures only.
func (a *App) Run(ctx context.Context) (crawler.Summary, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown := a.startStatusServer()
	defer shutdown()

	a.status.Start()
	summary, err := a.runner.Run(ctx)
	a.status.Finish(summary, err)

	if err == nil {
		a.archiveOutput(context.WithoutCancel(ctx))
	}
	return summary, err
}

func (a *App) archiveOutput(ctx context.Context) {
	if a.archive == nil {
		return
	}
	object := storage.ObjectPath(a.prefix, a.runID, a.csv.Path())
	uri, err := storage.ArchiveFile(ctx, a.archive, a.csv.Path(), object, "text/csv; charset=utf-8")
	if err != nil {
		a.logger.Warn("archive upload failed", zap.Error(err))
		return
	}
	a.logger.Info("output archived", zap.String("uri", uri))
}

func (a *App) startStatusServer() func() {
	if a.cfg.Metrics.Addr == "" {
		return func() {}
	}
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           api.NewServer(a.status, a.logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("status server started", zap.String("addr", a.cfg.Metrics.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("status server error", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("status server shutdown error", zap.Error(err))
		}
	}
}

// Close releases clients held by optional outputs.
func (a *App) Close() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.contentStore != nil {
		a.contentStore.Close()
	}
}
