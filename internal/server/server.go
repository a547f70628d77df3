// Package server builds and runs the full service: API, workers, metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/sitevitals/vitalscan/internal/api"
	"github.com/sitevitals/vitalscan/internal/audit"
	"github.com/sitevitals/vitalscan/internal/audit/axe"
	"github.com/sitevitals/vitalscan/internal/audit/headers"
	"github.com/sitevitals/vitalscan/internal/audit/lighthouse"
	"github.com/sitevitals/vitalscan/internal/auth"
	"github.com/sitevitals/vitalscan/internal/clock/system"
	"github.com/sitevitals/vitalscan/internal/config"
	"github.com/sitevitals/vitalscan/internal/dispatcher"
	iduuid "github.com/sitevitals/vitalscan/internal/id/uuid"
	"github.com/sitevitals/vitalscan/internal/logging"
	"github.com/sitevitals/vitalscan/internal/metrics"
	"github.com/sitevitals/vitalscan/internal/queue"
	queuememory "github.com/sitevitals/vitalscan/internal/queue/memory"
	queuepubsub "github.com/sitevitals/vitalscan/internal/queue/pubsub"
	queuerabbit "github.com/sitevitals/vitalscan/internal/queue/rabbit"
	"github.com/sitevitals/vitalscan/internal/scanner"
	storagegcs "github.com/sitevitals/vitalscan/internal/storage/gcs"
	storagelocal "github.com/sitevitals/vitalscan/internal/storage/local"
	storagememory "github.com/sitevitals/vitalscan/internal/storage/memory"
	storememory "github.com/sitevitals/vitalscan/internal/store/memory"
	storepostgres "github.com/sitevitals/vitalscan/internal/store/postgres"
	"github.com/sitevitals/vitalscan/internal/vitals"
	"github.com/sitevitals/vitalscan/internal/worker"
)

// App holds the application's wired dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher

	store      vitals.Store
	gcsClient  *gcstorage.Client
	queueClose func() error
	auditClose func()
}

// Build creates the application's dependencies from configuration.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.String("mode", cfg.Mode),
		zap.Int("port", cfg.Server.Port))

	if err := app.setupStore(ctx); err != nil {
		return nil, err
	}
	blobs, err := app.setupStorage(ctx)
	if err != nil {
		return nil, err
	}
	q, err := app.setupQueue(ctx)
	if err != nil {
		return nil, err
	}

	page, a11y, hdrs, err := app.setupAuditors()
	if err != nil {
		return nil, err
	}

	clock := system.New()
	svc := scanner.NewService(
		scanner.Config{
			AllowMock:           cfg.Audit.AllowMock && !cfg.Production(),
			ArtifactContentType: cfg.Storage.ContentType,
		},
		app.store, blobs, page, a11y, hdrs, clock, logger.Named("scanner"),
	)

	observer := queue.MultiObserver{
		queue.NewLogObserver(logger.Named("queue")),
		queue.MetricsObserver{},
	}
	workers := make([]*worker.Worker, 0, cfg.Worker.Concurrency)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		workers = append(workers, worker.New(q, svc, observer, logger.Named("worker")))
	}
	app.dispatch = dispatcher.New(q, workers)

	authn := auth.New(app.store, cfg.Auth.BypassHeader, cfg.Production())
	app.apiServer = api.NewServer(
		app.store,
		app.dispatch,
		authn,
		iduuid.NewGenerator(),
		clock,
		cfg,
		logger.Named("api"),
	)

	return app, nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
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

	return a.Close()
}

// Close gracefully releases the application's resources.
func (a *App) Close() error {
	if a.queueClose != nil {
		if err := a.queueClose(); err != nil {
			a.logger.Warn("queue close failed", zap.Error(err))
		}
	}
	if a.auditClose != nil {
		a.auditClose()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) setupStore(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, using in-memory store")
		a.store = storememory.NewStore()
		return nil
	}
	pg, err := storepostgres.NewStore(ctx, storepostgres.StoreConfig{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	a.logger.Info("postgres store initialized")
	a.store = pg
	return nil
}

func (a *App) setupStorage(ctx context.Context) (vitals.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case "gcs":
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.Bucket))
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err := storagegcs.New(client, storagegcs.Config{
			Bucket: a.cfg.Storage.Bucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case "local":
		a.logger.Info("using local storage backend", zap.String("base_dir", a.cfg.Storage.BaseDir))
		blobs, err := storagelocal.New(storagelocal.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return storagememory.NewBlobStore(), nil
	}
}

func (a *App) setupQueue(ctx context.Context) (vitals.Queue, error) {
	switch a.cfg.Queue.Provider {
	case "pubsub":
		a.logger.Info("using Pub/Sub queue",
			zap.String("project", a.cfg.Queue.PubSub.ProjectID),
			zap.String("topic", a.cfg.Queue.PubSub.TopicID))
		q, err := queuepubsub.NewQueue(ctx, queuepubsub.Config{
			ProjectID:      a.cfg.Queue.PubSub.ProjectID,
			TopicID:        a.cfg.Queue.PubSub.TopicID,
			SubscriptionID: a.cfg.Queue.PubSub.SubscriptionID,
		}, a.logger.Named("pubsub"))
		if err != nil {
			return nil, fmt.Errorf("pubsub queue init failed: %w", err)
		}
		a.queueClose = q.Close
		return q, nil
	case "rabbit":
		a.logger.Info("using RabbitMQ queue", zap.String("queue", a.cfg.Queue.Rabbit.QueueName))
		q, err := queuerabbit.NewQueue(queuerabbit.Config{
			URL:       a.cfg.Queue.Rabbit.URL,
			QueueName: a.cfg.Queue.Rabbit.QueueName,
		}, a.logger.Named("rabbit"))
		if err != nil {
			return nil, fmt.Errorf("rabbit queue init failed: %w", err)
		}
		a.queueClose = q.Close
		return q, nil
	default:
		a.logger.Info("using in-memory queue", zap.Int("depth", a.cfg.Queue.Depth))
		q := queuememory.NewQueue(a.cfg.Queue.Depth)
		a.queueClose = func() error {
			q.Close()
			return nil
		}
		return q, nil
	}
}

func (a *App) setupAuditors() (audit.PageAuditor, audit.AccessibilityAuditor, audit.HeaderChecker, error) {
	page, err := lighthouse.NewChromedp(lighthouse.Config{
		MaxParallel:       a.cfg.Audit.MaxParallel,
		UserAgent:         a.cfg.Audit.UserAgent,
		NavigationTimeout: a.cfg.NavTimeout(),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("page auditor init failed: %w", err)
	}
	a11y, err := axe.NewChromedp(axe.Config{
		ScriptURL:         a.cfg.Audit.AxeScript,
		UserAgent:         a.cfg.Audit.UserAgent,
		NavigationTimeout: a.cfg.NavTimeout(),
	})
	if err != nil {
		page.Close()
		return nil, nil, nil, fmt.Errorf("accessibility auditor init failed: %w", err)
	}
	hdrs := headers.New(headers.NewCollyFetcher(headers.CollyConfig{
		UserAgent: a.cfg.Audit.UserAgent,
		Timeout:   a.cfg.NavTimeout(),
	}))
	a.auditClose = func() {
		page.Close()
		a11y.Close()
	}
	return page, a11y, hdrs, nil
}
