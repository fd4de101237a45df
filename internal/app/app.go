// Package app builds and owns the long-lived services behind the CLI: the
// lifecycle event hub and its sinks, run history, the object store, and the
// HTTP downloader.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/asyncjob/internal/api"
	"github.com/JakeFAU/asyncjob/internal/config"
	"github.com/JakeFAU/asyncjob/internal/metrics"
	"github.com/JakeFAU/asyncjob/internal/policy/ratelimit"
	"github.com/JakeFAU/asyncjob/internal/progress"
	progresssinks "github.com/JakeFAU/asyncjob/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/asyncjob/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/asyncjob/internal/storage/gcs"
	localstorage "github.com/JakeFAU/asyncjob/internal/storage/local"
	memorystorage "github.com/JakeFAU/asyncjob/internal/storage/memory"
	pgstore "github.com/JakeFAU/asyncjob/internal/storage/postgres"
	"github.com/JakeFAU/asyncjob/internal/store"
	"github.com/JakeFAU/asyncjob/internal/telemetry"
	"github.com/JakeFAU/asyncjob/internal/transfer"
)

const (
	serviceVersion  = "0.1.0"
	shutdownTimeout = 10 * time.Second
)

// Option adjusts Build.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	tracing    bool
}

// WithRegisterer registers job metrics on reg instead of the default
// Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithoutTracing skips installing the global tracer provider.
func WithoutTracing() Option {
	return func(o *options) { o.tracing = false }
}

// App holds the shared services. Build creates it once per process; Close
// releases everything it opened.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	hub        *progress.Hub
	runs       store.RunRepository
	objects    transfer.ObjectStore
	downloader *transfer.Downloader

	pgStore        *pgstore.RunStore
	gcsClient      *storage.Client
	pubsubClient   *pubsub.Client
	publisher      *gcppublisher.Publisher
	tracerShutdown func(context.Context) error
}

// Build wires every service named by cfg. Postgres backs run history when
// db.dsn is set, otherwise runs stay in memory. Pub/Sub notifications are
// enabled by pubsub.topic_name.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer, tracing: true}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Debug("building application dependencies",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.TopicName != ""),
	)

	if o.tracing {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName, serviceVersion)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		a.tracerShutdown = tp.Shutdown
	}
	metrics.Init()

	steps := []func(context.Context) error{
		a.setupRuns,
		a.setupObjects,
		a.setupPublisher,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			a.closeInfrastructure(ctx)
			return nil, err
		}
	}
	if err := a.setupHub(ctx, o.registerer); err != nil {
		a.closeInfrastructure(ctx)
		return nil, err
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Download.RatePerHost,
		DefaultBurst: cfg.Download.Burst,
	})
	a.downloader = transfer.NewDownloader(transfer.DownloadConfig{
		UserAgent:   cfg.Download.UserAgent,
		Timeout:     cfg.Download.Timeout,
		MaxBodySize: cfg.Download.MaxBodySize,
		Limiter:     limiter,
	})
	return a, nil
}

func (a *App) setupRuns(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Debug("no db.dsn configured, keeping run history in memory")
		a.runs = memorystorage.NewRunStore()
		return nil
	}
	s, err := pgstore.NewRunStore(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	a.pgStore = s
	a.runs = s
	a.logger.Info("postgres run store initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupObjects(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.objects = blobs
		a.logger.Debug("gcs storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.objects = blobs
		a.logger.Debug("local storage backend", zap.String("path", a.cfg.Storage.BaseDir))
	default:
		a.objects = memorystorage.NewBlobStore()
		a.logger.Debug("in-memory storage backend")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" {
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.publisher = gcppublisher.New(client)
	a.logger.Info("pubsub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupHub(ctx context.Context, reg prometheus.Registerer) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinks := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("job_events")),
		promSink,
		progresssinks.NewStoreSink(a.runs, a.logger.Named("job_store")),
	}
	if a.publisher != nil {
		pub := progresssinks.NewPublishSink(a.publisher, a.cfg.PubSub.TopicName, a.logger.Named("job_publish"))
		pub.IncludeProgress = a.cfg.PubSub.IncludeProgress
		sinks = append(sinks, pub)
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Hub.BufferSize,
		MaxBatchEvents: a.cfg.Hub.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Hub.MaxBatchWait,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("job_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinks...)
	a.logger.Debug("job event hub initialized",
		zap.Int("sinks", len(sinks)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Emitter returns the hub controllers report lifecycle events to.
func (a *App) Emitter() progress.Emitter { return a.hub }

// Runs returns the run history repository.
func (a *App) Runs() store.RunRepository { return a.runs }

// Objects returns the configured object store.
func (a *App) Objects() transfer.ObjectStore { return a.objects }

// Downloader returns the shared HTTP downloader.
func (a *App) Downloader() *transfer.Downloader { return a.downloader }

// Serve runs the status API until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           api.NewServer(a.runs, a.logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close flushes the hub and releases every client Build opened.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("job hub close: %w", err))
		}
	}
	a.closeInfrastructure(ctx)
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(context.Context) {
	if a.publisher != nil {
		a.publisher.Close()
		a.publisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcsClient = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
}
