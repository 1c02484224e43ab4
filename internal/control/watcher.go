package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietddude/logwatcher/internal/core/config"
	"github.com/vietddude/logwatcher/internal/core/cursor"
	"github.com/vietddude/logwatcher/internal/indexing/health"
	"github.com/vietddude/logwatcher/internal/indexing/indexer"
	"github.com/vietddude/logwatcher/internal/indexing/processor"
	"github.com/vietddude/logwatcher/internal/infra/elastic"
	"github.com/vietddude/logwatcher/internal/infra/otel"
)

// Watcher is the main application struct that manages the polling lifecycle.
type Watcher struct {
	cfg             *config.AppConfig
	backends        *Backends
	elastic         *elastic.Client
	tracker         *cursor.Tracker
	processor       *processor.Processor
	pipeline        *indexer.Pipeline
	healthMon       *health.Monitor
	healthServer    *health.Server
	shutdownTracing func(context.Context) error
	log             *slog.Logger
}

// NewWatcher creates a new Watcher instance with all dependencies initialized.
func NewWatcher(ctx context.Context, cfg *config.AppConfig) (*Watcher, error) {
	shutdownTracing, err := otel.Init(ctx, otel.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		UseStdout:   cfg.Tracing.Stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	backends, err := OpenBackends(ctx, cfg)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	elasticClient, err := elastic.NewClient(cfg.Processor.ElasticURL, cfg.Processor.HTTPTimeout)
	if err != nil {
		backends.Close()
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("failed to create elastic client: %w", err)
	}

	logger := slog.Default().With("component", "processor")
	tracker := cursor.NewTracker(backends.CursorStore(cfg), 100)
	sink := backends.Emitter(cfg)

	proc, err := processor.New(
		processor.Options{
			ElasticURL:             cfg.Processor.ElasticURL,
			MaxLookBehindInSeconds: cfg.Processor.MaxLookBehindSeconds,
			LockKey:                cfg.Processor.LockKey,
			OnLogsReceived:         sink.OnLogsReceived,
			OnMessageLogged:        SlogMessageLogger(logger),
		},
		processor.WithStore(tracker),
		processor.WithLocker(backends.Locker(cfg)),
		processor.WithFetcher(elasticClient),
		processor.WithCycleTimeout(cfg.Processor.CycleTimeout),
	)
	if err != nil {
		_ = elasticClient.Close()
		backends.Close()
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("failed to create processor: %w", err)
	}

	pipeline := indexer.NewPipeline(indexer.Config{
		Name:         cfg.Cursor.Key,
		ScanInterval: cfg.Processor.ScanInterval,
		RunOnStart:   cfg.Processor.RunOnStart,
	}, proc)

	healthMon := health.NewMonitor(health.Target{
		Name:         cfg.Cursor.Key,
		ScanInterval: cfg.Processor.ScanInterval,
		Cursor:       tracker,
		Pipeline:     pipeline,
	})
	if backends.DB != nil {
		healthMon.AddDependency("postgres", backends.DB.Health)
	}
	if backends.Redis != nil {
		healthMon.AddDependency("redis", backends.Redis.Health)
	}

	slog.Info("Watcher configured",
		"elastic", cfg.Processor.ElasticURL,
		"cursor", cfg.Cursor.Backend,
		"lock", cfg.Lock.Backend,
		"sink", cfg.Sink.Type,
		"interval", cfg.Processor.ScanInterval,
		"maxLookBehind", cfg.Processor.MaxLookBehindSeconds,
	)

	return &Watcher{
		cfg:             cfg,
		backends:        backends,
		elastic:         elasticClient,
		tracker:         tracker,
		processor:       proc,
		pipeline:        pipeline,
		healthMon:       healthMon,
		healthServer:    health.NewServer(healthMon, cfg.Server.Port),
		shutdownTracing: shutdownTracing,
		log:             slog.Default(),
	}, nil
}

// Start starts the watcher and all its components. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := w.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if w.backends.DB != nil {
		w.backends.DB.StartMetricsCollector(ctx)
	}

	w.log.Info("Starting pipeline", "name", w.cfg.Cursor.Key)
	go func() {
		if err := w.pipeline.Start(ctx); err != nil {
			w.log.Error("Pipeline failed", "error", err)
		}
	}()

	return nil
}

// Stop stops the watcher, waiting for an in-flight cycle until ctx expires.
func (w *Watcher) Stop(ctx context.Context) error {
	w.log.Info("Stopping Watcher...")

	var errs []error
	if err := w.pipeline.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop pipeline: %w", err))
	}
	if err := w.healthServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop health server: %w", err))
	}
	if err := w.shutdownTracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown tracing: %w", err))
	}

	_ = w.elastic.Close()
	w.backends.Close()

	return errors.Join(errs...)
}

// RunOnce executes a single cycle outside the schedule.
func (w *Watcher) RunOnce(ctx context.Context) (processor.Result, error) {
	return w.processor.Run(ctx)
}

// Health returns the current health report.
func (w *Watcher) Health(ctx context.Context) health.HealthReport {
	return w.healthMon.CheckHealth(ctx)
}
