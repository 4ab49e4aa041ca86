package commands

import (
	"context"
	"fmt"

	"github.com/marbledata/marble/pkg/config"
	"github.com/marbledata/marble/pkg/engine"
	"github.com/marbledata/marble/pkg/manifest"
	"github.com/marbledata/marble/pkg/telemetry"
	"github.com/marbledata/marble/pkg/transport"
)

// runtime wires configuration, telemetry, transport, and engine together
// for the commands that talk to the platform.
type runtime struct {
	cfg        *config.Config
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer
	registry   *engine.Registry
	client     *transport.Client
	planner    *engine.Planner
	reconciler *engine.Reconciler
}

func newRuntime(version string) (*runtime, error) {
	cfg, err := config.NewLoader().Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Telemetry.ServiceVersion = version

	logger, err := telemetry.NewLogger(cfg.Telemetry.Logging)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		metrics, err = telemetry.NewMetrics(cfg.Telemetry.Metrics)
		if err != nil {
			return nil, fmt.Errorf("initializing metrics: %w", err)
		}
		go func() {
			if err := metrics.Serve(); err != nil {
				logger.WithError(err).Warn("metrics endpoint stopped")
			}
		}()
	}

	var tracer *telemetry.Tracer
	if cfg.Telemetry.Tracing.Enabled {
		tracer, err = telemetry.NewTracer(cfg.Telemetry.Tracing,
			cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, cfg.Telemetry.Environment)
		if err != nil {
			return nil, fmt.Errorf("initializing tracing: %w", err)
		}
	}

	opts := cfg.TransportOptions()
	opts.Logger = logger
	opts.Metrics = metrics
	opts.Tracer = tracer
	client := transport.NewClient(opts)

	registry := engine.DefaultRegistry()
	planner := engine.NewPlanner(registry, engine.NewAPISource(client), engine.PlannerOptions{
		BestEffortOrdering: cfg.Engine.BestEffortOrdering,
		Prune:              cfg.Engine.Prune,
		Logger:             logger,
	})
	reconciler := engine.NewReconciler(registry, client, engine.ReconcilerOptions{
		Workers:   cfg.Transport.Workers,
		QueueSize: cfg.Transport.QueueSize,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tracer,
	})

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		registry:   registry,
		client:     client,
		planner:    planner,
		reconciler: reconciler,
	}, nil
}

func (r *runtime) loadManifests() ([]engine.Resource, error) {
	return manifest.NewLoader().Load(manifestPath)
}

// Close flushes telemetry. Safe to call on a partially constructed runtime.
func (r *runtime) Close(ctx context.Context) {
	if r.tracer != nil {
		if err := r.tracer.Shutdown(ctx); err != nil {
			r.logger.WithError(err).Warn("tracer shutdown failed")
		}
	}
}
