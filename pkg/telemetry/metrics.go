package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the marble engine. A disabled
// Metrics value is a safe no-op: every recording method checks for nil
// collectors.
type Metrics struct {
	config MetricsConfig

	// Transport metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	splitsTotal     prometheus.Counter
	abortedBatches  prometheus.Counter
	itemResults     *prometheus.CounterVec
	batchSize       prometheus.Histogram
	inflight        prometheus.Gauge
	queueDepth      prometheus.Gauge

	// Reconciliation metrics
	runsTotal           *prometheus.CounterVec
	runDuration         *prometheus.HistogramVec
	resourcesReconciled *prometheus.CounterVec
	unorderedResources  prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_requests_total",
				Help:      "Total HTTP attempts issued by the batch transport",
			},
			[]string{"method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transport_request_duration_seconds",
				Help:      "Duration of HTTP attempts in seconds",
				Buckets:   buckets,
			},
			[]string{"method"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_retries_total",
				Help:      "Total retries by failure cause (connect, read, status)",
			},
			[]string{"cause"},
		),
		splitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_batch_splits_total",
				Help:      "Total batch bisections after partial failures",
			},
		),
		abortedBatches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_batches_aborted_total",
				Help:      "Batch trees force-failed after hitting the split budget",
			},
		),
		itemResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_item_results_total",
				Help:      "Terminal per-item results by outcome",
			},
			[]string{"outcome"},
		),
		batchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transport_batch_size",
				Help:      "Item count of submitted batches",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transport_inflight_requests",
				Help:      "HTTP attempts currently in flight",
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transport_queue_depth",
				Help:      "Batches waiting in the worker pool queue",
			},
		),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Reconciliation runs by final status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of reconciliation runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		resourcesReconciled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resources_reconciled_total",
				Help:      "Resource operations submitted by type and operation",
			},
			[]string{"resource_type", "operation"},
		),
		unorderedResources: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unordered_resources_total",
				Help:      "Resources pruned from the dependency order due to cycles",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.requestsTotal, m.requestDuration, m.retriesTotal, m.splitsTotal,
		m.abortedBatches, m.itemResults, m.batchSize, m.inflight, m.queueDepth,
		m.runsTotal, m.runDuration, m.resourcesReconciled, m.unorderedResources,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// ObserveRequest records one HTTP attempt.
func (m *Metrics) ObserveRequest(method string, status int, duration time.Duration) {
	if m.requestsTotal == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRetry records one retry by cause ("connect", "read", "status").
func (m *Metrics) RecordRetry(cause string) {
	if m.retriesTotal == nil {
		return
	}
	m.retriesTotal.WithLabelValues(cause).Inc()
}

// RecordSplit records one batch bisection.
func (m *Metrics) RecordSplit() {
	if m.splitsTotal == nil {
		return
	}
	m.splitsTotal.Inc()
}

// RecordAbortedBatch records a batch tree force-failed at the split budget.
func (m *Metrics) RecordAbortedBatch() {
	if m.abortedBatches == nil {
		return
	}
	m.abortedBatches.Inc()
}

// RecordItemResult records one terminal per-item outcome
// ("success", "failed_response", "failed_request", "missing").
func (m *Metrics) RecordItemResult(outcome string) {
	if m.itemResults == nil {
		return
	}
	m.itemResults.WithLabelValues(outcome).Inc()
}

// ObserveBatchSize records the item count of a submitted batch.
func (m *Metrics) ObserveBatchSize(n int) {
	if m.batchSize == nil {
		return
	}
	m.batchSize.Observe(float64(n))
}

// IncInflight increments the in-flight gauge.
func (m *Metrics) IncInflight() {
	if m.inflight == nil {
		return
	}
	m.inflight.Inc()
}

// DecInflight decrements the in-flight gauge.
func (m *Metrics) DecInflight() {
	if m.inflight == nil {
		return
	}
	m.inflight.Dec()
}

// SetQueueDepth updates the pool queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m.queueDepth == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// RecordRun records a finished reconciliation run.
func (m *Metrics) RecordRun(status string, duration time.Duration) {
	if m.runsTotal == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordResourceOperation records one submitted resource operation.
func (m *Metrics) RecordResourceOperation(resourceType, operation string) {
	if m.resourcesReconciled == nil {
		return
	}
	m.resourcesReconciled.WithLabelValues(resourceType, operation).Inc()
}

// RecordUnorderedResources counts resources pruned by cycle detection.
func (m *Metrics) RecordUnorderedResources(n int) {
	if m.unorderedResources == nil {
		return
	}
	m.unorderedResources.Add(float64(n))
}

// Handler returns an HTTP handler exposing the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing metrics at the configured address.
// It blocks until the server stops.
func (m *Metrics) Serve() error {
	if !m.config.Enabled {
		return nil
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return http.ListenAndServe(m.config.ListenAddress, mux)
}
