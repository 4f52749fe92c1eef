// Package metrics provides Prometheus metrics for the crew training planner.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Plan outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// Plan stages, matching the planner's Stage names.
const (
	StageGreedy  = "greedy"
	StageBalance = "balance"
	StagePadding = "padding"
)

// Manager owns all Prometheus collectors of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Planning
	plansTotal        *prometheus.CounterVec
	planDuration      prometheus.Histogram
	exercisesSelected *prometheus.CounterVec
	balanceFallbacks  prometheus.Counter
	batchSize         prometheus.Histogram

	// Service
	workerCount       prometheus.Gauge
	repositoryRecords *prometheus.GaugeVec
	repositoryQuery   *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsTotal *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "crewtrain",
		subsystem:        "planner",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.plansTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "plans_total",
		Help:        "Total number of plan requests by outcome",
		ConstLabels: m.constLabels,
	}, []string{"outcome"})

	m.planDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "plan_duration_milliseconds",
		Help:        "Time spent building one plan in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.exercisesSelected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "exercises_selected_total",
		Help:        "Exercises placed into plans, by selection stage",
		ConstLabels: m.constLabels,
	}, []string{"stage"})

	m.balanceFallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "balance_fallbacks_total",
		Help:        "Balance optimizer runs that failed and fell back to padding",
		ConstLabels: m.constLabels,
	})

	m.batchSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "batch_size",
		Help:        "Number of crews per batch planning request",
		Buckets:     []float64{1, 2, 5, 10, 25, 50, 100},
		ConstLabels: m.constLabels,
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_count",
		Help:        "Configured batch planning concurrency",
		ConstLabels: m.constLabels,
	})

	m.repositoryRecords = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "repository_records",
		Help:        "Records held by the data provider, by kind",
		ConstLabels: m.constLabels,
	}, []string{"kind"})

	m.repositoryQuery = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "repository_query_latency_milliseconds",
		Help:        "Data provider query latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"query"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_total",
		Help:        "Errors by component and type",
		ConstLabels: m.constLabels,
	}, []string{"component", "type"})
}

// RecordPlan counts one plan request with the given outcome.
func RecordPlan(outcome string) {
	globalManager.plansTotal.WithLabelValues(outcome).Inc()
}

// RecordPlanDuration records plan build time in milliseconds.
func RecordPlanDuration(ms float64) {
	globalManager.planDuration.Observe(ms)
}

// RecordExercisesSelected adds n exercises picked by stage.
func RecordExercisesSelected(stage string, n int) error {
	switch stage {
	case StageGreedy, StageBalance, StagePadding:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	if n > 0 {
		globalManager.exercisesSelected.WithLabelValues(stage).Add(float64(n))
	}
	return nil
}

// RecordBalanceFallback counts an optimizer failure.
func RecordBalanceFallback() {
	globalManager.balanceFallbacks.Inc()
}

// RecordBatchSize records the number of crews in a batch.
func RecordBatchSize(n int) {
	globalManager.batchSize.Observe(float64(n))
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateRepositoryRecords sets the record count for kind.
func UpdateRepositoryRecords(kind string, count int) {
	globalManager.repositoryRecords.WithLabelValues(kind).Set(float64(count))
}

// RecordRepositoryQuery records the latency of a provider query.
func RecordRepositoryQuery(query string, ms float64) {
	globalManager.repositoryQuery.WithLabelValues(query).Observe(ms)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordError counts an error in component.
func RecordError(component, errType string) {
	globalManager.errorsTotal.WithLabelValues(component, errType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
