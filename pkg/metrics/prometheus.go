// Package metrics provides Prometheus metrics for the FSRS scheduling service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Optimization terminal states used as label values.
const (
	StateConverged       = "converged"
	StateBudgetExhausted = "budget_exhausted"
	StateFailed          = "failed"
	StateCancelled       = "cancelled"
)

// Manager manages all Prometheus metrics for the FSRS service.
type Manager struct {
	namespace           string
	subsystem           string
	histogramBuckets    []float64
	optimizationBuckets []float64
	enabled             bool
	refreshInterval     time.Duration
	customLabels        map[string]string
	metricPrefix        string
	registry            prometheus.Registerer

	// Model fitting
	optimizationRuns     *prometheus.CounterVec
	optimizerIterations  prometheus.Counter
	optimizerFinalLoss   prometheus.Gauge
	optimizerItems       prometheus.Gauge
	optimizationDuration prometheus.Histogram
	evaluations          prometheus.Counter
	evaluationLogLoss    prometheus.Gauge

	// Job pipeline
	jobsSubmitted      prometheus.Counter
	jobsDuplicate      prometheus.Counter
	jobsTotal          prometheus.Gauge
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge
	workerActiveCount  prometheus.Gauge
	workerJobLatency   prometheus.Histogram
	workerErrors       prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:           "fsrs",
		subsystem:           "scheduler",
		histogramBuckets:    prometheus.DefBuckets,
		optimizationBuckets: []float64{10, 50, 100, 500, 1000, 5000, 15000, 60000, 300000},
		enabled:             true,
		refreshInterval:     defaultRefreshInterval,
		customLabels:        make(map[string]string),
		metricPrefix:        "",
		registry:            prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// Enabled reports whether recording is switched on.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often gauge refreshers should run.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// RefreshInterval reports the refresh interval of the global manager.
func RefreshInterval() time.Duration { return globalManager.refreshInterval }

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.optimizationRuns = m.counterVec("optimization_runs_total", "Optimizer runs by terminal state", "state")
	m.optimizerIterations = m.counter("optimizer_iterations_total", "Gradient steps taken across all optimizer runs")
	m.optimizerFinalLoss = m.gauge("optimizer_final_log_loss", "Training log-loss of the most recent successful optimizer run")
	m.optimizerItems = m.gauge("optimizer_training_items", "Training items of the most recent optimizer run")
	m.optimizationDuration = m.histogram("optimization_duration_milliseconds", "Wall time of optimizer runs in milliseconds",
		m.optimizationBuckets)
	m.evaluations = m.counter("evaluations_total", "Parameter evaluations performed")
	m.evaluationLogLoss = m.gauge("evaluation_log_loss", "Log-loss of the most recent evaluation")

	m.jobsSubmitted = m.counter("jobs_submitted_total", "Optimization jobs accepted")
	m.jobsDuplicate = m.counter("jobs_duplicate_total", "Optimization submissions answered with an existing job")
	m.jobsTotal = m.gauge("jobs", "Optimization jobs held in the job store")
	m.queueSize = m.gauge("queue_size", "Current size of the job queue (backlog indicator)")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the job queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Job queue utilization ratio (size / capacity)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Jobs enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Rejected enqueue attempts")
	m.workerCount = m.gauge("worker_count", "Configured number of optimization workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently running a job")
	m.workerJobLatency = m.histogram("worker_job_latency_milliseconds", "Time a worker spends on one job in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Jobs that finished in the failed state")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordOptimizationRun records a finished optimizer run.
func RecordOptimizationRun(state string, iterations int, durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.optimizationRuns.WithLabelValues(state).Inc()
	globalManager.optimizerIterations.Add(float64(iterations))
	globalManager.optimizationDuration.Observe(durationMs)
}

// UpdateOptimizerFinalLoss sets the training loss of the latest successful run.
func UpdateOptimizerFinalLoss(loss float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.optimizerFinalLoss.Set(loss)
}

// UpdateOptimizerItems sets the training item count of the latest run.
func UpdateOptimizerItems(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.optimizerItems.Set(float64(count))
}

// RecordEvaluation records one evaluation and its log-loss.
func RecordEvaluation(logLoss float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.evaluations.Inc()
	globalManager.evaluationLogLoss.Set(logLoss)
}

// RecordJobSubmitted increments the accepted job counter.
func RecordJobSubmitted() {
	if !globalManager.enabled {
		return
	}
	globalManager.jobsSubmitted.Inc()
}

// RecordJobDuplicate increments the duplicate submission counter.
func RecordJobDuplicate() {
	if !globalManager.enabled {
		return
	}
	globalManager.jobsDuplicate.Inc()
}

// UpdateJobsTotal sets the number of jobs held in the store.
func UpdateJobsTotal(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.jobsTotal.Set(float64(count))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerActive moves the active worker gauge by delta.
func AddWorkerActive(delta int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerActiveCount.Add(float64(delta))
}

// RecordWorkerJobLatency records how long a worker spent on one job.
func RecordWorkerJobLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerJobLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if !globalManager.enabled {
		return
	}
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
