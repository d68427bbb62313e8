// Package metrics provides Prometheus metrics for the SmartSession service.
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

// Manager owns every Prometheus collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Pipeline metrics
	framesProcessed   *prometheus.CounterVec
	framesDuplicate   prometheus.Counter
	frameLatency      prometheus.Histogram
	providerFailures  prometheus.Counter
	malformedMetrics  prometheus.Counter
	resolverRules     *prometheus.CounterVec
	subjectsTracked   prometheus.Gauge
	subjectsOffline   prometheus.Counter
	subjectsEvicted   prometheus.Counter
	timersTracked     *prometheus.GaugeVec
	frameErrorsByKind *prometheus.CounterVec

	// Notifier metrics
	observers          prometheus.Gauge
	broadcasts         *prometheus.CounterVec
	deliveryFailures   prometheus.Counter
	deliveryLatency    prometheus.Histogram
	updatesDropped     prometheus.Counter
	observerLifecycles *prometheus.CounterVec

	// Store metrics
	storeShardCount     prometheus.Gauge
	storeRecordsTotal   prometheus.Gauge
	storeRecordsByShard *prometheus.GaugeVec
	storeUpsertLatency  prometheus.Histogram
	storeQueryLatency   prometheus.Histogram

	// Queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker metrics
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec
	errorLatency      *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "smartsession",
		subsystem:        "core",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix != "" {
		return m.metricPrefix + "_" + n
	}
	return n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
		Buckets:     m.histogramBuckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	// Pipeline
	m.framesProcessed = auto.NewCounterVec(m.counterOpts("frames_processed_total",
		"Frames resolved into a subject state, by resulting status and alert"), []string{"status", "alert"})
	m.framesDuplicate = auto.NewCounter(m.counterOpts("frames_duplicate_total",
		"Frames skipped because their frame_id was already processed"))
	m.frameLatency = auto.NewHistogram(m.histogramOpts("frame_latency_milliseconds",
		"End-to-end frame pipeline latency in milliseconds"))
	m.providerFailures = auto.NewCounter(m.counterOpts("provider_failures_total",
		"Frames rejected because the metrics provider failed"))
	m.malformedMetrics = auto.NewCounter(m.counterOpts("malformed_metrics_total",
		"Metrics bundles that were partially or fully replaced by defaults"))
	m.resolverRules = auto.NewCounterVec(m.counterOpts("resolver_rules_total",
		"Resolver rule firings"), []string{"rule"})
	m.subjectsTracked = auto.NewGauge(m.gaugeOpts("subjects_tracked",
		"Subjects currently held in the session store"))
	m.subjectsOffline = auto.NewCounter(m.counterOpts("subjects_offline_total",
		"Subjects marked OFFLINE by the retention sweep"))
	m.subjectsEvicted = auto.NewCounter(m.counterOpts("subjects_evicted_total",
		"Subjects evicted by the retention sweep"))
	m.timersTracked = auto.NewGaugeVec(m.gaugeOpts("timers_tracked",
		"Per-subject timer entries, by owner"), []string{"owner"})
	m.frameErrorsByKind = auto.NewCounterVec(m.counterOpts("frame_errors_total",
		"Frames that failed, by error kind"), []string{"kind"})

	// Notifier
	m.observers = auto.NewGauge(m.gaugeOpts("observers",
		"Currently subscribed observer connections"))
	m.broadcasts = auto.NewCounterVec(m.counterOpts("broadcasts_total",
		"Broadcasts issued, by payload type"), []string{"type"})
	m.deliveryFailures = auto.NewCounter(m.counterOpts("delivery_failures_total",
		"Pushes to a single observer that failed or timed out"))
	m.deliveryLatency = auto.NewHistogram(m.histogramOpts("delivery_latency_milliseconds",
		"Per-observer push latency in milliseconds"))
	m.updatesDropped = auto.NewCounter(m.counterOpts("updates_dropped_total",
		"State updates dropped because the dispatch queue was full"))
	m.observerLifecycles = auto.NewCounterVec(m.counterOpts("observer_events_total",
		"Observer connect/disconnect events"), []string{"event"})

	// Store
	m.storeShardCount = auto.NewGauge(m.gaugeOpts("store_shard_count",
		"Number of session store shards"))
	m.storeRecordsTotal = auto.NewGauge(m.gaugeOpts("store_records_total",
		"Records across all session store shards"))
	m.storeRecordsByShard = auto.NewGaugeVec(m.gaugeOpts("store_records_per_shard",
		"Records per session store shard"), []string{"shard_id"})
	m.storeUpsertLatency = auto.NewHistogram(m.histogramOpts("store_upsert_latency_milliseconds",
		"Session store upsert latency in milliseconds"))
	m.storeQueryLatency = auto.NewHistogram(m.histogramOpts("store_query_latency_milliseconds",
		"Session store read latency in milliseconds"))

	// Queue
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Current size of the update dispatch queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Maximum dispatch queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio",
		"Dispatch queue utilization ratio (size / capacity)"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueue_total",
		"Updates enqueued for dispatch"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeue_total",
		"Updates dequeued by dispatchers"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total",
		"Failed enqueue attempts"))

	// Workers
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count",
		"Running dispatch workers"))
	m.workerMessagesPerSecond = auto.NewGauge(m.gaugeOpts("worker_messages_per_second",
		"Average updates dispatched per second"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Dispatch latency per update in milliseconds"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total",
		"Dispatch worker errors"))

	// HTTP
	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds"), []string{"endpoint", "method", "status_code"})

	// Errors
	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Errors by component"), []string{"component", "error_type"})
	m.errorsByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total",
		"Errors by type and severity"), []string{"error_type", "severity"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Errors by endpoint"), []string{"endpoint", "method", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogramOpts("error_latency_milliseconds",
		"Latency of operations that resulted in errors"), []string{"component", "error_type"})

	// System
	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"Heap memory in use in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
	gc := m.histogramOpts("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds")
	gc.Buckets = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}
	m.systemGCPauseTime = auto.NewHistogram(gc)
}

// Enabled reports whether the global manager records observations.
func Enabled() bool { return globalManager.enabled }

// Pipeline metrics.

// RecordFrameProcessed counts a resolved frame.
func RecordFrameProcessed(status, alert string) {
	if !globalManager.enabled {
		return
	}
	globalManager.framesProcessed.WithLabelValues(status, alert).Inc()
}

// RecordFrameDuplicate counts a retried frame id.
func RecordFrameDuplicate() {
	if !globalManager.enabled {
		return
	}
	globalManager.framesDuplicate.Inc()
}

// RecordFrameLatency records pipeline latency in milliseconds.
func RecordFrameLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.frameLatency.Observe(latencyMs)
}

// RecordProviderFailure counts a metrics provider failure.
func RecordProviderFailure() {
	if !globalManager.enabled {
		return
	}
	globalManager.providerFailures.Inc()
	globalManager.frameErrorsByKind.WithLabelValues("provider_failure").Inc()
}

// RecordFrameError counts a failed frame by kind.
func RecordFrameError(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.frameErrorsByKind.WithLabelValues(kind).Inc()
}

// RecordMalformedMetrics counts a metrics bundle that fell back to defaults.
func RecordMalformedMetrics() {
	if !globalManager.enabled {
		return
	}
	globalManager.malformedMetrics.Inc()
}

// RecordResolverRule counts a resolver rule firing.
func RecordResolverRule(rule string) {
	if !globalManager.enabled {
		return
	}
	globalManager.resolverRules.WithLabelValues(rule).Inc()
}

// UpdateSubjectsTracked sets the number of subjects in the store.
func UpdateSubjectsTracked(count int) {
	globalManager.subjectsTracked.Set(float64(count))
}

// UpdateTimersTracked sets the number of timer entries held by owner.
func UpdateTimersTracked(owner string, count int) {
	globalManager.timersTracked.WithLabelValues(owner).Set(float64(count))
}

// RecordSubjectOffline counts a subject marked OFFLINE.
func RecordSubjectOffline() {
	if !globalManager.enabled {
		return
	}
	globalManager.subjectsOffline.Inc()
}

// RecordSubjectEvicted counts an evicted subject.
func RecordSubjectEvicted() {
	if !globalManager.enabled {
		return
	}
	globalManager.subjectsEvicted.Inc()
}

// Notifier metrics.

// UpdateObservers sets the subscribed observer count.
func UpdateObservers(count int) {
	globalManager.observers.Set(float64(count))
}

// RecordObserverEvent counts a connect or disconnect.
func RecordObserverEvent(event string) {
	if !globalManager.enabled {
		return
	}
	globalManager.observerLifecycles.WithLabelValues(event).Inc()
}

// RecordBroadcast counts a broadcast by payload type.
func RecordBroadcast(payloadType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.broadcasts.WithLabelValues(payloadType).Inc()
}

// RecordDeliveryFailure counts a failed push to one observer.
func RecordDeliveryFailure() {
	if !globalManager.enabled {
		return
	}
	globalManager.deliveryFailures.Inc()
}

// RecordDeliveryLatency records per-observer push latency.
func RecordDeliveryLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.deliveryLatency.Observe(latencyMs)
}

// RecordUpdateDropped counts an update dropped by a full dispatch queue.
func RecordUpdateDropped() {
	if !globalManager.enabled {
		return
	}
	globalManager.updatesDropped.Inc()
}

// Store metrics.

// UpdateStoreShardCount sets the number of store shards.
func UpdateStoreShardCount(count int) {
	globalManager.storeShardCount.Set(float64(count))
}

// UpdateStoreRecordsTotal sets the total record count.
func UpdateStoreRecordsTotal(count int) {
	globalManager.storeRecordsTotal.Set(float64(count))
}

// UpdateStoreRecordsPerShard sets the record count for one shard.
func UpdateStoreRecordsPerShard(shardID string, count int) {
	globalManager.storeRecordsByShard.WithLabelValues(shardID).Set(float64(count))
}

// RecordStoreUpsertLatency records upsert latency.
func RecordStoreUpsertLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeUpsertLatency.Observe(latencyMs)
}

// RecordStoreQueryLatency records read latency.
func RecordStoreQueryLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// Queue metrics.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueueErrors.Inc()
}

// Worker metrics.

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the dispatch rate.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records dispatch latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if !globalManager.enabled {
		return
	}
	globalManager.workerErrors.Inc()
}

// HTTP metrics.

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

// Error metrics.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System metrics.

// UpdateSystemMemoryUsage sets heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RefreshInterval returns the gauge refresh interval configured on the global manager.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}
