// Package metrics provides Prometheus metrics for the crease scoring service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the scoring service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Consensus and ledger
	submissions      *prometheus.CounterVec
	ballsCommitted   *prometheus.CounterVec
	ballsAbandoned   prometheus.Counter
	ledgerConflicts  prometheus.Counter
	commitLatency    prometheus.Histogram
	duplicateClaims  prometheus.Counter
	pendingSlots     prometheus.Gauge
	disputesRaised   *prometheus.CounterVec
	disputesResolved *prometheus.CounterVec
	disputesPending  prometheus.Gauge

	// Projection
	projectionLatency prometheus.Histogram
	projectionCache   *prometheus.CounterVec

	// Broadcast hub
	hubRooms        prometheus.Gauge
	hubConnections  prometheus.Gauge
	hubBroadcasts   prometheus.Counter
	hubDroppedSends prometheus.Counter

	// Dispatch queue and workers
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueEnqueue           prometheus.Counter
	queueDequeue           prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram
	workerCount            prometheus.Gauge
	workerErrors           *prometheus.CounterVec

	// Sinks
	sinkPublish *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "crease",
		subsystem:        "scoring",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.submissions = m.counterVec("claim_submissions_total",
		"Claims submitted by validation tier and outcome", "tier", "outcome")
	m.ballsCommitted = m.counterVec("balls_committed_total",
		"Balls appended to the ledger by provenance", "provenance")
	m.ballsAbandoned = m.counter("balls_abandoned_total",
		"Ball slots abandoned and recorded as gaps")
	m.ledgerConflicts = m.counter("ledger_conflicts_total",
		"Concurrent commit attempts that lost the race for a slot")
	m.commitLatency = m.histogram("commit_latency_milliseconds",
		"Time spent in the ledger commit path in milliseconds")
	m.duplicateClaims = m.counter("duplicate_claims_total",
		"Claim submissions answered from the idempotency cache")
	m.pendingSlots = m.gauge("pending_slots",
		"Ball slots waiting for counterpart claims")
	m.disputesRaised = m.counterVec("disputes_raised_total",
		"Disputes raised by type", "type")
	m.disputesResolved = m.counterVec("disputes_resolved_total",
		"Disputes closed by resolution method", "method")
	m.disputesPending = m.gauge("disputes_pending",
		"Disputes waiting for an official decision")

	m.projectionLatency = m.histogram("projection_latency_milliseconds",
		"Time to project an innings from the ledger in milliseconds")
	m.projectionCache = m.counterVec("projection_cache_total",
		"Projection cache lookups by result", "result")

	m.hubRooms = m.gauge("hub_rooms", "Open spectator rooms")
	m.hubConnections = m.gauge("hub_connections", "Connected spectators")
	m.hubBroadcasts = m.counter("hub_broadcasts_total", "Envelopes fanned out to rooms")
	m.hubDroppedSends = m.counter("hub_dropped_sends_total",
		"Sends that failed and removed the connection")

	m.queueSize = m.gauge("queue_size", "Current number of events waiting for dispatch")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum dispatch queue capacity")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Total number of events enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Total number of events dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds",
		"Time from enqueue to sink completion in milliseconds")
	m.workerCount = m.gauge("worker_count", "Current number of dispatch workers")
	m.workerErrors = m.counterVec("worker_errors_total", "Sink handler failures", "sink")

	m.sinkPublish = m.counterVec("sink_publish_total",
		"Events published to external sinks by result", "sink", "result")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
}

// RecordSubmission counts a claim submission outcome for a tier.
func RecordSubmission(tier, outcome string) {
	globalManager.submissions.WithLabelValues(tier, outcome).Inc()
}

// RecordBallCommitted counts a committed ball.
func RecordBallCommitted(provenance string) {
	globalManager.ballsCommitted.WithLabelValues(provenance).Inc()
}

// RecordBallAbandoned counts an abandoned slot.
func RecordBallAbandoned() {
	globalManager.ballsAbandoned.Inc()
}

// RecordLedgerConflict counts a lost commit race.
func RecordLedgerConflict() {
	globalManager.ledgerConflicts.Inc()
}

// RecordCommitLatency records ledger commit latency in milliseconds.
func RecordCommitLatency(latencyMs float64) {
	globalManager.commitLatency.Observe(latencyMs)
}

// RecordDuplicateClaim counts an idempotent replay.
func RecordDuplicateClaim() {
	globalManager.duplicateClaims.Inc()
}

// UpdatePendingSlots sets the number of slots awaiting claims.
func UpdatePendingSlots(n int) {
	globalManager.pendingSlots.Set(float64(n))
}

// RecordDisputeRaised counts a raised dispute.
func RecordDisputeRaised(disputeType string) {
	globalManager.disputesRaised.WithLabelValues(disputeType).Inc()
}

// RecordDisputeResolved counts a closed dispute.
func RecordDisputeResolved(method string) {
	globalManager.disputesResolved.WithLabelValues(method).Inc()
}

// UpdateDisputesPending sets the number of open disputes.
func UpdateDisputesPending(n int) {
	globalManager.disputesPending.Set(float64(n))
}

// RecordProjectionLatency records projection latency in milliseconds.
func RecordProjectionLatency(latencyMs float64) {
	globalManager.projectionLatency.Observe(latencyMs)
}

// RecordProjectionCache counts a cache hit or miss.
func RecordProjectionCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	globalManager.projectionCache.WithLabelValues(result).Inc()
}

// UpdateHubRooms sets the open room count.
func UpdateHubRooms(n int) {
	globalManager.hubRooms.Set(float64(n))
}

// UpdateHubConnections sets the connected spectator count.
func UpdateHubConnections(n int) {
	globalManager.hubConnections.Set(float64(n))
}

// RecordHubBroadcast counts one room fan-out.
func RecordHubBroadcast() {
	globalManager.hubBroadcasts.Inc()
}

// RecordHubDroppedSend counts a connection dropped after a failed send.
func RecordHubDroppedSend() {
	globalManager.hubDroppedSends.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerError counts a sink handler failure.
func RecordWorkerError(sink string) {
	globalManager.workerErrors.WithLabelValues(sink).Inc()
}

// RecordSinkPublish counts a publish attempt to an external sink.
func RecordSinkPublish(sink string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	globalManager.sinkPublish.WithLabelValues(sink, result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
