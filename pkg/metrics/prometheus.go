// Package metrics provides Prometheus metrics for the sectorclock timing service.
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

// Default buckets for ride durations in seconds.
var defaultSecondsBuckets = []float64{1, 2, 5, 10, 15, 20, 30, 45, 60, 90, 120, 180, 300, 600} //nolint:gochecknoglobals // read-only defaults

// Manager manages all Prometheus metrics for the timing service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	secondsBuckets   []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Timing engine
	triggers        *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	runsCompleted   prometheus.Counter
	runsAbandoned   prometheus.Counter
	splitSeconds    prometheus.Histogram
	totalSeconds    prometheus.Histogram
	verdicts        *prometheus.CounterVec
	pendingPersists prometheus.Gauge

	// Leaderboard store
	leaderboardAppends     prometheus.Counter
	leaderboardErrors      prometheus.Counter
	leaderboardRowsSkipped prometheus.Counter
	leaderboardScanLatency prometheus.Histogram

	// Status publisher
	snapshotPublishes prometheus.Counter
	snapshotErrors    prometheus.Counter
	snapshotDuration  prometheus.Histogram
	snapshotLastUnix  prometheus.Gauge

	// Trigger queue
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueDropped  *prometheus.CounterVec

	// Dispatcher loop
	dispatchLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "sectorclock",
		subsystem:        "timing",
		histogramBuckets: prometheus.DefBuckets,
		secondsBuckets:   defaultSecondsBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one block per metric
	auto := promauto.With(m.registry)

	m.triggers = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "triggers_total",
		Help:      "Triggers handled by the registry, by outcome",
	}, []string{"outcome"})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_sessions",
		Help:      "Sessions currently on course",
	})

	m.runsCompleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_completed_total",
		Help:      "Runs that reached the final sector",
	})

	m.runsAbandoned = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_abandoned_total",
		Help:      "Runs closed as partial after going idle",
	})

	m.splitSeconds = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "split_seconds",
		Help:      "Recorded sector split times in seconds",
		Buckets:   m.secondsBuckets,
	})

	m.totalSeconds = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_total_seconds",
		Help:      "Completed run totals in seconds",
		Buckets:   m.secondsBuckets,
	})

	m.verdicts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pace_verdicts_total",
		Help:      "Pace verdicts emitted to the indicator, by scope and verdict",
	}, []string{"scope", "verdict"})

	m.pendingPersists = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pending_persists",
		Help:      "Finished runs whose leaderboard append failed and awaits retry",
	})

	m.leaderboardAppends = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_appends_total",
		Help:      "Rows appended to the leaderboard",
	})

	m.leaderboardErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_errors_total",
		Help:      "Leaderboard append or read failures",
	})

	m.leaderboardRowsSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_rows_skipped_total",
		Help:      "Malformed leaderboard rows skipped while scanning",
	})

	m.leaderboardScanLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_scan_latency_milliseconds",
		Help:      "Leaderboard scan latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.snapshotPublishes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_publishes_total",
		Help:      "Status snapshots written",
	})

	m.snapshotErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_errors_total",
		Help:      "Status snapshot write failures",
	})

	m.snapshotDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_duration_milliseconds",
		Help:      "Time to build and write a status snapshot in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.snapshotLastUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_last_unix",
		Help:      "Unix timestamp of the last successful snapshot",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Triggers waiting for the dispatcher",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum trigger queue capacity",
	})

	m.queueDropped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dropped_total",
		Help:      "Triggers rejected by the queue, by reason",
	}, []string{"reason"})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.dispatchLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "dispatch_latency_milliseconds",
			Help:      "Time spent applying one trigger, including any leaderboard append",
			Buckets:   m.histogramBuckets,
		},
		[]string{"kind", "outcome"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// RecordTrigger counts a trigger by its outcome.
func RecordTrigger(outcome string) {
	globalManager.triggers.WithLabelValues(outcome).Inc()
}

// UpdateActiveSessions sets the number of sessions on course.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// RecordRunCompleted counts a finished run and observes its total.
func RecordRunCompleted(total time.Duration) {
	globalManager.runsCompleted.Inc()
	globalManager.totalSeconds.Observe(total.Seconds())
}

// RecordRunAbandoned counts a run closed as partial.
func RecordRunAbandoned() {
	globalManager.runsAbandoned.Inc()
}

// RecordSplit observes a sector split.
func RecordSplit(split time.Duration) {
	globalManager.splitSeconds.Observe(split.Seconds())
}

// RecordVerdict counts a verdict emitted for a sector or a whole run.
func RecordVerdict(scope, verdict string) {
	globalManager.verdicts.WithLabelValues(scope, verdict).Inc()
}

// UpdatePendingPersists sets the number of finished runs awaiting a successful append.
func UpdatePendingPersists(count int) {
	globalManager.pendingPersists.Set(float64(count))
}

// RecordLeaderboardAppend counts a written leaderboard row.
func RecordLeaderboardAppend() {
	globalManager.leaderboardAppends.Inc()
}

// RecordLeaderboardError counts a leaderboard I/O failure.
func RecordLeaderboardError() {
	globalManager.leaderboardErrors.Inc()
}

// RecordLeaderboardRowSkipped counts a malformed row skipped during a scan.
func RecordLeaderboardRowSkipped() {
	globalManager.leaderboardRowsSkipped.Inc()
}

// RecordLeaderboardScanLatency records a full-file scan latency.
func RecordLeaderboardScanLatency(latencyMs float64) {
	globalManager.leaderboardScanLatency.Observe(latencyMs)
}

// RecordSnapshotPublished marks a successful snapshot write.
func RecordSnapshotPublished(at time.Time, duration time.Duration) {
	globalManager.snapshotPublishes.Inc()
	globalManager.snapshotLastUnix.Set(float64(at.Unix()))
	globalManager.snapshotDuration.Observe(float64(duration.Milliseconds()))
}

// RecordSnapshotError counts a failed snapshot write.
func RecordSnapshotError() {
	globalManager.snapshotErrors.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueDropped counts a trigger the queue refused.
func RecordQueueDropped(reason string) {
	globalManager.queueDropped.WithLabelValues(reason).Inc()
}

// RecordDispatchLatency records how long one trigger took to apply.
func RecordDispatchLatency(kind, outcome string, latencyMs float64) {
	globalManager.dispatchLatency.WithLabelValues(kind, outcome).Observe(latencyMs)
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
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
