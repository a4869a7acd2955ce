// Package metrics provides Prometheus metrics for the event engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values used by the engine.
const (
	StageCandidates = "candidates"
	StageCatalog    = "catalog"

	OutcomeCreated = "created"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"

	BatchDedupe = "dedupe"
	BatchExpand = "expand"

	StatusOK    = "ok"
	StatusError = "error"
)

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	durationBuckets  []float64
	enabled          bool
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Identity resolution
	recordsParsed   *prometheus.CounterVec
	parseFailures   *prometheus.CounterVec
	clustersCreated prometheus.Counter
	recordsMerged   prometheus.Counter
	exactDuplicates prometheus.Counter
	reviewQueue     prometheus.Gauge

	// Recurrence
	templatesFound     prometheus.Counter
	ruleFailures       prometheus.Counter
	occurrences        prometheus.Counter
	instances          *prometheus.CounterVec
	truncatedExpansion prometheus.Counter

	// Batches
	batchRuns     *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	batchLastUnix *prometheus.GaugeVec

	// Store
	storeLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager. Without WithPrometheusRegistry the
// metrics are registered on the default registerer.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "eventengine",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		durationBuckets:  []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// Default returns the process-wide manager registered on Registry().
func Default() *Manager {
	return globalManager
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
		Buckets:     buckets,
	}
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.recordsParsed = auto.NewCounterVec(
		m.counterOpts("records_parsed_total", "Records parsed successfully, by stage"),
		[]string{"stage"},
	)
	m.parseFailures = auto.NewCounterVec(
		m.counterOpts("parse_failures_total", "Records skipped because they could not be parsed, by stage"),
		[]string{"stage"},
	)
	m.clustersCreated = auto.NewCounter(m.counterOpts("clusters_created_total", "Clusters opened for previously unseen events"))
	m.recordsMerged = auto.NewCounter(m.counterOpts("records_merged_total", "Records joined to an existing cluster by similarity"))
	m.exactDuplicates = auto.NewCounter(m.counterOpts("exact_duplicates_total", "Records joined to an existing cluster by identity hash"))
	m.reviewQueue = auto.NewGauge(m.gaugeOpts("review_queue_size", "Clusters in the latest review report"))

	m.templatesFound = auto.NewCounter(m.counterOpts("templates_found_total", "Recurring templates found in the catalog"))
	m.ruleFailures = auto.NewCounter(m.counterOpts("rule_validation_failures_total", "Templates whose recurrence rule failed validation"))
	m.occurrences = auto.NewCounter(m.counterOpts("occurrences_generated_total", "Occurrence dates produced by the generator"))
	m.instances = auto.NewCounterVec(
		m.counterOpts("instances_total", "Materialized instances by outcome"),
		[]string{"outcome"},
	)
	m.truncatedExpansion = auto.NewCounter(m.counterOpts("expansions_truncated_total", "Expansions cut off by the occurrence cap"))

	m.batchRuns = auto.NewCounterVec(
		m.counterOpts("batch_runs_total", "Batch runs by kind and status"),
		[]string{"kind", "status"},
	)
	m.batchDuration = auto.NewHistogramVec(
		m.histogramOpts("batch_duration_seconds", "Batch run duration in seconds", m.durationBuckets),
		[]string{"kind"},
	)
	m.batchLastUnix = auto.NewGaugeVec(
		m.gaugeOpts("batch_last_unix", "Unix timestamp of the last finished batch run"),
		[]string{"kind"},
	)

	m.storeLatency = auto.NewHistogramVec(
		m.histogramOpts("store_latency_milliseconds", "Catalog store operation latency in milliseconds", m.histogramBuckets),
		[]string{"op"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)
}

// Enabled reports whether recording is switched on.
func (m *Manager) Enabled() bool { return m.enabled }

// RecordParsed counts a parsed record.
func (m *Manager) RecordParsed(stage string) {
	if m.enabled {
		m.recordsParsed.WithLabelValues(stage).Inc()
	}
}

// RecordParseFailure counts a record skipped by a parse failure.
func (m *Manager) RecordParseFailure(stage string) {
	if m.enabled {
		m.parseFailures.WithLabelValues(stage).Inc()
	}
}

// RecordClustering adds the outcome of one deduplication run.
func (m *Manager) RecordClustering(clusters, merged, exact, review int) {
	if !m.enabled {
		return
	}
	m.clustersCreated.Add(float64(clusters))
	m.recordsMerged.Add(float64(merged))
	m.exactDuplicates.Add(float64(exact))
	m.reviewQueue.Set(float64(review))
}

// RecordTemplate counts a discovered template; valid is false when its rule
// failed validation.
func (m *Manager) RecordTemplate(valid bool) {
	if !m.enabled {
		return
	}
	m.templatesFound.Inc()
	if !valid {
		m.ruleFailures.Inc()
	}
}

// RecordOccurrences adds generated dates.
func (m *Manager) RecordOccurrences(n int, truncated bool) {
	if !m.enabled {
		return
	}
	m.occurrences.Add(float64(n))
	if truncated {
		m.truncatedExpansion.Inc()
	}
}

// RecordInstance counts one materialization outcome.
func (m *Manager) RecordInstance(outcome string) {
	if m.enabled {
		m.instances.WithLabelValues(outcome).Inc()
	}
}

// RecordBatch records a finished batch run.
func (m *Manager) RecordBatch(kind string, d time.Duration, err error) {
	if !m.enabled {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.batchRuns.WithLabelValues(kind, status).Inc()
	m.batchDuration.WithLabelValues(kind).Observe(d.Seconds())
	m.batchLastUnix.WithLabelValues(kind).Set(float64(time.Now().Unix()))
}

// RecordStoreLatency records a store operation latency.
func (m *Manager) RecordStoreLatency(op string, d time.Duration) {
	if m.enabled {
		m.storeLatency.WithLabelValues(op).Observe(float64(d.Microseconds()) / 1000)
	}
}

// RecordHTTPRequest records an HTTP request and its duration in milliseconds.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordHTTPRequest records an HTTP request on the global manager.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}

// RecordBatch records a finished batch run on the global manager.
func RecordBatch(kind string, d time.Duration, err error) {
	globalManager.RecordBatch(kind, d, err)
}

// GetRegistry returns the custom Prometheus registry used by the global
// manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
