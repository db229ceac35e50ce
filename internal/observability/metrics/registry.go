// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestSize measures HTTP request body size in bytes
	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize measures HTTP response body size in bytes
	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// ActiveConnections tracks the number of active HTTP connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)
)

// Business metrics track the companion-radar pipeline's per-stage behavior.
var (
	// ClustersActiveTotal tracks the current number of ACTIVE story clusters.
	ClustersActiveTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clusters_active_total",
			Help: "Total number of ACTIVE story clusters",
		},
	)

	// SignalsTotal tracks the current number of signals in the database.
	SignalsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signals_total",
			Help: "Total number of signals in the database",
		},
	)

	// SignalsFetchedTotal counts raw items fetched from each source connector.
	SignalsFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_fetched_total",
			Help: "Total number of raw items fetched from sources",
		},
		[]string{"source"},
	)

	// SignalsNormalizedTotal counts signals normalized by ingest status.
	SignalsNormalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_normalized_total",
			Help: "Total number of signals normalized, by resulting ingest status",
		},
		[]string{"status"}, // ACCEPTED, REJECTED, FAILED
	)

	// NormalizationDuration measures time to distill one signal via the LLM.
	NormalizationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "normalization_duration_seconds",
			Help:    "Time taken to normalize a signal via the LLM",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// FetchDuration measures time to fetch one connector's items.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Time taken to fetch items from a source connector",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"source"},
	)

	// FetchErrorsTotal counts errors during connector fetches, by kind.
	FetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_errors_total",
			Help: "Total number of source fetch errors",
		},
		[]string{"source", "kind"},
	)

	// ClusterAssignmentDuration measures time to cluster one signal.
	ClusterAssignmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cluster_assignment_duration_seconds",
			Help:    "Time taken to assign a signal to a cluster",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// RankingRunDuration measures time to recompute scores for all active clusters.
	RankingRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ranking_run_duration_seconds",
			Help:    "Time taken to recompute importance scores for all active clusters",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	// IngestRunDuration measures the wall-clock duration of a full pipeline cycle.
	IngestRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Time taken to run a full ingest pipeline cycle",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"mode", "status"}, // mode: scheduled, direct; status: COMPLETED, FAILED
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())

	if requestSize > 0 {
		HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
	if responseSize > 0 {
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}

// RecordOperationDuration records the duration of a named operation
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
