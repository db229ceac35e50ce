package metrics

import "time"

// RecordSignalsFetched records the number of raw items fetched from a source
// connector on one cycle.
func RecordSignalsFetched(source string, count int) {
	SignalsFetchedTotal.WithLabelValues(source).Add(float64(count))
}

// RecordFetch records the duration of one connector's fetch call.
func RecordFetch(source string, duration time.Duration) {
	FetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordFetchError records a fetch failure for a source, tagged by kind
// (see entity.ErrorKind).
func RecordFetchError(source, kind string) {
	FetchErrorsTotal.WithLabelValues(source, kind).Inc()
}

// RecordSignalNormalized records the ingest status a signal settled into
// after normalization (ACCEPTED, REJECTED, or FAILED).
func RecordSignalNormalized(status string) {
	SignalsNormalizedTotal.WithLabelValues(status).Inc()
}

// RecordNormalizationDuration records the time taken to distill one signal
// via the LLM, including any retry.
func RecordNormalizationDuration(duration time.Duration) {
	NormalizationDuration.Observe(duration.Seconds())
}

// RecordClusterAssignmentDuration records the time taken to assign a single
// signal to a cluster (trigram search plus TF-IDF refinement).
func RecordClusterAssignmentDuration(duration time.Duration) {
	ClusterAssignmentDuration.Observe(duration.Seconds())
}

// RecordRankingRun records the time taken to recompute importance scores
// for every active cluster.
func RecordRankingRun(duration time.Duration) {
	RankingRunDuration.Observe(duration.Seconds())
}

// RecordIngestRun records the wall-clock duration of a full pipeline cycle,
// tagged by trigger mode and final run status.
func RecordIngestRun(mode, status string, duration time.Duration) {
	IngestRunDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
}

// UpdateClustersActiveTotal updates the gauge of currently ACTIVE clusters.
func UpdateClustersActiveTotal(count int) {
	ClustersActiveTotal.Set(float64(count))
}

// UpdateSignalsTotal updates the gauge of total signals in the database.
func UpdateSignalsTotal(count int) {
	SignalsTotal.Set(float64(count))
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "select_clusters", "insert_signal").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
