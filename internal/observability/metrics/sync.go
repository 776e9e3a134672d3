// Package metrics provides Prometheus metrics for the sync pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics contains Prometheus metrics for directory sync operations.
// It satisfies the fetch package's MetricsRecorder interface so the HTTP
// fetch engine can report without importing this package.
type SyncMetrics struct {
	registry *prometheus.Registry

	// HTTP fetch metrics
	fetchAttemptsTotal *prometheus.CounterVec
	fetchRetriesTotal  prometheus.Counter
	fetchDuration      prometheus.Histogram

	// Datastore upsert metrics
	upsertAttemptsTotal  *prometheus.CounterVec
	entriesUpsertedTotal prometheus.Counter

	// Area sync metrics
	areaSyncsTotal   *prometheus.CounterVec
	areaSyncDuration *prometheus.HistogramVec
	cellVisibleMax   *prometheus.GaugeVec
	entriesSeenTotal *prometheus.CounterVec
}

// NewSyncMetrics creates and registers new sync metrics
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *SyncMetrics) initMetrics() error {
	m.fetchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_fetch_attempts_total",
			Help: "Total number of HTTP fetch attempts against the directory API",
		},
		[]string{"status"}, // status: success, error
	)

	m.fetchRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_fetch_retries_total",
			Help: "Total number of fetch attempts that were retried after a failure",
		},
	)

	m.fetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "sync_fetch_duration_seconds",
			Help: "Time taken for a single HTTP fetch attempt",
			// Buckets cover typical directory API response times: 100ms to ~100s
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount10),
		},
	)

	m.upsertAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_upsert_attempts_total",
			Help: "Total number of datastore upsert attempts by fallback tier",
		},
		[]string{"tier", "status"}, // tier: bulk, per_record, guarded
	)

	m.entriesUpsertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_entries_upserted_total",
			Help: "Total number of entries written to the datastore",
		},
	)

	m.areaSyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_area_runs_total",
			Help: "Total number of per-area sync runs",
		},
		[]string{"area", "status"},
	)

	m.areaSyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "sync_area_duration_seconds",
			Help: "Time taken to sync one configured area end to end",
			// Buckets cover whole-area sync runs: 1s to ~2048s
			Buckets: prometheus.ExponentialBuckets(BucketStart1s, BucketFactor2, BucketCount12),
		},
		[]string{"area"},
	)

	m.cellVisibleMax = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_cell_visible_max",
			Help: "Largest visible result count observed in any grid cell during the last run",
		},
		[]string{"area"},
	)

	m.entriesSeenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_entries_seen_total",
			Help: "Total number of entries returned by the directory API",
		},
		[]string{"area"},
	)

	return nil
}

// Describe implements the Collector interface
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.fetchAttemptsTotal.Describe(ch)
	m.fetchRetriesTotal.Describe(ch)
	m.fetchDuration.Describe(ch)
	m.upsertAttemptsTotal.Describe(ch)
	m.entriesUpsertedTotal.Describe(ch)
	m.areaSyncsTotal.Describe(ch)
	m.areaSyncDuration.Describe(ch)
	m.cellVisibleMax.Describe(ch)
	m.entriesSeenTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	m.fetchAttemptsTotal.Collect(ch)
	m.fetchRetriesTotal.Collect(ch)
	m.fetchDuration.Collect(ch)
	m.upsertAttemptsTotal.Collect(ch)
	m.entriesUpsertedTotal.Collect(ch)
	m.areaSyncsTotal.Collect(ch)
	m.areaSyncDuration.Collect(ch)
	m.cellVisibleMax.Collect(ch)
	m.entriesSeenTotal.Collect(ch)
}

// RecordFetchAttempt records a single HTTP fetch attempt outcome
func (m *SyncMetrics) RecordFetchAttempt(status string) {
	m.fetchAttemptsTotal.WithLabelValues(status).Inc()
}

// RecordFetchRetry records a fetch attempt that will be retried
func (m *SyncMetrics) RecordFetchRetry() {
	m.fetchRetriesTotal.Inc()
}

// RecordFetchDuration records the duration of a single fetch attempt
func (m *SyncMetrics) RecordFetchDuration(seconds float64) {
	m.fetchDuration.Observe(seconds)
}

// RecordUpsertAttempt records a datastore upsert attempt at the given tier
func (m *SyncMetrics) RecordUpsertAttempt(tier, status string) {
	m.upsertAttemptsTotal.WithLabelValues(tier, status).Inc()
}

// RecordEntriesUpserted records entries successfully written to the datastore
func (m *SyncMetrics) RecordEntriesUpserted(count int) {
	m.entriesUpsertedTotal.Add(float64(count))
}

// RecordAreaSync records the outcome of one per-area sync run
func (m *SyncMetrics) RecordAreaSync(area, status string) {
	m.areaSyncsTotal.WithLabelValues(area, status).Inc()
}

// RecordAreaSyncDuration records the duration of one per-area sync run
func (m *SyncMetrics) RecordAreaSyncDuration(area string, seconds float64) {
	m.areaSyncDuration.WithLabelValues(area).Observe(seconds)
}

// UpdateCellVisibleMax updates the largest per-cell visible count seen for an area
func (m *SyncMetrics) UpdateCellVisibleMax(area string, count int) {
	m.cellVisibleMax.WithLabelValues(area).Set(float64(count))
}

// RecordEntriesSeen records entries returned by the directory API for an area
func (m *SyncMetrics) RecordEntriesSeen(area string, count int) {
	m.entriesSeenTotal.WithLabelValues(area).Add(float64(count))
}
