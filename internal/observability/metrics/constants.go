// Package metrics provides constants used across metric definitions.
package metrics

// Upsert tier label values. These correspond to the fallback stages of the
// datastore reconciliation pipeline.
const (
	// TierBulk is the multi-row ON CONFLICT upsert stage.
	TierBulk = "bulk"
	// TierPerRecord is the single-row update-then-insert stage.
	TierPerRecord = "per_record"
	// TierGuarded is the serialized lookup-and-save stage of last resort.
	TierGuarded = "guarded"
)

// Status label values shared by counters with a status dimension.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Histogram bucket configuration constants.
const (
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart100ms is the starting bucket for 100ms histograms (100ms to ~100s range).
	BucketStart100ms = 0.1
	// BucketStart1s is the starting bucket for 1s histograms (1s to ~9 hours range).
	BucketStart1s = 1.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)
