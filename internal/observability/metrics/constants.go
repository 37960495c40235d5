// Package metrics provides constants used across metric definitions.
package metrics

// Outcome label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart100ms is the starting bucket for 100ms histograms.
	BucketStart100ms = 0.1
	// BucketStart64KB is the starting bucket for upload size histograms (64KB to ~4GB range).
	BucketStart64KB = 64 * 1024.0
	// BucketStart100B is the starting bucket for response size histograms.
	BucketStart100B = 100.0

	BucketFactor2  = 2
	BucketFactor4  = 4
	BucketFactor10 = 10

	BucketCount6  = 6
	BucketCount9  = 9
	BucketCount12 = 12
	BucketCount15 = 15
)

// Detection count buckets for one analysed raster.
var detectionBuckets = []float64{0, 1, 2, 5, 10, 25, 50, 100, 300, 1000}
