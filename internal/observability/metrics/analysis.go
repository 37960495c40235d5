package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AnalysisMetrics contains Prometheus metrics for end-to-end raster analyses.
// It implements analysis.MetricsRecorder.
type AnalysisMetrics struct {
	registry *prometheus.Registry

	analysesTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	recordsTotal     prometheus.Counter
}

// NewAnalysisMetrics creates and registers new analysis metrics
func NewAnalysisMetrics(registry *prometheus.Registry) (*AnalysisMetrics, error) {
	m := &AnalysisMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AnalysisMetrics) initMetrics() error {
	m.analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_total",
			Help: "Total number of raster analyses by outcome",
		},
		[]string{"outcome"}, // success, model_unavailable, inference_error, unreadable_raster
	)

	m.analysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "Time taken for one analysis from inference to geocoding",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount15),
		},
		[]string{"outcome"},
	)

	m.recordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_records_total",
		Help: "Total number of geocoded detections returned",
	})

	return nil
}

func (m *AnalysisMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.analysesTotal,
		m.analysisDuration,
		m.recordsTotal,
	}
}

// Describe implements the Collector interface
func (m *AnalysisMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *AnalysisMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// AnalysisCompleted records one finished analysis.
func (m *AnalysisMetrics) AnalysisCompleted(outcome string, duration time.Duration, records int) {
	m.analysesTotal.WithLabelValues(outcome).Inc()
	m.analysisDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.recordsTotal.Add(float64(records))
}
