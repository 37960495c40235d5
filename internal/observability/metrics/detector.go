// Package metrics provides detector metrics for observability
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectorMetrics contains Prometheus metrics for model loading and inference.
// It implements detector.MetricsRecorder.
type DetectorMetrics struct {
	registry *prometheus.Registry

	modelLoadTotal    *prometheus.CounterVec
	modelLoadDuration *prometheus.HistogramVec
	modelLoaded       *prometheus.GaugeVec

	inferenceTotal      *prometheus.CounterVec
	inferenceDuration   *prometheus.HistogramVec
	inferenceDetections *prometheus.HistogramVec
	inferenceInFlight   prometheus.Gauge
}

// NewDetectorMetrics creates and registers new detector metrics
func NewDetectorMetrics(registry *prometheus.Registry) (*DetectorMetrics, error) {
	m := &DetectorMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DetectorMetrics) initMetrics() error {
	m.modelLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_model_load_total",
			Help: "Total number of model load attempts",
		},
		[]string{"backend", "status"},
	)

	m.modelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detector_model_load_duration_seconds",
			Help:    "Time taken to load the model",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~20s
		},
		[]string{"backend"},
	)

	m.modelLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "detector_model_loaded",
			Help: "1 when the model is loaded and serving",
		},
		[]string{"backend"},
	)

	m.inferenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_inference_total",
			Help: "Total number of inference calls",
		},
		[]string{"backend", "status"},
	)

	m.inferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detector_inference_duration_seconds",
			Help:    "Time taken for one inference call including preprocessing",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount15), // 10ms to ~160s
		},
		[]string{"backend"},
	)

	m.inferenceDetections = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detector_inference_detections",
			Help:    "Detections returned per inference call",
			Buckets: detectionBuckets,
		},
		[]string{"backend"},
	)

	m.inferenceInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "detector_inference_in_flight",
		Help: "Inference calls currently running",
	})

	return nil
}

func (m *DetectorMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.modelLoadTotal,
		m.modelLoadDuration,
		m.modelLoaded,
		m.inferenceTotal,
		m.inferenceDuration,
		m.inferenceDetections,
		m.inferenceInFlight,
	}
}

// Describe implements the Collector interface
func (m *DetectorMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DetectorMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// ModelLoaded records a model load attempt.
func (m *DetectorMetrics) ModelLoaded(backend string, duration time.Duration, err error) {
	m.modelLoadDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if err != nil {
		m.modelLoadTotal.WithLabelValues(backend, StatusError).Inc()
		m.modelLoaded.WithLabelValues(backend).Set(0)
		return
	}
	m.modelLoadTotal.WithLabelValues(backend, StatusSuccess).Inc()
	m.modelLoaded.WithLabelValues(backend).Set(1)
}

// InferenceCompleted records one finished inference call.
func (m *DetectorMetrics) InferenceCompleted(backend string, duration time.Duration, detections int, err error) {
	m.inferenceDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if err != nil {
		m.inferenceTotal.WithLabelValues(backend, StatusError).Inc()
		return
	}
	m.inferenceTotal.WithLabelValues(backend, StatusSuccess).Inc()
	m.inferenceDetections.WithLabelValues(backend).Observe(float64(detections))
}

// InferenceInFlight adjusts the running inference gauge.
func (m *DetectorMetrics) InferenceInFlight(delta int) {
	m.inferenceInFlight.Add(float64(delta))
}
