package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AssetMetrics tracks temporary upload storage. It implements
// asset.MetricsRecorder.
type AssetMetrics struct {
	registry *prometheus.Registry

	storedTotal   prometheus.Counter
	storedBytes   prometheus.Histogram
	rejectedTotal *prometheus.CounterVec
	releasedTotal *prometheus.CounterVec
	sweptTotal    prometheus.Counter
	active        prometheus.Gauge
}

// NewAssetMetrics creates and registers new asset metrics
func NewAssetMetrics(registry *prometheus.Registry) (*AssetMetrics, error) {
	m := &AssetMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AssetMetrics) initMetrics() error {
	m.storedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "asset_uploads_stored_total",
		Help: "Total number of uploads written to temporary storage",
	})
	m.storedBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "asset_upload_size_bytes",
		Help:    "Size of stored uploads",
		Buckets: prometheus.ExponentialBuckets(BucketStart64KB, BucketFactor4, BucketCount9), // 64KB to ~4GB
	})
	m.rejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_uploads_rejected_total",
		Help: "Total number of uploads refused before or while storing",
	}, []string{"reason"}) // reason: too_large, disk_full, read, persist
	m.releasedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_uploads_released_total",
		Help: "Total number of temporary request folders removed",
	}, []string{"status"})
	m.sweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "asset_leftovers_swept_total",
		Help: "Stale request folders removed at startup",
	})
	m.active = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "asset_uploads_active",
		Help: "Request folders currently held on disk",
	})
	return nil
}

func (m *AssetMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.storedTotal,
		m.storedBytes,
		m.rejectedTotal,
		m.releasedTotal,
		m.sweptTotal,
		m.active,
	}
}

// Describe implements the Collector interface
func (m *AssetMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *AssetMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// AssetStored records an upload written to disk.
func (m *AssetMetrics) AssetStored(sizeBytes int64) {
	m.storedTotal.Inc()
	m.storedBytes.Observe(float64(sizeBytes))
	m.active.Inc()
}

// AssetRejected records a refused upload.
func (m *AssetMetrics) AssetRejected(reason string) {
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

// AssetReleased records removal of a request folder.
func (m *AssetMetrics) AssetReleased(err error) {
	m.active.Dec()
	if err != nil {
		m.releasedTotal.WithLabelValues(StatusError).Inc()
		return
	}
	m.releasedTotal.WithLabelValues(StatusSuccess).Inc()
}

// AssetsSwept records leftovers removed by a sweep.
func (m *AssetMetrics) AssetsSwept(count int) {
	m.sweptTotal.Add(float64(count))
}
