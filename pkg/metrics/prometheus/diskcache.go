package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/modelcached/modelcached/pkg/diskcache"
	"github.com/modelcached/modelcached/pkg/metrics"
)

// diskCacheMetrics is the Prometheus implementation of diskcache.Metrics.
type diskCacheMetrics struct {
	fetchesTotal   *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	fetchBytes     prometheus.Histogram
	usageBytes     prometheus.Gauge
	usageEntries   prometheus.Gauge
	reclaimedBytes prometheus.Counter
}

// NewDiskCacheMetrics creates a Prometheus-backed diskcache.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewDiskCacheMetrics() diskcache.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &diskCacheMetrics{
		fetchesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelcached_diskcache_fetches_total",
				Help: "Total number of remote artifact fetches by status",
			},
			[]string{"status"}, // "success", "error"
		),
		fetchDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "modelcached_diskcache_fetch_duration_milliseconds",
				Help: "Duration of remote artifact fetches in milliseconds",
				Buckets: []float64{
					50,     // 50ms - small artifacts, warm path
					100,    // 100ms
					500,    // 500ms
					1000,   // 1s
					5000,   // 5s
					15000,  // 15s
					60000,  // 1m
					300000, // 5m - multi-GB artifacts
				},
			},
		),
		fetchBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "modelcached_diskcache_fetch_bytes",
				Help: "Distribution of fetched artifact sizes",
				Buckets: []float64{
					1048576,     // 1MB
					16777216,    // 16MB
					134217728,   // 128MB
					1073741824,  // 1GB
					8589934592,  // 8GB
					34359738368, // 32GB
				},
			},
		),
		usageBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "modelcached_diskcache_usage_bytes",
				Help: "Aggregate size of staged artifacts in bytes",
			},
		),
		usageEntries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "modelcached_diskcache_entries",
				Help: "Number of staged artifacts",
			},
		),
		reclaimedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "modelcached_diskcache_reclaimed_bytes_total",
				Help: "Total bytes freed by LRU reclamation",
			},
		),
	}
}

func (m *diskCacheMetrics) ObserveFetch(durationMs float64, bytes int, err error) {
	m.fetchesTotal.WithLabelValues(statusOf(err)).Inc()
	m.fetchDuration.Observe(durationMs)
	if err == nil {
		m.fetchBytes.Observe(float64(bytes))
	}
}

func (m *diskCacheMetrics) SetUsage(bytes uint64, entries int) {
	m.usageBytes.Set(float64(bytes))
	m.usageEntries.Set(float64(entries))
}

func (m *diskCacheMetrics) IncReclaimed(bytes uint64) {
	m.reclaimedBytes.Add(float64(bytes))
}
