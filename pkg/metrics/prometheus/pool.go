// Package prometheus contains the Prometheus implementations of the metrics
// interfaces declared next to each component.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/modelcached/modelcached/pkg/metrics"
	"github.com/modelcached/modelcached/pkg/pool"
)

// poolMetrics is the Prometheus implementation of pool.Metrics.
type poolMetrics struct {
	loadsTotal     *prometheus.CounterVec
	loadDuration   prometheus.Histogram
	residentBytes  prometheus.Gauge
	residentModels prometheus.Gauge
	evictionsTotal prometheus.Counter
}

// NewPoolMetrics creates a Prometheus-backed pool.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewPoolMetrics() pool.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &poolMetrics{
		loadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelcached_pool_loads_total",
				Help: "Total number of model runtime loads by status",
			},
			[]string{"status"}, // "success", "error"
		),
		loadDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "modelcached_pool_load_duration_milliseconds",
				Help: "Duration of model runtime loads in milliseconds",
				Buckets: []float64{
					10,    // 10ms - tiny stub models
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s - large models
					15000, // 15s
					60000, // 1m - cold GPU loads
				},
			},
		),
		residentBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "modelcached_pool_resident_bytes",
				Help: "Aggregate footprint of resident models in bytes",
			},
		),
		residentModels: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "modelcached_pool_resident_models",
				Help: "Number of resident models",
			},
		),
		evictionsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "modelcached_pool_evictions_total",
				Help: "Total number of pool evictions",
			},
		),
	}
}

func (m *poolMetrics) ObserveLoad(durationMs float64, err error) {
	m.loadsTotal.WithLabelValues(statusOf(err)).Inc()
	m.loadDuration.Observe(durationMs)
}

func (m *poolMetrics) SetUsage(bytes uint64, resident int) {
	m.residentBytes.Set(float64(bytes))
	m.residentModels.Set(float64(resident))
}

func (m *poolMetrics) IncEvicted() {
	m.evictionsTotal.Inc()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
