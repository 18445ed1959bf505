package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/modelcached/modelcached/pkg/metrics"
	"github.com/modelcached/modelcached/pkg/store"
)

// storeMetrics is the Prometheus implementation of store.Metrics.
type storeMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewStoreMetrics creates a Prometheus-backed store.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewStoreMetrics() store.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &storeMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelcached_store_operations_total",
				Help: "Total number of remote store operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "modelcached_store_operation_duration_milliseconds",
				Help: "Duration of remote store operations in milliseconds",
				Buckets: []float64{
					10,     // 10ms - metadata operations
					50,     // 50ms
					100,    // 100ms
					500,    // 500ms
					1000,   // 1s
					5000,   // 5s
					30000,  // 30s
					120000, // 2m - large artifact transfers
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelcached_store_bytes_transferred_total",
				Help: "Total bytes transferred to and from the remote store",
			},
			[]string{"operation"},
		),
	}
}

func (m *storeMetrics) ObserveOperation(op string, durationMs float64, err error) {
	m.operationsTotal.WithLabelValues(op, statusOf(err)).Inc()
	m.operationDuration.WithLabelValues(op).Observe(durationMs)
}

func (m *storeMetrics) ObserveBytes(op string, bytes int) {
	m.bytesTransferred.WithLabelValues(op).Add(float64(bytes))
}
