package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/modelcached/modelcached/pkg/dispatcher"
	"github.com/modelcached/modelcached/pkg/metrics"
)

// dispatcherMetrics is the Prometheus implementation of dispatcher.Metrics.
type dispatcherMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestBytes    prometheus.Histogram
	responseBytes   prometheus.Histogram
}

// NewDispatcherMetrics creates a Prometheus-backed dispatcher.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewDispatcherMetrics() dispatcher.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &dispatcherMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelcached_requests_total",
				Help: "Total number of invocation requests by serving tier and status",
			},
			[]string{"tier", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "modelcached_request_duration_milliseconds",
				Help: "End-to-end invocation latency in milliseconds by serving tier",
				Buckets: []float64{
					1,      // 1ms - pool hits
					5,      // 5ms
					10,     // 10ms
					50,     // 50ms
					100,    // 100ms - disk loads
					500,    // 500ms
					1000,   // 1s
					5000,   // 5s
					30000,  // 30s - full misses
					120000, // 2m
				},
			},
			[]string{"tier"},
		),
		requestBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "modelcached_request_payload_bytes",
				Help: "Distribution of request payload sizes",
				Buckets: []float64{
					256,      // 256B
					1024,     // 1KB
					16384,    // 16KB
					131072,   // 128KB
					1048576,  // 1MB
					10485760, // 10MB
				},
			},
		),
		responseBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "modelcached_response_payload_bytes",
				Help: "Distribution of response payload sizes",
				Buckets: []float64{
					256,      // 256B
					1024,     // 1KB
					16384,    // 16KB
					131072,   // 128KB
					1048576,  // 1MB
					10485760, // 10MB
				},
			},
		),
	}
}

func (m *dispatcherMetrics) ObserveRequest(tier string, durationMs float64, bytesIn, bytesOut int, err error) {
	m.requestsTotal.WithLabelValues(tier, statusOf(err)).Inc()
	m.requestDuration.WithLabelValues(tier).Observe(durationMs)
	m.requestBytes.Observe(float64(bytesIn))
	if err == nil {
		m.responseBytes.Observe(float64(bytesOut))
	}
}
