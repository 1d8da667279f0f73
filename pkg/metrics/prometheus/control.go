// Package prometheus provides Prometheus-backed implementations of the
// ufsd metrics interfaces.
package prometheus

import (
	"time"

	"github.com/marmos91/ufsd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// controlMetrics is the Prometheus implementation for control dispatch
// metrics.
type controlMetrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	oplocks         *prometheus.CounterVec
}

// NewControlMetrics creates a new Prometheus-backed control metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewControlMetrics() metrics.ControlMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &controlMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ufsd_control_requests_total",
				Help: "Total number of control requests by control code and status",
			},
			[]string{"code", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ufsd_control_request_duration_seconds",
				Help:    "Control request dispatch duration by control code",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"code"},
		),
		oplocks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ufsd_oplock_operations_total",
				Help: "Total number of arbitrated oplock operations by class and status",
			},
			[]string{"class", "status"},
		),
	}
}

// RecordRequest records a completed control request.
func (m *controlMetrics) RecordRequest(code string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(code, status).Inc()
	m.requestDuration.WithLabelValues(code).Observe(duration.Seconds())
}

// RecordOplock records an arbitrated oplock operation.
func (m *controlMetrics) RecordOplock(class string, status string) {
	if m == nil {
		return
	}
	m.oplocks.WithLabelValues(class, status).Inc()
}
