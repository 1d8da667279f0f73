package prometheus

import (
	"time"

	"github.com/marmos91/ufsd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// mountMetrics is the Prometheus implementation for mount sequencing
// and background maintenance metrics.
type mountMetrics struct {
	mounts           *prometheus.CounterVec
	mountDuration    prometheus.Histogram
	activeVolumes    prometheus.Gauge
	nodesCollected   prometheus.Counter
	keepaliveExpired prometheus.Counter
}

// NewMountMetrics creates a new Prometheus-backed mount metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewMountMetrics() metrics.MountMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &mountMetrics{
		mounts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ufsd_mounts_total",
				Help: "Total number of mount attempts by status",
			},
			[]string{"status"},
		),
		mountDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ufsd_mount_duration_seconds",
				Help:    "Mount sequencing duration",
				Buckets: prometheus.DefBuckets,
			},
		),
		activeVolumes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "ufsd_volumes_active",
				Help: "Number of currently mounted volumes",
			},
		),
		nodesCollected: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ufsd_nodes_collected_total",
				Help: "Total number of nodes freed by the garbage collector",
			},
		),
		keepaliveExpired: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ufsd_keepalive_expired_total",
				Help: "Total number of devices whose keepalive went stale",
			},
		),
	}
}

// RecordMount records a completed mount attempt.
func (m *mountMetrics) RecordMount(duration time.Duration, status string) {
	if m == nil {
		return
	}
	m.mounts.WithLabelValues(status).Inc()
	m.mountDuration.Observe(duration.Seconds())
}

// SetActiveVolumes sets the number of currently mounted volumes.
func (m *mountMetrics) SetActiveVolumes(n int) {
	if m == nil {
		return
	}
	m.activeVolumes.Set(float64(n))
}

// RecordNodesCollected records nodes freed by a collector pass.
func (m *mountMetrics) RecordNodesCollected(n int) {
	if m == nil {
		return
	}
	m.nodesCollected.Add(float64(n))
}

// RecordKeepaliveExpired records a stale keepalive detection.
func (m *mountMetrics) RecordKeepaliveExpired() {
	if m == nil {
		return
	}
	m.keepaliveExpired.Inc()
}
