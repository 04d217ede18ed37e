package bkclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsSink is the consumed metrics interface (§6): a latency sample
// is recorded for every completed operation, tagged success or failure.
type MetricsSink interface {
	RegisterSuccessfulEvent(op string, latency time.Duration)
	RegisterFailedEvent(op string, latency time.Duration)
}

// noopMetrics discards every sample. It is the default sink so a Client
// built without an explicit MetricsSink still has somewhere safe to
// record into.
type noopMetrics struct{}

func (noopMetrics) RegisterSuccessfulEvent(string, time.Duration) {}
func (noopMetrics) RegisterFailedEvent(string, time.Duration)     {}

// PrometheusMetrics is a MetricsSink backed by promauto histograms,
// grounded on the teacher's go/network/metrics.go promauto.NewCounterVec
// idiom, generalized here to a latency histogram keyed by op/outcome.
type PrometheusMetrics struct {
	latency *prometheus.HistogramVec
}

var _ MetricsSink = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers a "bkclient_request_latency_seconds"
// histogram vector with the default prometheus registry, labeled by
// operation ("AddEntry"/"ReadEntry") and outcome ("success"/"failure").
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bkclient_request_latency_seconds",
			Help:    "latency of bkclient requests against a single peer, by operation and outcome",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
	}
}

func (m *PrometheusMetrics) RegisterSuccessfulEvent(op string, latency time.Duration) {
	m.latency.WithLabelValues(op, "success").Observe(latency.Seconds())
}

func (m *PrometheusMetrics) RegisterFailedEvent(op string, latency time.Duration) {
	m.latency.WithLabelValues(op, "failure").Observe(latency.Seconds())
}
