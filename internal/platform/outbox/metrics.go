package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox worker.
type Metrics struct {
	PendingDepth    prometheus.Gauge
	PublishedTotal  prometheus.Counter
	PublishFailures prometheus.Counter
	DeferredTotal   prometheus.Counter
	PublishDuration prometheus.Histogram
	BatchSize       prometheus.Histogram
}

// NewMetrics registers the outbox metrics on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		PendingDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "certify_outbox_pending_total",
			Help: "Current number of pending outbox entries",
		}),
		PublishedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certify_outbox_published_total",
			Help: "Total number of outbox entries published",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certify_outbox_publish_failures_total",
			Help: "Total number of outbox publish or fetch failures",
		}),
		DeferredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certify_outbox_deferred_total",
			Help: "Total number of entries left pending because the broker circuit was open",
		}),
		PublishDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "certify_outbox_publish_duration_seconds",
			Help:    "Time taken to publish one outbox entry",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "certify_outbox_batch_size",
			Help:    "Number of entries processed per poll",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
	}
}

func (m *Metrics) incPublished() {
	if m != nil {
		m.PublishedTotal.Inc()
	}
}

func (m *Metrics) incFailures() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}

func (m *Metrics) addDeferred(n int) {
	if m != nil {
		m.DeferredTotal.Add(float64(n))
	}
}

func (m *Metrics) observePublish(seconds float64) {
	if m != nil {
		m.PublishDuration.Observe(seconds)
	}
}

func (m *Metrics) observeBatch(size int) {
	if m != nil {
		m.BatchSize.Observe(float64(size))
	}
}

func (m *Metrics) setPending(count int64) {
	if m != nil {
		m.PendingDepth.Set(float64(count))
	}
}
