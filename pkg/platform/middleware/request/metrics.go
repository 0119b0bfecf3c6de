package request

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds per-route HTTP metrics.
type Metrics struct {
	Duration *prometheus.HistogramVec
	Requests *prometheus.CounterVec
}

// NewMetrics registers the HTTP metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the HTTP metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certify_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) observe(method, route string, status int, seconds float64) {
	m.Duration.WithLabelValues(method, route).Observe(seconds)
	m.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
