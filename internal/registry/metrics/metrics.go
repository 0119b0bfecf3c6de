// Package metrics provides Prometheus metrics for the credential registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the registry counters and histograms.
type Metrics struct {
	CommitsTotal       *prometheus.CounterVec   // committed state changes by operation
	CommitFailures     *prometheus.CounterVec   // failed state changes by operation
	CommitDuration     *prometheus.HistogramVec // RunInTx duration by operation
	VerificationsTotal *prometheus.CounterVec   // digest checks by outcome
	LookupsTotal       *prometheus.CounterVec   // lookups by presence
	ObserverFailures   prometheus.Counter
}

// New registers the registry metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the registry metrics on reg. Tests pass a fresh
// prometheus.NewRegistry to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CommitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_registry_commits_total",
			Help: "Total number of committed registry state changes",
		}, []string{"operation"}),
		CommitFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_registry_commit_failures_total",
			Help: "Total number of registry state changes that failed to commit",
		}, []string{"operation"}),
		CommitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certify_registry_commit_duration_seconds",
			Help:    "Duration of registry commits including lock wait",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		VerificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_registry_verifications_total",
			Help: "Total number of document digest verifications by outcome",
		}, []string{"outcome"}),
		LookupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_registry_lookups_total",
			Help: "Total number of record lookups by presence",
		}, []string{"present"}),
		ObserverFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_registry_observer_failures_total",
			Help: "Total number of change observers that returned an error",
		}),
	}
}

func (m *Metrics) ObserveCommit(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.CommitFailures.WithLabelValues(operation).Inc()
		return
	}
	m.CommitsTotal.WithLabelValues(operation).Inc()
	m.CommitDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) IncVerification(verified bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if verified {
		outcome = "verified"
	}
	m.VerificationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncLookup(present bool) {
	if m == nil {
		return
	}
	label := "false"
	if present {
		label = "true"
	}
	m.LookupsTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) IncObserverFailure() {
	if m != nil {
		m.ObserverFailures.Inc()
	}
}
