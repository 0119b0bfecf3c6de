package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCommit(t *testing.T) {
	m := NewWith(prometheus.NewRegistry())

	m.ObserveCommit("insert", time.Millisecond, nil)
	m.ObserveCommit("insert", time.Millisecond, nil)
	m.ObserveCommit("invalidate", time.Millisecond, errors.New("aborted"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitFailures.WithLabelValues("invalidate")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("invalidate")))
}

func TestOutcomeLabels(t *testing.T) {
	m := NewWith(prometheus.NewRegistry())
	m.IncVerification(true)
	m.IncVerification(false)
	m.IncVerification(false)
	m.IncLookup(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.VerificationsTotal.WithLabelValues("verified")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.VerificationsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("true")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCommit("insert", time.Second, nil)
	m.IncVerification(true)
	m.IncLookup(false)
	m.IncObserverFailure()
}
