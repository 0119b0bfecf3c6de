package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBroker = errors.New("broker down")

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New("kafka", WithFailureThreshold(3))

	for range 2 {
		assert.True(t, b.Allow())
		b.Record(errBroker)
	}
	assert.Equal(t, StateClosed, b.State())

	assert.True(t, b.Allow())
	b.Record(errBroker)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b := New("kafka", WithFailureThreshold(2))

	b.Record(errBroker)
	b.Record(nil)
	b.Record(errBroker)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	var transitions []string
	b := New("kafka",
		WithFailureThreshold(1),
		WithCooldown(time.Second),
		WithClock(c.now),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	b.Record(errBroker)
	assert.False(t, b.Allow())

	c.t = c.t.Add(time.Second)
	assert.True(t, b.Allow(), "first call after cooldown is the probe")
	assert.False(t, b.Allow(), "only one probe at a time")

	b.Record(errBroker)
	assert.Equal(t, StateOpen, b.State(), "failed probe reopens")

	c.t = c.t.Add(time.Second)
	assert.True(t, b.Allow())
	b.Record(nil)
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())

	assert.Equal(t, []string{
		"closed->open",
		"open->half_open",
		"half_open->open",
		"open->half_open",
		"half_open->closed",
	}, transitions)
}

func TestBreakerReset(t *testing.T) {
	b := New("kafka", WithFailureThreshold(1))
	b.Record(errBroker)
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}
