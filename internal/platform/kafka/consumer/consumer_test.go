package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestNewValidatesConfig(t *testing.T) {
	noop := HandlerFunc(nil)
	tests := map[string]Config{
		"no brokers": {GroupID: "g", Topics: []string{"t"}},
		"no group":   {Brokers: "localhost:9092", Topics: []string{"t"}},
		"no topics":  {Brokers: "localhost:9092", GroupID: "g"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg, noop, nil)
			require.Error(t, err)
		})
	}
}

func TestToMessageCopiesHeaders(t *testing.T) {
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	msg := toMessage(&kgo.Record{
		Topic:     "certify.credentials.added",
		Partition: 2,
		Offset:    41,
		Key:       []byte("k"),
		Value:     []byte(`{}`),
		Timestamp: ts,
		Headers:   []kgo.RecordHeader{{Key: "event_type", Value: []byte("credential_added")}},
	})

	assert.Equal(t, "certify.credentials.added", msg.Topic)
	assert.Equal(t, int32(2), msg.Partition)
	assert.Equal(t, int64(41), msg.Offset)
	assert.Equal(t, "credential_added", msg.Headers["event_type"])
	assert.Equal(t, ts, msg.Timestamp)
}
