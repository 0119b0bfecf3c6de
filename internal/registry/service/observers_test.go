package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certify/internal/platform/outbox"
	"certify/internal/registry/models"
)

type failingOutbox struct {
	outbox.Store
}

func (failingOutbox) Append(context.Context, *outbox.Entry) error {
	return errors.New("outbox unavailable")
}

func sampleEvent() models.CredentialAdded {
	return models.NewCredentialAdded(johnDoe(), models.Receipt{
		Sequence:    4,
		TxID:        "01J5ZQ7M3Y6W9XK2B8R4T0N1PC",
		CommittedAt: time.Date(2024, 8, 17, 9, 30, 0, 0, time.UTC),
	})
}

func TestOutboxObserverAppendsEvent(t *testing.T) {
	box := outbox.NewMemoryStore()
	obs := NewOutboxObserver(box)

	require.NoError(t, obs.CredentialAdded(context.Background(), sampleEvent()))

	entries, err := box.FetchUnprocessed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var decoded models.CredentialAdded
	require.NoError(t, json.Unmarshal(entries[0].Payload, &decoded))
	assert.Equal(t, sampleEvent(), decoded)
	assert.Equal(t, sampleEvent().CommittedAt, entries[0].CreatedAt)
}

func TestOutboxObserverWrapsAppendFailure(t *testing.T) {
	err := NewOutboxObserver(failingOutbox{}).CredentialAdded(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "append credential event")
}

func TestLogObserverWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLogObserver(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, obs.CredentialAdded(context.Background(), sampleEvent()))
	assert.Contains(t, buf.String(), `"msg":"credential_added"`)
	assert.Contains(t, buf.String(), `"identity_key":"123456789"`)
}
