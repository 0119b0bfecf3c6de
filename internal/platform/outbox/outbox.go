// Package outbox implements the transactional outbox used to hand committed
// registry events to Kafka. Writers append entries; a Worker polls pending
// entries, publishes them and marks them processed.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is one pending or processed event.
type Entry struct {
	ID            uuid.UUID
	AggregateType string // e.g. "credential"
	AggregateID   string // e.g. the identity key
	EventType     string // e.g. "credential_added"
	Payload       []byte // JSON-encoded event
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil while pending
}

// IsPending returns true if this entry has not been processed yet.
func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

// NewEntry creates a new outbox entry with a generated UUID.
func NewEntry(aggregateType, aggregateID, eventType string, payload []byte, createdAt time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     createdAt,
	}
}

// Store defines the outbox persistence operations.
// Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	// FetchUnprocessed returns up to limit pending entries, oldest first.
	FetchUnprocessed(ctx context.Context, limit int) ([]*Entry, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	CountPending(ctx context.Context) (int64, error)
	// DeleteProcessedBefore removes processed entries older than before.
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
