package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"certify/internal/platform/outbox"
	"certify/internal/registry/models"
)

// AggregateCredential is the outbox aggregate type for registry events.
const AggregateCredential = "credential"

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event models.CredentialAdded) error

// CredentialAdded calls f.
func (f ObserverFunc) CredentialAdded(ctx context.Context, event models.CredentialAdded) error {
	return f(ctx, event)
}

// LogObserver writes every event to a structured logger.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver logs events at info level.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) CredentialAdded(ctx context.Context, event models.CredentialAdded) error {
	o.logger.InfoContext(ctx, models.EventCredentialAdded,
		"identity_key", event.IdentityKey,
		"program", event.Program,
		"graduation_period", event.GraduationPeriod,
		"sequence", event.Sequence,
		"tx_id", event.TxID,
	)
	return nil
}

// OutboxObserver appends each event to the outbox for publication.
type OutboxObserver struct {
	store outbox.Store
}

// NewOutboxObserver writes events to store.
func NewOutboxObserver(store outbox.Store) *OutboxObserver {
	return &OutboxObserver{store: store}
}

func (o *OutboxObserver) CredentialAdded(ctx context.Context, event models.CredentialAdded) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode credential event: %w", err)
	}
	entry := outbox.NewEntry(AggregateCredential, event.IdentityKey.String(), models.EventCredentialAdded, payload, event.CommittedAt)
	if err := o.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("append credential event: %w", err)
	}
	return nil
}
