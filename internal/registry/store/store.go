// Package store holds the persistence backends for the credential registry.
//
// Every backend keeps two things: the current record per identity key and an
// append-only journal of commit receipts. Backends are dumb: they never decide
// validity or presence, the service does.
package store

import (
	"context"

	"certify/internal/registry/models"
	"certify/pkg/platform/sentinel"
)

// ErrNotFound is returned when no record or commit exists for a lookup.
var ErrNotFound = sentinel.ErrNotFound

// Store is implemented by every registry backend.
type Store interface {
	// FindByKey returns the record stored at key or ErrNotFound.
	FindByKey(ctx context.Context, key models.IdentityKey) (models.CredentialRecord, error)
	// Save upserts record under key. key and record.IdentityKey may differ: an
	// invalidation of an unknown key stores a blank record under key.
	Save(ctx context.Context, key models.IdentityKey, record models.CredentialRecord) error
	// AppendCommit journals receipt and assigns its Sequence.
	AppendCommit(ctx context.Context, receipt *models.Receipt) error
	// FindCommit returns the receipt with the given sequence or ErrNotFound.
	FindCommit(ctx context.Context, sequence uint64) (models.Receipt, error)
	// ApplyBatch writes every record and journals every receipt of batch, or
	// none of them. Receipts get their Sequence only when the batch lands.
	ApplyBatch(ctx context.Context, batch Batch) error
}

// Write is one record upsert inside a Batch.
type Write struct {
	Key    models.IdentityKey
	Record models.CredentialRecord
}

// Batch is everything a single commit writes.
type Batch struct {
	Writes   []Write
	Receipts []*models.Receipt
}

// Empty reports whether the batch writes nothing.
func (b Batch) Empty() bool {
	return len(b.Writes) == 0 && len(b.Receipts) == 0
}

func (b Batch) clearSequences() {
	for _, receipt := range b.Receipts {
		receipt.Sequence = 0
	}
}
