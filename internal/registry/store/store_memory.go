package store

import (
	"context"
	"sync"

	"certify/internal/registry/models"
)

// InMemoryStore is an in-memory implementation of Store for tests or local use.
// It is safe for concurrent access but does not persist across process restarts.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[models.IdentityKey]models.CredentialRecord
	commits []models.Receipt
}

// NewInMemoryStore constructs an empty in-memory registry store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[models.IdentityKey]models.CredentialRecord)}
}

// FindByKey retrieves the record stored at key or returns ErrNotFound.
func (s *InMemoryStore) FindByKey(_ context.Context, key models.IdentityKey) (models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[key]; ok {
		return record, nil
	}
	return models.CredentialRecord{}, ErrNotFound
}

// Save stores or overwrites the record at key.
func (s *InMemoryStore) Save(_ context.Context, key models.IdentityKey, record models.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = record
	return nil
}

// AppendCommit journals the receipt; sequences start at 1.
func (s *InMemoryStore) AppendCommit(_ context.Context, receipt *models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	receipt.Sequence = uint64(len(s.commits)) + 1
	s.commits = append(s.commits, *receipt)
	return nil
}

// ApplyBatch applies batch under one lock, so readers see all of it or none.
func (s *InMemoryStore) ApplyBatch(_ context.Context, batch Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range batch.Writes {
		s.records[w.Key] = w.Record
	}
	for _, receipt := range batch.Receipts {
		receipt.Sequence = uint64(len(s.commits)) + 1
		s.commits = append(s.commits, *receipt)
	}
	return nil
}

// FindCommit returns the receipt at sequence or ErrNotFound.
func (s *InMemoryStore) FindCommit(_ context.Context, sequence uint64) (models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sequence == 0 || sequence > uint64(len(s.commits)) {
		return models.Receipt{}, ErrNotFound
	}
	return s.commits[sequence-1], nil
}

// Len returns the number of stored records, including blank invalidated ones.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
