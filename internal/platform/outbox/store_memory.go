package outbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process outbox for the memory and redis backends.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
}

// NewMemoryStore returns an empty outbox.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]*Entry)}
}

func (s *MemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[entry.ID]; exists {
		return fmt.Errorf("outbox entry %s already exists", entry.ID)
	}
	cp := *entry
	s.entries[entry.ID] = &cp
	return nil
}

func (s *MemoryStore) FetchUnprocessed(_ context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.IsPending() {
			cp := *e
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, id uuid.UUID, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || !e.IsPending() {
		return fmt.Errorf("outbox entry not found or already processed: %s", id)
	}
	at := processedAt
	e.ProcessedAt = &at
	return nil
}

func (s *MemoryStore) CountPending(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.IsPending() {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.entries {
		if e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}
