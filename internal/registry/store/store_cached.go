package store

import (
	"context"
	"sync"
	"time"

	"certify/internal/registry/models"

	gocache "github.com/patrickmn/go-cache"
)

// CachedStore decorates a Store with an in-process read-through cache.
// Writes go to the backing store first and then refresh the cache entry,
// so a reader in the same process never sees a stale record after Save.
//
// The cache only knows about writes made through this process. Several
// processes sharing one backing store must not enable it.
type CachedStore struct {
	next  Store
	cache *gocache.Cache

	// generation moves on every write or invalidation. A read that missed
	// only fills the cache if no write happened while it was in flight.
	mu         sync.Mutex
	generation uint64
}

// NewCached wraps next with a cache whose entries expire after ttl.
func NewCached(next Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (s *CachedStore) FindByKey(ctx context.Context, key models.IdentityKey) (models.CredentialRecord, error) {
	if v, ok := s.cache.Get(key.String()); ok {
		if record, ok := v.(models.CredentialRecord); ok {
			return record, nil
		}
	}

	s.mu.Lock()
	seen := s.generation
	s.mu.Unlock()

	record, err := s.next.FindByKey(ctx, key)
	if err != nil {
		return models.CredentialRecord{}, err
	}

	s.mu.Lock()
	if s.generation == seen {
		s.cache.SetDefault(key.String(), record)
	}
	s.mu.Unlock()
	return record, nil
}

func (s *CachedStore) Save(ctx context.Context, key models.IdentityKey, record models.CredentialRecord) error {
	err := s.next.Save(ctx, key, record)
	s.refresh(Write{Key: key, Record: record}, err == nil)
	return err
}

func (s *CachedStore) AppendCommit(ctx context.Context, receipt *models.Receipt) error {
	return s.next.AppendCommit(ctx, receipt)
}

func (s *CachedStore) ApplyBatch(ctx context.Context, batch Batch) error {
	err := s.next.ApplyBatch(ctx, batch)
	for _, w := range batch.Writes {
		s.refresh(w, err == nil)
	}
	return err
}

func (s *CachedStore) FindCommit(ctx context.Context, sequence uint64) (models.Receipt, error) {
	return s.next.FindCommit(ctx, sequence)
}

// Invalidate drops any cached entry for key and keeps reads already in flight
// from putting an older record back.
func (s *CachedStore) Invalidate(key models.IdentityKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.cache.Delete(key.String())
}

// refresh stores the written record, or drops the entry when the write failed
// and the backing state is unknown.
func (s *CachedStore) refresh(w Write, written bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if written {
		s.cache.SetDefault(w.Key.String(), w.Record)
		return
	}
	s.cache.Delete(w.Key.String())
}
