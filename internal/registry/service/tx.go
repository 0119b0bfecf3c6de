package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"certify/internal/registry/models"
	"certify/internal/registry/store"
	dErrors "certify/pkg/domain-errors"
)

var (
	ledgerLockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "certify_registry_ledger_lock_wait_seconds",
		Help:    "Time spent waiting for the registry write lock",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
	ledgerLockAcquisitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "certify_registry_ledger_lock_acquisitions_total",
		Help: "Total number of registry write lock acquisitions",
	})
)

// LedgerTx is the commit boundary for registry state changes. fn either
// commits entirely or not at all, and at most one fn runs at a time.
type LedgerTx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}

// DefaultTxTimeout bounds a commit when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

// LocalTx serializes commits with an in-process lock. fn writes to a staging
// view; the staged writes reach the store in one ApplyBatch after fn returns
// nil, so a failed fn or a failed batch leaves the store untouched.
type LocalTx struct {
	sem     chan struct{}
	store   Store
	timeout time.Duration
}

// NewLocalTx wraps store. A zero timeout selects DefaultTxTimeout.
func NewLocalTx(store Store, timeout time.Duration) *LocalTx {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	return &LocalTx{
		sem:     make(chan struct{}, 1),
		store:   store,
		timeout: timeout,
	}
}

func (t *LocalTx) RunInTx(ctx context.Context, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	lockStart := time.Now()
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: waiting for ledger lock")
	}
	ledgerLockWaitDuration.Observe(time.Since(lockStart).Seconds())
	ledgerLockAcquisitions.Inc()
	defer func() { <-t.sem }()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	staged := newStagedStore(t.store)
	if err := fn(staged); err != nil {
		return err
	}
	if staged.batch.Empty() {
		return nil
	}
	return t.store.ApplyBatch(ctx, staged.batch)
}

// stagedStore collects the writes of one commit. Reads see staged records
// first, then the backing store.
type stagedStore struct {
	Store
	records map[models.IdentityKey]models.CredentialRecord
	batch   store.Batch
}

func newStagedStore(backing Store) *stagedStore {
	return &stagedStore{Store: backing, records: make(map[models.IdentityKey]models.CredentialRecord)}
}

func (s *stagedStore) FindByKey(ctx context.Context, key models.IdentityKey) (models.CredentialRecord, error) {
	if record, ok := s.records[key]; ok {
		return record, nil
	}
	return s.Store.FindByKey(ctx, key)
}

func (s *stagedStore) Save(_ context.Context, key models.IdentityKey, record models.CredentialRecord) error {
	s.records[key] = record
	s.batch.Writes = append(s.batch.Writes, store.Write{Key: key, Record: record})
	return nil
}

func (s *stagedStore) AppendCommit(_ context.Context, receipt *models.Receipt) error {
	s.batch.Receipts = append(s.batch.Receipts, receipt)
	return nil
}

func (s *stagedStore) ApplyBatch(_ context.Context, batch store.Batch) error {
	for _, w := range batch.Writes {
		s.records[w.Key] = w.Record
	}
	s.batch.Writes = append(s.batch.Writes, batch.Writes...)
	s.batch.Receipts = append(s.batch.Receipts, batch.Receipts...)
	return nil
}
