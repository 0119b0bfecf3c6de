package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certify/internal/registry/models"
	"certify/internal/registry/store"
	dErrors "certify/pkg/domain-errors"
)

func TestLocalTxRejectsCancelledContext(t *testing.T) {
	tx := NewLocalTx(store.NewInMemoryStore(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := tx.RunInTx(ctx, func(Store) error {
		called = true
		return nil
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.False(t, called)
}

func TestLocalTxTimesOutWaitingForLock(t *testing.T) {
	tx := NewLocalTx(store.NewInMemoryStore(), 20*time.Millisecond)

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = tx.RunInTx(context.Background(), func(Store) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding
	defer close(release)

	err := tx.RunInTx(context.Background(), func(Store) error {
		t.Error("second transaction must not run while the lock is held")
		return nil
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestLocalTxRunsOneAtATime(t *testing.T) {
	tx := NewLocalTx(store.NewInMemoryStore(), time.Second)

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tx.RunInTx(context.Background(), func(Store) error {
				mu.Lock()
				active++
				maxSeen = max(maxSeen, active)
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestConcurrentCommitsGetDistinctIncreasingSequences(t *testing.T) {
	svc := New(store.NewInMemoryStore())
	ctx := context.Background()

	const writers = 32
	seqs := make([]uint64, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var (
				r   *models.Receipt
				err error
			)
			if i%2 == 0 {
				r, err = svc.Insert(ctx, johnDoe())
			} else {
				r, err = svc.Invalidate(ctx, "123456789")
			}
			if assert.NoError(t, err) {
				seqs[i] = r.Sequence
			}
		}()
	}
	wg.Wait()

	sort.Slice(seqs, func(a, b int) bool { return seqs[a] < seqs[b] })
	for i, seq := range seqs {
		assert.Equal(t, uint64(i+1), seq)
	}
}

// unjournaledStore is a memory store whose batches never land.
type unjournaledStore struct {
	*store.InMemoryStore
}

func (unjournaledStore) ApplyBatch(context.Context, store.Batch) error {
	return errors.New("journal unavailable")
}

func TestFailedCommitLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	backing := store.NewInMemoryStore()
	var notified []models.CredentialAdded
	observer := ObserverFunc(func(_ context.Context, ev models.CredentialAdded) error {
		notified = append(notified, ev)
		return nil
	})
	svc := New(unjournaledStore{InMemoryStore: backing}, WithObserver(observer))
	cmd := johnDoe()

	receipt, err := svc.Insert(ctx, cmd)
	require.Error(t, err)
	assert.Nil(t, receipt)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))

	registered, err := svc.IsRegistered(ctx, cmd.IdentityKey)
	require.NoError(t, err)
	assert.False(t, registered)
	ok, err := svc.VerifyDigest(ctx, cmd.IdentityKey, cmd.DocumentDigest)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, backing.Len())
	assert.Empty(t, notified)
	_, err = svc.Commit(ctx, 1)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestLocalTxDiscardsWritesOfFailedFn(t *testing.T) {
	ctx := context.Background()
	backing := store.NewInMemoryStore()
	tx := NewLocalTx(backing, time.Second)
	rec := johnDoe().Record()

	err := tx.RunInTx(ctx, func(st Store) error {
		require.NoError(t, st.Save(ctx, rec.IdentityKey, rec))
		got, err := st.FindByKey(ctx, rec.IdentityKey)
		require.NoError(t, err)
		assert.Equal(t, rec, got, "fn reads its own staged write")
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	_, err = backing.FindByKey(ctx, rec.IdentityKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLocalTxAssignsSequenceWhenBatchLands(t *testing.T) {
	ctx := context.Background()
	tx := NewLocalTx(store.NewInMemoryStore(), time.Second)
	receipt := &models.Receipt{Operation: models.OperationInsert}

	require.NoError(t, tx.RunInTx(ctx, func(st Store) error {
		require.NoError(t, st.AppendCommit(ctx, receipt))
		assert.Zero(t, receipt.Sequence, "not journaled yet")
		return nil
	}))
	assert.Equal(t, uint64(1), receipt.Sequence)
}
