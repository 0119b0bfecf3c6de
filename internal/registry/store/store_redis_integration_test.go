//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certify/internal/registry/models"
	"certify/pkg/testutil"
	"certify/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)

	runStoreContract(t, func(t *testing.T) Store {
		require.NoError(t, rc.FlushAll(context.Background()))
		return NewRedis(rc.Client.Client)
	})
}

func TestRedisClientHealth(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.Client.Health(context.Background()))
	rc.Client.RecordPoolStats()
}

func TestRedisStoreKeepsRawBytes(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))
	st := NewRedis(rc.Client.Client)

	// \xff is not valid UTF-8 and must not come back as U+FFFD
	rec := testutil.NewCredential().WithOwner("Ahmad \xff Fauzi").Build().Record()
	receipt := &models.Receipt{Operation: models.OperationInsert, IdentityKey: rec.IdentityKey}
	require.NoError(t, st.ApplyBatch(ctx, Batch{Writes: []Write{{Key: rec.IdentityKey, Record: rec}}, Receipts: []*models.Receipt{receipt}}))

	got, err := st.FindByKey(ctx, rec.IdentityKey)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, []byte("Ahmad \xff Fauzi"), []byte(got.OwnerName))
}

func TestRedisStoreConcurrentBatchesGetDistinctSequences(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))
	st := NewRedis(rc.Client.Client)

	const writers = 8
	receipts := make([]*models.Receipt, writers)
	errs := make(chan error, writers)
	for i := range writers {
		receipts[i] = &models.Receipt{Operation: models.OperationInsert, IdentityKey: testutil.JohnDoe.IdentityKey}
		go func() {
			errs <- st.ApplyBatch(ctx, Batch{Receipts: []*models.Receipt{receipts[i]}})
		}()
	}
	failed := 0
	for range writers {
		if err := <-errs; err != nil {
			failed++
		}
	}

	seen := map[uint64]bool{}
	for _, r := range receipts {
		if r.Sequence == 0 {
			continue
		}
		assert.False(t, seen[r.Sequence], "sequence %d handed out twice", r.Sequence)
		seen[r.Sequence] = true
	}
	assert.Len(t, seen, writers-failed)
}
