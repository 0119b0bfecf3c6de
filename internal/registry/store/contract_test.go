package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certify/internal/registry/models"
	"certify/pkg/testutil"
)

// runStoreContract checks the behaviour every Store backend must share.
// newStore must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("missing key is ErrNotFound", func(t *testing.T) {
		st := newStore(t)
		_, err := st.FindByKey(context.Background(), "999999999")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("save then find returns the record verbatim", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		rec := testutil.JohnDoe.Record()

		require.NoError(t, st.Save(ctx, rec.IdentityKey, rec))
		got, err := st.FindByKey(ctx, rec.IdentityKey)
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	})

	t.Run("save overwrites", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		key := testutil.JohnDoe.IdentityKey

		require.NoError(t, st.Save(ctx, key, testutil.JohnDoe.Record().Invalidated()))
		replacement := testutil.NewCredential().WithOwner("Jane Smith").WithDigest(testutil.DigestHello).Record()
		require.NoError(t, st.Save(ctx, key, replacement))

		got, err := st.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, replacement, got)
	})

	t.Run("blank record is stored under its key", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		require.NoError(t, st.Save(ctx, "555", models.CredentialRecord{}))
		got, err := st.FindByKey(ctx, "555")
		require.NoError(t, err)
		assert.Equal(t, models.CredentialRecord{}, got)
	})

	t.Run("keys do not collide", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		require.NoError(t, st.Save(ctx, testutil.JohnDoe.IdentityKey, testutil.JohnDoe.Record()))
		require.NoError(t, st.Save(ctx, testutil.JaneSmith.IdentityKey, testutil.JaneSmith.Record()))

		got, err := st.FindByKey(ctx, testutil.JohnDoe.IdentityKey)
		require.NoError(t, err)
		assert.Equal(t, "John Doe", got.OwnerName)
		got, err = st.FindByKey(ctx, testutil.JaneSmith.IdentityKey)
		require.NoError(t, err)
		assert.Equal(t, "Jane Smith", got.OwnerName)
	})

	t.Run("commits get increasing sequences", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		at := time.Date(2024, 8, 17, 9, 30, 0, 0, time.UTC)

		first := &models.Receipt{TxID: "01J5ZQ7M3Y6W9XK2B8R4T0N1PA", Operation: models.OperationInsert, IdentityKey: "123456789", Issuer: "registrar", CommittedAt: at}
		second := &models.Receipt{TxID: "01J5ZQ7M3Y6W9XK2B8R4T0N1PB", Operation: models.OperationInvalidate, IdentityKey: "123456789", CommittedAt: at}
		require.NoError(t, st.AppendCommit(ctx, first))
		require.NoError(t, st.AppendCommit(ctx, second))
		assert.Greater(t, second.Sequence, first.Sequence)

		got, err := st.FindCommit(ctx, first.Sequence)
		require.NoError(t, err)
		assert.Equal(t, first.TxID, got.TxID)
		assert.Equal(t, models.OperationInsert, got.Operation)
		assert.Equal(t, "registrar", got.Issuer)
		assert.True(t, at.Equal(got.CommittedAt))
	})

	t.Run("batch lands records and receipts together", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		at := time.Date(2024, 8, 17, 9, 30, 0, 0, time.UTC)

		first := &models.Receipt{TxID: "01J5ZQ7M3Y6W9XK2B8R4T0N1PC", Operation: models.OperationInsert, IdentityKey: "123456789", CommittedAt: at}
		require.NoError(t, st.AppendCommit(ctx, first))

		rec := testutil.JohnDoe.Record()
		receipt := &models.Receipt{TxID: "01J5ZQ7M3Y6W9XK2B8R4T0N1PD", Operation: models.OperationInvalidate, IdentityKey: rec.IdentityKey, CommittedAt: at}
		require.NoError(t, st.ApplyBatch(ctx, Batch{
			Writes:   []Write{{Key: rec.IdentityKey, Record: rec.Invalidated()}, {Key: "555", Record: models.CredentialRecord{}}},
			Receipts: []*models.Receipt{receipt},
		}))
		assert.Greater(t, receipt.Sequence, first.Sequence)

		got, err := st.FindByKey(ctx, rec.IdentityKey)
		require.NoError(t, err)
		assert.Equal(t, rec.Invalidated(), got)
		_, err = st.FindByKey(ctx, "555")
		require.NoError(t, err)

		journaled, err := st.FindCommit(ctx, receipt.Sequence)
		require.NoError(t, err)
		assert.Equal(t, receipt.TxID, journaled.TxID)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.ApplyBatch(context.Background(), Batch{}))
	})

	t.Run("missing commit is ErrNotFound", func(t *testing.T) {
		st := newStore(t)
		_, err := st.FindCommit(context.Background(), 42)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}
