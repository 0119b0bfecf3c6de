package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certify/internal/registry/models"
	"certify/internal/registry/service"
	"certify/internal/registry/store"
	"certify/pkg/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func added(cmd models.InsertCommand, seq uint64) models.CredentialAdded {
	return models.NewCredentialAdded(cmd, models.Receipt{Sequence: seq, Operation: models.OperationInsert, IdentityKey: cmd.IdentityKey})
}

func TestHubFiltersByKey(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(WithHubLogger(discard))
	all := hub.Subscribe("")
	jane := hub.Subscribe(testutil.JaneSmith.IdentityKey)
	defer all.Close()
	defer jane.Close()

	require.NoError(t, hub.CredentialAdded(ctx, added(testutil.JohnDoe, 1)))
	require.NoError(t, hub.CredentialAdded(ctx, added(testutil.JaneSmith, 2)))

	assert.Len(t, all.Events(), 2)
	require.Len(t, jane.Events(), 1)
	assert.Equal(t, uint64(2), (<-jane.Events()).Sequence)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(WithBuffer(1), WithHubLogger(discard))
	slow := hub.Subscribe("")

	require.NoError(t, hub.CredentialAdded(ctx, added(testutil.JohnDoe, 1)))
	require.NoError(t, hub.CredentialAdded(ctx, added(testutil.JohnDoe, 2)), "a full buffer never fails the commit")

	select {
	case <-slow.Dropped():
	default:
		t.Fatal("slow subscriber was not dropped")
	}
	assert.Zero(t, hub.Len())
	slow.Close()
}

func TestConcurrentInsertsCarryTheirCommitSequence(t *testing.T) {
	hub := NewHub(WithBuffer(64), WithHubLogger(discard))
	sub := hub.Subscribe("")
	defer sub.Close()
	svc := service.New(store.NewInMemoryStore(), service.WithObserver(hub), service.WithLogger(discard))

	const writers = 16
	receipts := make(chan *models.Receipt, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd := testutil.NewCredential().WithKey(models.IdentityKey(fmt.Sprintf("2024%05d", i))).Build()
			r, err := svc.Insert(context.Background(), cmd)
			assert.NoError(t, err)
			receipts <- r
		}()
	}
	wg.Wait()
	close(receipts)

	committed := map[models.IdentityKey]uint64{}
	for r := range receipts {
		committed[r.IdentityKey] = r.Sequence
	}
	require.Len(t, sub.Events(), writers)
	seen := make([]uint64, 0, writers)
	for range writers {
		ev := <-sub.Events()
		assert.Equal(t, committed[ev.IdentityKey], ev.Sequence)
		seen = append(seen, ev.Sequence)
	}
	slices.Sort(seen)
	for i, seq := range seen {
		assert.Equal(t, uint64(i+1), seq)
	}
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("")
	assert.Equal(t, 1, hub.Len())
	sub.Close()
	sub.Close()
	assert.Zero(t, hub.Len())
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func TestHandlerStreamsCommittedInserts(t *testing.T) {
	hub := NewHub(WithHubLogger(discard))
	svc := service.New(store.NewInMemoryStore(), service.WithObserver(hub), service.WithLogger(discard))
	srv := httptest.NewServer(NewHandler(hub, discard))
	defer srv.Close()

	conn := dial(t, srv.URL)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	receipt, err := svc.Insert(ctx, testutil.JohnDoe)
	require.NoError(t, err)
	_, err = svc.Invalidate(ctx, testutil.JohnDoe.IdentityKey)
	require.NoError(t, err)
	_, err = svc.Insert(ctx, testutil.JaneSmith)
	require.NoError(t, err)

	var first, second models.CredentialAdded
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	require.NoError(t, wsjson.Read(ctx, conn, &second))

	assert.Equal(t, testutil.JohnDoe.IdentityKey, first.IdentityKey)
	assert.Equal(t, receipt.TxID, first.TxID)
	assert.Equal(t, testutil.JaneSmith.IdentityKey, second.IdentityKey, "invalidations are not announced")
}

func TestHandlerNarrowsToIdentityKey(t *testing.T) {
	hub := NewHub(WithHubLogger(discard))
	srv := httptest.NewServer(NewHandler(hub, discard))
	defer srv.Close()

	conn := dial(t, srv.URL+"?identity_key="+testutil.JaneSmith.IdentityKey.String())
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, hub.CredentialAdded(ctx, added(testutil.JohnDoe, 1)))
	require.NoError(t, hub.CredentialAdded(ctx, added(testutil.JaneSmith, 2)))

	var got models.CredentialAdded
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, uint64(2), got.Sequence)
}

func TestHandlerUnsubscribesOnDisconnect(t *testing.T) {
	hub := NewHub(WithHubLogger(discard))
	srv := httptest.NewServer(NewHandler(hub, discard))
	defer srv.Close()

	conn := dial(t, srv.URL)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "done"))
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
