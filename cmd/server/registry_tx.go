package main

import (
	"context"
	"database/sql"
	"time"

	"certify/internal/registry/models"
	registryservice "certify/internal/registry/service"
	registrystore "certify/internal/registry/store"
	dErrors "certify/pkg/domain-errors"
)

// registryLedgerLock is the advisory lock key that serializes registry
// commits across server processes sharing one database.
const registryLedgerLock int64 = 0x63657274696679 // "certify"

type registryPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
	// cache, when set, drops entries for keys written by a committed tx.
	cache *registrystore.CachedStore
}

func newRegistryPostgresTx(db *sql.DB, timeout time.Duration, cache *registrystore.CachedStore) *registryPostgresTx {
	return &registryPostgresTx{db: db, timeout: timeout, cache: cache}
}

func (t *registryPostgresTx) RunInTx(ctx context.Context, fn func(store registryservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = registryservice.DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	// Held until commit or rollback, so sequences are handed out in commit order.
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", registryLedgerLock); err != nil {
		return err
	}

	txStore := &keyRecordingStore{Store: registrystore.NewPostgresTx(tx)}
	if err := fn(txStore); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if t.cache != nil {
		for _, key := range txStore.saved {
			t.cache.Invalidate(key)
		}
	}
	return nil
}

// keyRecordingStore remembers which keys a transaction wrote.
type keyRecordingStore struct {
	registryservice.Store
	saved []models.IdentityKey
}

func (s *keyRecordingStore) Save(ctx context.Context, key models.IdentityKey, record models.CredentialRecord) error {
	if err := s.Store.Save(ctx, key, record); err != nil {
		return err
	}
	s.saved = append(s.saved, key)
	return nil
}
