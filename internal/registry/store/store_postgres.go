package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"certify/internal/registry/models"
)

// PostgresStore persists registry state in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed registry store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a store bound to an open transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *PostgresStore) FindByKey(ctx context.Context, key models.IdentityKey) (models.CredentialRecord, error) {
	query := `
		SELECT owner_name, record_identity_key, program, graduation_period, document_digest, valid
		FROM credentials
		WHERE identity_key = $1
	`
	var record models.CredentialRecord
	var recordKey string
	err := s.execer().QueryRowContext(ctx, query, key.String()).Scan(
		&record.OwnerName,
		&recordKey,
		&record.Program,
		&record.GraduationPeriod,
		&record.DocumentDigest,
		&record.Valid,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CredentialRecord{}, ErrNotFound
		}
		return models.CredentialRecord{}, fmt.Errorf("find credential by key: %w", err)
	}
	record.IdentityKey = models.IdentityKey(recordKey)
	return record, nil
}

func (s *PostgresStore) Save(ctx context.Context, key models.IdentityKey, record models.CredentialRecord) error {
	query := `
		INSERT INTO credentials (identity_key, owner_name, record_identity_key, program, graduation_period, document_digest, valid, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (identity_key) DO UPDATE SET
			owner_name = EXCLUDED.owner_name,
			record_identity_key = EXCLUDED.record_identity_key,
			program = EXCLUDED.program,
			graduation_period = EXCLUDED.graduation_period,
			document_digest = EXCLUDED.document_digest,
			valid = EXCLUDED.valid,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.execer().ExecContext(ctx, query,
		key.String(),
		record.OwnerName,
		record.IdentityKey.String(),
		record.Program,
		record.GraduationPeriod,
		record.DocumentDigest,
		record.Valid,
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendCommit(ctx context.Context, receipt *models.Receipt) error {
	query := `
		INSERT INTO credential_commits (tx_id, operation, identity_key, issuer, committed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING sequence
	`
	var sequence int64
	err := s.execer().QueryRowContext(ctx, query,
		receipt.TxID,
		string(receipt.Operation),
		receipt.IdentityKey.String(),
		receipt.Issuer,
		receipt.CommittedAt,
	).Scan(&sequence)
	if err != nil {
		return fmt.Errorf("append commit: %w", err)
	}
	receipt.Sequence = uint64(sequence) // #nosec G115 -- BIGSERIAL starts at 1
	return nil
}

// ApplyBatch runs the batch inside the bound transaction, or inside a new one
// when the store is not bound to any.
func (s *PostgresStore) ApplyBatch(ctx context.Context, batch Batch) error {
	if s.tx != nil {
		return s.applyBatch(ctx, batch)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op
	}()
	if err := NewPostgresTx(tx).applyBatch(ctx, batch); err != nil {
		batch.clearSequences()
		return err
	}
	if err := tx.Commit(); err != nil {
		batch.clearSequences()
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) applyBatch(ctx context.Context, batch Batch) error {
	for _, w := range batch.Writes {
		if err := s.Save(ctx, w.Key, w.Record); err != nil {
			return err
		}
	}
	for _, receipt := range batch.Receipts {
		if err := s.AppendCommit(ctx, receipt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) FindCommit(ctx context.Context, sequence uint64) (models.Receipt, error) {
	query := `
		SELECT sequence, tx_id, operation, identity_key, issuer, committed_at
		FROM credential_commits
		WHERE sequence = $1
	`
	var receipt models.Receipt
	var seq int64
	var operation, key string
	err := s.execer().QueryRowContext(ctx, query, int64(sequence)).Scan( // #nosec G115 -- sequences fit BIGINT
		&seq,
		&receipt.TxID,
		&operation,
		&key,
		&receipt.Issuer,
		&receipt.CommittedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Receipt{}, ErrNotFound
		}
		return models.Receipt{}, fmt.Errorf("find commit: %w", err)
	}
	receipt.Sequence = uint64(seq) // #nosec G115
	receipt.Operation = models.Operation(operation)
	receipt.IdentityKey = models.IdentityKey(key)
	receipt.CommittedAt = receipt.CommittedAt.UTC()
	return receipt, nil
}
