package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"certify/internal/registry/models"

	"github.com/redis/go-redis/v9"
)

const (
	redisCredentialKeyPrefix = "certify:credential:"
	redisCommitKeyPrefix     = "certify:commit:"
	redisSequenceKey         = "certify:commit:seq"

	// redisBatchAttempts bounds optimistic retries when another writer moves
	// the commit sequence between WATCH and EXEC.
	redisBatchAttempts = 5
)

// Hash fields of a stored credential. Values are written as raw bytes, so
// free-form text comes back exactly as it was saved.
const (
	fieldOwnerName        = "owner_name"
	fieldIdentityKey      = "identity_key"
	fieldProgram          = "program"
	fieldGraduationPeriod = "graduation_period"
	fieldDocumentDigest   = "document_digest"
	fieldValid            = "valid"
)

// RedisStore keeps registry state in Redis. Each record is a hash without
// expiry; receipts are JSON strings and the commit sequence is a counter.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedis constructs a Redis-backed registry store.
func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) FindByKey(ctx context.Context, key models.IdentityKey) (models.CredentialRecord, error) {
	fields, err := s.client.HGetAll(ctx, credentialKey(key)).Result()
	if err != nil {
		return models.CredentialRecord{}, fmt.Errorf("find credential: %w", err)
	}
	if len(fields) == 0 {
		return models.CredentialRecord{}, ErrNotFound
	}
	return models.CredentialRecord{
		OwnerName:        fields[fieldOwnerName],
		IdentityKey:      models.IdentityKey(fields[fieldIdentityKey]),
		Program:          fields[fieldProgram],
		GraduationPeriod: fields[fieldGraduationPeriod],
		DocumentDigest:   fields[fieldDocumentDigest],
		Valid:            fields[fieldValid] == "1",
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, key models.IdentityKey, record models.CredentialRecord) error {
	if err := s.client.HSet(ctx, credentialKey(key), recordFields(record)).Err(); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *RedisStore) AppendCommit(ctx context.Context, receipt *models.Receipt) error {
	seq, err := s.client.Incr(ctx, redisSequenceKey).Result()
	if err != nil {
		return fmt.Errorf("allocate commit sequence: %w", err)
	}
	receipt.Sequence = uint64(seq) // #nosec G115 -- INCR starts at 1
	payload, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("encode commit: %w", err)
	}
	if err := s.client.Set(ctx, commitKey(receipt.Sequence), payload, 0).Err(); err != nil {
		return fmt.Errorf("append commit: %w", err)
	}
	return nil
}

// ApplyBatch writes records, receipts and the advanced sequence in one
// MULTI/EXEC, watching the sequence so a concurrent writer forces a retry.
func (s *RedisStore) ApplyBatch(ctx context.Context, batch Batch) error {
	if batch.Empty() {
		return nil
	}
	var sequences []uint64
	apply := func(tx *redis.Tx) error {
		last, err := tx.Get(ctx, redisSequenceKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read commit sequence: %w", err)
		}

		sequences = sequences[:0]
		payloads := make([][]byte, len(batch.Receipts))
		for i, receipt := range batch.Receipts {
			stamped := *receipt
			stamped.Sequence = last + uint64(i) + 1 // #nosec G115
			if payloads[i], err = json.Marshal(stamped); err != nil {
				return fmt.Errorf("encode commit: %w", err)
			}
			sequences = append(sequences, stamped.Sequence)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range batch.Writes {
				pipe.HSet(ctx, credentialKey(w.Key), recordFields(w.Record))
			}
			for i, seq := range sequences {
				pipe.Set(ctx, commitKey(seq), payloads[i], 0)
			}
			if n := len(sequences); n > 0 {
				pipe.Set(ctx, redisSequenceKey, sequences[n-1], 0)
			}
			return nil
		})
		return err
	}

	for range redisBatchAttempts {
		err := s.client.Watch(ctx, apply, redisSequenceKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("apply batch: %w", err)
		}
		for i, receipt := range batch.Receipts {
			receipt.Sequence = sequences[i]
		}
		return nil
	}
	return fmt.Errorf("apply batch: %w", redis.TxFailedErr)
}

func (s *RedisStore) FindCommit(ctx context.Context, sequence uint64) (models.Receipt, error) {
	data, err := s.client.Get(ctx, commitKey(sequence)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Receipt{}, ErrNotFound
		}
		return models.Receipt{}, fmt.Errorf("find commit: %w", err)
	}
	var receipt models.Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return models.Receipt{}, fmt.Errorf("decode commit: %w", err)
	}
	return receipt, nil
}

// recordFields always sets every field, so HSET replaces the whole record.
func recordFields(record models.CredentialRecord) map[string]any {
	valid := "0"
	if record.Valid {
		valid = "1"
	}
	return map[string]any{
		fieldOwnerName:        record.OwnerName,
		fieldIdentityKey:      record.IdentityKey.String(),
		fieldProgram:          record.Program,
		fieldGraduationPeriod: record.GraduationPeriod,
		fieldDocumentDigest:   record.DocumentDigest,
		fieldValid:            valid,
	}
}

func credentialKey(key models.IdentityKey) string {
	return redisCredentialKeyPrefix + key.String()
}

func commitKey(sequence uint64) string {
	return redisCommitKeyPrefix + strconv.FormatUint(sequence, 10)
}
