package service

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"certify/internal/registry/metrics"
	"certify/internal/registry/models"
	"certify/internal/registry/store"
	"certify/internal/registry/tracer"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/requestcontext"
)

// Store defines the persistence interface for credential records and the
// commit journal.
// Error Contract:
// - FindByKey and FindCommit return store.ErrNotFound when nothing is stored
// - Other methods return nil on success or wrapped errors on failure
type Store interface {
	FindByKey(ctx context.Context, key models.IdentityKey) (models.CredentialRecord, error)
	Save(ctx context.Context, key models.IdentityKey, record models.CredentialRecord) error
	AppendCommit(ctx context.Context, receipt *models.Receipt) error
	FindCommit(ctx context.Context, sequence uint64) (models.Receipt, error)
	ApplyBatch(ctx context.Context, batch store.Batch) error
}

// Observer is notified after every committed insert. Notifications run
// outside the commit lock, so two concurrent inserts may reach an observer
// out of commit order; CredentialAdded.Sequence carries the commit order.
type Observer interface {
	CredentialAdded(ctx context.Context, event models.CredentialAdded) error
}

// Option configures the Service.
type Option func(*Service)

// Service is the credential registry. Insert and Invalidate are committed
// one at a time through the LedgerTx; reads go straight to the store.
type Service struct {
	store     Store
	tx        LedgerTx
	observers []Observer
	metrics   *metrics.Metrics
	tracer    tracer.Tracer
	logger    *slog.Logger
	entropy   *ulid.LockedMonotonicReader
}

// New builds a registry over store. Without WithTx, writes are serialized by
// an in-process lock, which is only correct for single-process stores.
func New(st Store, opts ...Option) *Service {
	svc := &Service{
		store:   st,
		tracer:  tracer.NewNoop(),
		logger:  slog.Default(),
		entropy: &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)},
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.tx == nil {
		svc.tx = NewLocalTx(st, 0)
	}
	return svc
}

// WithTx sets the transactional boundary for state changes.
func WithTx(tx LedgerTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithObserver appends change observers. They run in registration order.
func WithObserver(observers ...Observer) Option {
	return func(s *Service) {
		s.observers = append(s.observers, observers...)
	}
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithLogger sets the logger instance for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Insert writes the record at cmd.IdentityKey with Valid=true, replacing any
// previous record at that key including an invalidated one, then notifies
// observers. No field is validated.
func (s *Service) Insert(ctx context.Context, cmd models.InsertCommand) (*models.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanInsert, tracer.String(tracer.AttrIdentityKey, cmd.IdentityKey.String()))

	receipt, err := s.commit(ctx, models.OperationInsert, cmd.IdentityKey, func(st Store) error {
		return st.Save(ctx, cmd.IdentityKey, cmd.Record())
	})
	if err != nil {
		span.End(err)
		return nil, err
	}
	span.SetAttributes(
		tracer.Int64(tracer.AttrSequence, int64(receipt.Sequence)), // #nosec G115
		tracer.String(tracer.AttrTxID, receipt.TxID),
	)

	s.notify(ctx, models.NewCredentialAdded(cmd, *receipt))
	span.AddEvent(tracer.EventNotified, tracer.Int64("observers", int64(len(s.observers))))
	span.End(nil)

	s.logger.InfoContext(ctx, "credential inserted",
		"identity_key", cmd.IdentityKey,
		"sequence", receipt.Sequence,
		"tx_id", receipt.TxID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return receipt, nil
}

// Invalidate sets Valid=false at key. An unknown key gets a blank record with
// Valid=false, which still reads as not registered. Observers are not told.
func (s *Service) Invalidate(ctx context.Context, key models.IdentityKey) (*models.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanInvalidate, tracer.String(tracer.AttrIdentityKey, key.String()))

	var wasPresent bool
	receipt, err := s.commit(ctx, models.OperationInvalidate, key, func(st Store) error {
		record, err := st.FindByKey(ctx, key)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		wasPresent = record.IsPresent()
		return st.Save(ctx, key, record.Invalidated())
	})
	span.End(err)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "credential invalidated",
		"identity_key", key,
		"was_registered", wasPresent,
		"sequence", receipt.Sequence,
		"request_id", requestcontext.RequestID(ctx),
	)
	return receipt, nil
}

// Lookup returns the record at key verbatim, or the zero record when none is
// stored. It fails only when the store cannot be read.
func (s *Service) Lookup(ctx context.Context, key models.IdentityKey) (models.CredentialRecord, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanLookup, tracer.String(tracer.AttrIdentityKey, key.String()))
	record, err := s.read(ctx, key)
	if err == nil {
		span.SetAttributes(tracer.Bool(tracer.AttrPresent, record.IsPresent()))
		s.metrics.IncLookup(record.IsPresent())
	}
	span.End(err)
	return record, err
}

// VerifyDigest reports whether the record at key is registered, still valid
// and carries exactly candidate as its document digest.
func (s *Service) VerifyDigest(ctx context.Context, key models.IdentityKey, candidate string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerifyDigest, tracer.String(tracer.AttrIdentityKey, key.String()))
	record, err := s.read(ctx, key)
	if err != nil {
		span.End(err)
		return false, err
	}
	verified := record.MatchesDigest(candidate)
	s.metrics.IncVerification(verified)
	span.SetAttributes(tracer.Bool(tracer.AttrVerified, verified))
	span.End(nil)
	return verified, nil
}

// IsRegistered reports whether a record was ever inserted at key, regardless
// of validity.
func (s *Service) IsRegistered(ctx context.Context, key models.IdentityKey) (bool, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanIsRegistered, tracer.String(tracer.AttrIdentityKey, key.String()))
	record, err := s.read(ctx, key)
	span.End(err)
	if err != nil {
		return false, err
	}
	return record.IsPresent(), nil
}

// Commit returns the receipt journaled under sequence.
func (s *Service) Commit(ctx context.Context, sequence uint64) (*models.Receipt, error) {
	receipt, err := s.store.FindCommit(ctx, sequence)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "commit not found")
		}
		return nil, translateStoreError(err, "failed to read commit")
	}
	return &receipt, nil
}

func (s *Service) read(ctx context.Context, key models.IdentityKey) (models.CredentialRecord, error) {
	record, err := s.store.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.CredentialRecord{}, nil
		}
		s.logger.ErrorContext(ctx, "failed to read credential",
			"identity_key", key,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return models.CredentialRecord{}, translateStoreError(err, "failed to read credential")
	}
	return record, nil
}

// commit runs mutate and journals its receipt inside one transaction.
func (s *Service) commit(ctx context.Context, op models.Operation, key models.IdentityKey, mutate func(Store) error) (*models.Receipt, error) {
	start := time.Now()
	now := requestcontext.Now(ctx).UTC()

	var receipt *models.Receipt
	err := s.tx.RunInTx(ctx, func(st Store) error {
		if err := mutate(st); err != nil {
			return err
		}
		txID, err := ulid.New(ulid.Timestamp(now), s.entropy)
		if err != nil {
			return err
		}
		r := &models.Receipt{
			TxID:        txID.String(),
			Operation:   op,
			IdentityKey: key,
			Issuer:      requestcontext.Issuer(ctx),
			CommittedAt: now,
		}
		if err := st.AppendCommit(ctx, r); err != nil {
			return err
		}
		receipt = r
		return nil
	})
	s.metrics.ObserveCommit(string(op), time.Since(start), err)
	if err != nil {
		s.logger.ErrorContext(ctx, "registry commit failed",
			"operation", op,
			"identity_key", key,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, translateStoreError(err, "failed to commit "+string(op))
	}
	return receipt, nil
}

func (s *Service) notify(ctx context.Context, event models.CredentialAdded) {
	for _, o := range s.observers {
		if err := o.CredentialAdded(ctx, event); err != nil {
			s.metrics.IncObserverFailure()
			s.logger.ErrorContext(ctx, "credential observer failed",
				"identity_key", event.IdentityKey,
				"sequence", event.Sequence,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
}

// translateStoreError maps dependency failures to domain codes exactly once.
// Codes already set (e.g. a transaction timeout) are preserved.
func translateStoreError(err error, msg string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	}
}
