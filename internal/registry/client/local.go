package client

import (
	"context"
	"errors"
	"fmt"

	"certify/internal/registry/models"
	dErrors "certify/pkg/domain-errors"
)

// Service is the in-process registry the Local ledger drives.
type Service interface {
	Insert(ctx context.Context, cmd models.InsertCommand) (*models.Receipt, error)
	Invalidate(ctx context.Context, key models.IdentityKey) (*models.Receipt, error)
	Lookup(ctx context.Context, key models.IdentityKey) (models.CredentialRecord, error)
	VerifyDigest(ctx context.Context, key models.IdentityKey, candidate string) (bool, error)
	IsRegistered(ctx context.Context, key models.IdentityKey) (bool, error)
}

// Local is a Ledger over an in-process service. Commits are synchronous, so
// every handle it returns is already resolved.
type Local struct {
	svc Service
}

// NewLocal wraps svc.
func NewLocal(svc Service) *Local {
	return &Local{svc: svc}
}

func (l *Local) SubmitStateChange(ctx context.Context, call Call) (CommitHandle, error) {
	var (
		receipt *models.Receipt
		err     error
	)
	switch c := call.(type) {
	case InsertCall:
		receipt, err = l.svc.Insert(ctx, c.Command)
	case InvalidateCall:
		receipt, err = l.svc.Invalidate(ctx, c.IdentityKey)
	default:
		return nil, &UnsupportedCallError{Operation: call.Operation()}
	}
	if err != nil {
		return nil, localError(call, err)
	}
	return committed{receipt: receipt}, nil
}

func (l *Local) ReadState(ctx context.Context, call Call) (any, error) {
	var (
		v   any
		err error
	)
	switch c := call.(type) {
	case LookupCall:
		v, err = l.svc.Lookup(ctx, c.IdentityKey)
	case VerifyDigestCall:
		v, err = l.svc.VerifyDigest(ctx, c.IdentityKey, c.DocumentDigest)
	case IsRegisteredCall:
		v, err = l.svc.IsRegistered(ctx, c.IdentityKey)
	default:
		return nil, &UnsupportedCallError{Operation: call.Operation()}
	}
	if err != nil {
		return nil, localError(call, err)
	}
	return v, nil
}

// localError tags infrastructure failures with ErrUnavailable while keeping
// the original chain.
func localError(call Call, err error) error {
	if dErrors.IsRetryable(err) {
		return fmt.Errorf("%s: %w", call.Operation(), errors.Join(ErrUnavailable, err))
	}
	return fmt.Errorf("%s: %w", call.Operation(), err)
}

type committed struct {
	receipt *models.Receipt
}

func (c committed) Wait(ctx context.Context) (*models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.receipt, nil
}
