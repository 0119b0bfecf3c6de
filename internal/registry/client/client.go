// Package client is the caller's view of the registry ledger: state changes
// are submitted and later confirmed, reads are answered directly.
package client

import (
	"context"
	"errors"
	"fmt"

	"certify/internal/registry/models"
)

// Errors callers can act on.
var (
	ErrWrongNetwork   = errors.New("connected to the wrong registry network")
	ErrSignerRequired = errors.New("an issuer token is required for state changes")
	ErrSignerRejected = errors.New("issuer token was rejected")
	ErrUnavailable    = errors.New("registry unavailable")
	ErrNotCommitted   = errors.New("state change was not committed")
)

// Call is a registry operation addressed to the ledger.
type Call interface {
	Operation() string
}

// State-changing calls.
type (
	InsertCall struct {
		Command models.InsertCommand
	}
	InvalidateCall struct {
		IdentityKey models.IdentityKey
	}
)

// Read-only calls.
type (
	// LookupCall reads a models.CredentialRecord.
	LookupCall struct {
		IdentityKey models.IdentityKey
	}
	// VerifyDigestCall reads a bool.
	VerifyDigestCall struct {
		IdentityKey    models.IdentityKey
		DocumentDigest string
	}
	// IsRegisteredCall reads a bool.
	IsRegisteredCall struct {
		IdentityKey models.IdentityKey
	}
)

func (InsertCall) Operation() string       { return "insert" }
func (InvalidateCall) Operation() string   { return "invalidate" }
func (LookupCall) Operation() string       { return "lookup" }
func (VerifyDigestCall) Operation() string { return "verify_digest" }
func (IsRegisteredCall) Operation() string { return "is_registered" }

// CommitHandle tracks a submitted state change.
type CommitHandle interface {
	// Wait blocks until the change is durably committed and returns its receipt.
	Wait(ctx context.Context) (*models.Receipt, error)
}

// Ledger submits state changes and answers reads.
type Ledger interface {
	SubmitStateChange(ctx context.Context, call Call) (CommitHandle, error)
	ReadState(ctx context.Context, call Call) (any, error)
}

// UnsupportedCallError is returned when a call is sent to the wrong capability.
type UnsupportedCallError struct {
	Operation string
}

func (e *UnsupportedCallError) Error() string {
	return fmt.Sprintf("unsupported call %q", e.Operation)
}

// Registry wraps a Ledger with typed operations.
type Registry struct {
	ledger Ledger
}

// NewRegistry wraps ledger.
func NewRegistry(ledger Ledger) *Registry {
	return &Registry{ledger: ledger}
}

// Insert submits an insert and waits for its commit.
func (r *Registry) Insert(ctx context.Context, cmd models.InsertCommand) (*models.Receipt, error) {
	return r.submitAndWait(ctx, InsertCall{Command: cmd})
}

// Invalidate submits an invalidation and waits for its commit.
func (r *Registry) Invalidate(ctx context.Context, key models.IdentityKey) (*models.Receipt, error) {
	return r.submitAndWait(ctx, InvalidateCall{IdentityKey: key})
}

func (r *Registry) Lookup(ctx context.Context, key models.IdentityKey) (models.CredentialRecord, error) {
	v, err := r.ledger.ReadState(ctx, LookupCall{IdentityKey: key})
	if err != nil {
		return models.CredentialRecord{}, err
	}
	record, ok := v.(models.CredentialRecord)
	if !ok {
		return models.CredentialRecord{}, fmt.Errorf("lookup: unexpected result %T", v)
	}
	return record, nil
}

func (r *Registry) VerifyDigest(ctx context.Context, key models.IdentityKey, candidate string) (bool, error) {
	return r.readBool(ctx, VerifyDigestCall{IdentityKey: key, DocumentDigest: candidate})
}

func (r *Registry) IsRegistered(ctx context.Context, key models.IdentityKey) (bool, error) {
	return r.readBool(ctx, IsRegisteredCall{IdentityKey: key})
}

func (r *Registry) submitAndWait(ctx context.Context, call Call) (*models.Receipt, error) {
	handle, err := r.ledger.SubmitStateChange(ctx, call)
	if err != nil {
		return nil, err
	}
	return handle.Wait(ctx)
}

func (r *Registry) readBool(ctx context.Context, call Call) (bool, error) {
	v, err := r.ledger.ReadState(ctx, call)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s: unexpected result %T", call.Operation(), v)
	}
	return b, nil
}
