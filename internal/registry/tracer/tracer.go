// Package tracer is the tracing seam of the registry module. Services depend
// on the small Tracer interface; OTelTracer backs it with OpenTelemetry and
// NoopTracer keeps tests free of exporters.
package tracer

import (
	"context"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span and marks it failed when err is non-nil.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Span names used by the registry module.
const (
	SpanInsert       = "registry.insert"
	SpanInvalidate   = "registry.invalidate"
	SpanLookup       = "registry.lookup"
	SpanVerifyDigest = "registry.verify_digest"
	SpanIsRegistered = "registry.is_registered"
	SpanCommit       = "registry.commit"
)

// Attribute keys used by the registry module.
const (
	AttrIdentityKey = "credential.identity_key"
	AttrPresent     = "credential.present"
	AttrValid       = "credential.valid"
	AttrVerified    = "credential.verified"
	AttrSequence    = "ledger.sequence"
	AttrTxID        = "ledger.tx_id"
)

// Event names used by the registry module.
const (
	EventCommitted = "ledger.committed"
	EventNotified  = "observers.notified"
)
