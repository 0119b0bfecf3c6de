// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services and stores read them without importing net/http:
//
//	requestID := requestcontext.RequestID(ctx)
//	issuer := requestcontext.Issuer(ctx)
//	now := requestcontext.Now(ctx)
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	issuerKey      struct{}
	clientIPKey    struct{}
	requestTimeKey struct{}
)

// RequestID retrieves the request ID from the context, or "" if not set.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Issuer retrieves the authenticated issuer subject (the signer of a
// state-changing call). Returns "" for anonymous read-only requests.
func Issuer(ctx context.Context) string {
	if v, ok := ctx.Value(issuerKey{}).(string); ok {
		return v
	}
	return ""
}

// WithIssuer injects the authenticated issuer subject into the context.
func WithIssuer(ctx context.Context, issuer string) context.Context {
	return context.WithValue(ctx, issuerKey{}, issuer)
}

// ClientIP retrieves the caller IP recorded by middleware.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok {
		return v
	}
	return ""
}

// WithClientIP injects the caller IP into the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// Now returns the request-scoped time, falling back to time.Now() outside
// HTTP requests (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request-scoped time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
