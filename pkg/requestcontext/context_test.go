package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessorsDefaultToZeroValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, Issuer(ctx))
	assert.Empty(t, ClientIP(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestAccessorsRoundTrip(t *testing.T) {
	fixed := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithIssuer(ctx, "registrar@univ")
	ctx = WithClientIP(ctx, "10.0.0.7")
	ctx = WithTime(ctx, fixed)

	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "registrar@univ", Issuer(ctx))
	assert.Equal(t, "10.0.0.7", ClientIP(ctx))
	assert.Equal(t, fixed, Now(ctx))
}
