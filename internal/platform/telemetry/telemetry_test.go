package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"certify/internal/platform/config"
)

func TestSetup(t *testing.T) {
	ctx := context.Background()

	t.Run("none leaves tracing off", func(t *testing.T) {
		p, err := Setup(ctx, config.TracingConfig{Exporter: ExporterNone})
		require.NoError(t, err)
		assert.False(t, p.Enabled())
		assert.NoError(t, p.Shutdown(ctx))
	})

	t.Run("unknown exporter", func(t *testing.T) {
		_, err := Setup(ctx, config.TracingConfig{Exporter: "jaeger"})
		assert.ErrorContains(t, err, `unsupported trace exporter "jaeger"`)
	})

	t.Run("stdout registers the global provider", func(t *testing.T) {
		p, err := Setup(ctx, config.TracingConfig{Exporter: ExporterStdout, SampleRate: 0})
		require.NoError(t, err)
		assert.True(t, p.Enabled())
		assert.Same(t, p.sdk, otel.GetTracerProvider())
		assert.NoError(t, p.Shutdown(ctx))
	})
}
