package telemetry_test

import (
	"context"
	"testing"

	"github.com/shopfront/backend/internal/infrastructure/config"
	"github.com/shopfront/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := telemetry.NewTracerProvider(context.Background(), config.TelemetryConfig{}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, tp.Enabled())
	assert.NotNil(t, tp.Tracer("test"))
	tp.EnableSpanProfiles()
	assert.False(t, tp.SpanProfilesEnabled())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewTracerProvider_Enabled(t *testing.T) {
	// the gRPC exporter connects lazily, so no collector is needed
	tp, err := telemetry.NewTracerProvider(context.Background(), config.TelemetryConfig{
		Enabled:           true,
		CollectorEndpoint: "127.0.0.1:4317",
		Insecure:          true,
		SamplingRatio:     0.5,
		ServiceName:       "shopfront-test",
	}, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, tp.Enabled())
	tp.EnableSpanProfiles()
	tp.EnableSpanProfiles()
	assert.True(t, tp.SpanProfilesEnabled())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tp.Shutdown(ctx)
}
