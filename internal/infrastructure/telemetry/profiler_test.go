package telemetry_test

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/shopfront/backend/internal/infrastructure/config"
	"github.com/shopfront/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewProfiler(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		p, err := telemetry.NewProfiler(config.ProfilingConfig{}, zap.NewNop())
		require.NoError(t, err)
		assert.False(t, p.Enabled())
		assert.NoError(t, p.Stop())
	})

	t.Run("requires a server address", func(t *testing.T) {
		_, err := telemetry.NewProfiler(config.ProfilingConfig{Enabled: true, ApplicationName: "shopfront"}, zap.NewNop())
		assert.ErrorContains(t, err, "server address")
	})

	t.Run("requires an application name", func(t *testing.T) {
		_, err := telemetry.NewProfiler(config.ProfilingConfig{Enabled: true, ServerAddress: "http://127.0.0.1:4040"}, zap.NewNop())
		assert.ErrorContains(t, err, "application name")
	})
}

func TestWithProfilingLabels(t *testing.T) {
	labels := telemetry.HTTPRequestLabels("/api/v1/orders", "POST", "CUSTOMER")
	labels["Order-ID"] = "ORD-1001"
	labels["Cart Size"] = "3"
	labels["empty"] = ""
	labels["long"] = strings.Repeat("x", 300)

	called := false
	telemetry.WithProfilingLabels(context.Background(), labels, func(ctx context.Context) {
		called = true
		route, _ := pprof.Label(ctx, telemetry.ProfilingLabelRoute)
		assert.Equal(t, "/api/v1/orders", route)
		role, _ := pprof.Label(ctx, telemetry.ProfilingLabelRole)
		assert.Equal(t, "CUSTOMER", role)
		size, ok := pprof.Label(ctx, "cart_size")
		assert.True(t, ok)
		assert.Equal(t, "3", size)
		_, ok = pprof.Label(ctx, "order_id")
		assert.False(t, ok, "identifiers are not used as labels")
		_, ok = pprof.Label(ctx, "empty")
		assert.False(t, ok)
		long, _ := pprof.Label(ctx, "long")
		assert.Len(t, long, 128)
	})
	assert.True(t, called)
}

func TestWithProfilingLabels_NothingLeft(t *testing.T) {
	called := false
	telemetry.WithProfilingLabels(context.Background(), map[string]string{"user_id": "u-1"}, func(ctx context.Context) {
		called = true
		_, ok := pprof.Label(ctx, "user_id")
		assert.False(t, ok)
	})
	assert.True(t, called)

	telemetry.WithProfilingLabels(context.Background(), telemetry.OperationLabels(telemetry.OperationOutboxDelivery), func(ctx context.Context) {
		op, _ := pprof.Label(ctx, telemetry.ProfilingLabelOperation)
		assert.Equal(t, "outbox_delivery", op)
	})
}
