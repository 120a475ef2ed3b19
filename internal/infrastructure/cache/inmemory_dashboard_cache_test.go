package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopfront/backend/internal/domain/report"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDashboard(revenue string) *report.Dashboard {
	return &report.Dashboard{
		Query: report.DashboardQuery{
			From:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			To:          time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			Granularity: report.GranularityDay,
		},
		Summary: report.RevenueSummary{Revenue: decimal.RequireFromString(revenue), OrderCount: 3},
	}
}

func TestInMemoryDashboardCache_GetSet(t *testing.T) {
	c := NewInMemoryDashboardCache(WithInMemoryLogger(zap.NewNop()))
	defer c.Close()
	ctx := context.Background()

	got, err := c.Get(ctx, "day:2026-01-01:2026-02-01")
	require.NoError(t, err)
	assert.Nil(t, got)

	want := testDashboard("120.00")
	require.NoError(t, c.Set(ctx, "day:2026-01-01:2026-02-01", want, time.Minute))

	got, err = c.Get(ctx, "day:2026-01-01:2026-02-01")
	require.NoError(t, err)
	assert.Same(t, want, got)

	hits, misses := c.GetStats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestInMemoryDashboardCache_Expiration(t *testing.T) {
	c := NewInMemoryDashboardCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", testDashboard("1"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, c.Count())
}

func TestInMemoryDashboardCache_DefaultTTLAndNil(t *testing.T) {
	c := NewInMemoryDashboardCache(WithInMemoryTTL(10 * time.Millisecond))
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "nil", nil, 0))
	assert.Equal(t, 0, c.Count())

	require.NoError(t, c.Set(ctx, "k", testDashboard("1"), 0))
	time.Sleep(20 * time.Millisecond)
	c.doCleanup()
	assert.Equal(t, 0, c.Count())
}

func TestInMemoryDashboardCache_InvalidateAll(t *testing.T) {
	c := NewInMemoryDashboardCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", testDashboard("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", testDashboard("2"), time.Minute))
	require.NoError(t, c.InvalidateAll(ctx))

	assert.Equal(t, 0, c.Count())
}

func TestBackend_InMemoryWhenRedisDisabled(t *testing.T) {
	b := NewBackendWithClient(nil, zap.NewNop())
	assert.False(t, b.IsRedis())

	store := b.IdempotencyStore()
	ok, err := store.MarkProcessed(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	dash := b.DashboardCache()
	require.NoError(t, dash.Set(context.Background(), "k", testDashboard("5"), time.Minute))

	require.NoError(t, b.Close())
}
