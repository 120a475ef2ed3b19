package telemetry_test

import (
	"context"
	"testing"

	"github.com/shopfront/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestGormStockMetricsProvider(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range []string{
		`CREATE TABLE products (id TEXT PRIMARY KEY, status TEXT NOT NULL)`,
		`CREATE TABLE product_variants (id TEXT PRIMARY KEY, product_id TEXT NOT NULL, stock INTEGER NOT NULL)`,
		`INSERT INTO products VALUES ('p1', 'ACTIVE'), ('p2', 'INACTIVE')`,
		`INSERT INTO product_variants VALUES ('v1', 'p1', 0), ('v2', 'p1', 5), ('v3', 'p1', 40), ('v4', 'p2', 1)`,
	} {
		require.NoError(t, db.Exec(stmt).Error)
	}

	provider := telemetry.NewGormStockMetricsProvider(db)
	ctx := context.Background()

	low, err := provider.LowStockVariantCount(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), low)

	units, err := provider.UnitsOnHand(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(45), units)
}
