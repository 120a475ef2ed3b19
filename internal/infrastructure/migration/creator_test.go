package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/shopfront/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"add product tags":    "add_product_tags",
		"Add-Variant-Barcode": "add_variant_barcode",
		"orders__by__status":  "orders_by_status",
		"  spaced  ":          "spaced",
		"idx!@#orders":        "idx_orders",
		"":                    "",
	}
	for input, want := range tests {
		assert.Equal(t, want, sanitizeName(input), input)
	}
}

func TestCreateMigration_NumbersSequentially(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")

	first, err := CreateMigration(dir, "create wishlists", "Saved products per user")
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_create_wishlists.up.sql"), first.UpPath)

	up, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- up: create_wishlists")
	assert.Contains(t, string(up), "-- Saved products per user")
	down, err := os.ReadFile(first.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "-- down: create_wishlists")

	second, err := CreateMigration(dir, "add wishlist index", "")
	require.NoError(t, err)
	assert.Equal(t, uint(2), second.Version)
}

func TestCreateMigration_RejectsEmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_create_orders.up.sql":   {},
		"000002_create_orders.down.sql": {},
		"000001_create_users.up.sql":    {},
		"README.md":                     {},
		"notes.sql":                     {},
		"000003_broken.UP.sql":          {},
		"archive/000009_old.up.sql":     {},
	}

	list, err := ListMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, MigrationInfo{Version: 1, Name: "create_users", HasUp: true}, list[0])
	assert.Equal(t, MigrationInfo{Version: 2, Name: "create_orders", HasUp: true, HasDown: true}, list[1])
}

func TestListMigrations_MissingDirectory(t *testing.T) {
	list, err := ListMigrations(os.DirFS(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	list, err := ListMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	for i, m := range list {
		assert.Equal(t, uint(i+1), m.Version, "versions have no gaps")
		assert.True(t, m.HasUp && m.HasDown, "migration %d needs up and down files", m.Version)
	}
}
