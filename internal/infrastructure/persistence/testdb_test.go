package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

// newTestDB opens a migrated in-memory sqlite database. The pool is pinned to
// one connection because every sqlite :memory: connection is its own database.
func newTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := OpenDialector(sqlite.Open(":memory:"))
	require.NoError(t, err)

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate())
	return db
}
