// Package testutil provides a throwaway sqlite database for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Keoroanthony/go-storefront/internal/db"
)

// OpenDB returns a migrated sqlite database living in the test's temp dir.
// The pool holds a single connection so concurrent transactions serialise.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "storefront.db")
	testDB, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "failed to connect test database")

	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(testDB), "failed to auto-migrate models")

	t.Cleanup(func() { _ = sqlDB.Close() })
	return testDB
}
