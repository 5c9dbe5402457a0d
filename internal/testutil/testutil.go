// Package testutil provides a migrated throwaway database for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moderation-service/internal/repository"
)

// NewDB opens a file-backed SQLite database in a temp dir and runs the
// embedded migrations against it.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "moderation.db") +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"

	logger := zap.NewNop()
	db, err := repository.NewDB(repository.DriverSQLite, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, repository.MigrateDB(db, logger))
	return db
}
