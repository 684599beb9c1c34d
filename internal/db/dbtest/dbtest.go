// Package dbtest opens throwaway databases for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mesh-intelligence/ontology/internal/db"
	"github.com/mesh-intelligence/ontology/pkg/types"
)

// Open returns a migrated sqlite database in a fresh temporary directory.
// It is closed when the test ends.
func Open(t testing.TB) *db.DB {
	t.Helper()

	cfg := types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}
	d, err := db.Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// Count returns the number of rows in table matching where.
func Count(t testing.TB, d *db.DB, table, where string, args ...any) int {
	t.Helper()

	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	require.NoError(t, d.QueryRow(context.Background(), query, args...).Scan(&n))
	return n
}
