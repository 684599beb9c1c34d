package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mesh-intelligence/ontology/pkg/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(context.Background(), types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func countContainers(t *testing.T, d *DB) int {
	t.Helper()
	var n int
	require.NoError(t, d.QueryRow(context.Background(), "SELECT COUNT(*) FROM containers").Scan(&n))
	return n
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b IN (?, ?) AND c = '?'"
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3) AND c = '?'", Postgres.Rebind(q))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?,?,?", Placeholders(3))
}

func TestDDLMarkers(t *testing.T) {
	assert.Contains(t, SQLite.DDL(createObject), "INTEGER PRIMARY KEY AUTOINCREMENT")
	assert.Contains(t, Postgres.DDL(createObject), "BIGSERIAL PRIMARY KEY")
	assert.Contains(t, Postgres.DDL(createObjectProperty), "TIMESTAMPTZ")
}

func TestOpenIsRepeatable(t *testing.T) {
	dir := t.TempDir()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	first, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	_, err = first.Exec(context.Background(), "INSERT INTO containers (container_id, name) VALUES (?, ?)", "c1", "one")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, 1, countContainers(t, second), "schema is applied without dropping data")
}

func TestOpenPropagatesDriverErrors(t *testing.T) {
	boom := errors.New("boom")
	orig := sqlOpen
	sqlOpen = func(string, string) (*sql.DB, error) { return nil, boom }
	t.Cleanup(func() { sqlOpen = orig })

	_, err := Open(context.Background(), types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}, nil)
	assert.ErrorIs(t, err, boom)
	assert.True(t, Error.Has(err))
}

func TestWithTxCommitsAndRunsHooks(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	var ran []string
	err := d.WithTx(ctx, func(ctx context.Context) error {
		_, err := d.Exec(ctx, "INSERT INTO containers (container_id, name) VALUES (?, ?)", "c1", "one")
		require.NoError(t, err)
		AfterCommit(ctx, func() { ran = append(ran, "outer") })

		return d.WithTx(ctx, func(inner context.Context) error {
			assert.True(t, d.InTransaction(inner))
			AfterCommit(inner, func() { ran = append(ran, "inner") })
			assert.Empty(t, ran, "hooks wait for the outermost commit")
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, ran)
	assert.Equal(t, 1, countContainers(t, d))
}

func TestWithTxNestedErrorRollsBackEverything(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	hookRan := false
	err := d.WithTx(ctx, func(ctx context.Context) error {
		_, err := d.Exec(ctx, "INSERT INTO containers (container_id, name) VALUES (?, ?)", "c1", "one")
		require.NoError(t, err)
		AfterCommit(ctx, func() { hookRan = true })
		return d.WithTx(ctx, func(ctx context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, hookRan, "hooks are dropped on rollback")
	assert.Equal(t, 0, countContainers(t, d))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = d.WithTx(ctx, func(ctx context.Context) error {
			_, _ = d.Exec(ctx, "INSERT INTO containers (container_id, name) VALUES (?, ?)", "c1", "one")
			panic("boom")
		})
	})
	assert.Equal(t, 0, countContainers(t, d))
}

func TestAfterCommitWithoutTransactionRunsNow(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func() { ran = true })
	assert.True(t, ran)
}

func TestIsUniqueViolation(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	_, err := d.Exec(ctx, "INSERT INTO containers (container_id, name) VALUES (?, ?)", "c1", "one")
	require.NoError(t, err)
	_, err = d.Exec(ctx, "INSERT INTO containers (container_id, name) VALUES (?, ?)", "c1", "again")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("connection reset")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestQueryInt64s(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	for _, uri := range []string{"a", "b", "c"} {
		_, err := d.Exec(ctx, "INSERT INTO object (object_uri, container) VALUES (?, ?)", uri, "c1")
		require.NoError(t, err)
	}
	ids, err := d.QueryInt64s(ctx, "SELECT object_id FROM object WHERE container = ? ORDER BY object_id", "c1")
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	require.NoError(t, d.Analyze(ctx))
}

func TestInsertIfAbsent(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	cols := []string{"object_uri", "container"}

	id, outcome, err := d.InsertIfAbsent(ctx, "object", cols, []any{"urn:o:1", "c1"}, "object_id")
	require.NoError(t, err)
	assert.Equal(t, types.Inserted, outcome)
	assert.Positive(t, id)

	_, outcome, err = d.InsertIfAbsent(ctx, "object", cols, []any{"urn:o:1", "c1"}, "object_id")
	require.NoError(t, err)
	assert.Equal(t, types.AlreadyExists, outcome)

	var n int
	require.NoError(t, d.QueryRow(ctx, "SELECT COUNT(*) FROM object").Scan(&n))
	assert.Equal(t, 1, n)
}
