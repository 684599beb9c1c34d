// Package db adapts database/sql to the ontology stores: dialect-aware
// placeholders, transactions that nested callers join, hooks that run only
// after a commit, and the schema the stores own.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/ontology/pkg/types"
)

// Error is the class of infrastructure errors raised by this package.
var Error = errs.Class("db")

// DatabaseFile is the sqlite file created in Config.DataDir.
const DatabaseFile = "ontology.db"

// sqlOpen is swapped in tests.
var sqlOpen = sql.Open

// DB wraps a *sql.DB with its dialect.
type DB struct {
	sql     *sql.DB
	dialect Dialect
	log     *zap.Logger
}

// Open connects to the backend named by cfg and applies the schema.
func Open(ctx context.Context, cfg types.Config, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var (
		dialect Dialect
		dsn     string
	)
	switch cfg.Backend {
	case types.BackendSQLite:
		dialect = SQLite
		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = "."
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, Error.Wrap(err)
		}
		dsn = cfg.DSN
		if dsn == "" {
			dsn = "file:" + filepath.Join(dataDir, DatabaseFile) +
				"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case types.BackendPostgres:
		dialect = Postgres
		dsn = cfg.DSN
	default:
		return nil, Error.Wrap(fmt.Errorf("%w: %q", types.ErrBackendUnknown, cfg.Backend))
	}

	sqlDB, err := sqlOpen(dialect.DriverName, dsn)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if dialect.Name == SQLite.Name {
		// A single connection serialises writers; every statement inside a
		// transaction runs on that transaction.
		sqlDB.SetMaxOpenConns(1)
	}

	d := &DB{sql: sqlDB, dialect: dialect, log: log.Named("db")}
	if err := d.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return d, nil
}

// migrate applies tables then indexes.
func (d *DB) migrate(ctx context.Context) error {
	for _, stmt := range append(append([]string(nil), schemaDDL...), indexDDL...) {
		if _, err := d.sql.ExecContext(ctx, d.dialect.DDL(stmt)); err != nil {
			return Error.New("apply schema: %v", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (d *DB) Close() error {
	return Error.Wrap(d.sql.Close())
}

// Dialect returns the dialect in use.
func (d *DB) Dialect() Dialect { return d.dialect }

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the transaction bound to ctx, or the pool.
func (d *DB) conn(ctx context.Context) querier {
	if st := txFrom(ctx); st != nil && st.db == d {
		return st.tx
	}
	return d.sql
}

// Exec runs a statement on the transaction in ctx, if any.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.conn(ctx).ExecContext(ctx, d.dialect.Rebind(query), args...)
}

// Query runs a query on the transaction in ctx, if any.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.conn(ctx).QueryContext(ctx, d.dialect.Rebind(query), args...)
}

// QueryRow runs a single-row query on the transaction in ctx, if any.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.conn(ctx).QueryRowContext(ctx, d.dialect.Rebind(query), args...)
}

// ExecAffected runs a statement and returns the number of affected rows.
func (d *DB) ExecAffected(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// QueryInt64s collects the first column of every row.
func (d *DB) QueryInt64s(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Analyze refreshes the planner statistics.
func (d *DB) Analyze(ctx context.Context) error {
	_, err := d.Exec(ctx, "ANALYZE")
	return Error.Wrap(err)
}

// Int64Args converts ids to query arguments.
func Int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// StringArgs converts strings to query arguments.
func StringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

// NullString maps "" to NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// NullInt64 maps 0 to NULL.
func NullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
