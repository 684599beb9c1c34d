package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/ontology/pkg/types"
)

// InsertIfAbsent inserts one row into table unless a row with the same
// unique key already exists, and returns the value of the returning column
// for the new row. A lost race is not an error: the outcome is AlreadyExists
// and the caller re-reads the winning row.
func (d *DB) InsertIfAbsent(ctx context.Context, table string, cols []string, vals []any, returning string) (int64, types.InsertOutcome, error) {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING RETURNING %s",
		table, strings.Join(cols, ", "), Placeholders(len(cols)), returning)

	var id int64
	err := d.QueryRow(ctx, query, vals...).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		d.log.Debug("conditional insert found existing row", zap.String("table", table))
		return 0, types.AlreadyExists, nil
	case IsUniqueViolation(err):
		d.log.Debug("conditional insert lost a race", zap.String("table", table), zap.Error(err))
		return 0, types.AlreadyExists, nil
	case err != nil:
		return 0, 0, Error.Wrap(err)
	}
	return id, types.Inserted, nil
}
