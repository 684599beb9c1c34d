package db

import (
	"context"
	"database/sql"
)

type txKey struct{}

type txState struct {
	db    *DB
	tx    *sql.Tx
	hooks []func()
}

func txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// InTransaction reports whether ctx carries a transaction of d.
func (d *DB) InTransaction(ctx context.Context) bool {
	st := txFrom(ctx)
	return st != nil && st.db == d
}

// WithTx runs fn inside a transaction. When ctx already carries a
// transaction of d, fn joins it and the outermost caller decides whether to
// commit. Any error from fn, or a panic, rolls the outermost transaction back.
// Hooks registered with AfterCommit run once the outermost commit succeeds.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if d.InTransaction(ctx) {
		return fn(ctx)
	}

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return Error.Wrap(err)
	}
	st := &txState{db: d, tx: tx}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return Error.Wrap(err)
	}
	committed = true

	for _, hook := range st.hooks {
		hook()
	}
	return nil
}

// AfterCommit schedules fn to run after the transaction in ctx commits. It
// is dropped if the transaction rolls back. Without a transaction fn runs
// immediately.
func AfterCommit(ctx context.Context, fn func()) {
	if st := txFrom(ctx); st != nil {
		st.hooks = append(st.hooks, fn)
		return
	}
	fn()
}
