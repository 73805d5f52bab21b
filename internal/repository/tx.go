package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// RunInTx begins a transaction, hands it to fn and commits when fn returns
// nil. Any error from fn, or a panic, rolls the transaction back.
func RunInTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	committed = true
	return nil
}

// inList returns "?,?,?" for n placeholders.
func inList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []uint64) []interface{} {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

func statusArgs[S ~string](statuses []S) []interface{} {
	args := make([]interface{}, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, string(s))
	}
	return args
}
