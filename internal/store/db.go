package store

import (
	"context"
	"database/sql"
)

// DBTX is the query surface the PostgreSQL stores run on. The postgres
// Transactor binds them to the *sql.DB for autocommit reads such as due-set
// classification, and rebinds them to the *sql.Tx of a lesson completion or
// scheduler config update so row locks and version-guarded writes share one
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)
