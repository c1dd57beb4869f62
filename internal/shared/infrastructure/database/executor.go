package database

import (
	"context"
	"database/sql"
)

// Row is a single result row.
type Row interface {
	Scan(dest ...any) error
}

// Rows iterates a result set. Callers must Close it.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Result reports the effect of a statement.
type Result interface {
	RowsAffected() (int64, error)
	LastInsertId() (int64, error)
}

// Executor runs statements on a connection or inside a transaction.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Transaction is an Executor that must be committed or rolled back.
type Transaction interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Connection is an open database.
type Connection interface {
	Executor
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
	Ping(ctx context.Context) error
	Driver() Driver
}

// SQLQuerier is the part of *sql.DB and *sql.Tx that SQLExecutor needs.
type SQLQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLExecutor adapts a database/sql handle to Executor.
type SQLExecutor struct {
	Querier SQLQuerier
}

// Exec runs a statement that returns no rows.
func (e SQLExecutor) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	return e.Querier.ExecContext(ctx, query, args...)
}

// QueryRow runs a query that returns at most one row.
func (e SQLExecutor) QueryRow(ctx context.Context, query string, args ...any) Row {
	return e.Querier.QueryRowContext(ctx, query, args...)
}

// Query runs a query that returns rows.
func (e SQLExecutor) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return e.Querier.QueryContext(ctx, query, args...)
}
