package interfaces

import (
	"context"
)

// Connector is a live handle on a datasource
type Connector interface {
	// Provider returns the datasource provider name, e.g. "postgresql"
	Provider() string

	// Probe checks connectivity by acquiring and releasing one connection
	Probe(ctx context.Context) error

	// Close closes the connector and releases resources
	Close() error
}

// ExecResult reports the outcome of a statement that returns no rows
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// SQLQueryer runs parameterized statements
type SQLQueryer interface {
	Query(ctx context.Context, statement string, args ...any) ([]map[string]any, error)
	Exec(ctx context.Context, statement string, args ...any) (ExecResult, error)
}

// SQLTransaction is an open database transaction
type SQLTransaction interface {
	SQLQueryer
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Dialect captures the SQL differences between providers
type Dialect interface {
	Name() string
	QuoteIdent(name string) string
	Placeholder(n int) string
	SupportsReturning() bool
}

// SQLConnector is a Connector for relational databases
type SQLConnector interface {
	Connector
	SQLQueryer

	Dialect() Dialect

	// Begin starts a transaction. ctx bounds connection acquisition only;
	// the returned transaction outlives it.
	Begin(ctx context.Context, isolationLevel string) (SQLTransaction, error)
}
