package connectors

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/domain/interfaces"
	"github.com/hyperterse/queryengine/core/logger"
)

// SQLDBConnector implements SQLConnector over database/sql. It backs the
// MySQL and SQLite providers.
type SQLDBConnector struct {
	sqlRunner
	db       *sql.DB
	provider string
	dialect  interfaces.Dialect
	ep       endpoint
	log      *logger.Logger
}

func newSQLDBConnector(db *sql.DB, provider string, ep endpoint) *SQLDBConnector {
	dialect, _ := DialectFor(provider)
	return &SQLDBConnector{
		sqlRunner: sqlRunner{q: db},
		db:        db,
		provider:  provider,
		dialect:   dialect,
		ep:        ep,
		log:       logger.New("connector:" + provider),
	}
}

// Provider returns the datasource provider
func (c *SQLDBConnector) Provider() string {
	return c.provider
}

// Dialect returns the provider's SQL dialect
func (c *SQLDBConnector) Dialect() interfaces.Dialect {
	return c.dialect
}

// Probe acquires and releases one connection
func (c *SQLDBConnector) Probe(ctx context.Context) error {
	c.log.Debugf("Probing %s", c.ep.address())
	conn, err := c.db.Conn(ctx)
	if err == nil {
		err = conn.PingContext(ctx)
		conn.Close()
	}
	if err != nil {
		return connectionError(c.ep, err)
	}
	return nil
}

// Begin starts a transaction on a dedicated connection. ctx bounds the
// connection acquisition only.
func (c *SQLDBConnector) Begin(ctx context.Context, isolationLevel string) (interfaces.SQLTransaction, error) {
	level, err := c.isolation(isolationLevel)
	if err != nil {
		return nil, err
	}

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTx(context.WithoutCancel(ctx), &sql.TxOptions{Isolation: level})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlTx{sqlRunner: sqlRunner{q: tx}, tx: tx, conn: conn}, nil
}

func (c *SQLDBConnector) isolation(level string) (sql.IsolationLevel, error) {
	if c.provider == domain.ProviderSQLite {
		// SQLite transactions are always serializable
		if level == "" || level == domain.IsolationSerializable {
			return sql.LevelDefault, nil
		}
		return 0, unsupportedIsolation(c.provider, level)
	}

	switch level {
	case "":
		return sql.LevelDefault, nil
	case domain.IsolationReadUncommitted:
		return sql.LevelReadUncommitted, nil
	case domain.IsolationReadCommitted:
		return sql.LevelReadCommitted, nil
	case domain.IsolationRepeatableRead:
		return sql.LevelRepeatableRead, nil
	case domain.IsolationSerializable:
		return sql.LevelSerializable, nil
	}
	return 0, unsupportedIsolation(c.provider, level)
}

// Close closes the database handle
func (c *SQLDBConnector) Close() error {
	if c.db == nil {
		return nil
	}
	c.log.Debugf("Closing connection pool")
	err := c.db.Close()
	if err != nil {
		c.log.Errorf("Error closing connection pool: %v", err)
	}
	return err
}

type sqlTx struct {
	sqlRunner
	tx   *sql.Tx
	conn *sql.Conn
}

func (t *sqlTx) Commit(context.Context) error {
	defer t.conn.Close()
	return t.tx.Commit()
}

func (t *sqlTx) Rollback(context.Context) error {
	defer t.conn.Close()
	return t.tx.Rollback()
}

// sqlQueryer is implemented by *sql.DB and *sql.Tx
type sqlQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqlRunner struct {
	q sqlQueryer
}

func (r sqlRunner) Query(ctx context.Context, statement string, args ...any) ([]map[string]any, error) {
	rows, err := r.q.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r sqlRunner) Exec(ctx context.Context, statement string, args ...any) (interfaces.ExecResult, error) {
	res, err := r.q.ExecContext(ctx, statement, args...)
	if err != nil {
		return interfaces.ExecResult{}, err
	}
	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return interfaces.ExecResult{RowsAffected: affected, LastInsertID: lastID}, nil
}

func unsupportedIsolation(provider, level string) *domain.ConnectorError {
	return domain.NewConnectorError(domain.ConnectorUnsupported,
		fmt.Errorf("isolation level %q is not supported by %s", level, provider)).WithUserFacing(
		domain.NewKnownError(domain.CodeTransactionAPI,
			fmt.Sprintf("Transaction API error: Invalid isolation level `%s`", level), nil))
}
