package connectors

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/domain/interfaces"
	"github.com/hyperterse/queryengine/core/logger"
)

// PostgresConnector implements SQLConnector for PostgreSQL using pgx/v5
type PostgresConnector struct {
	pgRunner
	pool *pgxpool.Pool
	ep   endpoint
	log  *logger.Logger
}

// NewPostgresConnector creates a pgx connection pool. Connections are
// established lazily; Probe checks connectivity.
func NewPostgresConnector(ctx context.Context, connectionString string) (*PostgresConnector, error) {
	log := logger.New("connector:postgresql")
	log.Debugf("Opening PostgreSQL connection pool (pgx/v5)")

	u, err := url.Parse(connectionString)
	if err != nil {
		return nil, invalidURL(domain.ProviderPostgres, err)
	}
	clean, params := splitParams(u)

	config, err := pgxpool.ParseConfig(clean.String())
	if err != nil {
		return nil, invalidURL(domain.ProviderPostgres, err)
	}
	config.ConnConfig.ConnectTimeout = params.connectTimeout
	if params.schema != "" {
		config.ConnConfig.RuntimeParams["search_path"] = params.schema
	}
	if params.connectionLimit > 0 {
		config.MaxConns = int32(params.connectionLimit)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, invalidURL(domain.ProviderPostgres, err)
	}

	ep := endpoint{
		host:     config.ConnConfig.Host,
		port:     strconv.Itoa(int(config.ConnConfig.Port)),
		user:     config.ConnConfig.User,
		database: config.ConnConfig.Database,
	}
	return &PostgresConnector{pgRunner: pgRunner{q: pool}, pool: pool, ep: ep, log: log}, nil
}

// Provider returns "postgresql"
func (p *PostgresConnector) Provider() string {
	return domain.ProviderPostgres
}

// Dialect returns the PostgreSQL dialect
func (p *PostgresConnector) Dialect() interfaces.Dialect {
	return postgresDialect{}
}

// Probe acquires and releases one pooled connection
func (p *PostgresConnector) Probe(ctx context.Context) error {
	p.log.Debugf("Probing %s", p.ep.address())
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return connectionError(p.ep, err)
	}
	conn.Release()
	return nil
}

// Begin starts a transaction with the given isolation level
func (p *PostgresConnector) Begin(ctx context.Context, isolationLevel string) (interfaces.SQLTransaction, error) {
	opts := pgx.TxOptions{}
	switch isolationLevel {
	case "":
	case domain.IsolationReadUncommitted:
		opts.IsoLevel = pgx.ReadUncommitted
	case domain.IsolationReadCommitted:
		opts.IsoLevel = pgx.ReadCommitted
	case domain.IsolationRepeatableRead:
		opts.IsoLevel = pgx.RepeatableRead
	case domain.IsolationSerializable:
		opts.IsoLevel = pgx.Serializable
	default:
		return nil, unsupportedIsolation(domain.ProviderPostgres, isolationLevel)
	}

	tx, err := p.pool.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &pgTx{pgRunner: pgRunner{q: tx}, tx: tx}, nil
}

// Close closes the connection pool
func (p *PostgresConnector) Close() error {
	if p.pool != nil {
		p.log.Debugf("Closing PostgreSQL connection pool")
		p.pool.Close()
	}
	return nil
}

type pgTx struct {
	pgRunner
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// pgQueryer is implemented by both the pool and a transaction
type pgQueryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgRunner struct {
	q pgQueryer
}

func (r pgRunner) Query(ctx context.Context, statement string, args ...any) ([]map[string]any, error) {
	rows, err := r.q.Query(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescriptions := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescriptions))
	for i, fd := range fieldDescriptions {
		columns[i] = fd.Name
	}

	results := []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to get row values: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = pgValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r pgRunner) Exec(ctx context.Context, statement string, args ...any) (interfaces.ExecResult, error) {
	tag, err := r.q.Exec(ctx, statement, args...)
	if err != nil {
		return interfaces.ExecResult{}, err
	}
	return interfaces.ExecResult{RowsAffected: tag.RowsAffected()}, nil
}

// pgValue converts pgx specific values into plain Go values
func pgValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		out, err := val.Value()
		if err != nil {
			return nil
		}
		return out
	case [16]byte:
		return uuid.UUID(val).String()
	default:
		return v
	}
}
