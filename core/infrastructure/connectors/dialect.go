package connectors

import (
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/domain/interfaces"
)

type postgresDialect struct{}

func (postgresDialect) Name() string                  { return domain.ProviderPostgres }
func (postgresDialect) QuoteIdent(name string) string { return pq.QuoteIdentifier(name) }
func (postgresDialect) Placeholder(n int) string      { return "$" + strconv.Itoa(n) }
func (postgresDialect) SupportsReturning() bool       { return true }

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return domain.ProviderMySQL }
func (mysqlDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
func (mysqlDialect) Placeholder(int) string  { return "?" }
func (mysqlDialect) SupportsReturning() bool { return false }

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return domain.ProviderSQLite }
func (sqliteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
func (sqliteDialect) Placeholder(int) string  { return "?" }
func (sqliteDialect) SupportsReturning() bool { return true }

// DialectFor returns the SQL dialect of a relational provider
func DialectFor(provider string) (interfaces.Dialect, bool) {
	switch domain.NormalizeProvider(provider) {
	case domain.ProviderPostgres:
		return postgresDialect{}, true
	case domain.ProviderMySQL:
		return mysqlDialect{}, true
	case domain.ProviderSQLite:
		return sqliteDialect{}, true
	}
	return nil, false
}
