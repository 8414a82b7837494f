package connectors

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/hyperterse/queryengine/core/domain"
)

// invalidURL reports a connection string the driver could not use
func invalidURL(provider string, err error) *domain.ConnectorError {
	return domain.NewConnectorError(domain.ConnectorInvalidURL,
		fmt.Errorf("invalid %s connection string: %w", provider, err))
}

// connectionError classifies a failure to reach or log into a datasource
// and attaches the message the client should see.
func connectionError(ep endpoint, err error) *domain.ConnectorError {
	switch {
	case isAuthError(err):
		return domain.NewConnectorError(domain.ConnectorAuthenticationError, err).WithUserFacing(
			domain.NewKnownError(domain.CodeAuthenticationFailed,
				fmt.Sprintf("Authentication failed against database server at `%s`, the provided database credentials for `%s` are not valid.\n\nPlease make sure to provide valid database credentials for the database server at `%s`.", ep.host, ep.user, ep.host),
				map[string]any{"database_user": ep.user, "database_host": ep.host}))

	case isDatabaseMissing(err):
		return domain.NewConnectorError(domain.ConnectorDatabaseNotFound, err).WithUserFacing(
			domain.NewKnownError(domain.CodeDatabaseNotFound,
				fmt.Sprintf("Database `%s` does not exist on the database server at `%s`.", ep.database, ep.address()),
				map[string]any{"database_name": ep.database, "database_host": ep.host, "database_port": ep.port}))
	}

	kind := domain.ConnectorConnectionError
	if errors.Is(err, context.DeadlineExceeded) {
		kind = domain.ConnectorTimeout
	}
	return domain.NewConnectorError(kind, err).WithUserFacing(
		domain.NewKnownError(domain.CodeDatabaseUnreachable,
			fmt.Sprintf("Can't reach database server at `%s`\n\nPlease make sure your database server is running at `%s`.", ep.address(), ep.address()),
			map[string]any{"database_host": ep.host, "database_port": ep.port}))
}

func isAuthError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "28P01" || pgErr.Code == "28000"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1045
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == 18
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrAuth
	}
	return false
}

func isDatabaseMissing(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "3D000"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1049
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrCantOpen
	}
	return false
}
