package connectors

import (
	"context"
	"database/sql"
	"net/url"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/logger"
)

// NewSQLiteConnector opens a SQLite database from a file: URL
func NewSQLiteConnector(_ context.Context, connectionString string) (*SQLDBConnector, error) {
	logger.New("connector:sqlite").Debugf("Opening SQLite database")

	dsn, path, err := sqliteDSN(connectionString)
	if err != nil {
		return nil, invalidURL(domain.ProviderSQLite, err)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, invalidURL(domain.ProviderSQLite, err)
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return newSQLDBConnector(db, domain.ProviderSQLite, endpoint{host: path, database: path}), nil
}

// sqliteDSN strips engine parameters and enables foreign keys. It returns
// the driver DSN and the database path.
func sqliteDSN(raw string) (string, string, error) {
	path, rawQuery, _ := strings.Cut(strings.TrimPrefix(raw, "file:"), "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", "", err
	}
	for _, key := range engineParams {
		query.Del(key)
	}
	if query.Get("_foreign_keys") == "" && query.Get("_fk") == "" {
		query.Set("_foreign_keys", "1")
	}
	return "file:" + path + "?" + query.Encode(), path, nil
}
