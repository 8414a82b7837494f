package connectors

import (
	"context"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/domain/interfaces"
)

// Open creates the connector for provider. No connection is established
// until first use; Probe checks connectivity.
func Open(ctx context.Context, provider, connectionString string) (interfaces.Connector, error) {
	var (
		conn interfaces.Connector
		err  error
	)
	switch domain.NormalizeProvider(provider) {
	case domain.ProviderPostgres:
		conn, err = asConnector(NewPostgresConnector(ctx, connectionString))
	case domain.ProviderMySQL:
		conn, err = asConnector(NewMySQLConnector(ctx, connectionString))
	case domain.ProviderSQLite:
		conn, err = asConnector(NewSQLiteConnector(ctx, connectionString))
	case domain.ProviderMongoDB:
		conn, err = asConnector(NewMongoDBConnector(ctx, connectionString))
	default:
		return nil, domain.ConfigurationError("Datasource provider not known: %q.", provider)
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// asConnector drops typed nil pointers so failed constructors yield a nil
// interface.
func asConnector[C interfaces.Connector](conn C, err error) (interfaces.Connector, error) {
	if err != nil {
		return nil, err
	}
	return conn, nil
}

var (
	_ interfaces.SQLConnector = (*PostgresConnector)(nil)
	_ interfaces.SQLConnector = (*SQLDBConnector)(nil)
	_ interfaces.Connector    = (*MongoDBConnector)(nil)
)
