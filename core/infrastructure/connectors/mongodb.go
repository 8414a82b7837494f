package connectors

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/logger"
)

// MongoDBConnector implements Connector for MongoDB
type MongoDBConnector struct {
	client   *mongo.Client
	database string
	ep       endpoint
	log      *logger.Logger
}

// NewMongoDBConnector creates a MongoDB client. The database is taken from
// the connection string path.
func NewMongoDBConnector(_ context.Context, connectionString string) (*MongoDBConnector, error) {
	log := logger.New("connector:mongodb")
	log.Debugf("Opening MongoDB connection")

	cs, err := connstring.ParseAndValidate(connectionString)
	if err != nil {
		return nil, invalidURL(domain.ProviderMongoDB, err)
	}
	if cs.Database == "" {
		return nil, invalidURL(domain.ProviderMongoDB, errors.New("database must be defined in the connection string"))
	}

	opts := options.Client().ApplyURI(connectionString)
	if !cs.ConnectTimeoutSet {
		opts.SetConnectTimeout(DefaultConnectTimeout)
	}
	if !cs.ServerSelectionTimeoutSet {
		opts.SetServerSelectionTimeout(DefaultConnectTimeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, invalidURL(domain.ProviderMongoDB, err)
	}

	ep := endpoint{database: cs.Database, user: cs.Username}
	if len(cs.Hosts) > 0 {
		ep.host = cs.Hosts[0]
	}
	return &MongoDBConnector{client: client, database: cs.Database, ep: ep, log: log}, nil
}

// Provider returns "mongodb"
func (m *MongoDBConnector) Provider() string {
	return domain.ProviderMongoDB
}

// Probe pings the primary
func (m *MongoDBConnector) Probe(ctx context.Context) error {
	m.log.Debugf("Testing connection with ping")
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return connectionError(m.ep, err)
	}
	return nil
}

// Client returns the underlying driver client
func (m *MongoDBConnector) Client() *mongo.Client {
	return m.client
}

// Database returns the database named in the connection string
func (m *MongoDBConnector) Database() *mongo.Database {
	return m.client.Database(m.database)
}

// Close disconnects the client
func (m *MongoDBConnector) Close() error {
	if m.client == nil {
		return nil
	}
	m.log.Debugf("Closing MongoDB connection")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := m.client.Disconnect(ctx)
	if err != nil {
		m.log.Errorf("Error closing MongoDB connection: %v", err)
	}
	return err
}
