package executor

import (
	"context"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/domain/interfaces"
	"github.com/hyperterse/queryengine/core/infrastructure/connectors"
	"github.com/hyperterse/queryengine/core/logger"
)

// Loader opens datasource connectors and wraps them in executors
type Loader struct {
	log *logger.Logger
}

// NewLoader creates a Loader
func NewLoader() *Loader {
	return &Loader{log: logger.New("loader")}
}

// Load opens a connector for ds at url and returns its executor. Opening
// does not guarantee the database is reachable; callers probe through
// PrimaryConnector.
func (l *Loader) Load(ctx context.Context, ds *domain.Datasource, url string) (interfaces.QueryExecutor, error) {
	provider := domain.NormalizeProvider(ds.ActiveProvider)
	l.log.Debugf("Loading %s datasource %q", provider, ds.Name)

	conn, err := connectors.Open(ctx, provider, url)
	if err != nil {
		return nil, err
	}

	switch c := conn.(type) {
	case interfaces.SQLConnector:
		return NewSQLExecutor(c), nil
	case *connectors.MongoDBConnector:
		return NewMongoExecutor(c), nil
	}
	_ = conn.Close()
	return nil, domain.ConfigurationError("Datasource provider not known: %q.", ds.ActiveProvider)
}

var _ interfaces.ExecutorLoader = (*Loader)(nil)
var _ interfaces.QueryExecutor = (*Executor)(nil)
