package interfaces

import (
	"context"

	"github.com/hyperterse/queryengine/core/domain"
)

// QueryExecutor runs protocol requests against one datasource
type QueryExecutor interface {
	// PrimaryConnector returns the connector used for connectivity probes
	PrimaryConnector() Connector

	// Execute runs a single or batch request, optionally inside an open transaction
	Execute(ctx context.Context, qs *domain.QuerySchema, req domain.RequestBody, txID *domain.TxID) (any, error)

	StartTx(ctx context.Context, qs *domain.QuerySchema, input domain.TxInput) (domain.TxID, error)
	CommitTx(ctx context.Context, id domain.TxID) error
	RollbackTx(ctx context.Context, id domain.TxID) error

	// Close rolls back open transactions and closes the connector
	Close(ctx context.Context) error
}

// ExecutorLoader builds a QueryExecutor for a datasource
type ExecutorLoader interface {
	Load(ctx context.Context, datasource *domain.Datasource, url string) (QueryExecutor, error)
}
