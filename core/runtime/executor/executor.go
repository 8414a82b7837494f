package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/domain/interfaces"
	"github.com/hyperterse/queryengine/core/logger"
	"github.com/hyperterse/queryengine/core/observability"
)

// backend runs validated operations against one kind of datasource. tx is
// nil outside of transactions and otherwise a handle returned by begin.
type backend interface {
	run(ctx context.Context, op *operation, tx txHandle) (any, error)
	begin(ctx context.Context, isolationLevel string) (txHandle, error)
}

// Executor executes protocol requests for one connected datasource
type Executor struct {
	conn    interfaces.Connector
	backend backend
	txs     *transactionManager
	log     *logger.Logger
}

func newExecutor(conn interfaces.Connector, b backend) *Executor {
	log := logger.New("executor")
	return &Executor{conn: conn, backend: b, txs: newTransactionManager(log), log: log}
}

// PrimaryConnector returns the datasource connector
func (e *Executor) PrimaryConnector() interfaces.Connector {
	return e.conn
}

// Execute runs a single request or a batch. Known errors of a single request
// are returned as errors; inside a non-transactional batch they are embedded
// in the failing item's slot.
func (e *Executor) Execute(ctx context.Context, qs *domain.QuerySchema, req domain.RequestBody, txID *domain.TxID) (any, error) {
	if req.Single != nil {
		op, err := parseOperation(qs, *req.Single)
		if err != nil {
			return nil, err
		}
		result, err := e.runOne(ctx, op, txID)
		if err != nil {
			return nil, err
		}
		return dataResponse(op, result), nil
	}

	ops := make([]*operation, len(req.Batch))
	parseErrs := make([]error, len(req.Batch))
	for i, item := range req.Batch {
		ops[i], parseErrs[i] = parseOperation(qs, item)
	}

	if req.Transaction != nil || txID != nil {
		for _, err := range parseErrs {
			if err != nil {
				return nil, err
			}
		}
		results, err := e.runBatchAtomically(ctx, ops, req.Transaction, txID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"batchResult": results}, nil
	}

	results := make([]any, len(ops))
	for i, op := range ops {
		err := parseErrs[i]
		if err == nil {
			var result any
			if result, err = e.runOne(ctx, op, nil); err == nil {
				results[i] = dataResponse(op, result)
				continue
			}
		}
		known, ok := domain.AsKnownError(err)
		if !ok {
			return nil, err
		}
		results[i] = domain.NewErrorResponse(known)
	}
	return map[string]any{"batchResult": results}, nil
}

func (e *Executor) runOne(ctx context.Context, op *operation, txID *domain.TxID) (any, error) {
	ctx, span := observability.StartSpan(ctx, "executor.run",
		attribute.String(observability.AttrAction, string(op.action)),
		attribute.String(observability.AttrModelName, modelName(op.model)))
	start := time.Now()

	var result any
	var err error
	if txID != nil {
		err = e.txs.with(*txID, func(tx txHandle) error {
			var runErr error
			result, runErr = e.backend.run(ctx, op, tx)
			return runErr
		})
	} else {
		result, err = e.backend.run(ctx, op, nil)
	}

	observability.EndSpan(span, err)
	e.log.Debugf("%s finished in %s", op.resultKey(), time.Since(start))
	return result, err
}

func (e *Executor) runBatchAtomically(ctx context.Context, ops []*operation, batchTx *domain.BatchTransaction, txID *domain.TxID) ([]any, error) {
	results := make([]any, len(ops))
	runAll := func(tx txHandle) error {
		for i, op := range ops {
			result, err := e.backend.run(ctx, op, tx)
			if err != nil {
				return err
			}
			results[i] = dataResponse(op, result)
		}
		return nil
	}

	if txID != nil {
		return results, e.txs.with(*txID, runAll)
	}

	isolation := ""
	if batchTx != nil {
		isolation = batchTx.IsolationLevel
	}
	tx, err := e.backend.begin(ctx, isolation)
	if err != nil {
		return nil, err
	}
	if err := runAll(tx); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			e.log.Warnf("batch rollback failed: %v", rbErr)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, domain.NewCoreError(domain.CoreTransactionError, "batch commit failed", err)
	}
	return results, nil
}

// StartTx opens an interactive transaction
func (e *Executor) StartTx(ctx context.Context, _ *domain.QuerySchema, input domain.TxInput) (domain.TxID, error) {
	return e.txs.start(ctx, input, func(ctx context.Context) (txHandle, error) {
		return e.backend.begin(ctx, input.IsolationLevel)
	})
}

// CommitTx commits an interactive transaction
func (e *Executor) CommitTx(ctx context.Context, id domain.TxID) error {
	return e.txs.commit(ctx, id)
}

// RollbackTx rolls back an interactive transaction
func (e *Executor) RollbackTx(ctx context.Context, id domain.TxID) error {
	return e.txs.rollback(ctx, id)
}

// Close rolls back open transactions and closes the connector
func (e *Executor) Close(ctx context.Context) error {
	if n := e.txs.count(); n > 0 {
		e.log.Warnf("rolling back %d open transaction(s)", n)
	}
	txErr := e.txs.closeAll(ctx)
	if err := e.conn.Close(); err != nil {
		return errors.Join(txErr, fmt.Errorf("failed to close connector: %w", err))
	}
	return txErr
}

func dataResponse(op *operation, result any) map[string]any {
	return map[string]any{"data": map[string]any{op.resultKey(): result}}
}

func countResult(n int64) *record {
	r := newRecord(1)
	r.set("count", n)
	return r
}
