// Package engine implements the per-instance state machine behind the
// engine boundary. An engine starts in the builder state, moves to the
// connected state on Connect and back on Disconnect. Every operation runs
// inside the fault boundary and reports *errors.ApiError values only.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/domain/interfaces"
	"github.com/hyperterse/queryengine/core/logger"
	"github.com/hyperterse/queryengine/core/observability"
	"github.com/hyperterse/queryengine/core/parser"
	"github.com/hyperterse/queryengine/core/runtime/executor"
	"github.com/hyperterse/queryengine/core/runtime/fault"
	"github.com/hyperterse/queryengine/core/runtime/schema"
	appctx "github.com/hyperterse/queryengine/core/shared/context"
	"github.com/hyperterse/queryengine/core/shared/errors"
)

// Handle identifies one engine instance for the lifetime of the process
type Handle int64

// Options describe the engine to create
type Options struct {
	// Datamodel is the raw schema text
	Datamodel string
	// DatasourceURL replaces the URL of the single datasource, or defines
	// one when the schema has none
	DatasourceURL string
	// DatasourceOverrides replace datasource URLs by datasource name
	DatasourceOverrides map[string]string
	// ConfigDir resolves relative sqlite paths
	ConfigDir string
	// Env is consulted before the process environment for env("X") values
	Env map[string]string
}

// Deps are the collaborators an engine delegates to
type Deps struct {
	Loader interfaces.ExecutorLoader
}

// Engine is one registered engine instance
type Engine struct {
	handle Handle
	opts   Options
	deps   Deps
	log    *logger.Logger

	mu    sync.RWMutex
	inner state
}

var validate = validator.New()

// New parses and validates the schema of opts and returns an engine in the
// builder state. The handle is assigned when the engine is inserted into a
// Registry.
func New(opts Options, deps Deps) (*Engine, error) {
	if deps.Loader == nil {
		deps.Loader = executor.NewLoader()
	}
	e := &Engine{opts: opts, deps: deps, log: logger.New("engine")}

	builder, err := fault.Run(context.Background(), "create", func(context.Context) (*builderState, error) {
		return newBuilder(opts)
	})
	if err != nil {
		return nil, errors.From(err)
	}
	e.inner = builder
	return e, nil
}

func newBuilder(opts Options) (*builderState, error) {
	validated, diags := parser.ParseSchema(opts.Datamodel)
	if diags.HasErrors() {
		return nil, errors.Conversion(diags, opts.Datamodel)
	}
	config := validated.Configuration
	if err := parser.ResolveDatasourceURLs(config, opts.DatasourceURL, opts.DatasourceOverrides, opts.Env); err != nil {
		return nil, err
	}
	ds, err := parser.ValidateOneDatasource(config)
	if err != nil {
		return nil, err
	}
	return &builderState{schema: validated, ds: ds}, nil
}

// Handle returns the engine's registry handle
func (e *Engine) Handle() Handle {
	return e.handle
}

// Datamodel returns the schema text the engine was created from
func (e *Engine) Datamodel() string {
	return e.opts.Datamodel
}

// IsConnected reports whether the engine is in the connected state
func (e *Engine) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.inner.(*connectedState)
	return ok
}

// Datasource returns the provider and the redacted URL of the datasource
func (e *Engine) Datasource() (string, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ds := e.inner.datasource()
	return ds.ActiveProvider, domain.RedactURL(ds.URL.Value)
}

// Connect loads an executor for the datasource, probes it and builds the
// query schema. On failure the engine stays in the builder state.
func (e *Engine) Connect(ctx context.Context) error {
	return e.do(ctx, "connect", func(ctx context.Context) error {
		e.mu.Lock()
		defer e.mu.Unlock()

		builder, ok := e.inner.(*builderState)
		if !ok {
			return errors.AlreadyConnected()
		}

		url, err := parser.LoadURL(builder.ds, e.opts.ConfigDir)
		if err != nil {
			return err
		}
		exec, err := e.deps.Loader.Load(ctx, builder.ds, url)
		if err != nil {
			return err
		}
		// closes the executor on errors and on panics alike
		connected := false
		defer func() {
			if !connected {
				e.release(ctx, exec)
			}
		}()

		if err := exec.PrimaryConnector().Probe(ctx); err != nil {
			return err
		}
		qs, err := schema.Build(builder.schema.Datamodel, builder.ds.ActiveProvider)
		if err != nil {
			return err
		}

		connected = true
		e.inner = &connectedState{
			schema:      builder.schema,
			ds:          builder.ds,
			querySchema: qs,
			executor:    exec,
		}
		observability.EngineConnected(1)
		e.log.Infof("Engine %d connected to %s", e.handle, domain.RedactURL(url))
		return nil
	})
}

// Disconnect closes the executor and returns the engine to the builder
// state, rebuilt from the original schema text and options.
func (e *Engine) Disconnect(ctx context.Context) error {
	return e.do(ctx, "disconnect", func(ctx context.Context) error {
		e.mu.Lock()
		defer e.mu.Unlock()

		conn, ok := e.inner.(*connectedState)
		if !ok {
			return errors.NotConnected()
		}
		builder, err := newBuilder(e.opts)
		if err != nil {
			return err
		}

		e.inner = builder
		observability.EngineConnected(-1)
		e.log.Infof("Engine %d disconnected", e.handle)
		e.release(ctx, conn.executor)
		return nil
	})
}

// Query runs a JSON protocol request. Known errors are returned inside the
// response body; only unexpected failures are errors.
func (e *Engine) Query(ctx context.Context, body string, txID *domain.TxID) (string, error) {
	if txID != nil {
		ctx = appctx.WithTxID(ctx, txID.String())
	}
	return call(ctx, e, "query", func(ctx context.Context) (string, error) {
		e.mu.RLock()
		defer e.mu.RUnlock()

		conn, err := e.connected()
		if err != nil {
			return "", err
		}
		req, err := domain.ParseRequestBody([]byte(body))
		if err != nil {
			return "", errors.FromJSON(err)
		}

		result, err := conn.executor.Execute(ctx, conn.querySchema, req, txID)
		if err != nil {
			known, ok := domain.AsKnownError(err)
			if !ok {
				return "", err
			}
			result = domain.NewErrorResponse(known)
		}
		out, err := json.Marshal(result)
		if err != nil {
			return "", fmt.Errorf("failed to serialize response: %w", err)
		}
		return string(out), nil
	})
}

// StartTransaction opens an interactive transaction and returns its id.
// Known errors are rendered as the result instead of failing the call.
func (e *Engine) StartTransaction(ctx context.Context, input string) (string, error) {
	return call(ctx, e, "start_transaction", func(ctx context.Context) (string, error) {
		e.mu.RLock()
		defer e.mu.RUnlock()

		conn, err := e.connected()
		if err != nil {
			return "", err
		}

		var in domain.TxInput
		if err := json.Unmarshal([]byte(input), &in); err != nil {
			return "", errors.FromJSON(err)
		}
		if err := validate.Struct(in); err != nil {
			return "", errors.Wrap(errors.KindJSONDecode, err.Error(), err)
		}
		level, ok := domain.NormalizeIsolationLevel(in.IsolationLevel)
		if !ok {
			return knownResult(domain.NewKnownError(domain.CodeTransactionAPI,
				fmt.Sprintf("Transaction API error: Invalid isolation level `%s`", in.IsolationLevel), nil))
		}
		in.IsolationLevel = level

		id, err := conn.executor.StartTx(ctx, conn.querySchema, in)
		if err != nil {
			return knownResult(err)
		}
		return id.String(), nil
	})
}

// CommitTransaction commits an interactive transaction and returns "{}"
func (e *Engine) CommitTransaction(ctx context.Context, txID string) (string, error) {
	return e.finishTransaction(ctx, "commit_transaction", txID, func(exec interfaces.QueryExecutor, id domain.TxID) error {
		return exec.CommitTx(ctx, id)
	})
}

// RollbackTransaction rolls back an interactive transaction and returns "{}"
func (e *Engine) RollbackTransaction(ctx context.Context, txID string) (string, error) {
	return e.finishTransaction(ctx, "rollback_transaction", txID, func(exec interfaces.QueryExecutor, id domain.TxID) error {
		return exec.RollbackTx(ctx, id)
	})
}

func (e *Engine) finishTransaction(ctx context.Context, op, txID string, finish func(interfaces.QueryExecutor, domain.TxID) error) (string, error) {
	ctx = appctx.WithTxID(ctx, txID)
	return call(ctx, e, op, func(ctx context.Context) (string, error) {
		e.mu.RLock()
		defer e.mu.RUnlock()

		conn, err := e.connected()
		if err != nil {
			return "", err
		}
		if err := finish(conn.executor, domain.TxID(txID)); err != nil {
			return knownResult(err)
		}
		return "{}", nil
	})
}

// connected must be called with e.mu held
func (e *Engine) connected() (*connectedState, error) {
	conn, ok := e.inner.(*connectedState)
	if !ok {
		return nil, errors.NotConnected()
	}
	return conn, nil
}

func (e *Engine) release(ctx context.Context, exec interfaces.QueryExecutor) {
	if err := exec.Close(context.WithoutCancel(ctx)); err != nil {
		e.log.Warnf("Engine %d: failed to release executor: %v", e.handle, err)
	}
}

// knownResult renders a known error on the success channel and passes any
// other error through.
func knownResult(err error) (string, error) {
	known, ok := domain.AsKnownError(err)
	if !ok {
		return "", err
	}
	out, mErr := json.Marshal(domain.NewKnownErrorResponse(known))
	if mErr != nil {
		return "", mErr
	}
	return string(out), nil
}

func (e *Engine) do(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := call(ctx, e, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// call runs fn inside the fault boundary with tracing and metrics. Every
// returned error is an *errors.ApiError.
func call[T any](ctx context.Context, e *Engine, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx = appctx.WithEngineID(ctx, int64(e.handle))
	ctx, span := observability.StartSpan(ctx, op,
		attribute.Int64(observability.AttrEngineID, int64(e.handle)),
		attribute.String(observability.AttrOperation, op))
	start := time.Now()

	value, err := fault.Run(ctx, op, fn)
	if err != nil {
		apiErr := errors.From(err)
		span.SetAttributes(attribute.String(observability.AttrErrorKind, apiErr.Kind.String()))
		err = apiErr
		e.log.Debugf("Engine %d: %s failed: %v", e.handle, op, err)
	}

	observability.EndSpan(span, err)
	observability.RecordEngineOperation(ctx, op, err == nil, float64(time.Since(start).Microseconds())/1000)
	return value, err
}
