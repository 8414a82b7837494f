package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/logger"
	"github.com/hyperterse/queryengine/core/observability"
)

// closedHistory bounds how many closed transaction IDs are remembered
const closedHistory = 1024

// txHandle is an open database transaction
type txHandle interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type txStatus int

const (
	txOpen txStatus = iota
	txCommitted
	txRolledBack
	txExpired
)

type openTx struct {
	id      domain.TxID
	handle  txHandle
	timeout time.Duration
	started time.Time
	timer   *time.Timer

	// mu serializes work on the transaction and guards status
	mu     sync.Mutex
	status txStatus
}

type closedTx struct {
	status  txStatus
	timeout time.Duration
	elapsed time.Duration
}

// transactionManager tracks the interactive transactions of one executor
type transactionManager struct {
	mu     sync.Mutex
	open   map[domain.TxID]*openTx
	closed map[domain.TxID]closedTx
	order  []domain.TxID
	log    *logger.Logger
}

func newTransactionManager(log *logger.Logger) *transactionManager {
	return &transactionManager{
		open:   make(map[domain.TxID]*openTx),
		closed: make(map[domain.TxID]closedTx),
		log:    log,
	}
}

// start opens a transaction through begin, which must return within maxWait.
// The transaction is rolled back once its timeout elapses.
func (m *transactionManager) start(ctx context.Context, input domain.TxInput, begin func(context.Context) (txHandle, error)) (domain.TxID, error) {
	input = input.WithDefaults()
	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(input.MaxWait)*time.Millisecond)
	defer cancel()

	handle, err := begin(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", transactionError("Unable to start a transaction in the given time.")
		}
		return "", err
	}

	tx := &openTx{
		id:      domain.TxID(uuid.NewString()),
		handle:  handle,
		timeout: time.Duration(input.Timeout) * time.Millisecond,
		started: time.Now(),
	}
	tx.mu.Lock()
	m.mu.Lock()
	m.open[tx.id] = tx
	m.mu.Unlock()
	tx.timer = time.AfterFunc(tx.timeout, func() { m.expire(tx) })
	tx.mu.Unlock()

	observability.TransactionOpened(1)
	m.log.Debugf("transaction %s started (timeout %s)", tx.id, tx.timeout)
	return tx.id, nil
}

// with runs fn on an open transaction
func (m *transactionManager) with(id domain.TxID, fn func(txHandle) error) error {
	tx, err := m.lookup(id, "query")
	if err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.status != txOpen {
		return closedError("query", m.closedState(tx))
	}
	return fn(tx.handle)
}

func (m *transactionManager) commit(ctx context.Context, id domain.TxID) error {
	return m.finish(ctx, id, "commit", txCommitted)
}

func (m *transactionManager) rollback(ctx context.Context, id domain.TxID) error {
	return m.finish(ctx, id, "rollback", txRolledBack)
}

// finish closes the transaction even when the database rejects the commit
func (m *transactionManager) finish(ctx context.Context, id domain.TxID, op string, status txStatus) error {
	tx, err := m.lookup(id, op)
	if err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.status != txOpen {
		return closedError(op, m.closedState(tx))
	}
	tx.timer.Stop()

	if status == txCommitted {
		err = tx.handle.Commit(ctx)
	} else {
		err = tx.handle.Rollback(ctx)
	}
	m.close(tx, status)
	if err != nil {
		return domain.NewCoreError(domain.CoreTransactionError, fmt.Sprintf("%s failed", op), err)
	}
	m.log.Debugf("transaction %s %s", id, statusName(status))
	return nil
}

func (m *transactionManager) expire(tx *openTx) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.status != txOpen {
		return
	}
	if err := tx.handle.Rollback(context.Background()); err != nil {
		m.log.Warnf("rollback of expired transaction %s failed: %v", tx.id, err)
	}
	m.close(tx, txExpired)
	m.log.Debugf("transaction %s expired after %s", tx.id, tx.timeout)
}

// close must be called with tx.mu held
func (m *transactionManager) close(tx *openTx, status txStatus) {
	tx.status = status
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, tx.id)
	m.closed[tx.id] = closedTx{status: status, timeout: tx.timeout, elapsed: time.Since(tx.started)}
	m.order = append(m.order, tx.id)
	if len(m.order) > closedHistory {
		delete(m.closed, m.order[0])
		m.order = m.order[1:]
	}
	observability.TransactionOpened(-1)
}

func (m *transactionManager) lookup(id domain.TxID, op string) (*openTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.open[id]; ok {
		return tx, nil
	}
	if state, ok := m.closed[id]; ok {
		return nil, closedError(op, state)
	}
	return nil, transactionError("Transaction not found. Transaction ID is invalid, refers to an old closed transaction the engine doesn't have information about anymore, or was obtained before disconnecting.")
}

func (m *transactionManager) closedState(tx *openTx) closedTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.closed[tx.id]; ok {
		return state
	}
	return closedTx{status: tx.status, timeout: tx.timeout, elapsed: time.Since(tx.started)}
}

// count returns the number of open transactions
func (m *transactionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// closeAll rolls back every open transaction
func (m *transactionManager) closeAll(ctx context.Context) error {
	m.mu.Lock()
	open := make([]*openTx, 0, len(m.open))
	for _, tx := range m.open {
		open = append(open, tx)
	}
	m.mu.Unlock()

	var errs []error
	for _, tx := range open {
		tx.mu.Lock()
		if tx.status == txOpen {
			tx.timer.Stop()
			if err := tx.handle.Rollback(ctx); err != nil {
				errs = append(errs, fmt.Errorf("rollback %s: %w", tx.id, err))
			}
			m.close(tx, txRolledBack)
		}
		tx.mu.Unlock()
	}
	return errors.Join(errs...)
}

func transactionError(message string) *domain.KnownError {
	return domain.NewKnownError(domain.CodeTransactionAPI, "Transaction API error: "+message,
		map[string]any{"error": message})
}

func closedError(op string, state closedTx) *domain.KnownError {
	switch state.status {
	case txCommitted:
		return transactionError(fmt.Sprintf("Transaction already closed: A %s cannot be executed on a committed transaction.", op))
	case txRolledBack:
		return transactionError(fmt.Sprintf("Transaction already closed: A %s cannot be executed on a transaction that was rolled back.", op))
	}
	return transactionError(fmt.Sprintf(
		"Transaction already closed: A %s cannot be executed on an expired transaction. The timeout for this transaction was %d ms, however %d ms passed since the start of the transaction. Consider increasing the interactive transaction timeout or doing less work in the transaction.",
		op, state.timeout.Milliseconds(), state.elapsed.Milliseconds()))
}

func statusName(status txStatus) string {
	switch status {
	case txCommitted:
		return "committed"
	case txRolledBack:
		return "rolled back"
	case txExpired:
		return "expired"
	}
	return "open"
}
