package engine

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/domain/interfaces"
)

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Load(ctx context.Context, ds *domain.Datasource, url string) (interfaces.QueryExecutor, error) {
	args := m.Called(ctx, ds, url)
	exec, _ := args.Get(0).(interfaces.QueryExecutor)
	return exec, args.Error(1)
}

type mockExecutor struct {
	mock.Mock
	connector *mockConnector
}

func (m *mockExecutor) PrimaryConnector() interfaces.Connector {
	return m.connector
}

func (m *mockExecutor) Execute(ctx context.Context, qs *domain.QuerySchema, req domain.RequestBody, txID *domain.TxID) (any, error) {
	args := m.Called(ctx, qs, req, txID)
	return args.Get(0), args.Error(1)
}

func (m *mockExecutor) StartTx(ctx context.Context, qs *domain.QuerySchema, input domain.TxInput) (domain.TxID, error) {
	args := m.Called(ctx, qs, input)
	return domain.TxID(args.String(0)), args.Error(1)
}

func (m *mockExecutor) CommitTx(ctx context.Context, id domain.TxID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockExecutor) RollbackTx(ctx context.Context, id domain.TxID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockExecutor) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockConnector struct {
	mock.Mock
}

func (m *mockConnector) Provider() string {
	return domain.ProviderPostgres
}

func (m *mockConnector) Probe(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockConnector) Close() error {
	return m.Called().Error(0)
}

// newMockExecutor returns an executor whose connector probes successfully
// and whose Close succeeds.
func newMockExecutor() *mockExecutor {
	conn := &mockConnector{}
	conn.On("Probe", mock.Anything).Return(nil)
	exec := &mockExecutor{connector: conn}
	exec.On("Close", mock.Anything).Return(nil).Maybe()
	return exec
}

func loaderFor(exec interfaces.QueryExecutor) *mockLoader {
	l := &mockLoader{}
	l.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(exec, nil)
	return l
}

var (
	_ interfaces.ExecutorLoader = (*mockLoader)(nil)
	_ interfaces.QueryExecutor  = (*mockExecutor)(nil)
	_ interfaces.Connector      = (*mockConnector)(nil)
)
