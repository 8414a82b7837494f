package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/engine"
	"github.com/hyperterse/queryengine/core/infrastructure/cache"
	"github.com/hyperterse/queryengine/core/infrastructure/connectors"
	"github.com/hyperterse/queryengine/core/runtime/schema"
	"github.com/hyperterse/queryengine/core/shared/errors"
)

const userModel = `
model User {
  id    Int    @id @default(autoincrement())
  email String @unique
}
`

const findManyUsers = `{"action":"findMany","modelName":"User","query":{"arguments":{},"selection":{"$scalars":true}}}`

func requireKind(t *testing.T, err error, kind errors.ErrorKind) *errors.ApiError {
	t.Helper()
	var apiErr *errors.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, kind, apiErr.Kind, apiErr.Message)
	return apiErr
}

// sqliteURL creates a database with the User table and returns its URL
func sqliteURL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	url := "file:" + filepath.Join(t.TempDir(), "app.db")

	conn, err := connectors.NewSQLiteConnector(ctx, url)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Exec(ctx, `CREATE TABLE "User" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "email" TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	return url
}

func sqliteSchema(url string) string {
	return "datasource db {\n  provider = \"sqlite\"\n  url      = \"" + url + "\"\n}\n" + userModel
}

func TestConnect_UnreachableDatasource(t *testing.T) {
	ctx := context.Background()
	s := NewEngineService(nil, engine.Deps{}, nil)

	h, err := s.Create(userModel, "postgresql://app@127.0.0.1:1/db?connect_timeout=2")
	require.NoError(t, err)

	err = s.Connect(ctx, h)
	requireKind(t, err, errors.KindConnector)

	_, err = s.Query(ctx, h, findManyUsers, nil)
	requireKind(t, err, errors.KindNotConnected)
}

func TestConnectQueryDisconnect(t *testing.T) {
	ctx := context.Background()
	s := NewEngineService(nil, engine.Deps{}, nil)

	h, err := s.Create(sqliteSchema(sqliteURL(t)), "")
	require.NoError(t, err)
	require.NoError(t, s.Connect(ctx, h))

	_, err = s.Query(ctx, h, `{"action":"createOne","modelName":"User","query":{"arguments":{"data":{"email":"a@x.io"}},"selection":{"$scalars":true}}}`, nil)
	require.NoError(t, err)

	out, err := s.Query(ctx, h, findManyUsers, nil)
	require.NoError(t, err)
	var res struct {
		Data map[string][]map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Data["findManyUser"], 1)
	assert.Equal(t, "a@x.io", res.Data["findManyUser"][0]["email"])

	require.NoError(t, s.Disconnect(ctx, h))
	_, err = s.Query(ctx, h, findManyUsers, nil)
	requireKind(t, err, errors.KindNotConnected)
}

func TestCreate_TwoDatasources(t *testing.T) {
	s := NewEngineService(nil, engine.Deps{}, nil)

	raw := `
datasource a {
  provider = "sqlite"
  url      = "file:a.db"
}

datasource b {
  provider = "sqlite"
  url      = "file:b.db"
}
` + userModel

	_, err := s.Create(raw, "")
	apiErr := requireKind(t, err, errors.KindConfiguration)
	assert.Contains(t, apiErr.Message, "Exactly one datasource is required.")
	assert.Equal(t, 0, s.Registry().Len())
}

func TestCommitTransaction_Twice(t *testing.T) {
	ctx := context.Background()
	s := NewEngineService(nil, engine.Deps{}, nil)

	h, err := s.Create(sqliteSchema(sqliteURL(t)), "")
	require.NoError(t, err)
	require.NoError(t, s.Connect(ctx, h))
	t.Cleanup(func() { _ = s.Disconnect(context.Background(), h) })

	id, err := s.StartTransaction(ctx, h, `{"maxWait":5000,"timeout":5000,"isolationLevel":null}`)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	out, err := s.CommitTransaction(ctx, h, id)
	require.NoError(t, err)
	assert.Equal(t, "{}", out)

	out, err = s.CommitTransaction(ctx, h, id)
	require.NoError(t, err)
	var known domain.KnownErrorResponse
	require.NoError(t, json.Unmarshal([]byte(out), &known))
	assert.Equal(t, domain.CodeTransactionAPI, known.ErrorCode)
	assert.False(t, known.IsPanic)
}

func TestStateProperties(t *testing.T) {
	ctx := context.Background()
	s := NewEngineService(nil, engine.Deps{}, nil)
	url := sqliteURL(t)

	a, err := s.Create(sqliteSchema(url), "")
	require.NoError(t, err)
	b, err := s.Create(sqliteSchema(url), "")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	// disconnect on a builder is rejected and changes nothing
	requireKind(t, s.Disconnect(ctx, a), errors.KindNotConnected)
	requireKind(t, s.Disconnect(ctx, a), errors.KindNotConnected)

	// connect, disconnect, connect round trip
	require.NoError(t, s.Connect(ctx, a))
	requireKind(t, s.Connect(ctx, a), errors.KindAlreadyConnected)
	require.NoError(t, s.Disconnect(ctx, a))
	require.NoError(t, s.Connect(ctx, a))

	// b is untouched by a's transitions
	_, err = s.Query(ctx, b, findManyUsers, nil)
	requireKind(t, err, errors.KindNotConnected)
	require.NoError(t, s.Connect(ctx, b))
	require.NoError(t, s.Disconnect(ctx, a))

	_, err = s.Query(ctx, b, findManyUsers, nil)
	require.NoError(t, err)
	require.NoError(t, s.Disconnect(ctx, b))
}

func TestUnknownHandle(t *testing.T) {
	ctx := context.Background()
	s := NewEngineService(nil, engine.Deps{}, nil)
	h := engine.Handle(7)

	calls := map[string]func() error{
		"connect":    func() error { return s.Connect(ctx, h) },
		"disconnect": func() error { return s.Disconnect(ctx, h) },
		"query": func() error {
			_, err := s.Query(ctx, h, findManyUsers, nil)
			return err
		},
		"start_transaction": func() error {
			_, err := s.StartTransaction(ctx, h, `{}`)
			return err
		},
		"commit_transaction": func() error {
			_, err := s.CommitTransaction(ctx, h, "tx")
			return err
		},
		"rollback_transaction": func() error {
			_, err := s.RollbackTransaction(ctx, h, "tx")
			return err
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			apiErr := requireKind(t, call(), errors.KindConnector)
			assert.Equal(t, "Engine not found", apiErr.Message)
		})
	}
}

func TestCreateWithOptions(t *testing.T) {
	ctx := context.Background()
	s := NewEngineService(nil, engine.Deps{}, nil)
	url := sqliteURL(t)

	raw := "datasource db {\n  provider = \"sqlite\"\n  url      = env(\"APP_DB_URL\")\n}\n" + userModel

	t.Run("env map", func(t *testing.T) {
		opts, err := json.Marshal(ConstructorOptions{Datamodel: raw, Env: map[string]string{"APP_DB_URL": url}})
		require.NoError(t, err)
		h, err := s.CreateWithOptions(string(opts))
		require.NoError(t, err)
		require.NoError(t, s.Connect(ctx, h))
		require.NoError(t, s.Disconnect(ctx, h))
	})

	t.Run("override by name", func(t *testing.T) {
		opts, err := json.Marshal(ConstructorOptions{Datamodel: raw, DatasourceOverrides: map[string]string{"db": url}})
		require.NoError(t, err)
		h, err := s.CreateWithOptions(string(opts))
		require.NoError(t, err)
		require.NoError(t, s.Connect(ctx, h))
		require.NoError(t, s.Disconnect(ctx, h))
	})

	t.Run("unknown override", func(t *testing.T) {
		opts, err := json.Marshal(ConstructorOptions{Datamodel: raw, DatasourceOverrides: map[string]string{"other": url}})
		require.NoError(t, err)
		_, err = s.CreateWithOptions(string(opts))
		requireKind(t, err, errors.KindConfiguration)
	})

	t.Run("malformed options", func(t *testing.T) {
		_, err := s.CreateWithOptions(`{"datamodel":`)
		requireKind(t, err, errors.KindJSONDecode)

		_, err = s.CreateWithOptions(`{}`)
		requireKind(t, err, errors.KindJSONDecode)
	})
}

const dmmfSchema = `
datasource db {
  provider = "postgresql"
  url      = "postgresql://localhost/app"
}

model User {
  id Int @id
}
`

func TestDmmf(t *testing.T) {
	ctx := context.Background()
	c, err := cache.NewMemoryCache()
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	s := NewEngineService(nil, engine.Deps{}, schema.NewRenderer(c, 0))

	out, err := s.Dmmf(ctx, dmmfSchema)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Contains(t, doc, "datamodel")

	again, err := s.GetDmmf(ctx, `{"prismaSchema":`+quote(dmmfSchema)+`}`)
	require.NoError(t, err)
	assert.Equal(t, out, again)

	_, err = s.Dmmf(ctx, "model User {\n  id Unknown @id\n}\n")
	apiErr := requireKind(t, err, errors.KindConversion)
	assert.NotEmpty(t, apiErr.Source)

	_, err = s.GetDmmf(ctx, `{}`)
	requireKind(t, err, errors.KindJSONDecode)
}

func TestSchemaUtilities(t *testing.T) {
	s := NewEngineService(nil, engine.Deps{}, nil)

	t.Run("format", func(t *testing.T) {
		out := s.Format("model User {\nid Int @id\nemail String\n}", `{"options":{"tabSize":4}}`)
		assert.True(t, strings.HasPrefix(out, "model User {\n    id"), out)

		assert.Equal(t, s.Format("model A {\nid Int @id\n}", ""), s.Format("model A {\nid Int @id\n}", "not json"))
	})

	t.Run("lint", func(t *testing.T) {
		assert.Equal(t, "[]", s.Lint(dmmfSchema))
		assert.Contains(t, s.Lint("model User {\n  pet Pet\n}\n"), "Pet")
	})

	t.Run("validate", func(t *testing.T) {
		assert.NoError(t, s.Validate(dmmfSchema))
		apiErr := requireKind(t, s.Validate("model {"), errors.KindConversion)
		assert.Equal(t, "model {", apiErr.Source)
	})

	t.Run("get config", func(t *testing.T) {
		out, err := s.GetConfig(`{"datamodel":` + quote(dmmfSchema) + `}`)
		require.NoError(t, err)
		assert.Contains(t, out, `"activeProvider":"postgresql"`)

		_, err = s.GetConfig(`{"datamodel":1}`)
		requireKind(t, err, errors.KindJSONDecode)
	})

	t.Run("version", func(t *testing.T) {
		v := s.Version()
		assert.NotEmpty(t, v.Version)
		assert.NotEmpty(t, v.Commit)
	})
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
