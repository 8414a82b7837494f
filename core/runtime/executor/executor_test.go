package executor

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/infrastructure/connectors"
	"github.com/hyperterse/queryengine/core/parser"
	"github.com/hyperterse/queryengine/core/runtime/schema"
)

const blogSchema = `
datasource db {
  provider = "sqlite"
  url      = "file:./dev.db"
}

model User {
  id        Int      @id @default(autoincrement())
  email     String   @unique
  name      String?
  score     Float    @default(0)
  active    Boolean  @default(true)
  createdAt DateTime @default(now())
  updatedAt DateTime @updatedAt
  posts     Post[]

  @@map("users")
}

model Post {
  id       String @id @default(uuid())
  title    String @map("post_title")
  views    Int    @default(0)
  author   User   @relation(fields: [authorId], references: [id])
  authorId Int

  @@unique([authorId, title])
}
`

var blogDDL = []string{
	`CREATE TABLE "users" (
		"id" INTEGER PRIMARY KEY AUTOINCREMENT,
		"email" TEXT NOT NULL UNIQUE,
		"name" TEXT,
		"score" REAL NOT NULL DEFAULT 0,
		"active" BOOLEAN NOT NULL DEFAULT 1,
		"createdAt" DATETIME NOT NULL,
		"updatedAt" DATETIME NOT NULL
	)`,
	`CREATE TABLE "Post" (
		"id" TEXT PRIMARY KEY,
		"post_title" TEXT NOT NULL,
		"views" INTEGER NOT NULL DEFAULT 0,
		"authorId" INTEGER NOT NULL REFERENCES "users" ("id"),
		UNIQUE ("authorId", "post_title")
	)`,
}

func blogQuerySchema(t *testing.T) *domain.QuerySchema {
	t.Helper()
	validated, diags := parser.ParseSchema(blogSchema)
	require.False(t, diags.HasErrors(), "%v", diags.Errors)
	qs, err := schema.Build(validated.Datamodel, domain.ProviderSQLite)
	require.NoError(t, err)
	return qs
}

func newBlogExecutor(t *testing.T) (*Executor, *domain.QuerySchema) {
	t.Helper()
	qs := blogQuerySchema(t)

	ctx := context.Background()
	conn, err := connectors.NewSQLiteConnector(ctx, "file:"+filepath.Join(t.TempDir(), "blog.db"))
	require.NoError(t, err)
	for _, ddl := range blogDDL {
		_, err := conn.Exec(ctx, ddl)
		require.NoError(t, err)
	}

	e := NewSQLExecutor(conn)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e, qs
}

func execute(t *testing.T, e *Executor, qs *domain.QuerySchema, body string, txID *domain.TxID) (map[string]any, error) {
	t.Helper()
	req, err := domain.ParseRequestBody([]byte(body))
	require.NoError(t, err)
	result, err := e.Execute(context.Background(), qs, req, txID)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(result)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	return decoded, nil
}

func mustExecute(t *testing.T, e *Executor, qs *domain.QuerySchema, body string) map[string]any {
	t.Helper()
	res, err := execute(t, e, qs, body, nil)
	require.NoError(t, err)
	return res
}

func data(t *testing.T, res map[string]any, key string) any {
	t.Helper()
	d, ok := res["data"].(map[string]any)
	require.True(t, ok, "no data in %v", res)
	return d[key]
}

func requireKnown(t *testing.T, err error, code string) *domain.KnownError {
	t.Helper()
	require.Error(t, err)
	known, ok := domain.AsKnownError(err)
	require.True(t, ok, "expected a known error, got %v", err)
	assert.Equal(t, code, known.ErrorCode, known.Message)
	return known
}

func createUser(t *testing.T, e *Executor, qs *domain.QuerySchema, email string, name any) map[string]any {
	t.Helper()
	args, err := json.Marshal(map[string]any{"data": map[string]any{"email": email, "name": name}})
	require.NoError(t, err)
	res := mustExecute(t, e, qs, `{"action":"createOne","modelName":"User","query":{"arguments":`+string(args)+`,"selection":{"$scalars":true}}}`)
	return data(t, res, "createOneUser").(map[string]any)
}

func seedUsers(t *testing.T, e *Executor, qs *domain.QuerySchema) {
	createUser(t, e, qs, "ada@example.com", "Ada Lovelace")
	createUser(t, e, qs, "grace@example.com", "Grace Hopper")
	createUser(t, e, qs, "linus@example.com", nil)
}

func emails(t *testing.T, v any) []string {
	t.Helper()
	rows, ok := v.([]any)
	require.True(t, ok, "expected a list, got %v", v)
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = row.(map[string]any)["email"].(string)
	}
	return out
}

func TestExecute_CreateOne(t *testing.T) {
	e, qs := newBlogExecutor(t)

	user := createUser(t, e, qs, "ada@example.com", "Ada")
	assert.Equal(t, float64(1), user["id"])
	assert.Equal(t, "ada@example.com", user["email"])
	assert.Equal(t, "Ada", user["name"])
	assert.Equal(t, float64(0), user["score"])
	assert.Equal(t, true, user["active"])

	createdAt, ok := user["createdAt"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "DateTime", createdAt["$type"])
	_, err := time.Parse(time.RFC3339, createdAt["value"].(string))
	assert.NoError(t, err)

	var keys []string
	res := mustExecute(t, e, qs, `{"action":"findUnique","modelName":"User","query":{"arguments":{"where":{"id":1}},"selection":{"email":true,"name":true}}}`)
	for k := range data(t, res, "findUniqueUser").(map[string]any) {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"email", "name"}, keys)
}

func TestExecute_CreateOneMissingRequired(t *testing.T) {
	e, qs := newBlogExecutor(t)

	_, err := execute(t, e, qs, `{"action":"createOne","modelName":"User","query":{"arguments":{"data":{"name":"x"}},"selection":{"$scalars":true}}}`, nil)
	known := requireKnown(t, err, domain.CodeMissingRequiredValue)
	assert.Equal(t, "Missing a required value at `Mutation.createOneUser.data.email`", known.Message)
}

func TestExecute_UniqueViolation(t *testing.T) {
	e, qs := newBlogExecutor(t)
	createUser(t, e, qs, "ada@example.com", "Ada")

	_, err := execute(t, e, qs, `{"action":"createOne","modelName":"User","query":{"arguments":{"data":{"email":"ada@example.com"}},"selection":{"$scalars":true}}}`, nil)
	known := requireKnown(t, err, domain.CodeUniqueConstraint)
	assert.Equal(t, []string{"email"}, known.Meta["target"])
	assert.Equal(t, "User", known.Meta["modelName"])
}

func TestExecute_FindUnique(t *testing.T) {
	e, qs := newBlogExecutor(t)
	seedUsers(t, e, qs)

	res := mustExecute(t, e, qs, `{"action":"findUnique","modelName":"User","query":{"arguments":{"where":{"email":"grace@example.com"}},"selection":{"$scalars":true}}}`)
	assert.Equal(t, "Grace Hopper", data(t, res, "findUniqueUser").(map[string]any)["name"])

	res = mustExecute(t, e, qs, `{"action":"findUnique","modelName":"User","query":{"arguments":{"where":{"email":"nobody@example.com"}},"selection":{"$scalars":true}}}`)
	assert.Nil(t, data(t, res, "findUniqueUser"))

	_, err := execute(t, e, qs, `{"action":"findUniqueOrThrow","modelName":"User","query":{"arguments":{"where":{"email":"nobody@example.com"}},"selection":{"$scalars":true}}}`, nil)
	requireKnown(t, err, domain.CodeRecordNotFound)

	_, err = execute(t, e, qs, `{"action":"findUnique","modelName":"User","query":{"arguments":{"where":{"name":"Ada Lovelace"}},"selection":{"$scalars":true}}}`, nil)
	known := requireKnown(t, err, domain.CodeQueryValidation)
	assert.Contains(t, known.Message, "needs at least one of `id` or `email` arguments")
}

func TestExecute_FindMany(t *testing.T) {
	e, qs := newBlogExecutor(t)
	seedUsers(t, e, qs)

	tests := []struct {
		name string
		args string
		want []string
	}{
		{
			name: "no arguments",
			args: `{}`,
			want: []string{"ada@example.com", "grace@example.com", "linus@example.com"},
		},
		{
			name: "contains",
			args: `{"where":{"name":{"contains":"race"}}}`,
			want: []string{"grace@example.com"},
		},
		{
			name: "in with order",
			args: `{"where":{"email":{"in":["ada@example.com","linus@example.com"]}},"orderBy":[{"email":"desc"}]}`,
			want: []string{"linus@example.com", "ada@example.com"},
		},
		{
			name: "null",
			args: `{"where":{"name":null}}`,
			want: []string{"linus@example.com"},
		},
		{
			name: "or",
			args: `{"where":{"OR":[{"email":"ada@example.com"},{"name":{"startsWith":"Gr"}}]},"orderBy":{"id":"asc"}}`,
			want: []string{"ada@example.com", "grace@example.com"},
		},
		{
			name: "not",
			args: `{"where":{"NOT":{"email":"ada@example.com"}},"orderBy":{"id":"asc"}}`,
			want: []string{"grace@example.com", "linus@example.com"},
		},
		{
			name: "nested not",
			args: `{"where":{"email":{"not":{"endsWith":"@example.com"}}}}`,
			want: []string{},
		},
		{
			name: "skip and take",
			args: `{"orderBy":{"id":"asc"},"skip":1,"take":1}`,
			want: []string{"grace@example.com"},
		},
		{
			name: "negative take",
			args: `{"orderBy":{"id":"asc"},"take":-2}`,
			want: []string{"grace@example.com", "linus@example.com"},
		},
		{
			name: "comparison",
			args: `{"where":{"id":{"gte":2,"lt":3}}}`,
			want: []string{"grace@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustExecute(t, e, qs, `{"action":"findMany","modelName":"User","query":{"arguments":`+tt.args+`,"selection":{"$scalars":true}}}`)
			assert.Equal(t, tt.want, emails(t, data(t, res, "findManyUser")))
		})
	}
}

func TestExecute_FindFirst(t *testing.T) {
	e, qs := newBlogExecutor(t)
	seedUsers(t, e, qs)

	res := mustExecute(t, e, qs, `{"action":"findFirst","modelName":"User","query":{"arguments":{"orderBy":{"id":"desc"}},"selection":{"email":true}}}`)
	assert.Equal(t, map[string]any{"email": "linus@example.com"}, data(t, res, "findFirstUser"))

	_, err := execute(t, e, qs, `{"action":"findFirstOrThrow","modelName":"User","query":{"arguments":{"where":{"id":99}},"selection":{"email":true}}}`, nil)
	requireKnown(t, err, domain.CodeRecordNotFound)
}

func TestExecute_UpdateOne(t *testing.T) {
	e, qs := newBlogExecutor(t)
	created := createUser(t, e, qs, "ada@example.com", "Ada")

	time.Sleep(5 * time.Millisecond)
	res := mustExecute(t, e, qs, `{"action":"updateOne","modelName":"User","query":{"arguments":{"where":{"email":"ada@example.com"},"data":{"score":{"increment":2.5},"name":"Ada L."}},"selection":{"$scalars":true}}}`)
	updated := data(t, res, "updateOneUser").(map[string]any)
	assert.Equal(t, 2.5, updated["score"])
	assert.Equal(t, "Ada L.", updated["name"])
	assert.NotEqual(t, created["updatedAt"], updated["updatedAt"])

	res = mustExecute(t, e, qs, `{"action":"updateOne","modelName":"User","query":{"arguments":{"where":{"id":1},"data":{"email":"lovelace@example.com"}},"selection":{"email":true}}}`)
	assert.Equal(t, map[string]any{"email": "lovelace@example.com"}, data(t, res, "updateOneUser"))

	_, err := execute(t, e, qs, `{"action":"updateOne","modelName":"User","query":{"arguments":{"where":{"id":42},"data":{"name":"x"}},"selection":{"$scalars":true}}}`, nil)
	known := requireKnown(t, err, domain.CodeRecordNotFound)
	assert.Equal(t, "Record to update not found.", known.Meta["cause"])
}

func TestExecute_ManyWrites(t *testing.T) {
	e, qs := newBlogExecutor(t)

	res := mustExecute(t, e, qs, `{"action":"createMany","modelName":"User","query":{"arguments":{"data":[{"email":"a@x.io"},{"email":"b@x.io"},{"email":"c@x.io"}]},"selection":{"count":true}}}`)
	assert.Equal(t, map[string]any{"count": float64(3)}, data(t, res, "createManyUser"))

	res = mustExecute(t, e, qs, `{"action":"createMany","modelName":"User","query":{"arguments":{"data":[{"email":"a@x.io"},{"email":"d@x.io"}],"skipDuplicates":true},"selection":{"count":true}}}`)
	assert.Equal(t, map[string]any{"count": float64(1)}, data(t, res, "createManyUser"))

	res = mustExecute(t, e, qs, `{"action":"updateMany","modelName":"User","query":{"arguments":{"where":{"email":{"in":["a@x.io","b@x.io"]}},"data":{"active":false}},"selection":{"count":true}}}`)
	assert.Equal(t, map[string]any{"count": float64(2)}, data(t, res, "updateManyUser"))

	res = mustExecute(t, e, qs, `{"action":"deleteMany","modelName":"User","query":{"arguments":{"where":{"active":false}},"selection":{"count":true}}}`)
	assert.Equal(t, map[string]any{"count": float64(2)}, data(t, res, "deleteManyUser"))

	res = mustExecute(t, e, qs, `{"action":"deleteOne","modelName":"User","query":{"arguments":{"where":{"email":"c@x.io"}},"selection":{"email":true}}}`)
	assert.Equal(t, map[string]any{"email": "c@x.io"}, data(t, res, "deleteOneUser"))

	_, err := execute(t, e, qs, `{"action":"deleteOne","modelName":"User","query":{"arguments":{"where":{"email":"c@x.io"}},"selection":{"email":true}}}`, nil)
	known := requireKnown(t, err, domain.CodeRecordNotFound)
	assert.Equal(t, "Record to delete does not exist.", known.Meta["cause"])
}

func TestExecute_CompoundUnique(t *testing.T) {
	e, qs := newBlogExecutor(t)
	createUser(t, e, qs, "ada@example.com", "Ada")

	res := mustExecute(t, e, qs, `{"action":"createOne","modelName":"Post","query":{"arguments":{"data":{"title":"Notes","authorId":1}},"selection":{"$scalars":true}}}`)
	post := data(t, res, "createOnePost").(map[string]any)
	assert.Len(t, post["id"], 36)
	assert.Equal(t, "Notes", post["title"])
	assert.Equal(t, float64(0), post["views"])

	res = mustExecute(t, e, qs, `{"action":"findUnique","modelName":"Post","query":{"arguments":{"where":{"authorId_title":{"authorId":1,"title":"Notes"}}},"selection":{"id":true}}}`)
	assert.Equal(t, post["id"], data(t, res, "findUniquePost").(map[string]any)["id"])

	_, err := execute(t, e, qs, `{"action":"createOne","modelName":"Post","query":{"arguments":{"data":{"title":"Notes","authorId":1}},"selection":{"id":true}}}`, nil)
	known := requireKnown(t, err, domain.CodeUniqueConstraint)
	assert.Equal(t, []string{"authorId", "title"}, known.Meta["target"])

	_, err = execute(t, e, qs, `{"action":"createOne","modelName":"Post","query":{"arguments":{"data":{"title":"Orphan","authorId":7}},"selection":{"id":true}}}`, nil)
	requireKnown(t, err, domain.CodeForeignKeyConstraint)
}

func TestExecute_Aggregate(t *testing.T) {
	e, qs := newBlogExecutor(t)
	seedUsers(t, e, qs)
	mustExecute(t, e, qs, `{"action":"updateMany","modelName":"User","query":{"arguments":{"where":{"id":{"lte":2}},"data":{"score":{"set":3}}},"selection":{"count":true}}}`)

	res := mustExecute(t, e, qs, `{"action":"aggregate","modelName":"User","query":{"arguments":{},"selection":{"_count":{"selection":{"_all":true,"name":true}},"_avg":{"selection":{"score":true}},"_sum":{"selection":{"score":true}},"_max":{"selection":{"id":true}}}}}`)
	agg := data(t, res, "aggregateUser").(map[string]any)
	assert.Equal(t, map[string]any{"_all": float64(3), "name": float64(2)}, agg["_count"])
	assert.Equal(t, map[string]any{"score": float64(2)}, agg["_avg"])
	assert.Equal(t, map[string]any{"score": float64(6)}, agg["_sum"])
	assert.Equal(t, map[string]any{"id": float64(3)}, agg["_max"])

	res = mustExecute(t, e, qs, `{"action":"aggregate","modelName":"User","query":{"arguments":{"orderBy":{"id":"asc"},"take":2},"selection":{"_count":true}}}`)
	assert.Equal(t, map[string]any{"_count": map[string]any{"_all": float64(2)}}, data(t, res, "aggregateUser"))
}

func TestExecute_Raw(t *testing.T) {
	e, qs := newBlogExecutor(t)
	seedUsers(t, e, qs)

	res := mustExecute(t, e, qs, `{"action":"executeRaw","query":{"arguments":{"query":"UPDATE users SET name = ? WHERE id = ?","parameters":"[\"Augusta\",1]"},"selection":{}}}`)
	assert.Equal(t, float64(1), data(t, res, "executeRaw"))

	res = mustExecute(t, e, qs, `{"action":"queryRaw","query":{"arguments":{"query":"SELECT name FROM users WHERE id = ?","parameters":"[1]"},"selection":{}}}`)
	assert.Equal(t, []any{map[string]any{"name": "Augusta"}}, data(t, res, "queryRaw"))

	_, err := execute(t, e, qs, `{"action":"queryRaw","query":{"arguments":{"query":"SELECT * FROM missing"},"selection":{}}}`, nil)
	known := requireKnown(t, err, domain.CodeRawQueryFailed)
	assert.Contains(t, known.Message, "no such table")
}

func TestExecute_Batch(t *testing.T) {
	e, qs := newBlogExecutor(t)
	createUser(t, e, qs, "ada@example.com", "Ada")

	const ok = `{"action":"createOne","modelName":"User","query":{"arguments":{"data":{"email":"new@example.com"}},"selection":{"email":true}}}`
	const dup = `{"action":"createOne","modelName":"User","query":{"arguments":{"data":{"email":"ada@example.com"}},"selection":{"email":true}}}`
	const count = `{"action":"aggregate","modelName":"User","query":{"arguments":{},"selection":{"_count":true}}}`

	_, err := execute(t, e, qs, `{"batch":[`+ok+`,`+dup+`],"transaction":{}}`, nil)
	requireKnown(t, err, domain.CodeUniqueConstraint)

	res := mustExecute(t, e, qs, count)
	assert.Equal(t, float64(1), data(t, res, "aggregateUser").(map[string]any)["_count"].(map[string]any)["_all"])

	res = mustExecute(t, e, qs, `{"batch":[`+ok+`,`+dup+`]}`)
	results := res["batchResult"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "new@example.com", data(t, results[0].(map[string]any), "createOneUser").(map[string]any)["email"])

	failed := results[1].(map[string]any)["errors"].([]any)[0].(map[string]any)
	userFacing := failed["user_facing_error"].(map[string]any)
	assert.Equal(t, domain.CodeUniqueConstraint, userFacing["error_code"])
	assert.Equal(t, false, userFacing["is_panic"])
}

func TestExecute_InteractiveTransaction(t *testing.T) {
	e, qs := newBlogExecutor(t)
	ctx := context.Background()

	id, err := e.StartTx(ctx, qs, domain.TxInput{})
	require.NoError(t, err)
	_, err = execute(t, e, qs, `{"action":"createOne","modelName":"User","query":{"arguments":{"data":{"email":"tx@example.com"}},"selection":{"id":true}}}`, &id)
	require.NoError(t, err)
	require.NoError(t, e.CommitTx(ctx, id))

	err = e.CommitTx(ctx, id)
	known := requireKnown(t, err, domain.CodeTransactionAPI)
	assert.Contains(t, known.Message, "A commit cannot be executed on a committed transaction.")

	id, err = e.StartTx(ctx, qs, domain.TxInput{})
	require.NoError(t, err)
	_, err = execute(t, e, qs, `{"action":"deleteMany","modelName":"User","query":{"arguments":{},"selection":{"count":true}}}`, &id)
	require.NoError(t, err)
	require.NoError(t, e.RollbackTx(ctx, id))

	res := mustExecute(t, e, qs, `{"action":"findMany","modelName":"User","query":{"arguments":{},"selection":{"email":true}}}`)
	assert.Equal(t, []string{"tx@example.com"}, emails(t, data(t, res, "findManyUser")))

	_, err = execute(t, e, qs, `{"action":"findMany","modelName":"User","query":{"arguments":{},"selection":{"email":true}}}`, &id)
	known = requireKnown(t, err, domain.CodeTransactionAPI)
	assert.Contains(t, known.Message, "A query cannot be executed on a transaction that was rolled back.")

	err = e.RollbackTx(ctx, "unknown")
	known = requireKnown(t, err, domain.CodeTransactionAPI)
	assert.Contains(t, known.Message, "Transaction not found.")
}

func TestExecute_TransactionTimeout(t *testing.T) {
	e, qs := newBlogExecutor(t)
	ctx := context.Background()

	id, err := e.StartTx(ctx, qs, domain.TxInput{Timeout: 50})
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)

	_, err = execute(t, e, qs, `{"action":"findMany","modelName":"User","query":{"arguments":{},"selection":{"email":true}}}`, &id)
	known := requireKnown(t, err, domain.CodeTransactionAPI)
	assert.Contains(t, known.Message, "expired transaction. The timeout for this transaction was 50 ms")
}

func TestExecute_TransactionMaxWait(t *testing.T) {
	e, qs := newBlogExecutor(t)
	ctx := context.Background()

	held, err := e.StartTx(ctx, qs, domain.TxInput{})
	require.NoError(t, err)
	defer e.RollbackTx(ctx, held)

	_, err = e.StartTx(ctx, qs, domain.TxInput{MaxWait: 50})
	known := requireKnown(t, err, domain.CodeTransactionAPI)
	assert.Contains(t, known.Message, "Unable to start a transaction in the given time.")
}

func TestExecute_CloseRollsBackOpenTransactions(t *testing.T) {
	e, qs := newBlogExecutor(t)
	ctx := context.Background()

	id, err := e.StartTx(ctx, qs, domain.TxInput{})
	require.NoError(t, err)
	require.NoError(t, e.Close(ctx))

	err = e.CommitTx(ctx, id)
	requireKnown(t, err, domain.CodeTransactionAPI)
}
