package schema

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/queryengine/core/domain"
)

func TestNewDocument_Datamodel(t *testing.T) {
	doc, err := NewDocument(mustParse(t, blogSchema))
	require.NoError(t, err)

	require.Len(t, doc.Datamodel.Models, 3)
	user := doc.Datamodel.Models[0]
	assert.Equal(t, "User", user.Name)
	require.NotNil(t, user.DBName)
	assert.Equal(t, "users", *user.DBName)
	assert.Equal(t, "Registered users", user.Documentation)
	assert.Nil(t, user.PrimaryKey)

	id := user.Fields[0]
	assert.True(t, id.IsID)
	assert.True(t, id.HasDefaultValue)
	assert.Equal(t, map[string]any{"name": "autoincrement", "args": []any{}}, id.Default)

	post := doc.Datamodel.Models[1]
	assert.Equal(t, [][]string{{"authorId", "title"}}, post.UniqueFields)

	var author, authorID Field
	for _, f := range post.Fields {
		switch f.Name {
		case "author":
			author = f
		case "authorId":
			authorID = f
		}
	}
	assert.Equal(t, "object", author.Kind)
	assert.Equal(t, "PostToUser", author.RelationName)
	assert.Equal(t, []string{"authorId"}, author.RelationFromFields)
	assert.Equal(t, []string{"id"}, author.RelationToFields)
	assert.True(t, authorID.IsReadOnly)
}

func TestNewDocument_Mappings(t *testing.T) {
	doc, err := NewDocument(mustParse(t, blogSchema))
	require.NoError(t, err)

	require.Len(t, doc.Mappings.ModelOperations, 2, "ignored models have no operations")
	ops := doc.Mappings.ModelOperations[0]
	assert.Equal(t, "User", ops["model"])
	assert.Equal(t, "users", ops["plural"])
	assert.Equal(t, "findManyUser", ops["findMany"])
	assert.Equal(t, "createOneUser", ops["createOne"])

	assert.Equal(t, []string{"queryRaw"}, doc.Mappings.OtherOperations.Read)
	assert.Equal(t, []string{"executeRaw"}, doc.Mappings.OtherOperations.Write)
}

func TestNewDocument_Schema(t *testing.T) {
	doc, err := NewDocument(mustParse(t, blogSchema))
	require.NoError(t, err)

	fieldNames := func(typ OutputType) []string {
		names := make([]string, len(typ.Fields))
		for i, f := range typ.Fields {
			names[i] = f.Name
		}
		return names
	}

	prisma := doc.Schema.OutputObjectTypes["prisma"]
	require.Len(t, prisma, 3)
	assert.Equal(t, "Query", prisma[0].Name)
	assert.Contains(t, fieldNames(prisma[0]), "findUniqueUser")
	assert.Contains(t, fieldNames(prisma[0]), "queryRaw")
	assert.NotContains(t, fieldNames(prisma[0]), "createOneUser")
	assert.Equal(t, "Mutation", prisma[1].Name)
	assert.Contains(t, fieldNames(prisma[1]), "createOnePost")
	assert.Contains(t, fieldNames(prisma[1]), "executeRaw")

	for _, f := range prisma[0].Fields {
		if f.Name == "findManyUser" {
			assert.True(t, f.OutputType.IsList)
			assert.Equal(t, LocationOutputTypes, f.OutputType.Location)
		}
	}

	enums := map[string][]string{}
	for _, e := range doc.Schema.EnumTypes["prisma"] {
		enums[e.Name] = e.Values
	}
	assert.Equal(t, []string{"asc", "desc"}, enums["SortOrder"])
	assert.Equal(t, []string{"Serializable"}, enums["TransactionIsolationLevel"])
	assert.Equal(t, []string{"id", "email", "name", "createdAt"}, enums["UserScalarFieldEnum"])

	var create InputType
	for _, in := range doc.Schema.InputObjectTypes["prisma"] {
		if in.Name == "UserCreateInput" {
			create = in
		}
	}
	required := map[string]bool{}
	for _, f := range create.Fields {
		required[f.Name] = f.IsRequired
	}
	assert.Equal(t, map[string]bool{"id": false, "email": true, "name": false, "createdAt": false}, required)
}

func TestNewDocument_Enums(t *testing.T) {
	doc, err := NewDocument(mustParse(t, `
datasource db {
  provider = "postgresql"
  url      = "postgresql://localhost/app"
}

enum Role {
  USER
  ADMIN @map("admin")
}

model Account {
  id   Int  @id
  role Role @default(USER)
}
`))
	require.NoError(t, err)

	require.Len(t, doc.Datamodel.Enums, 1)
	role := doc.Datamodel.Enums[0]
	assert.Nil(t, role.Values[0].DBName)
	require.NotNil(t, role.Values[1].DBName)
	assert.Equal(t, "admin", *role.Values[1].DBName)

	assert.Equal(t, []EnumType{{Name: "Role", Values: []string{"USER", "ADMIN"}}}, doc.Schema.EnumTypes["model"])

	account := doc.Schema.OutputObjectTypes["model"][0]
	assert.Equal(t, TypeRef{Type: "Role", Location: LocationEnumTypes}, account.Fields[1].OutputType)
	assert.Equal(t, "USER", doc.Datamodel.Models[0].Fields[1].Default)
}

func TestRenderDMMF_JSONShape(t *testing.T) {
	out, err := RenderDMMF(mustParse(t, blogSchema))
	require.NoError(t, err)

	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Contains(t, doc["datamodel"], "models")
	assert.Contains(t, doc["datamodel"], "enums")
	assert.Contains(t, doc["datamodel"], "types")
	assert.Contains(t, doc["schema"], "inputObjectTypes")
	assert.Contains(t, doc["schema"], "outputObjectTypes")
	assert.Contains(t, doc["schema"], "enumTypes")
	assert.Contains(t, doc["mappings"], "modelOperations")
	assert.Contains(t, doc["mappings"], "otherOperations")
}

func TestPlural(t *testing.T) {
	tests := map[string]string{
		"User":     "users",
		"Address":  "addresses",
		"Box":      "boxes",
		"Branch":   "branches",
		"Category": "categories",
		"Day":      "days",
	}
	for in, want := range tests {
		assert.Equal(t, want, plural(in), in)
	}
}

type mapCache struct {
	mu    sync.Mutex
	items map[string][]byte
	hits  int
	sets  int
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	c.sets++
}

func (c *mapCache) Close() error { return nil }

func TestRenderer_Caches(t *testing.T) {
	c := &mapCache{items: map[string][]byte{}}
	r := NewRenderer(c, time.Minute)
	ctx := context.Background()

	first, err := r.Render(ctx, blogSchema)
	require.NoError(t, err)
	second, err := r.Render(ctx, blogSchema)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.sets)
	assert.Equal(t, 1, c.hits)
}

func TestRenderer_InvalidSchema(t *testing.T) {
	c := &mapCache{items: map[string][]byte{}}
	r := NewRenderer(c, 0)

	_, err := r.Render(context.Background(), "model User {\n  id Nope @id\n}\n")
	var diagErr *domain.DiagnosticsError
	require.ErrorAs(t, err, &diagErr)
	assert.Contains(t, diagErr.First(), `"Nope"`)
	assert.Zero(t, c.sets)
}

func TestRenderer_NoCache(t *testing.T) {
	out, err := NewRenderer(nil, 0).Render(context.Background(), blogSchema)
	require.NoError(t, err)
	assert.True(t, json.Valid(out))
}
