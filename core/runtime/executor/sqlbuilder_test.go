package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/domain/interfaces"
	"github.com/hyperterse/queryengine/core/infrastructure/connectors"
)

func dialect(t *testing.T, provider string) interfaces.Dialect {
	t.Helper()
	d, ok := connectors.DialectFor(provider)
	require.True(t, ok)
	return d
}

var (
	emailField = &domain.Field{Name: "email", Type: "String", Kind: domain.FieldKindScalar, IsRequired: true}
	nameField  = &domain.Field{Name: "name", DBName: "full_name", Type: "String", Kind: domain.FieldKindScalar}
	viewsField = &domain.Field{Name: "views", Type: "Int", Kind: domain.FieldKindScalar, IsRequired: true}
)

func TestStatement_Where(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		filter   filter
		want     string
		args     []any
	}{
		{
			name:     "equals",
			provider: domain.ProviderPostgres,
			filter:   andFilter{&fieldFilter{field: emailField, op: opEquals, value: "a@x.io"}},
			want:     ` WHERE ("email" = $1)`,
			args:     []any{"a@x.io"},
		},
		{
			name:     "mapped column is null",
			provider: domain.ProviderPostgres,
			filter:   &fieldFilter{field: nameField, op: opEquals},
			want:     ` WHERE "full_name" IS NULL`,
		},
		{
			name:     "not null",
			provider: domain.ProviderMySQL,
			filter:   &fieldFilter{field: nameField, op: opNot},
			want:     " WHERE `full_name` IS NOT NULL",
		},
		{
			name:     "empty and",
			provider: domain.ProviderPostgres,
			filter:   andFilter{},
			want:     "",
		},
		{
			name:     "empty or",
			provider: domain.ProviderPostgres,
			filter:   orFilter{},
			want:     " WHERE 1=0",
		},
		{
			name:     "empty in",
			provider: domain.ProviderSQLite,
			filter:   &fieldFilter{field: viewsField, op: opIn, value: []any{}},
			want:     " WHERE 1=0",
		},
		{
			name:     "empty not in",
			provider: domain.ProviderSQLite,
			filter:   &fieldFilter{field: viewsField, op: opNotIn, value: []any{}},
			want:     " WHERE 1=1",
		},
		{
			name:     "not in",
			provider: domain.ProviderPostgres,
			filter:   &fieldFilter{field: viewsField, op: opNotIn, value: []any{int64(1), int64(2)}},
			want:     ` WHERE "views" NOT IN ($1, $2)`,
			args:     []any{int64(1), int64(2)},
		},
		{
			name:     "or of comparisons",
			provider: domain.ProviderPostgres,
			filter: orFilter{
				&fieldFilter{field: viewsField, op: opLt, value: int64(1)},
				&fieldFilter{field: viewsField, op: opGte, value: int64(10)},
			},
			want: ` WHERE ("views" < $1 OR "views" >= $2)`,
			args: []any{int64(1), int64(10)},
		},
		{
			name:     "negation",
			provider: domain.ProviderPostgres,
			filter:   notFilter{&fieldFilter{field: emailField, op: opEquals, value: "a"}},
			want:     ` WHERE NOT ("email" = $1)`,
			args:     []any{"a"},
		},
		{
			name:     "insensitive contains on postgres",
			provider: domain.ProviderPostgres,
			filter:   &fieldFilter{field: emailField, op: opContains, value: "a_b", insensitive: true},
			want:     ` WHERE "email" ILIKE $1`,
			args:     []any{`%a\_b%`},
		},
		{
			name:     "insensitive starts with on sqlite",
			provider: domain.ProviderSQLite,
			filter:   &fieldFilter{field: emailField, op: opStartsWith, value: "50%", insensitive: true},
			want:     ` WHERE LOWER("email") LIKE LOWER(?) ESCAPE '\'`,
			args:     []any{`50\%%`},
		},
		{
			name:     "insensitive equals on mysql",
			provider: domain.ProviderMySQL,
			filter:   &fieldFilter{field: emailField, op: opEquals, value: "A", insensitive: true},
			want:     " WHERE LOWER(`email`) = LOWER(?)",
			args:     []any{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStatement(dialect(t, tt.provider)).where(tt.filter)
			assert.Equal(t, tt.want, s.String())
			assert.Equal(t, tt.args, s.args)
		})
	}
}

func TestStatement_OrderByAndLimit(t *testing.T) {
	take := int64(5)
	order := []orderTerm{{field: nameField, desc: true, nulls: "last"}, {field: emailField}}

	tests := []struct {
		name     string
		provider string
		take     *int64
		skip     int64
		want     string
	}{
		{"postgres take and skip", domain.ProviderPostgres, &take, 10, ` ORDER BY "full_name" DESC NULLS LAST, "email" ASC LIMIT $1 OFFSET $2`},
		{"mysql skip only", domain.ProviderMySQL, nil, 10, " ORDER BY `full_name` DESC, `email` ASC LIMIT 18446744073709551615 OFFSET ?"},
		{"sqlite skip only", domain.ProviderSQLite, nil, 3, ` ORDER BY "full_name" DESC NULLS LAST, "email" ASC LIMIT -1 OFFSET ?`},
		{"sqlite no paging", domain.ProviderSQLite, nil, 0, ` ORDER BY "full_name" DESC NULLS LAST, "email" ASC`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStatement(dialect(t, tt.provider)).orderBy(order).limit(tt.take, tt.skip)
			assert.Equal(t, tt.want, s.String())
		})
	}
}

func TestStatement_Insert(t *testing.T) {
	row := []assignment{{field: emailField, value: "a@x.io"}, {field: nameField, value: "A"}}

	tests := []struct {
		name           string
		provider       string
		row            []assignment
		skipDuplicates bool
		want           string
	}{
		{"postgres", domain.ProviderPostgres, row, false, `INSERT INTO "User" ("email", "full_name") VALUES ($1, $2)`},
		{"postgres skip duplicates", domain.ProviderPostgres, row, true, `INSERT INTO "User" ("email", "full_name") VALUES ($1, $2) ON CONFLICT DO NOTHING`},
		{"mysql skip duplicates", domain.ProviderMySQL, row, true, "INSERT IGNORE INTO `User` (`email`, `full_name`) VALUES (?, ?)"},
		{"sqlite skip duplicates", domain.ProviderSQLite, row, true, `INSERT OR IGNORE INTO "User" ("email", "full_name") VALUES (?, ?)`},
		{"sqlite defaults", domain.ProviderSQLite, nil, false, `INSERT INTO "User" DEFAULT VALUES`},
		{"mysql defaults", domain.ProviderMySQL, nil, false, "INSERT INTO `User` () VALUES ()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStatement(dialect(t, tt.provider)).insert("User", tt.row, tt.skipDuplicates)
			assert.Equal(t, tt.want, s.String())
			assert.Len(t, s.args, len(tt.row))
		})
	}
}

func TestStatement_Set(t *testing.T) {
	s := newStatement(dialect(t, domain.ProviderPostgres)).sql("UPDATE ").ident("Post").set([]update{
		{field: viewsField, op: updateIncrement, value: int64(1)},
		{field: nameField, op: updateSet, value: nil},
	})
	assert.Equal(t, `UPDATE "Post" SET "views" = "views" + $1, "full_name" = $2`, s.String())
	assert.Equal(t, []any{int64(1), nil}, s.args)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% \_done\\`, escapeLike(`100% _done\`))
}
