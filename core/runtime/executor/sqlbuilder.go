package executor

import (
	"strings"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/domain/interfaces"
)

// statement accumulates SQL text and its bound arguments
type statement struct {
	dialect interfaces.Dialect
	buf     strings.Builder
	args    []any
}

func newStatement(d interfaces.Dialect) *statement {
	return &statement{dialect: d}
}

func (s *statement) sql(parts ...string) *statement {
	for _, p := range parts {
		s.buf.WriteString(p)
	}
	return s
}

func (s *statement) ident(name string) *statement {
	s.buf.WriteString(s.dialect.QuoteIdent(name))
	return s
}

func (s *statement) param(v any) *statement {
	s.args = append(s.args, v)
	s.buf.WriteString(s.dialect.Placeholder(len(s.args)))
	return s
}

func (s *statement) String() string {
	return s.buf.String()
}

func (s *statement) columns(fields []*domain.Field) *statement {
	for i, f := range fields {
		if i > 0 {
			s.sql(", ")
		}
		s.ident(f.ColumnName())
	}
	return s
}

func (s *statement) where(f filter) *statement {
	if f == nil {
		return s
	}
	if and, ok := f.(andFilter); ok && len(and) == 0 {
		return s
	}
	s.sql(" WHERE ")
	return s.condition(f)
}

func (s *statement) condition(f filter) *statement {
	switch f := f.(type) {
	case andFilter:
		return s.join(f, " AND ", "1=1")
	case orFilter:
		return s.join(f, " OR ", "1=0")
	case notFilter:
		s.sql("NOT ")
		return s.join(andFilter(f), " AND ", "1=1")
	case *fieldFilter:
		return s.fieldCondition(f)
	}
	return s.sql("1=1")
}

func (s *statement) join(children []filter, sep, empty string) *statement {
	if len(children) == 0 {
		return s.sql(empty)
	}
	s.sql("(")
	for i, child := range children {
		if i > 0 {
			s.sql(sep)
		}
		s.condition(child)
	}
	return s.sql(")")
}

func (s *statement) fieldCondition(f *fieldFilter) *statement {
	column := s.dialect.QuoteIdent(f.field.ColumnName())
	lower := f.insensitive && !f.op.isText()
	if lower {
		column = "LOWER(" + column + ")"
	}
	value := func(v any) {
		if lower {
			s.sql("LOWER(").param(v).sql(")")
			return
		}
		s.param(v)
	}

	switch f.op {
	case opEquals:
		if f.value == nil {
			return s.sql(column, " IS NULL")
		}
		s.sql(column, " = ")
		value(f.value)
	case opNot:
		if f.value == nil {
			return s.sql(column, " IS NOT NULL")
		}
		s.sql(column, " <> ")
		value(f.value)
	case opLt, opLte, opGt, opGte:
		s.sql(column, " ", comparison[f.op], " ")
		value(f.value)
	case opIn, opNotIn:
		values, _ := f.value.([]any)
		if len(values) == 0 {
			if f.op == opIn {
				return s.sql("1=0")
			}
			return s.sql("1=1")
		}
		s.sql(column)
		if f.op == opNotIn {
			s.sql(" NOT")
		}
		s.sql(" IN (")
		for i, v := range values {
			if i > 0 {
				s.sql(", ")
			}
			value(v)
		}
		s.sql(")")
	case opContains, opStartsWith, opEndsWith:
		s.like(column, f)
	}
	return s
}

var comparison = map[filterOp]string{
	opLt:  "<",
	opLte: "<=",
	opGt:  ">",
	opGte: ">=",
}

func (s *statement) like(column string, f *fieldFilter) {
	pattern := escapeLike(f.value.(string))
	switch f.op {
	case opContains:
		pattern = "%" + pattern + "%"
	case opStartsWith:
		pattern = pattern + "%"
	case opEndsWith:
		pattern = "%" + pattern
	}

	switch {
	case f.insensitive && s.dialect.Name() == domain.ProviderPostgres:
		s.sql(column, " ILIKE ").param(pattern)
	case f.insensitive:
		s.sql("LOWER(", column, ") LIKE LOWER(").param(pattern).sql(")")
	default:
		s.sql(column, " LIKE ").param(pattern)
	}
	if s.dialect.Name() == domain.ProviderSQLite {
		s.sql(` ESCAPE '\'`)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (s *statement) orderBy(terms []orderTerm) *statement {
	if len(terms) == 0 {
		return s
	}
	s.sql(" ORDER BY ")
	for i, t := range terms {
		if i > 0 {
			s.sql(", ")
		}
		s.ident(t.field.ColumnName())
		if t.desc {
			s.sql(" DESC")
		} else {
			s.sql(" ASC")
		}
		if t.nulls != "" && s.dialect.Name() != domain.ProviderMySQL {
			s.sql(" NULLS ", strings.ToUpper(t.nulls))
		}
	}
	return s
}

func (s *statement) limit(take *int64, skip int64) *statement {
	if take != nil {
		s.sql(" LIMIT ").param(*take)
	}
	if skip > 0 {
		if take == nil {
			switch s.dialect.Name() {
			case domain.ProviderMySQL:
				s.sql(" LIMIT 18446744073709551615")
			case domain.ProviderSQLite:
				s.sql(" LIMIT -1")
			}
		}
		s.sql(" OFFSET ").param(skip)
	}
	return s
}

func (s *statement) insert(table string, row []assignment, skipDuplicates bool) *statement {
	name := s.dialect.Name()
	switch {
	case skipDuplicates && name == domain.ProviderMySQL:
		s.sql("INSERT IGNORE INTO ")
	case skipDuplicates && name == domain.ProviderSQLite:
		s.sql("INSERT OR IGNORE INTO ")
	default:
		s.sql("INSERT INTO ")
	}
	s.ident(table)

	switch {
	case len(row) == 0 && name == domain.ProviderMySQL:
		s.sql(" () VALUES ()")
	case len(row) == 0:
		s.sql(" DEFAULT VALUES")
	default:
		s.sql(" (")
		for i, a := range row {
			if i > 0 {
				s.sql(", ")
			}
			s.ident(a.field.ColumnName())
		}
		s.sql(") VALUES (")
		for i, a := range row {
			if i > 0 {
				s.sql(", ")
			}
			s.param(a.value)
		}
		s.sql(")")
	}

	if skipDuplicates && name == domain.ProviderPostgres {
		s.sql(" ON CONFLICT DO NOTHING")
	}
	return s
}

var arithmetic = map[string]string{
	updateIncrement: " + ",
	updateDecrement: " - ",
	updateMultiply:  " * ",
	updateDivide:    " / ",
}

func (s *statement) set(updates []update) *statement {
	s.sql(" SET ")
	for i, u := range updates {
		if i > 0 {
			s.sql(", ")
		}
		column := s.dialect.QuoteIdent(u.field.ColumnName())
		s.sql(column, " = ")
		if op, ok := arithmetic[u.op]; ok {
			s.sql(column, op)
		}
		s.param(u.value)
	}
	return s
}
