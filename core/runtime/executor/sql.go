package executor

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/domain/interfaces"
)

// NewSQLExecutor creates an executor for a relational datasource
func NewSQLExecutor(conn interfaces.SQLConnector) *Executor {
	return newExecutor(conn, &sqlBackend{conn: conn, dialect: conn.Dialect()})
}

type sqlBackend struct {
	conn    interfaces.SQLConnector
	dialect interfaces.Dialect
}

func (b *sqlBackend) begin(ctx context.Context, isolationLevel string) (txHandle, error) {
	return b.conn.Begin(ctx, isolationLevel)
}

func (b *sqlBackend) run(ctx context.Context, op *operation, tx txHandle) (any, error) {
	if op.action.IsRaw() {
		q := interfaces.SQLQueryer(b.conn)
		if tx != nil {
			q = tx.(interfaces.SQLTransaction)
		}
		return b.raw(ctx, q, op)
	}

	var result any
	err := b.atomic(ctx, op, tx, func(q interfaces.SQLQueryer) error {
		var err error
		result, err = b.dispatch(ctx, q, op)
		return err
	})
	if err != nil {
		return nil, queryFailed(op.model, err)
	}
	return result, nil
}

// atomic runs fn inside tx. Writes spanning several statements get an
// implicit transaction when there is none.
func (b *sqlBackend) atomic(ctx context.Context, op *operation, tx txHandle, fn func(interfaces.SQLQueryer) error) error {
	if tx != nil {
		return fn(tx.(interfaces.SQLTransaction))
	}
	if !b.needsTransaction(op) {
		return fn(b.conn)
	}

	implicit, err := b.conn.Begin(ctx, "")
	if err != nil {
		return err
	}
	if err := fn(implicit); err != nil {
		_ = implicit.Rollback(context.WithoutCancel(ctx))
		return err
	}
	return implicit.Commit(ctx)
}

func (b *sqlBackend) needsTransaction(op *operation) bool {
	switch op.action {
	case domain.ActionUpdateOne, domain.ActionDeleteOne:
		return true
	case domain.ActionCreateMany:
		return len(op.rows) > 1
	case domain.ActionCreateOne:
		return !b.dialect.SupportsReturning()
	}
	return false
}

func (b *sqlBackend) dispatch(ctx context.Context, q interfaces.SQLQueryer, op *operation) (any, error) {
	switch op.action {
	case domain.ActionFindUnique, domain.ActionFindUniqueOrThrow, domain.ActionFindFirst, domain.ActionFindFirstOrThrow:
		take := int64(1)
		if op.take != nil && *op.take < 0 {
			take = -1
		}
		records, err := b.find(ctx, q, op, op.selection, op.where, &take, op.skip)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			if op.action == domain.ActionFindUniqueOrThrow || op.action == domain.ActionFindFirstOrThrow {
				return nil, notFoundOrThrow(op.model.Model.Name)
			}
			return nil, nil
		}
		return records[0], nil
	case domain.ActionFindMany:
		return b.find(ctx, q, op, op.selection, op.where, op.take, op.skip)
	case domain.ActionCreateOne:
		return b.createOne(ctx, q, op)
	case domain.ActionCreateMany:
		return b.createMany(ctx, q, op)
	case domain.ActionUpdateOne:
		return b.updateOne(ctx, q, op)
	case domain.ActionUpdateMany:
		return b.updateMany(ctx, q, op)
	case domain.ActionDeleteOne:
		return b.deleteOne(ctx, q, op)
	case domain.ActionDeleteMany:
		s := newStatement(b.dialect).sql("DELETE FROM ").ident(op.model.Table).where(op.where)
		res, err := q.Exec(ctx, s.String(), s.args...)
		if err != nil {
			return nil, err
		}
		return countResult(res.RowsAffected), nil
	case domain.ActionAggregate:
		return b.aggregate(ctx, q, op)
	}
	return nil, domain.NewCoreError(domain.CoreQueryError, fmt.Sprintf("unsupported action %s", op.action), nil)
}

// selectRows returns raw rows keyed by column name. A negative take reads
// from the end of the ordering.
func (b *sqlBackend) selectRows(ctx context.Context, q interfaces.SQLQueryer, op *operation, fields []*domain.Field, where filter, take *int64, skip int64) ([]map[string]any, error) {
	order := op.orderBy
	reverse := take != nil && *take < 0
	if reverse {
		order = invertOrder(op, order)
		n := -*take
		take = &n
	}

	s := newStatement(b.dialect).sql("SELECT ").columns(fields).sql(" FROM ").ident(op.model.Table)
	s.where(where).orderBy(order).limit(take, skip)
	rows, err := q.Query(ctx, s.String(), s.args...)
	if err != nil {
		return nil, err
	}
	if reverse {
		slices.Reverse(rows)
	}
	return rows, nil
}

func (b *sqlBackend) find(ctx context.Context, q interfaces.SQLQueryer, op *operation, fields []*domain.Field, where filter, take *int64, skip int64) ([]*record, error) {
	rows, err := b.selectRows(ctx, q, op, fields, where, take, skip)
	if err != nil {
		return nil, err
	}
	records := make([]*record, 0, len(rows))
	for _, row := range rows {
		records = append(records, toRecord(op, fields, row))
	}
	return records, nil
}

func toRecord(op *operation, fields []*domain.Field, row map[string]any) *record {
	r := newRecord(len(fields))
	for _, f := range fields {
		r.set(f.Name, outputValue(op.qs, f, row[f.ColumnName()]))
	}
	return r
}

func invertOrder(op *operation, order []orderTerm) []orderTerm {
	if len(order) == 0 {
		for _, name := range identifier(op.model) {
			f, _ := op.model.Field(name)
			order = append(order, orderTerm{field: f})
		}
	}
	inverted := make([]orderTerm, len(order))
	for i, t := range order {
		inverted[i] = orderTerm{field: t.field, desc: !t.desc, nulls: t.nulls}
		switch t.nulls {
		case "first":
			inverted[i].nulls = "last"
		case "last":
			inverted[i].nulls = "first"
		}
	}
	return inverted
}

func (b *sqlBackend) createOne(ctx context.Context, q interfaces.SQLQueryer, op *operation) (any, error) {
	row, err := withDefaults(op, op.rows[0])
	if err != nil {
		return nil, err
	}
	s := newStatement(b.dialect).insert(op.model.Table, row, false)

	if b.dialect.SupportsReturning() {
		s.sql(" RETURNING ").columns(op.selection)
		rows, err := q.Query(ctx, s.String(), s.args...)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, domain.NewCoreError(domain.CoreQueryError, "insert returned no row", nil)
		}
		return toRecord(op, op.selection, rows[0]), nil
	}

	res, err := q.Exec(ctx, s.String(), s.args...)
	if err != nil {
		return nil, err
	}
	key := andFilter{}
	for _, name := range identifier(op.model) {
		f, _ := op.model.Field(name)
		value, ok := assigned(row, name)
		if !ok {
			value = res.LastInsertID
		}
		key = append(key, &fieldFilter{field: f, op: opEquals, value: value})
	}
	one := int64(1)
	records, err := b.find(ctx, q, op, op.selection, key, &one, 0)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.NewCoreError(domain.CoreQueryError, "inserted row could not be read back", nil)
	}
	return records[0], nil
}

func (b *sqlBackend) createMany(ctx context.Context, q interfaces.SQLQueryer, op *operation) (any, error) {
	var count int64
	for _, data := range op.rows {
		row, err := withDefaults(op, data)
		if err != nil {
			return nil, err
		}
		s := newStatement(b.dialect).insert(op.model.Table, row, op.skipDuplicates)
		res, err := q.Exec(ctx, s.String(), s.args...)
		if err != nil {
			return nil, err
		}
		count += res.RowsAffected
	}
	return countResult(count), nil
}

func (b *sqlBackend) updateOne(ctx context.Context, q interfaces.SQLQueryer, op *operation) (any, error) {
	idFields := identifierFields(op.model)
	one := int64(1)
	existing, err := b.selectRows(ctx, q, op, idFields, op.where, &one, 0)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, recordNotFound(op.model.Model.Name, "Record to update not found.")
	}

	key := keyFilter(idFields, existing[0])
	if updates := withUpdatedAt(op); len(updates) > 0 {
		s := newStatement(b.dialect).sql("UPDATE ").ident(op.model.Table).set(updates).where(key)
		if _, err := q.Exec(ctx, s.String(), s.args...); err != nil {
			return nil, err
		}
	}

	// the update may have moved the row to a new key
	moved := make(map[string]any, len(idFields))
	for _, f := range idFields {
		moved[f.ColumnName()] = existing[0][f.ColumnName()]
		for _, u := range op.updates {
			if u.field == f && u.op == updateSet {
				moved[f.ColumnName()] = u.value
			}
		}
	}
	records, err := b.find(ctx, q, op, op.selection, keyFilter(idFields, moved), &one, 0)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, recordNotFound(op.model.Model.Name, "Record to update not found.")
	}
	return records[0], nil
}

func (b *sqlBackend) updateMany(ctx context.Context, q interfaces.SQLQueryer, op *operation) (any, error) {
	if len(op.updates) == 0 {
		return countResult(0), nil
	}
	s := newStatement(b.dialect).sql("UPDATE ").ident(op.model.Table).set(withUpdatedAt(op)).where(op.where)
	res, err := q.Exec(ctx, s.String(), s.args...)
	if err != nil {
		return nil, err
	}
	return countResult(res.RowsAffected), nil
}

func (b *sqlBackend) deleteOne(ctx context.Context, q interfaces.SQLQueryer, op *operation) (any, error) {
	idFields := identifierFields(op.model)
	fields := slices.Clone(op.selection)
	for _, f := range idFields {
		if !slices.Contains(fields, f) {
			fields = append(fields, f)
		}
	}
	one := int64(1)
	existing, err := b.selectRows(ctx, q, op, fields, op.where, &one, 0)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, recordNotFound(op.model.Model.Name, "Record to delete does not exist.")
	}

	s := newStatement(b.dialect).sql("DELETE FROM ").ident(op.model.Table).where(keyFilter(idFields, existing[0]))
	if _, err := q.Exec(ctx, s.String(), s.args...); err != nil {
		return nil, err
	}
	return toRecord(op, op.selection, existing[0]), nil
}

type aggregateColumn struct {
	group string
	name  string
	field *domain.Field
}

func (b *sqlBackend) aggregate(ctx context.Context, q interfaces.SQLQueryer, op *operation) (any, error) {
	agg := op.aggregate
	var columns []aggregateColumn
	for _, name := range agg.count {
		f, _ := op.model.Field(name)
		columns = append(columns, aggregateColumn{group: "_count", name: name, field: f})
	}
	groups := []struct {
		name   string
		fields []*domain.Field
	}{{"_min", agg.min}, {"_max", agg.max}, {"_avg", agg.avg}, {"_sum", agg.sum}}
	for _, g := range groups {
		for _, f := range g.fields {
			columns = append(columns, aggregateColumn{group: g.name, name: f.Name, field: f})
		}
	}
	if len(columns) == 0 {
		return newRecord(0), nil
	}

	s := newStatement(b.dialect).sql("SELECT ")
	for i, c := range columns {
		if i > 0 {
			s.sql(", ")
		}
		switch {
		case c.group == "_count" && c.field == nil:
			s.sql("COUNT(*)")
		case c.group == "_count":
			s.sql("COUNT(").ident(c.field.ColumnName()).sql(")")
		default:
			s.sql(aggregateFunctions[c.group], "(").ident(c.field.ColumnName()).sql(")")
		}
		s.sql(" AS ").ident(fmt.Sprintf("a%d", i))
	}
	s.sql(" FROM ")
	if op.take != nil || op.skip > 0 {
		s.sql("(SELECT * FROM ").ident(op.model.Table).where(op.where).orderBy(op.orderBy).limit(op.take, op.skip)
		s.sql(") ").ident("sub")
	} else {
		s.ident(op.model.Table).where(op.where)
	}

	rows, err := q.Query(ctx, s.String(), s.args...)
	if err != nil {
		return nil, err
	}
	row := map[string]any{}
	if len(rows) > 0 {
		row = rows[0]
	}

	result := newRecord(len(groups) + 1)
	for i, c := range columns {
		value := row[fmt.Sprintf("a%d", i)]
		group, ok := result.get(c.group)
		if !ok {
			group = newRecord(1)
			result.set(c.group, group)
		}
		group.(*record).set(c.name, aggregateValue(op, c, value))
	}
	return result, nil
}

var aggregateFunctions = map[string]string{
	"_min": "MIN",
	"_max": "MAX",
	"_avg": "AVG",
	"_sum": "SUM",
}

func aggregateValue(op *operation, c aggregateColumn, value any) any {
	switch c.group {
	case "_count":
		n, _ := convertToInt(value)
		return n
	case "_avg":
		if value == nil {
			return nil
		}
		if domain.ScalarType(c.field.Type) == domain.ScalarDecimal {
			return outputValue(op.qs, c.field, value)
		}
		f, err := convertToFloat(value)
		if err != nil {
			return nil
		}
		return f
	}
	return outputValue(op.qs, c.field, value)
}

func (b *sqlBackend) raw(ctx context.Context, q interfaces.SQLQueryer, op *operation) (any, error) {
	if op.action == domain.ActionExecuteRaw {
		res, err := q.Exec(ctx, op.rawQuery, op.rawParams...)
		if err != nil {
			return nil, rawQueryFailed(err)
		}
		return res.RowsAffected, nil
	}

	rows, err := q.Query(ctx, op.rawQuery, op.rawParams...)
	if err != nil {
		return nil, rawQueryFailed(err)
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		converted := make(map[string]any, len(row))
		for k, v := range row {
			converted[k] = rawValue(v)
		}
		out[i] = converted
	}
	return out, nil
}

// withDefaults completes a row with client-side defaults and @updatedAt
// stamps. Database-side defaults are left to the database.
func withDefaults(op *operation, row []assignment) ([]assignment, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	out := slices.Clone(row)
	for _, f := range op.model.ScalarFields {
		if _, ok := assigned(row, f.Name); ok {
			continue
		}
		if f.IsUpdatedAt {
			out = append(out, assignment{field: f, value: now})
			continue
		}
		if f.Default != nil {
			value, ok, err := defaultValue(op, f, now)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, assignment{field: f, value: value})
			}
			continue
		}
		if f.IsRequired && !f.IsList {
			path := op.path + ".data." + f.Name
			return nil, domain.NewKnownError(domain.CodeMissingRequiredValue,
				fmt.Sprintf("Missing a required value at `%s`", path),
				map[string]any{"path": path})
		}
	}
	return out, nil
}

func defaultValue(op *operation, f *domain.Field, now time.Time) (any, bool, error) {
	switch f.Default.Function {
	case "uuid", "cuid":
		return uuid.NewString(), true, nil
	case "now":
		return now, true, nil
	case "":
		v, err := coerceInput(op.qs, f, f.Default.Literal)
		if err != nil {
			return nil, false, domain.NewCoreError(domain.CoreQueryError, fmt.Sprintf("invalid default of %s", f.Name), err)
		}
		return v, true, nil
	}
	return nil, false, nil
}

func withUpdatedAt(op *operation) []update {
	if len(op.updates) == 0 {
		return nil
	}
	updates := slices.Clone(op.updates)
	now := time.Now().UTC().Truncate(time.Millisecond)
	for _, f := range op.model.ScalarFields {
		if !f.IsUpdatedAt {
			continue
		}
		explicit := false
		for _, u := range op.updates {
			explicit = explicit || u.field == f
		}
		if !explicit {
			updates = append(updates, update{field: f, op: updateSet, value: now})
		}
	}
	return updates
}

func assigned(row []assignment, name string) (any, bool) {
	for _, a := range row {
		if a.field.Name == name {
			return a.value, true
		}
	}
	return nil, false
}

func identifierFields(mm *domain.ModelMapping) []*domain.Field {
	names := identifier(mm)
	fields := make([]*domain.Field, 0, len(names))
	for _, name := range names {
		f, _ := mm.Field(name)
		fields = append(fields, f)
	}
	return fields
}

// keyFilter addresses the row whose identifier columns hold row's values
func keyFilter(fields []*domain.Field, row map[string]any) filter {
	key := make(andFilter, 0, len(fields))
	for _, f := range fields {
		key = append(key, &fieldFilter{field: f, op: opEquals, value: row[f.ColumnName()]})
	}
	return key
}
