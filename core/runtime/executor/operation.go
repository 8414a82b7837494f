package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/hyperterse/queryengine/core/domain"
)

type filterOp string

const (
	opEquals     filterOp = "equals"
	opNot        filterOp = "not"
	opIn         filterOp = "in"
	opNotIn      filterOp = "notIn"
	opLt         filterOp = "lt"
	opLte        filterOp = "lte"
	opGt         filterOp = "gt"
	opGte        filterOp = "gte"
	opContains   filterOp = "contains"
	opStartsWith filterOp = "startsWith"
	opEndsWith   filterOp = "endsWith"
)

func (op filterOp) isText() bool {
	return op == opContains || op == opStartsWith || op == opEndsWith
}

// filter is a node of a parsed where tree
type filter interface {
	isFilter()
}

type (
	andFilter []filter
	orFilter  []filter
	// notFilter matches rows on which the conjunction of its children fails
	notFilter []filter
)

// fieldFilter compares one field. value holds a []any for in and notIn.
type fieldFilter struct {
	field       *domain.Field
	op          filterOp
	value       any
	insensitive bool
}

func (andFilter) isFilter()    {}
func (orFilter) isFilter()     {}
func (notFilter) isFilter()    {}
func (*fieldFilter) isFilter() {}

type orderTerm struct {
	field *domain.Field
	desc  bool
	nulls string
}

type assignment struct {
	field *domain.Field
	value any
}

// Update operators
const (
	updateSet       = "set"
	updateIncrement = "increment"
	updateDecrement = "decrement"
	updateMultiply  = "multiply"
	updateDivide    = "divide"
)

type update struct {
	field *domain.Field
	op    string
	value any
}

type aggregation struct {
	count []string
	min   []*domain.Field
	max   []*domain.Field
	avg   []*domain.Field
	sum   []*domain.Field
}

// operation is one request validated against the query schema
type operation struct {
	action domain.Action
	qs     *domain.QuerySchema
	model  *domain.ModelMapping
	path   string

	where          filter
	orderBy        []orderTerm
	take           *int64
	skip           int64
	selection      []*domain.Field
	rows           [][]assignment
	updates        []update
	skipDuplicates bool
	aggregate      *aggregation

	rawQuery  string
	rawParams []any
}

// resultKey is the key of the result inside "data"
func (op *operation) resultKey() string {
	if op.model == nil {
		return string(op.action)
	}
	return op.action.ResultKey(op.model.Model.Name)
}

var actionArguments = map[domain.Action][]string{
	domain.ActionFindUnique:        {"where"},
	domain.ActionFindUniqueOrThrow: {"where"},
	domain.ActionFindFirst:         {"where", "orderBy", "take", "skip"},
	domain.ActionFindFirstOrThrow:  {"where", "orderBy", "take", "skip"},
	domain.ActionFindMany:          {"where", "orderBy", "take", "skip"},
	domain.ActionCreateOne:         {"data"},
	domain.ActionCreateMany:        {"data", "skipDuplicates"},
	domain.ActionUpdateOne:         {"where", "data"},
	domain.ActionUpdateMany:        {"where", "data"},
	domain.ActionDeleteOne:         {"where"},
	domain.ActionDeleteMany:        {"where"},
	domain.ActionAggregate:         {"where", "orderBy", "take", "skip"},
	domain.ActionExecuteRaw:        {"query", "parameters"},
	domain.ActionQueryRaw:          {"query", "parameters"},
}

var unsupportedArguments = []string{"cursor", "distinct", "include", "select", "relationLoadStrategy"}

// parseOperation validates req against qs
func parseOperation(qs *domain.QuerySchema, req domain.QueryRequest) (*operation, error) {
	root := "Query"
	if req.Action.IsWrite() {
		root = "Mutation"
	}
	op := &operation{
		action: req.Action,
		qs:     qs,
		path:   root + "." + req.Action.ResultKey(req.ModelName),
	}

	allowed, ok := actionArguments[req.Action]
	if !ok {
		return nil, validationError(root, "Operation `%s` does not exist", req.Action)
	}
	args := req.Query.Arguments
	for _, key := range sortedKeys(args) {
		if slices.Contains(allowed, key) {
			continue
		}
		if slices.Contains(unsupportedArguments, key) {
			return nil, validationError(op.path, "Argument `%s` is not supported", key)
		}
		return nil, validationError(op.path, "Unknown argument `%s`.", key)
	}

	if req.Action.IsRaw() {
		return op, op.parseRaw(args)
	}

	if req.ModelName == "" {
		return nil, validationError(op.path, "Operation `%s` requires a model", req.Action)
	}
	mm, ok := qs.Model(req.ModelName)
	if !ok {
		return nil, validationError(op.path, "Model `%s` does not exist", req.ModelName)
	}
	if !mm.Supports(req.Action) {
		return nil, validationError(op.path, "Operation `%s` is not available on model `%s`", req.Action, req.ModelName)
	}
	op.model = mm

	if err := op.parseArguments(args); err != nil {
		return nil, err
	}

	switch req.Action {
	case domain.ActionAggregate:
		return op, op.parseAggregate(req.Query.Selection)
	case domain.ActionCreateMany, domain.ActionUpdateMany, domain.ActionDeleteMany:
		return op, nil
	}
	return op, op.parseSelection(req.Query.Selection)
}

func (op *operation) parseArguments(args map[string]any) error {
	var equalities []string
	if raw, ok := args["where"]; ok && raw != nil {
		where, ok := raw.(map[string]any)
		if !ok {
			return validationError(op.path+".where", "Expected an object, got %s", describe(raw))
		}
		f, eq, err := op.parseWhere(op.path+".where", where)
		if err != nil {
			return err
		}
		op.where, equalities = f, eq
	}

	switch op.action {
	case domain.ActionFindUnique, domain.ActionFindUniqueOrThrow, domain.ActionUpdateOne, domain.ActionDeleteOne:
		if !op.model.CoversUniqueCriteria(equalities) {
			return validationError(op.path+".where",
				"Argument `where` of type %sWhereUniqueInput needs at least one of `%s` arguments.",
				op.model.Model.Name, strings.Join(uniqueCriteriaNames(op.model), "` or `"))
		}
	}

	if raw, ok := args["orderBy"]; ok && raw != nil {
		if err := op.parseOrderBy(raw); err != nil {
			return err
		}
	}
	if raw, ok := args["take"]; ok && raw != nil {
		n, err := convertToInt(raw)
		if err != nil {
			return validationError(op.path+".take", "Invalid value for argument `take`: %v", err)
		}
		op.take = &n
	}
	if raw, ok := args["skip"]; ok && raw != nil {
		n, err := convertToInt(raw)
		if err != nil || n < 0 {
			return validationError(op.path+".skip", "Invalid value for argument `skip`: expected a non-negative integer")
		}
		op.skip = n
	}

	if raw, ok := args["skipDuplicates"]; ok && raw != nil {
		b, ok := raw.(bool)
		if !ok {
			return validationError(op.path+".skipDuplicates", "Expected a boolean, got %s", describe(raw))
		}
		op.skipDuplicates = b
	}

	switch op.action {
	case domain.ActionCreateOne:
		data, _ := args["data"].(map[string]any)
		if data == nil {
			data = map[string]any{}
		}
		row, err := op.parseAssignments(op.path+".data", data)
		if err != nil {
			return err
		}
		op.rows = [][]assignment{row}
	case domain.ActionCreateMany:
		var items []any
		switch data := args["data"].(type) {
		case []any:
			items = data
		case map[string]any:
			items = []any{data}
		default:
			return validationError(op.path, "Argument `data` is missing.")
		}
		for i, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return validationError(fmt.Sprintf("%s.data.%d", op.path, i), "Expected an object, got %s", describe(item))
			}
			row, err := op.parseAssignments(fmt.Sprintf("%s.data.%d", op.path, i), m)
			if err != nil {
				return err
			}
			op.rows = append(op.rows, row)
		}
	case domain.ActionUpdateOne, domain.ActionUpdateMany:
		data, ok := args["data"].(map[string]any)
		if !ok {
			return validationError(op.path, "Argument `data` is missing.")
		}
		updates, err := op.parseUpdates(op.path+".data", data)
		if err != nil {
			return err
		}
		op.updates = updates
	}
	return nil
}

// parseWhere returns the filter and the fields compared for equality at
// the top level, which decide whether a where is unique.
func (op *operation) parseWhere(path string, where map[string]any) (filter, []string, error) {
	var terms andFilter
	var equalities []string
	for _, key := range sortedKeys(where) {
		value := where[key]
		switch key {
		case "AND", "OR", "NOT":
			children, err := op.parseWhereList(path+"."+key, value)
			if err != nil {
				return nil, nil, err
			}
			switch key {
			case "AND":
				terms = append(terms, andFilter(children))
			case "OR":
				terms = append(terms, orFilter(children))
			case "NOT":
				terms = append(terms, notFilter(children))
			}
			continue
		}

		if field, ok := op.model.Field(key); ok {
			filters, eq, err := op.parseFieldFilter(path+"."+key, field, value)
			if err != nil {
				return nil, nil, err
			}
			terms = append(terms, filters...)
			if eq {
				equalities = append(equalities, key)
			}
			continue
		}

		if criteria := compoundCriteria(op.model, key); criteria != nil {
			values, ok := value.(map[string]any)
			if !ok {
				return nil, nil, validationError(path+"."+key, "Expected an object, got %s", describe(value))
			}
			for _, name := range criteria {
				field, _ := op.model.Field(name)
				v, ok := values[name]
				if !ok {
					return nil, nil, validationError(path+"."+key, "Argument `%s` is missing.", name)
				}
				coerced, err := coerceInput(op.qs, field, v)
				if err != nil {
					return nil, nil, validationError(path+"."+key+"."+name, "Invalid value for argument `%s`: %v", name, err)
				}
				terms = append(terms, &fieldFilter{field: field, op: opEquals, value: coerced})
			}
			equalities = append(equalities, criteria...)
			continue
		}

		if _, ok := op.model.Model.Field(key); ok {
			return nil, nil, validationError(path+"."+key, "Relation filters are not supported")
		}
		return nil, nil, validationError(path, "Unknown argument `%s`.", key)
	}
	return terms, equalities, nil
}

func (op *operation) parseWhereList(path string, value any) ([]filter, error) {
	var items []any
	switch v := value.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, validationError(path, "Expected an object or a list of objects, got %s", describe(value))
	}
	children := make([]filter, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, validationError(fmt.Sprintf("%s.%d", path, i), "Expected an object, got %s", describe(item))
		}
		f, _, err := op.parseWhere(fmt.Sprintf("%s.%d", path, i), m)
		if err != nil {
			return nil, err
		}
		children = append(children, f)
	}
	return children, nil
}

func (op *operation) parseFieldFilter(path string, field *domain.Field, value any) ([]filter, bool, error) {
	ops, ok := value.(map[string]any)
	if !ok || isTagged(ops) {
		coerced, err := coerceInput(op.qs, field, value)
		if err != nil {
			return nil, false, validationError(path, "Invalid value for argument `%s`: %v", field.Name, err)
		}
		return []filter{&fieldFilter{field: field, op: opEquals, value: coerced}}, true, nil
	}

	insensitive := false
	if mode, ok := ops["mode"]; ok {
		switch mode {
		case "insensitive":
			insensitive = true
		case "default", nil:
		default:
			return nil, false, validationError(path+".mode", "Invalid value for argument `mode`: expected default or insensitive")
		}
		if insensitive && domain.ScalarType(field.Type) != domain.ScalarString {
			return nil, false, validationError(path+".mode", "Argument `mode` is only available on String fields")
		}
	}

	var filters []filter
	for _, key := range sortedKeys(ops) {
		if key == "mode" {
			continue
		}
		raw := ops[key]
		fop := filterOp(key)
		switch fop {
		case opEquals, opLt, opLte, opGt, opGte:
			coerced, err := coerceInput(op.qs, field, raw)
			if err != nil {
				return nil, false, validationError(path+"."+key, "Invalid value for argument `%s`: %v", key, err)
			}
			filters = append(filters, &fieldFilter{field: field, op: fop, value: coerced, insensitive: insensitive})
		case opContains, opStartsWith, opEndsWith:
			if domain.ScalarType(field.Type) != domain.ScalarString {
				return nil, false, validationError(path+"."+key, "Argument `%s` is only available on String fields", key)
			}
			s, ok := raw.(string)
			if !ok {
				return nil, false, validationError(path+"."+key, "Expected a string, got %s", describe(raw))
			}
			filters = append(filters, &fieldFilter{field: field, op: fop, value: s, insensitive: insensitive})
		case opIn, opNotIn:
			list, ok := raw.([]any)
			if !ok {
				list = []any{raw}
			}
			values := make([]any, len(list))
			for i, item := range list {
				coerced, err := coerceInput(op.qs, field, item)
				if err != nil {
					return nil, false, validationError(fmt.Sprintf("%s.%s.%d", path, key, i), "Invalid value for argument `%s`: %v", key, err)
				}
				values[i] = coerced
			}
			filters = append(filters, &fieldFilter{field: field, op: fop, value: values, insensitive: insensitive})
		case opNot:
			if nested, ok := raw.(map[string]any); ok && !isTagged(nested) {
				if insensitive {
					nested["mode"] = "insensitive"
				}
				inner, _, err := op.parseFieldFilter(path+".not", field, nested)
				if err != nil {
					return nil, false, err
				}
				filters = append(filters, notFilter(inner))
				continue
			}
			coerced, err := coerceInput(op.qs, field, raw)
			if err != nil {
				return nil, false, validationError(path+".not", "Invalid value for argument `not`: %v", err)
			}
			filters = append(filters, &fieldFilter{field: field, op: opNot, value: coerced, insensitive: insensitive})
		default:
			return nil, false, validationError(path, "Unknown argument `%s`.", key)
		}
	}

	eq := len(filters) == 1 && !insensitive
	if eq {
		ff, ok := filters[0].(*fieldFilter)
		eq = ok && ff.op == opEquals && ff.value != nil
	}
	return filters, eq, nil
}

func (op *operation) parseOrderBy(raw any) error {
	path := op.path + ".orderBy"
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return validationError(path, "Expected an object or a list of objects, got %s", describe(raw))
	}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return validationError(path, "Expected an object, got %s", describe(item))
		}
		for _, key := range sortedKeys(m) {
			field, ok := op.model.Field(key)
			if !ok {
				if _, rel := op.model.Model.Field(key); rel {
					return validationError(path+"."+key, "Ordering by relations is not supported")
				}
				return validationError(path, "Unknown argument `%s`.", key)
			}
			term := orderTerm{field: field}
			dir := m[key]
			if spec, ok := dir.(map[string]any); ok {
				dir = spec["sort"]
				if nulls, ok := spec["nulls"].(string); ok {
					if nulls != "first" && nulls != "last" {
						return validationError(path+"."+key+".nulls", "Expected first or last, got %s", nulls)
					}
					term.nulls = nulls
				}
			}
			switch dir {
			case "asc":
			case "desc":
				term.desc = true
			default:
				return validationError(path+"."+key, "Expected asc or desc, got %s", describe(dir))
			}
			op.orderBy = append(op.orderBy, term)
		}
	}
	return nil
}

func (op *operation) parseAssignments(path string, data map[string]any) ([]assignment, error) {
	row := make([]assignment, 0, len(data))
	for _, key := range sortedKeys(data) {
		field, err := op.writableField(path, key)
		if err != nil {
			return nil, err
		}
		value := data[key]
		if set, ok := value.(map[string]any); ok && !isTagged(set) {
			if v, ok := set[updateSet]; ok && len(set) == 1 {
				value = v
			}
		}
		if value == nil && field.IsRequired {
			return nil, validationError(path+"."+key, "Argument `%s` must not be null.", key)
		}
		coerced, err := coerceInput(op.qs, field, value)
		if err != nil {
			return nil, validationError(path+"."+key, "Invalid value for argument `%s`: %v", key, err)
		}
		row = append(row, assignment{field: field, value: coerced})
	}
	return row, nil
}

func (op *operation) parseUpdates(path string, data map[string]any) ([]update, error) {
	updates := make([]update, 0, len(data))
	for _, key := range sortedKeys(data) {
		field, err := op.writableField(path, key)
		if err != nil {
			return nil, err
		}
		u := update{field: field, op: updateSet, value: data[key]}
		if ops, ok := u.value.(map[string]any); ok && !isTagged(ops) {
			if len(ops) != 1 {
				return nil, validationError(path+"."+key, "Expected exactly one update operation")
			}
			for name, v := range ops {
				u.op, u.value = name, v
			}
			switch u.op {
			case updateSet:
			case updateIncrement, updateDecrement, updateMultiply, updateDivide:
				if !isNumeric(field) {
					return nil, validationError(path+"."+key, "Argument `%s` is only available on numeric fields", u.op)
				}
			default:
				return nil, validationError(path+"."+key, "Unknown argument `%s`.", u.op)
			}
		}
		if u.value == nil && (u.op != updateSet || field.IsRequired) {
			return nil, validationError(path+"."+key, "Argument `%s` must not be null.", key)
		}
		coerced, err := coerceInput(op.qs, field, u.value)
		if err != nil {
			return nil, validationError(path+"."+key, "Invalid value for argument `%s`: %v", key, err)
		}
		u.value = coerced
		updates = append(updates, u)
	}
	return updates, nil
}

func (op *operation) writableField(path, key string) (*domain.Field, error) {
	if field, ok := op.model.Field(key); ok {
		return field, nil
	}
	if _, ok := op.model.Model.Field(key); ok {
		return nil, validationError(path+"."+key, "Nested writes are not supported")
	}
	return nil, validationError(path, "Unknown argument `%s`.", key)
}

func (op *operation) parseSelection(selection map[string]any) error {
	path := op.path + ".selection"
	all := len(selection) == 0 || selection["$scalars"] == true
	explicit := make(map[string]bool, len(selection))
	for _, key := range sortedKeys(selection) {
		if strings.HasPrefix(key, "$") {
			continue
		}
		if _, ok := op.model.Field(key); ok {
			b, ok := selection[key].(bool)
			if !ok {
				return validationError(path+"."+key, "Expected a boolean, got %s", describe(selection[key]))
			}
			explicit[key] = b
			continue
		}
		if _, ok := op.model.Model.Field(key); ok || key == "_count" {
			return validationError(path+"."+key, "Relation selections are not supported")
		}
		return validationError(path, "Unknown field `%s` for select statement on model `%s`.", key, op.model.Model.Name)
	}

	for _, f := range op.model.ScalarFields {
		include := all
		if v, ok := explicit[f.Name]; ok {
			include = v
		}
		if include {
			op.selection = append(op.selection, f)
		}
	}
	if len(op.selection) == 0 {
		return validationError(path, "Expected a minimum of 1 field to be present, got 0.")
	}
	return nil
}

func (op *operation) parseAggregate(selection map[string]any) error {
	path := op.path + ".selection"
	agg := &aggregation{}
	for _, key := range sortedKeys(selection) {
		names, err := op.aggregateFields(path+"."+key, key, selection[key])
		if err != nil {
			return err
		}
		if key == "_count" {
			agg.count = names
			continue
		}
		fields := make([]*domain.Field, 0, len(names))
		for _, name := range names {
			field, _ := op.model.Field(name)
			if (key == "_avg" || key == "_sum") && !isNumeric(field) {
				return validationError(path+"."+key+"."+name, "Field `%s` is not numeric", name)
			}
			fields = append(fields, field)
		}
		switch key {
		case "_min":
			agg.min = fields
		case "_max":
			agg.max = fields
		case "_avg":
			agg.avg = fields
		case "_sum":
			agg.sum = fields
		default:
			return validationError(path, "Unknown field `%s` for aggregate.", key)
		}
	}
	op.aggregate = agg
	return nil
}

// aggregateFields accepts `true`, `{"selection": {...}}` and `{field: true}`
func (op *operation) aggregateFields(path, key string, value any) ([]string, error) {
	if value == true {
		if key == "_count" {
			return []string{"_all"}, nil
		}
		return nil, validationError(path, "Expected an object, got a boolean")
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, validationError(path, "Expected an object, got %s", describe(value))
	}
	if nested, ok := m["selection"].(map[string]any); ok {
		m = nested
	}
	var names []string
	if m["$scalars"] == true {
		for _, f := range op.model.ScalarFields {
			if key == "_count" || key == "_min" || key == "_max" || isNumeric(f) {
				names = append(names, f.Name)
			}
		}
	}
	for _, name := range sortedKeys(m) {
		if strings.HasPrefix(name, "$") || m[name] != true {
			continue
		}
		if name == "_all" && key == "_count" {
			names = append([]string{"_all"}, names...)
			continue
		}
		if _, ok := op.model.Field(name); !ok {
			return nil, validationError(path, "Unknown field `%s` for aggregate.", name)
		}
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (op *operation) parseRaw(args map[string]any) error {
	query, ok := args["query"].(string)
	if !ok {
		return validationError(op.path+".query", "Argument `query` is missing.")
	}
	op.rawQuery = query

	var params []any
	switch p := args["parameters"].(type) {
	case nil:
	case string:
		dec := json.NewDecoder(bytes.NewReader([]byte(p)))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			return validationError(op.path+".parameters", "Invalid parameters: %v", err)
		}
	case []any:
		params = p
	default:
		return validationError(op.path+".parameters", "Expected a list, got %s", describe(p))
	}
	op.rawParams = make([]any, len(params))
	for i, p := range params {
		v, err := rawParameter(p)
		if err != nil {
			return validationError(fmt.Sprintf("%s.parameters.%d", op.path, i), "Invalid parameter: %v", err)
		}
		op.rawParams[i] = v
	}
	return nil
}

// compoundCriteria resolves a compound unique key such as authorId_title
func compoundCriteria(mm *domain.ModelMapping, key string) []string {
	if len(mm.PrimaryKey) > 1 && strings.Join(mm.PrimaryKey, "_") == key {
		return mm.PrimaryKey
	}
	for _, u := range mm.Uniques {
		if len(u) > 1 && strings.Join(u, "_") == key {
			return u
		}
	}
	return nil
}

func uniqueCriteriaNames(mm *domain.ModelMapping) []string {
	var names []string
	if len(mm.PrimaryKey) > 0 {
		names = append(names, strings.Join(mm.PrimaryKey, "_"))
	}
	for _, u := range mm.Uniques {
		names = append(names, strings.Join(u, "_"))
	}
	return names
}

// identifier is the set of fields used to address a single row
func identifier(mm *domain.ModelMapping) []string {
	if len(mm.PrimaryKey) > 0 {
		return mm.PrimaryKey
	}
	if len(mm.Uniques) > 0 {
		return mm.Uniques[0]
	}
	return nil
}

func isNumeric(field *domain.Field) bool {
	switch domain.ScalarType(field.Type) {
	case domain.ScalarInt, domain.ScalarBigInt, domain.ScalarFloat, domain.ScalarDecimal:
		return !field.IsList && field.Kind == domain.FieldKindScalar
	}
	return false
}

func isTagged(m map[string]any) bool {
	_, ok := m["$type"]
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
