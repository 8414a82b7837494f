package domain

// ModelMapping is the executable view of a model: which columns back which
// fields and how rows are identified.
type ModelMapping struct {
	Model        *Model
	Table        string
	ScalarFields []*Field
	PrimaryKey   []string
	Uniques      [][]string
	Actions      []Action

	byName map[string]*Field
}

// NewModelMapping indexes the scalar and enum fields of model
func NewModelMapping(model *Model) *ModelMapping {
	mm := &ModelMapping{
		Model:  model,
		Table:  model.TableName(),
		byName: make(map[string]*Field, len(model.Fields)),
	}
	for _, f := range model.Fields {
		if f.Kind == FieldKindObject {
			continue
		}
		mm.ScalarFields = append(mm.ScalarFields, f)
		mm.byName[f.Name] = f
	}
	return mm
}

// Field returns the scalar or enum field with the given name
func (m *ModelMapping) Field(name string) (*Field, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// IsUniqueCriteria reports whether fields, in any order, form the primary key
// or one of the unique constraints.
func (m *ModelMapping) IsUniqueCriteria(fields []string) bool {
	if sameSet(fields, m.PrimaryKey) {
		return true
	}
	for _, u := range m.Uniques {
		if sameSet(fields, u) {
			return true
		}
	}
	return false
}

// CoversUniqueCriteria reports whether fields contain at least one complete
// unique criteria.
func (m *ModelMapping) CoversUniqueCriteria(fields []string) bool {
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	covers := func(crit []string) bool {
		if len(crit) == 0 {
			return false
		}
		for _, c := range crit {
			if !set[c] {
				return false
			}
		}
		return true
	}
	if covers(m.PrimaryKey) {
		return true
	}
	for _, u := range m.Uniques {
		if covers(u) {
			return true
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}

// QuerySchema is the executable form of a validated schema for one provider.
type QuerySchema struct {
	Provider string
	Models   map[string]*ModelMapping
	Order    []string
	Enums    map[string]*Enum
}

// Model looks up a model mapping by model name
func (q *QuerySchema) Model(name string) (*ModelMapping, bool) {
	m, ok := q.Models[name]
	return m, ok
}

// Supports reports whether the model supports the action
func (m *ModelMapping) Supports(action Action) bool {
	for _, a := range m.Actions {
		if a == action {
			return true
		}
	}
	return false
}
