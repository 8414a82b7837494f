package schema

import (
	"encoding/json"
	"strings"

	"github.com/hyperterse/queryengine/core/domain"
)

// Document is the rendered schema metadata (DMMF) consumed by clients
type Document struct {
	Datamodel Datamodel `json:"datamodel"`
	Schema    Schema    `json:"schema"`
	Mappings  Mappings  `json:"mappings"`
}

// Datamodel is the model and enum part of the document
type Datamodel struct {
	Models []Model `json:"models"`
	Enums  []Enum  `json:"enums"`
	Types  []Model `json:"types"`
}

// Model describes one model
type Model struct {
	Name          string        `json:"name"`
	DBName        *string       `json:"dbName"`
	Fields        []Field       `json:"fields"`
	PrimaryKey    *PrimaryKey   `json:"primaryKey"`
	UniqueFields  [][]string    `json:"uniqueFields"`
	UniqueIndexes []UniqueIndex `json:"uniqueIndexes"`
	IsGenerated   bool          `json:"isGenerated"`
	Documentation string        `json:"documentation,omitempty"`
}

// PrimaryKey is set for compound ids only
type PrimaryKey struct {
	Name   *string  `json:"name"`
	Fields []string `json:"fields"`
}

// UniqueIndex is a compound unique constraint
type UniqueIndex struct {
	Name   *string  `json:"name"`
	Fields []string `json:"fields"`
}

// Field describes one model field
type Field struct {
	Name               string   `json:"name"`
	Kind               string   `json:"kind"`
	IsList             bool     `json:"isList"`
	IsRequired         bool     `json:"isRequired"`
	IsUnique           bool     `json:"isUnique"`
	IsID               bool     `json:"isId"`
	IsReadOnly         bool     `json:"isReadOnly"`
	HasDefaultValue    bool     `json:"hasDefaultValue"`
	Type               string   `json:"type"`
	DBName             *string  `json:"dbName"`
	Default            any      `json:"default,omitempty"`
	RelationName       string   `json:"relationName,omitempty"`
	RelationFromFields []string `json:"relationFromFields,omitempty"`
	RelationToFields   []string `json:"relationToFields,omitempty"`
	IsGenerated        bool     `json:"isGenerated"`
	IsUpdatedAt        bool     `json:"isUpdatedAt"`
	Documentation      string   `json:"documentation,omitempty"`
}

// Enum describes one enum
type Enum struct {
	Name   string      `json:"name"`
	Values []EnumValue `json:"values"`
	DBName *string     `json:"dbName"`
}

// EnumValue is one enum value
type EnumValue struct {
	Name   string  `json:"name"`
	DBName *string `json:"dbName"`
}

// Schema lists the input, output and enum types of the query API
type Schema struct {
	InputObjectTypes  map[string][]InputType  `json:"inputObjectTypes"`
	OutputObjectTypes map[string][]OutputType `json:"outputObjectTypes"`
	EnumTypes         map[string][]EnumType   `json:"enumTypes"`
}

// TypeRef points at a scalar, enum, input or output type
type TypeRef struct {
	Type     string `json:"type"`
	Location string `json:"location"`
	IsList   bool   `json:"isList"`
}

// Type locations
const (
	LocationScalar      = "scalar"
	LocationEnumTypes   = "enumTypes"
	LocationInputTypes  = "inputObjectTypes"
	LocationOutputTypes = "outputObjectTypes"
)

// InputType is an input object of the query API
type InputType struct {
	Name   string `json:"name"`
	Fields []Arg  `json:"fields"`
}

// Arg is an input field or an operation argument
type Arg struct {
	Name       string    `json:"name"`
	IsRequired bool      `json:"isRequired"`
	IsNullable bool      `json:"isNullable"`
	InputTypes []TypeRef `json:"inputTypes"`
}

// OutputType is an output object of the query API
type OutputType struct {
	Name   string        `json:"name"`
	Fields []OutputField `json:"fields"`
}

// OutputField is one field of an output object
type OutputField struct {
	Name       string  `json:"name"`
	IsNullable bool    `json:"isNullable"`
	OutputType TypeRef `json:"outputType"`
	Args       []Arg   `json:"args"`
}

// EnumType is an enum of the query API
type EnumType struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Mappings maps models onto their operation names
type Mappings struct {
	ModelOperations []map[string]string `json:"modelOperations"`
	OtherOperations OtherOperations     `json:"otherOperations"`
}

// OtherOperations are the operations not bound to a model
type OtherOperations struct {
	Read  []string `json:"read"`
	Write []string `json:"write"`
}

// RenderDMMF renders the metadata document of a validated schema
func RenderDMMF(validated *domain.ValidatedSchema) ([]byte, error) {
	doc, err := NewDocument(validated)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// NewDocument builds the metadata document of a validated schema
func NewDocument(validated *domain.ValidatedSchema) (*Document, error) {
	provider := domain.ProviderPostgres
	if ds, ok := validated.Datasource(); ok {
		provider = ds.ActiveProvider
	}
	qs, err := Build(validated.Datamodel, provider)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Datamodel: Datamodel{
			Models: make([]Model, 0, len(validated.Datamodel.Models)),
			Enums:  make([]Enum, 0, len(validated.Datamodel.Enums)),
			Types:  []Model{},
		},
		Schema: Schema{
			InputObjectTypes:  map[string][]InputType{"prisma": {}},
			OutputObjectTypes: map[string][]OutputType{"prisma": {}, "model": {}},
			EnumTypes:         map[string][]EnumType{"prisma": {}},
		},
		Mappings: Mappings{
			ModelOperations: []map[string]string{},
			OtherOperations: OtherOperations{
				Read:  []string{string(domain.ActionQueryRaw)},
				Write: []string{string(domain.ActionExecuteRaw)},
			},
		},
	}

	for _, model := range validated.Datamodel.Models {
		doc.Datamodel.Models = append(doc.Datamodel.Models, renderModel(model))
	}
	for _, enum := range validated.Datamodel.Enums {
		doc.Datamodel.Enums = append(doc.Datamodel.Enums, renderEnum(enum))
	}

	renderSchema(doc, qs)
	return doc, nil
}

func renderModel(model *domain.Model) Model {
	out := Model{
		Name:          model.Name,
		DBName:        optional(model.DBName),
		Fields:        make([]Field, 0, len(model.Fields)),
		UniqueFields:  [][]string{},
		UniqueIndexes: []UniqueIndex{},
		Documentation: model.Doc,
	}
	if len(model.PrimaryKey) > 1 {
		out.PrimaryKey = &PrimaryKey{Fields: model.PrimaryKey}
	}
	for _, u := range model.UniqueFields {
		if len(u) > 1 {
			out.UniqueFields = append(out.UniqueFields, u)
			out.UniqueIndexes = append(out.UniqueIndexes, UniqueIndex{Fields: u})
		}
	}

	readOnly := make(map[string]bool)
	for _, f := range model.Fields {
		if f.Relation != nil {
			for _, name := range f.Relation.Fields {
				readOnly[name] = true
			}
		}
	}

	for _, f := range model.Fields {
		field := Field{
			Name:            f.Name,
			Kind:            string(f.Kind),
			IsList:          f.IsList,
			IsRequired:      f.IsRequired,
			IsUnique:        f.IsUnique,
			IsID:            f.IsID,
			IsReadOnly:      readOnly[f.Name],
			HasDefaultValue: f.HasDefault(),
			Type:            f.Type,
			DBName:          optional(f.DBName),
			IsUpdatedAt:     f.IsUpdatedAt,
			Documentation:   f.Doc,
		}
		if f.Default != nil {
			if f.Default.Function != "" {
				field.Default = map[string]any{"name": f.Default.Function, "args": []any{}}
			} else {
				field.Default = f.Default.Literal
			}
		}
		if f.Kind == domain.FieldKindObject && f.Relation != nil {
			field.RelationName = relationName(model.Name, f)
			field.RelationFromFields = nonNil(f.Relation.Fields)
			field.RelationToFields = nonNil(f.Relation.References)
		}
		out.Fields = append(out.Fields, field)
	}
	return out
}

// relationName returns the explicit name or the implicit one, built from
// both model names in alphabetical order.
func relationName(model string, f *domain.Field) string {
	if f.Relation.Name != "" {
		return f.Relation.Name
	}
	a, b := model, f.Type
	if b < a {
		a, b = b, a
	}
	return a + "To" + b
}

func renderEnum(enum *domain.Enum) Enum {
	out := Enum{Name: enum.Name, DBName: optional(enum.DBName), Values: make([]EnumValue, 0, len(enum.Values))}
	for _, v := range enum.Values {
		out.Values = append(out.Values, EnumValue{Name: v.Name, DBName: optional(v.DBName)})
	}
	return out
}

func renderSchema(doc *Document, qs *domain.QuerySchema) {
	query := OutputType{Name: "Query", Fields: []OutputField{}}
	mutation := OutputType{Name: "Mutation", Fields: []OutputField{}}

	for _, name := range qs.Order {
		mm := qs.Models[name]
		doc.Schema.OutputObjectTypes["model"] = append(doc.Schema.OutputObjectTypes["model"], modelOutputType(mm, qs))
		doc.Schema.InputObjectTypes["prisma"] = append(doc.Schema.InputObjectTypes["prisma"], modelInputTypes(mm, qs)...)
		doc.Schema.EnumTypes["prisma"] = append(doc.Schema.EnumTypes["prisma"], scalarFieldEnum(mm))

		if len(mm.Actions) == 0 {
			continue
		}
		ops := map[string]string{"model": name, "plural": plural(name)}
		for _, action := range mm.Actions {
			key := action.ResultKey(name)
			ops[string(action)] = key
			field := actionField(action, mm)
			if action.IsWrite() {
				mutation.Fields = append(mutation.Fields, field)
			} else {
				query.Fields = append(query.Fields, field)
			}
		}
		doc.Mappings.ModelOperations = append(doc.Mappings.ModelOperations, ops)
	}

	jsonRef := scalarRef("Json")
	rawArgs := []Arg{
		{Name: "query", IsRequired: true, InputTypes: []TypeRef{scalarRef("String")}},
		{Name: "parameters", InputTypes: []TypeRef{jsonRef}},
	}
	query.Fields = append(query.Fields, OutputField{Name: string(domain.ActionQueryRaw), OutputType: jsonRef, Args: rawArgs})
	mutation.Fields = append(mutation.Fields, OutputField{Name: string(domain.ActionExecuteRaw), OutputType: jsonRef, Args: rawArgs})

	doc.Schema.OutputObjectTypes["prisma"] = append(doc.Schema.OutputObjectTypes["prisma"],
		query,
		mutation,
		OutputType{Name: "AffectedRowsOutput", Fields: []OutputField{
			{Name: "count", OutputType: scalarRef("Int"), Args: []Arg{}},
		}},
	)

	doc.Schema.EnumTypes["prisma"] = append(doc.Schema.EnumTypes["prisma"],
		EnumType{Name: "SortOrder", Values: []string{"asc", "desc"}},
		EnumType{Name: "QueryMode", Values: []string{"default", "insensitive"}},
	)
	if levels := isolationLevels(qs.Provider); len(levels) > 0 {
		doc.Schema.EnumTypes["prisma"] = append(doc.Schema.EnumTypes["prisma"],
			EnumType{Name: "TransactionIsolationLevel", Values: levels})
	}

	if len(qs.Enums) > 0 {
		modelEnums := make([]EnumType, 0, len(qs.Enums))
		for _, e := range doc.Datamodel.Enums {
			values := make([]string, len(e.Values))
			for i, v := range e.Values {
				values[i] = v.Name
			}
			modelEnums = append(modelEnums, EnumType{Name: e.Name, Values: values})
		}
		doc.Schema.EnumTypes["model"] = modelEnums
	}
}

func modelOutputType(mm *domain.ModelMapping, qs *domain.QuerySchema) OutputType {
	out := OutputType{Name: mm.Model.Name, Fields: make([]OutputField, 0, len(mm.Model.Fields))}
	for _, f := range mm.Model.Fields {
		out.Fields = append(out.Fields, OutputField{
			Name:       f.Name,
			IsNullable: !f.IsRequired && !f.IsList,
			OutputType: fieldRef(f, qs, LocationOutputTypes),
			Args:       []Arg{},
		})
	}
	return out
}

func modelInputTypes(mm *domain.ModelMapping, qs *domain.QuerySchema) []InputType {
	name := mm.Model.Name
	whereRef := TypeRef{Type: name + "WhereInput", Location: LocationInputTypes}

	where := InputType{Name: name + "WhereInput", Fields: []Arg{
		{Name: "AND", InputTypes: []TypeRef{whereRef, listOf(whereRef)}},
		{Name: "OR", InputTypes: []TypeRef{listOf(whereRef)}},
		{Name: "NOT", InputTypes: []TypeRef{whereRef, listOf(whereRef)}},
	}}
	unique := InputType{Name: name + "WhereUniqueInput", Fields: []Arg{}}
	orderBy := InputType{Name: name + "OrderByWithRelationInput", Fields: []Arg{}}
	create := InputType{Name: name + "CreateInput", Fields: []Arg{}}
	update := InputType{Name: name + "UpdateInput", Fields: []Arg{}}

	uniqueFields := make(map[string]bool)
	for _, u := range append([][]string{mm.PrimaryKey}, mm.Uniques...) {
		if len(u) == 1 {
			uniqueFields[u[0]] = true
		}
	}

	sortOrder := TypeRef{Type: "SortOrder", Location: LocationEnumTypes}
	for _, f := range mm.ScalarFields {
		ref := fieldRef(f, qs, LocationInputTypes)
		filter := TypeRef{Type: filterName(f), Location: LocationInputTypes}
		nullable := !f.IsRequired && !f.IsList

		where.Fields = append(where.Fields, Arg{Name: f.Name, IsNullable: nullable, InputTypes: []TypeRef{filter, ref}})
		if uniqueFields[f.Name] {
			unique.Fields = append(unique.Fields, Arg{Name: f.Name, InputTypes: []TypeRef{ref}})
		}
		orderBy.Fields = append(orderBy.Fields, Arg{Name: f.Name, InputTypes: []TypeRef{sortOrder}})

		required := f.IsRequired && !f.HasDefault() && !f.IsUpdatedAt
		create.Fields = append(create.Fields, Arg{Name: f.Name, IsRequired: required, IsNullable: nullable, InputTypes: []TypeRef{ref}})
		update.Fields = append(update.Fields, Arg{Name: f.Name, IsNullable: nullable, InputTypes: []TypeRef{ref}})
	}

	return []InputType{where, unique, orderBy, create, update}
}

func scalarFieldEnum(mm *domain.ModelMapping) EnumType {
	values := make([]string, len(mm.ScalarFields))
	for i, f := range mm.ScalarFields {
		values[i] = f.Name
	}
	return EnumType{Name: mm.Model.Name + "ScalarFieldEnum", Values: values}
}

func actionField(action domain.Action, mm *domain.ModelMapping) OutputField {
	name := mm.Model.Name
	model := TypeRef{Type: name, Location: LocationOutputTypes}
	where := TypeRef{Type: name + "WhereInput", Location: LocationInputTypes}
	whereUnique := TypeRef{Type: name + "WhereUniqueInput", Location: LocationInputTypes}
	data := TypeRef{Type: name + "CreateInput", Location: LocationInputTypes}
	updateData := TypeRef{Type: name + "UpdateInput", Location: LocationInputTypes}
	orderBy := TypeRef{Type: name + "OrderByWithRelationInput", Location: LocationInputTypes}
	affected := TypeRef{Type: "AffectedRowsOutput", Location: LocationOutputTypes}
	intRef := scalarRef("Int")

	listArgs := []Arg{
		{Name: "where", InputTypes: []TypeRef{where}},
		{Name: "orderBy", InputTypes: []TypeRef{orderBy, listOf(orderBy)}},
		{Name: "take", InputTypes: []TypeRef{intRef}},
		{Name: "skip", InputTypes: []TypeRef{intRef}},
	}

	field := OutputField{Name: action.ResultKey(name), OutputType: model, Args: []Arg{}}
	switch action {
	case domain.ActionFindUnique, domain.ActionFindUniqueOrThrow:
		field.IsNullable = action == domain.ActionFindUnique
		field.Args = []Arg{{Name: "where", IsRequired: true, InputTypes: []TypeRef{whereUnique}}}
	case domain.ActionFindFirst, domain.ActionFindFirstOrThrow:
		field.IsNullable = action == domain.ActionFindFirst
		field.Args = listArgs
	case domain.ActionFindMany:
		field.OutputType = listOf(model)
		field.Args = listArgs
	case domain.ActionCreateOne:
		field.Args = []Arg{{Name: "data", IsRequired: true, InputTypes: []TypeRef{data}}}
	case domain.ActionCreateMany:
		field.OutputType = affected
		field.Args = []Arg{
			{Name: "data", IsRequired: true, InputTypes: []TypeRef{data, listOf(data)}},
			{Name: "skipDuplicates", InputTypes: []TypeRef{scalarRef("Boolean")}},
		}
	case domain.ActionUpdateOne:
		field.IsNullable = true
		field.Args = []Arg{
			{Name: "data", IsRequired: true, InputTypes: []TypeRef{updateData}},
			{Name: "where", IsRequired: true, InputTypes: []TypeRef{whereUnique}},
		}
	case domain.ActionUpdateMany:
		field.OutputType = affected
		field.Args = []Arg{
			{Name: "data", IsRequired: true, InputTypes: []TypeRef{updateData}},
			{Name: "where", InputTypes: []TypeRef{where}},
		}
	case domain.ActionDeleteOne:
		field.IsNullable = true
		field.Args = []Arg{{Name: "where", IsRequired: true, InputTypes: []TypeRef{whereUnique}}}
	case domain.ActionDeleteMany:
		field.OutputType = affected
		field.Args = []Arg{{Name: "where", InputTypes: []TypeRef{where}}}
	case domain.ActionAggregate:
		field.OutputType = TypeRef{Type: "Aggregate" + name, Location: LocationOutputTypes}
		field.Args = listArgs
	}
	return field
}

func fieldRef(f *domain.Field, qs *domain.QuerySchema, objectLocation string) TypeRef {
	ref := TypeRef{Type: f.Type, Location: LocationScalar, IsList: f.IsList}
	switch f.Kind {
	case domain.FieldKindEnum:
		ref.Location = LocationEnumTypes
	case domain.FieldKindObject:
		ref.Location = objectLocation
	}
	if _, ok := qs.Enums[f.Type]; ok {
		ref.Location = LocationEnumTypes
	}
	return ref
}

func filterName(f *domain.Field) string {
	name := f.Type
	if f.Kind == domain.FieldKindEnum {
		name = "Enum" + f.Type
	}
	if f.IsList {
		return name + "NullableListFilter"
	}
	if !f.IsRequired {
		return name + "NullableFilter"
	}
	return name + "Filter"
}

func isolationLevels(provider string) []string {
	switch provider {
	case domain.ProviderPostgres, domain.ProviderMySQL:
		return []string{
			domain.IsolationReadUncommitted,
			domain.IsolationReadCommitted,
			domain.IsolationRepeatableRead,
			domain.IsolationSerializable,
		}
	case domain.ProviderSQLite:
		return []string{domain.IsolationSerializable}
	}
	return nil
}

func scalarRef(name string) TypeRef {
	return TypeRef{Type: name, Location: LocationScalar}
}

func listOf(ref TypeRef) TypeRef {
	ref.IsList = true
	return ref
}

func plural(name string) string {
	lower := strings.ToLower(name[:1]) + name[1:]
	switch {
	case strings.HasSuffix(lower, "s"), strings.HasSuffix(lower, "x"), strings.HasSuffix(lower, "ch"):
		return lower + "es"
	case strings.HasSuffix(lower, "y") && len(lower) > 1 && !strings.ContainsRune("aeiou", rune(lower[len(lower)-2])):
		return lower[:len(lower)-1] + "ies"
	}
	return lower + "s"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
