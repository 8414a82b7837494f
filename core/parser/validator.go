package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/logger"
)

var (
	// log is the logger instance for the parser package
	log = logger.New("parser")
)

// ParseSchema parses and validates schema text. The returned schema is nil
// whenever the diagnostics contain errors.
func ParseSchema(raw string) (*domain.ValidatedSchema, domain.Diagnostics) {
	ast, diags := NewParser(raw).Parse()
	config := validateConfiguration(ast, &diags)

	provider := ""
	if ds, ok := config.Datasource(); ok {
		provider = ds.ActiveProvider
	}
	datamodel := validateDatamodel(ast, provider, &diags)

	if diags.HasErrors() {
		log.Debugf("Schema has %d error(s)", len(diags.Errors))
		return nil, diags
	}
	return &domain.ValidatedSchema{
		Raw:           raw,
		Configuration: config,
		Datamodel:     datamodel,
		Warnings:      diags.Warnings,
	}, diags
}

// ParseConfiguration parses schema text and validates only its datasource
// and generator blocks.
func ParseConfiguration(raw string) (*domain.Configuration, domain.Diagnostics) {
	ast, diags := NewParser(raw).Parse()
	config := validateConfiguration(ast, &diags)
	return config, diags
}

// Validate reports every error and warning in the schema text
func Validate(raw string) domain.Diagnostics {
	_, diags := ParseSchema(raw)
	return diags
}

type datamodelValidator struct {
	provider string
	diags    *domain.Diagnostics
	models   map[string]*ModelBlock
	enums    map[string]*EnumBlock
}

func validateDatamodel(ast *SchemaAST, provider string, diags *domain.Diagnostics) *domain.Datamodel {
	v := &datamodelValidator{
		provider: provider,
		diags:    diags,
		models:   make(map[string]*ModelBlock),
		enums:    make(map[string]*EnumBlock),
	}
	dm := &domain.Datamodel{Models: []*domain.Model{}, Enums: []*domain.Enum{}}

	// Names first, so field types can refer to blocks declared later
	for _, enum := range ast.Enums {
		if v.declared(enum.Name) {
			diags.AddError(enum.NameSpan, "The enum %q cannot be defined because a %s with that name already exists.", enum.Name, v.kindOf(enum.Name))
			continue
		}
		if domain.IsScalarType(enum.Name) {
			diags.AddError(enum.NameSpan, "The enum %q cannot be defined because it has the name of a built-in type.", enum.Name)
			continue
		}
		v.enums[enum.Name] = enum
	}
	for _, model := range ast.Models {
		if v.declared(model.Name) {
			diags.AddError(model.NameSpan, "The model %q cannot be defined because a %s with that name already exists.", model.Name, v.kindOf(model.Name))
			continue
		}
		if domain.IsScalarType(model.Name) {
			diags.AddError(model.NameSpan, "The model %q cannot be defined because it has the name of a built-in type.", model.Name)
			continue
		}
		v.models[model.Name] = model
	}

	for _, enum := range ast.Enums {
		if v.enums[enum.Name] != enum {
			continue
		}
		if e := v.validateEnum(enum); e != nil {
			dm.Enums = append(dm.Enums, e)
		}
	}
	for _, model := range ast.Models {
		if v.models[model.Name] != model {
			continue
		}
		if m := v.validateModel(model); m != nil {
			dm.Models = append(dm.Models, m)
		}
	}

	v.validateRelations(dm)
	return dm
}

func (v *datamodelValidator) declared(name string) bool {
	_, isModel := v.models[name]
	_, isEnum := v.enums[name]
	return isModel || isEnum
}

func (v *datamodelValidator) kindOf(name string) string {
	if _, ok := v.models[name]; ok {
		return "model"
	}
	return "enum"
}

func (v *datamodelValidator) validateEnum(block *EnumBlock) *domain.Enum {
	enum := &domain.Enum{Name: block.Name, Span: block.Span, Values: []domain.EnumValue{}}
	if v.provider == domain.ProviderSQLite {
		v.diags.AddError(block.NameSpan, "You defined the enum %q. But the current connector does not support enums.", block.Name)
	}
	if len(block.Values) == 0 {
		v.diags.AddError(block.NameSpan, "An enum must have at least one value.")
	}

	seen := make(map[string]bool)
	for _, value := range block.Values {
		if seen[value.Name] {
			v.diags.AddError(value.Span, "Value %q is already defined on enum %q.", value.Name, block.Name)
			continue
		}
		seen[value.Name] = true
		ev := domain.EnumValue{Name: value.Name}
		for i := range value.Attributes {
			attr := &value.Attributes[i]
			if attr.Name != "map" {
				v.diags.AddError(attr.Span, "Attribute not known: \"@%s\".", attr.Name)
				continue
			}
			ev.DBName = v.mapName(attr)
		}
		enum.Values = append(enum.Values, ev)
	}

	for i := range block.Attributes {
		attr := &block.Attributes[i]
		switch attr.Name {
		case "map":
			enum.DBName = v.mapName(attr)
		case "schema":
		default:
			v.diags.AddError(attr.Span, "Attribute not known: \"@@%s\".", attr.Name)
		}
	}
	return enum
}

func (v *datamodelValidator) validateModel(block *ModelBlock) *domain.Model {
	model := &domain.Model{
		Name:         block.Name,
		Doc:          block.Doc,
		Span:         block.Span,
		Attributes:   block.Attributes,
		Fields:       []*domain.Field{},
		PrimaryKey:   []string{},
		UniqueFields: [][]string{},
	}

	seen := make(map[string]bool)
	for _, decl := range block.Fields {
		if seen[decl.Name] {
			v.diags.AddError(decl.Span, "Field %q is already defined on model %q.", decl.Name, block.Name)
			continue
		}
		seen[decl.Name] = true
		if f := v.validateField(block, decl); f != nil {
			model.Fields = append(model.Fields, f)
		}
	}

	ids := 0
	for _, f := range model.Fields {
		if f.IsID {
			ids++
			model.PrimaryKey = []string{f.Name}
		}
	}
	if ids > 1 {
		v.diags.AddError(block.NameSpan, "At most one field must be marked as the id field with the `@id` attribute.")
	}

	for i := range block.Attributes {
		attr := &block.Attributes[i]
		switch attr.Name {
		case "id":
			fields := v.fieldList(model, attr, "id")
			if ids > 0 {
				v.diags.AddError(attr.Span, "Each model must have at most one id criteria. You can't have `@id` and `@@id` at the same time.")
			} else if fields != nil {
				model.PrimaryKey = fields
			}
		case "unique":
			if fields := v.fieldList(model, attr, "unique"); fields != nil {
				model.UniqueFields = append(model.UniqueFields, fields)
			}
		case "index", "fulltext":
			if fields := v.fieldList(model, attr, "index"); fields != nil {
				model.Indexes = append(model.Indexes, fields)
			}
		case "map":
			model.DBName = v.mapName(attr)
		case "ignore", "schema":
		default:
			v.diags.AddError(attr.Span, "Attribute not known: \"@@%s\".", attr.Name)
		}
	}

	for _, f := range model.Fields {
		if f.IsUnique {
			model.UniqueFields = append(model.UniqueFields, []string{f.Name})
		}
	}

	if _, ignored := findAttribute(block.Attributes, "ignore"); !ignored && !v.hasUniqueCriteria(model) {
		v.diags.AddError(block.NameSpan,
			"Each model must have at least one unique criteria that has only required fields. Either mark a single field with `@id`, `@unique` or add a multi field criterion with `@@id([])` or `@@unique([])` to the model.")
	}

	if v.provider == domain.ProviderMongoDB {
		for _, name := range model.PrimaryKey {
			f, _ := model.Field(name)
			if f != nil && f.DBName != "_id" {
				v.diags.AddError(f.Span, "MongoDB model IDs must have an @map(\"_id\") annotation.")
			}
		}
		if len(model.PrimaryKey) > 1 {
			v.diags.AddError(block.NameSpan, "The current connector does not support compound ids.")
		}
	}

	return model
}

func (v *datamodelValidator) hasUniqueCriteria(model *domain.Model) bool {
	allRequired := func(names []string) bool {
		if len(names) == 0 {
			return false
		}
		for _, n := range names {
			f, ok := model.Field(n)
			if !ok || !f.IsRequired {
				return false
			}
		}
		return true
	}
	if allRequired(model.PrimaryKey) {
		return true
	}
	for _, u := range model.UniqueFields {
		if allRequired(u) {
			return true
		}
	}
	return false
}

func (v *datamodelValidator) validateField(model *ModelBlock, decl *FieldDecl) *domain.Field {
	field := &domain.Field{
		Name:       decl.Name,
		Type:       decl.TypeName,
		IsList:     decl.List,
		IsRequired: !decl.Optional && !decl.List,
		Attributes: decl.Attributes,
		Doc:        decl.Doc,
		Span:       decl.Span,
	}

	switch {
	case domain.IsScalarType(decl.TypeName):
		field.Kind = domain.FieldKindScalar
	case v.enums[decl.TypeName] != nil:
		field.Kind = domain.FieldKindEnum
	case v.models[decl.TypeName] != nil:
		field.Kind = domain.FieldKindObject
	case decl.TypeName == "Unsupported":
		v.diags.AddWarning(decl.TypeSpan, "Field %q uses an unsupported type and is ignored by the query engine.", decl.Name)
		return nil
	default:
		v.diags.AddError(decl.TypeSpan, "Type %q is neither a built-in type, nor refers to another model, or enum.", decl.TypeName)
		return nil
	}

	if decl.List && field.Kind != domain.FieldKindObject && !v.supportsScalarLists() {
		v.diags.AddError(decl.Span, "Field %q in model %q can't be a list. The current connector does not support lists of primitive types.", decl.Name, model.Name)
	}

	for i := range decl.Attributes {
		attr := &decl.Attributes[i]
		switch attr.Name {
		case "id":
			if field.Kind == domain.FieldKindObject {
				v.diags.AddError(attr.Span, "Relation fields can not be marked as id.")
				continue
			}
			if decl.Optional {
				v.diags.AddError(attr.Span, "Fields that are marked as id must be required.")
			}
			field.IsID = true
		case "unique":
			field.IsUnique = true
		case "default":
			field.Default = v.validateDefault(field, attr)
		case "map":
			field.DBName = v.mapName(attr)
		case "updatedAt":
			if decl.TypeName != string(domain.ScalarDateTime) {
				v.diags.AddError(attr.Span, "Fields that are marked with @updatedAt must be of type DateTime.")
				continue
			}
			field.IsUpdatedAt = true
		case "relation":
			if field.Kind != domain.FieldKindObject {
				v.diags.AddError(attr.Span, "Invalid field type, not a relation.")
				continue
			}
			field.Relation = v.relation(attr)
		case "ignore":
		default:
			if strings.HasPrefix(attr.Name, "db.") {
				continue
			}
			v.diags.AddError(attr.Span, "Attribute not known: \"@%s\".", attr.Name)
		}
	}

	if field.Kind == domain.FieldKindObject && field.Relation == nil {
		field.Relation = &domain.Relation{}
	}
	return field
}

func (v *datamodelValidator) supportsScalarLists() bool {
	return v.provider == domain.ProviderPostgres || v.provider == domain.ProviderMongoDB || v.provider == ""
}

func (v *datamodelValidator) validateDefault(field *domain.Field, attr *domain.Attribute) *domain.DefaultValue {
	value, ok := argument(attr, "value", 0)
	if !ok {
		v.diags.AddError(attr.Span, "Argument \"value\" is missing in attribute \"@default\".")
		return nil
	}

	if value.Kind == domain.ValueFunction {
		if !v.defaultFunctionFits(value.Text, field) {
			v.diags.AddError(value.Span, "The function `%s()` cannot be used on fields of type `%s`.", value.Text, field.Type)
			return nil
		}
		return &domain.DefaultValue{Function: value.Text}
	}

	mismatch := func(expected string) *domain.DefaultValue {
		v.diags.AddError(value.Span, "Error parsing attribute \"@default\": Expected a %s value, but received %s value `%s`.", expected, kindName(value), value)
		return nil
	}

	if field.Kind == domain.FieldKindEnum {
		enum := v.enums[field.Type]
		if value.Kind != domain.ValueConstant {
			return mismatch("constant")
		}
		for _, ev := range enum.Values {
			if ev.Name == value.Text {
				return &domain.DefaultValue{Literal: value.Text}
			}
		}
		v.diags.AddError(value.Span, "The defined default value `%s` is not a valid value of the enum specified for the field.", value.Text)
		return nil
	}

	if field.IsList {
		if value.Kind != domain.ValueArray {
			return mismatch("array")
		}
		return &domain.DefaultValue{Literal: value.String()}
	}

	switch domain.ScalarType(field.Type) {
	case domain.ScalarString, domain.ScalarDateTime, domain.ScalarJSON, domain.ScalarBytes:
		if value.Kind != domain.ValueString {
			return mismatch("String")
		}
		return &domain.DefaultValue{Literal: value.Text}
	case domain.ScalarInt, domain.ScalarBigInt:
		if value.Kind != domain.ValueNumber {
			return mismatch("numeric")
		}
		n, err := strconv.ParseInt(value.Text, 10, 64)
		if err != nil {
			return mismatch("integer")
		}
		return &domain.DefaultValue{Literal: n}
	case domain.ScalarFloat, domain.ScalarDecimal:
		if value.Kind != domain.ValueNumber {
			return mismatch("numeric")
		}
		f, err := strconv.ParseFloat(value.Text, 64)
		if err != nil {
			return mismatch("numeric")
		}
		return &domain.DefaultValue{Literal: f}
	case domain.ScalarBoolean:
		if value.Kind != domain.ValueBoolean {
			return mismatch("boolean")
		}
		return &domain.DefaultValue{Literal: value.Text == "true"}
	}
	return nil
}

func (v *datamodelValidator) defaultFunctionFits(fn string, field *domain.Field) bool {
	switch fn {
	case "dbgenerated":
		return true
	case "autoincrement", "sequence":
		return field.Type == string(domain.ScalarInt) || field.Type == string(domain.ScalarBigInt)
	case "now":
		return field.Type == string(domain.ScalarDateTime)
	case "uuid", "cuid", "nanoid", "ulid":
		return field.Type == string(domain.ScalarString)
	case "auto":
		return v.provider == domain.ProviderMongoDB
	}
	return false
}

func (v *datamodelValidator) relation(attr *domain.Attribute) *domain.Relation {
	rel := &domain.Relation{}
	if name, ok := argument(attr, "name", 0); ok && name.Kind == domain.ValueString {
		rel.Name = name.Text
	}
	if fields, ok := argument(attr, "fields", -1); ok {
		rel.Fields = constantList(fields)
	}
	if refs, ok := argument(attr, "references", -1); ok {
		rel.References = constantList(refs)
	}
	if len(rel.Fields) != len(rel.References) {
		v.diags.AddError(attr.Span, "You must specify the same number of fields in `fields` and `references`.")
	}
	return rel
}

// validateRelations checks that relation scalars exist on both sides
func (v *datamodelValidator) validateRelations(dm *domain.Datamodel) {
	for _, model := range dm.Models {
		for _, f := range model.Fields {
			if f.Kind != domain.FieldKindObject || f.Relation == nil {
				continue
			}
			for _, name := range f.Relation.Fields {
				if _, ok := model.Field(name); !ok {
					v.diags.AddError(f.Span, "The argument fields must refer only to existing fields. The following fields do not exist in this model: %s", name)
				}
			}
			target, ok := dm.Model(f.Type)
			if !ok {
				continue
			}
			for _, name := range f.Relation.References {
				if _, ok := target.Field(name); !ok {
					v.diags.AddError(f.Span, "The argument `references` must refer only to existing fields in the related model `%s`. The following fields do not exist in the related model: %s", target.Name, name)
				}
			}
		}
	}
}

// fieldList reads the field list of @@id, @@unique and @@index
func (v *datamodelValidator) fieldList(model *domain.Model, attr *domain.Attribute, kind string) []string {
	value, ok := argument(attr, "fields", 0)
	if !ok || value.Kind != domain.ValueArray || len(value.Items) == 0 {
		v.diags.AddError(attr.Span, "The @@%s attribute expects a non-empty list of fields.", attr.Name)
		return nil
	}
	names := constantList(value)
	var unknown []string
	for _, n := range names {
		if _, ok := model.Field(n); !ok {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		v.diags.AddError(attr.Span, "The multi field %s declaration refers to the unknown fields %s.", kind, quoteList(unknown))
		return nil
	}
	return names
}

func (v *datamodelValidator) mapName(attr *domain.Attribute) string {
	value, ok := argument(attr, "name", 0)
	if !ok || value.Kind != domain.ValueString {
		v.diags.AddError(attr.Span, "The @map attribute expects a string argument.")
		return ""
	}
	return value.Text
}

// constantList reads [a, b(sort: Desc)] into ["a", "b"]
func constantList(v domain.Value) []string {
	if v.Kind != domain.ValueArray {
		if v.Kind == domain.ValueConstant {
			return []string{v.Text}
		}
		return nil
	}
	out := make([]string, 0, len(v.Items))
	for _, item := range v.Items {
		out = append(out, item.Text)
	}
	return out
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}
