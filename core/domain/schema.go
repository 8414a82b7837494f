package domain

import (
	"fmt"
	"strings"
)

// Span is a byte range into the raw schema text
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Diagnostic is a single schema error or warning
type Diagnostic struct {
	Message string `json:"message"`
	Span    Span   `json:"span"`
}

// Diagnostics collects the errors and warnings produced while parsing and
// validating a schema.
type Diagnostics struct {
	Errors   []Diagnostic `json:"errors"`
	Warnings []Diagnostic `json:"warnings"`
}

// AddError records an error diagnostic
func (d *Diagnostics) AddError(span Span, format string, args ...any) {
	d.Errors = append(d.Errors, Diagnostic{Message: fmt.Sprintf(format, args...), Span: span})
}

// AddWarning records a warning diagnostic
func (d *Diagnostics) AddWarning(span Span, format string, args ...any) {
	d.Warnings = append(d.Warnings, Diagnostic{Message: fmt.Sprintf(format, args...), Span: span})
}

// HasErrors reports whether any error was recorded
func (d *Diagnostics) HasErrors() bool {
	return len(d.Errors) > 0
}

// Merge appends other's diagnostics to d
func (d *Diagnostics) Merge(other Diagnostics) {
	d.Errors = append(d.Errors, other.Errors...)
	d.Warnings = append(d.Warnings, other.Warnings...)
}

// Err returns d as an error, or nil when there are no errors.
func (d *Diagnostics) Err() error {
	if !d.HasErrors() {
		return nil
	}
	return &DiagnosticsError{Diagnostics: *d}
}

// DiagnosticsError carries schema diagnostics through error returns
type DiagnosticsError struct {
	Diagnostics Diagnostics
}

func (e *DiagnosticsError) Error() string {
	msgs := make([]string, 0, len(e.Diagnostics.Errors))
	for _, d := range e.Diagnostics.Errors {
		msgs = append(msgs, d.Message)
	}
	return strings.Join(msgs, "\n")
}

// First returns the first error message
func (e *DiagnosticsError) First() string {
	if len(e.Diagnostics.Errors) == 0 {
		return ""
	}
	return e.Diagnostics.Errors[0].Message
}

// Generator is a `generator` block
type Generator struct {
	Name            string            `json:"name"`
	Provider        StringFromEnvVar  `json:"provider"`
	Output          *StringFromEnvVar `json:"output"`
	Config          map[string]string `json:"config"`
	BinaryTargets   []string          `json:"binaryTargets"`
	PreviewFeatures []string          `json:"previewFeatures"`
}

// Configuration is the datasource and generator part of a schema
type Configuration struct {
	Datasources []*Datasource `json:"datasources"`
	Generators  []*Generator  `json:"generators"`
}

// Datasource returns the single configured datasource.
func (c *Configuration) Datasource() (*Datasource, bool) {
	if c == nil || len(c.Datasources) != 1 {
		return nil, false
	}
	return c.Datasources[0], true
}

// ScalarType is a built-in field type
type ScalarType string

const (
	ScalarString   ScalarType = "String"
	ScalarInt      ScalarType = "Int"
	ScalarBigInt   ScalarType = "BigInt"
	ScalarFloat    ScalarType = "Float"
	ScalarDecimal  ScalarType = "Decimal"
	ScalarBoolean  ScalarType = "Boolean"
	ScalarDateTime ScalarType = "DateTime"
	ScalarJSON     ScalarType = "Json"
	ScalarBytes    ScalarType = "Bytes"
)

// IsScalarType reports whether name is a built-in scalar
func IsScalarType(name string) bool {
	switch ScalarType(name) {
	case ScalarString, ScalarInt, ScalarBigInt, ScalarFloat, ScalarDecimal,
		ScalarBoolean, ScalarDateTime, ScalarJSON, ScalarBytes:
		return true
	}
	return false
}

// FieldKind classifies a field by what its type refers to
type FieldKind string

const (
	FieldKindScalar FieldKind = "scalar"
	FieldKindEnum   FieldKind = "enum"
	FieldKindObject FieldKind = "object"
)

// Attribute is a parsed `@name(args)` or `@@name(args)`
type Attribute struct {
	Name string     `json:"name"`
	Args []Argument `json:"args,omitempty"`
	Span Span       `json:"-"`
}

// Argument is one (optionally named) attribute argument
type Argument struct {
	Name  string `json:"name,omitempty"`
	Value Value  `json:"value"`
}

// ValueKind distinguishes literal forms in the schema language
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueNumber
	ValueBoolean
	ValueConstant
	ValueFunction
	ValueArray
)

// Value is an attribute argument or block property value
type Value struct {
	Kind  ValueKind
	Text  string
	Args  []Value
	Items []Value
	Span  Span
}

// String renders the value the way it is written in a schema
func (v Value) String() string {
	switch v.Kind {
	case ValueString:
		return fmt.Sprintf("%q", v.Text)
	case ValueFunction:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = a.String()
		}
		return v.Text + "(" + strings.Join(args, ", ") + ")"
	case ValueArray:
		items := make([]string, len(v.Items))
		for i, a := range v.Items {
			items[i] = a.String()
		}
		return "[" + strings.Join(items, ", ") + "]"
	default:
		return v.Text
	}
}

// DefaultValue is a parsed @default(...)
type DefaultValue struct {
	// Function is set for generated defaults: autoincrement, now, uuid, cuid, dbgenerated
	Function string `json:"name,omitempty"`
	// Literal holds a constant default as written (without quotes for strings)
	Literal any `json:"value,omitempty"`
}

// Field is a model field
type Field struct {
	Name        string        `json:"name"`
	DBName      string        `json:"dbName"`
	Type        string        `json:"type"`
	Kind        FieldKind     `json:"kind"`
	IsList      bool          `json:"isList"`
	IsRequired  bool          `json:"isRequired"`
	IsID        bool          `json:"isId"`
	IsUnique    bool          `json:"isUnique"`
	IsUpdatedAt bool          `json:"isUpdatedAt"`
	Default     *DefaultValue `json:"default,omitempty"`
	Relation    *Relation     `json:"-"`
	Attributes  []Attribute   `json:"-"`
	Doc         string        `json:"documentation,omitempty"`
	Span        Span          `json:"-"`
}

// HasDefault reports whether a value is generated when the field is omitted
func (f *Field) HasDefault() bool {
	return f.Default != nil
}

// Relation is a parsed @relation(...)
type Relation struct {
	Name       string   `json:"name,omitempty"`
	Fields     []string `json:"fields,omitempty"`
	References []string `json:"references,omitempty"`
}

// Model is a `model` block
type Model struct {
	Name         string      `json:"name"`
	DBName       string      `json:"dbName"`
	Fields       []*Field    `json:"fields"`
	PrimaryKey   []string    `json:"primaryKey"`
	UniqueFields [][]string  `json:"uniqueFields"`
	Indexes      [][]string  `json:"-"`
	Attributes   []Attribute `json:"-"`
	Doc          string      `json:"documentation,omitempty"`
	Span         Span        `json:"-"`
}

// Field looks up a field by name
func (m *Model) Field(name string) (*Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// TableName returns the database table name of the model
func (m *Model) TableName() string {
	if m.DBName != "" {
		return m.DBName
	}
	return m.Name
}

// ColumnName returns the database column name of a field
func (f *Field) ColumnName() string {
	if f.DBName != "" {
		return f.DBName
	}
	return f.Name
}

// EnumValue is one value of an enum
type EnumValue struct {
	Name   string `json:"name"`
	DBName string `json:"dbName"`
}

// Enum is an `enum` block
type Enum struct {
	Name   string      `json:"name"`
	DBName string      `json:"dbName"`
	Values []EnumValue `json:"values"`
	Span   Span        `json:"-"`
}

// Datamodel is the model and enum part of a schema
type Datamodel struct {
	Models []*Model `json:"models"`
	Enums  []*Enum  `json:"enums"`
}

// Model looks up a model by name
func (d *Datamodel) Model(name string) (*Model, bool) {
	for _, m := range d.Models {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Enum looks up an enum by name
func (d *Datamodel) Enum(name string) (*Enum, bool) {
	for _, e := range d.Enums {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// ValidatedSchema is the result of successfully parsing and validating
// schema text. Raw is kept so the schema can be re-parsed later.
type ValidatedSchema struct {
	Raw           string
	Configuration *Configuration
	Datamodel     *Datamodel
	Warnings      []Diagnostic
}

// Datasource returns the single datasource of the schema, if any.
func (s *ValidatedSchema) Datasource() (*Datasource, bool) {
	if s == nil {
		return nil, false
	}
	return s.Configuration.Datasource()
}
