package parser

import (
	"github.com/hyperterse/queryengine/core/domain"
)

// Top-level block keywords
const (
	keywordDatasource = "datasource"
	keywordGenerator  = "generator"
	keywordModel      = "model"
	keywordEnum       = "enum"
)

// SchemaAST is the syntax tree of a schema file, before validation
type SchemaAST struct {
	Datasources []*ConfigBlock
	Generators  []*ConfigBlock
	Models      []*ModelBlock
	Enums       []*EnumBlock
}

// ConfigBlock is a datasource or generator block
type ConfigBlock struct {
	Keyword    string
	Name       string
	Properties []*Property
	Span       domain.Span
	NameSpan   domain.Span
}

// Property returns the property with the given key
func (b *ConfigBlock) Property(key string) (*Property, bool) {
	for _, p := range b.Properties {
		if p.Key == key {
			return p, true
		}
	}
	return nil, false
}

// Property is a `key = value` line of a config block
type Property struct {
	Key   string
	Value domain.Value
	Span  domain.Span
}

// ModelBlock is a model block
type ModelBlock struct {
	Name       string
	Fields     []*FieldDecl
	Attributes []domain.Attribute
	Doc        string
	Span       domain.Span
	NameSpan   domain.Span
}

// FieldDecl is one field line of a model
type FieldDecl struct {
	Name       string
	TypeName   string
	Optional   bool
	List       bool
	Attributes []domain.Attribute
	Doc        string
	Span       domain.Span
	TypeSpan   domain.Span
}

// Attribute returns the first field attribute with the given name
func (f *FieldDecl) Attribute(name string) (*domain.Attribute, bool) {
	return findAttribute(f.Attributes, name)
}

// EnumBlock is an enum block
type EnumBlock struct {
	Name       string
	Values     []*EnumValueDecl
	Attributes []domain.Attribute
	Doc        string
	Span       domain.Span
	NameSpan   domain.Span
}

// EnumValueDecl is one value line of an enum
type EnumValueDecl struct {
	Name       string
	Attributes []domain.Attribute
	Span       domain.Span
}

func findAttribute(attrs []domain.Attribute, name string) (*domain.Attribute, bool) {
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i], true
		}
	}
	return nil, false
}

// argument returns the named argument, or the positional one at index
// when no argument carries the name.
func argument(attr *domain.Attribute, name string, index int) (domain.Value, bool) {
	for _, a := range attr.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	positional := 0
	for _, a := range attr.Args {
		if a.Name != "" {
			continue
		}
		if positional == index {
			return a.Value, true
		}
		positional++
	}
	return domain.Value{}, false
}
