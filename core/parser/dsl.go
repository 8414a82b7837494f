package parser

import (
	"strings"
	"unicode"

	"github.com/hyperterse/queryengine/core/domain"
)

// Parser holds the state of the parsing process
type Parser struct {
	input string
	pos   int
	diags domain.Diagnostics
	doc   []string
}

// NewParser creates a new Parser instance
func NewParser(input string) *Parser {
	return &Parser{input: input, pos: 0}
}

// Parse parses the input into a SchemaAST. Syntax errors do not stop the
// parse; each one is recorded and the parser resumes at the next line.
func (p *Parser) Parse() (*SchemaAST, domain.Diagnostics) {
	ast := &SchemaAST{}

	for {
		p.skipWhitespace()
		if p.pos >= len(p.input) {
			break
		}

		start := p.pos
		keyword := p.peekIdentifier()
		switch keyword {
		case keywordDatasource, keywordGenerator:
			p.takeDoc()
			if block := p.parseConfigBlock(keyword); block != nil {
				if keyword == keywordDatasource {
					ast.Datasources = append(ast.Datasources, block)
				} else {
					ast.Generators = append(ast.Generators, block)
				}
			}
		case keywordModel:
			if model := p.parseModel(); model != nil {
				ast.Models = append(ast.Models, model)
			}
		case keywordEnum:
			if enum := p.parseEnum(); enum != nil {
				ast.Enums = append(ast.Enums, enum)
			}
		default:
			p.takeDoc()
			p.skipLine()
			p.diags.AddError(p.span(start),
				"Error validating: This line is invalid. It does not start with any known schema keyword.")
		}
	}

	return ast, p.diags
}

func (p *Parser) parseConfigBlock(keyword string) *ConfigBlock {
	start := p.pos
	p.consume(keyword)
	p.skipInlineSpace()
	nameStart := p.pos
	name, ok := p.parseIdentifier()
	if !ok {
		p.diags.AddError(p.span(start), "A %s block must have a name.", keyword)
		p.skipBlock()
		return nil
	}
	block := &ConfigBlock{Keyword: keyword, Name: name, NameSpan: p.span(nameStart)}
	if !p.openBlock(start, keyword, name) {
		return nil
	}

	for {
		p.skipWhitespace()
		p.takeDoc()
		if p.pos >= len(p.input) {
			p.diags.AddError(p.span(start), "The %s %q is missing a closing brace.", keyword, name)
			break
		}
		if p.consume("}") {
			break
		}

		lineStart := p.pos
		key, ok := p.parseIdentifier()
		if !ok {
			p.skipLine()
			p.diags.AddError(p.span(lineStart), "This line is not a valid definition within a %s.", keyword)
			continue
		}
		p.skipInlineSpace()
		if !p.consume("=") {
			p.skipLine()
			p.diags.AddError(p.span(lineStart), "Property %q in %s %q is missing a value. Expected `%s = <value>`.", key, keyword, name, key)
			continue
		}
		p.skipInlineSpace()
		value, ok := p.parseValue()
		if !ok {
			p.skipLine()
			p.diags.AddError(p.span(lineStart), "Property %q in %s %q has an invalid value.", key, keyword, name)
			continue
		}
		block.Properties = append(block.Properties, &Property{Key: key, Value: value, Span: p.span(lineStart)})
		p.expectLineEnd(lineStart)
	}

	block.Span = p.span(start)
	return block
}

func (p *Parser) parseModel() *ModelBlock {
	start := p.pos
	doc := p.takeDoc()
	p.consume(keywordModel)
	p.skipInlineSpace()
	nameStart := p.pos
	name, ok := p.parseIdentifier()
	if !ok {
		p.diags.AddError(p.span(start), "A model must have a name.")
		p.skipBlock()
		return nil
	}
	model := &ModelBlock{Name: name, Doc: doc, NameSpan: p.span(nameStart)}
	if !p.openBlock(start, keywordModel, name) {
		return nil
	}

	for {
		p.skipWhitespace()
		if p.pos >= len(p.input) {
			p.diags.AddError(p.span(start), "The model %q is missing a closing brace.", name)
			break
		}
		if p.consume("}") {
			p.takeDoc()
			break
		}

		lineStart := p.pos
		if strings.HasPrefix(p.input[p.pos:], "@@") {
			p.takeDoc()
			attr, ok := p.parseAttribute()
			if !ok {
				p.skipLine()
				p.diags.AddError(p.span(lineStart), "This block attribute is invalid.")
				continue
			}
			model.Attributes = append(model.Attributes, attr)
			p.expectLineEnd(lineStart)
			continue
		}

		if field := p.parseField(); field != nil {
			model.Fields = append(model.Fields, field)
		}
	}

	model.Span = p.span(start)
	return model
}

func (p *Parser) parseField() *FieldDecl {
	start := p.pos
	doc := p.takeDoc()
	name, ok := p.parseIdentifier()
	if !ok {
		p.skipLine()
		p.diags.AddError(p.span(start), "This line is not a valid field or attribute definition.")
		return nil
	}

	p.skipInlineSpace()
	typeStart := p.pos
	typeName, ok := p.parseIdentifier()
	if !ok {
		p.skipLine()
		p.diags.AddError(p.span(start),
			"This field declaration is invalid. It is either missing a name or a type.")
		return nil
	}

	if p.consume("(") {
		// Unsupported("type") carries the native type as an argument
		if _, ok := p.parseArguments(")"); !ok {
			p.skipLine()
			p.diags.AddError(p.span(start), "The type of field %q is invalid.", name)
			return nil
		}
	}

	field := &FieldDecl{Name: name, TypeName: typeName, Doc: doc}
	switch {
	case p.consume("[]"):
		field.List = true
	case p.consume("?"):
		field.Optional = true
	}
	field.TypeSpan = p.span(typeStart)

	for {
		p.skipInlineSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != '@' || strings.HasPrefix(p.input[p.pos:], "@@") {
			break
		}
		attrStart := p.pos
		attr, ok := p.parseAttribute()
		if !ok {
			p.skipLine()
			p.diags.AddError(p.span(attrStart), "The attribute on field %q is invalid.", name)
			field.Span = p.span(start)
			return field
		}
		field.Attributes = append(field.Attributes, attr)
	}

	field.Span = p.span(start)
	p.expectLineEnd(start)
	return field
}

func (p *Parser) parseEnum() *EnumBlock {
	start := p.pos
	doc := p.takeDoc()
	p.consume(keywordEnum)
	p.skipInlineSpace()
	nameStart := p.pos
	name, ok := p.parseIdentifier()
	if !ok {
		p.diags.AddError(p.span(start), "An enum must have a name.")
		p.skipBlock()
		return nil
	}
	enum := &EnumBlock{Name: name, Doc: doc, NameSpan: p.span(nameStart)}
	if !p.openBlock(start, keywordEnum, name) {
		return nil
	}

	for {
		p.skipWhitespace()
		p.takeDoc()
		if p.pos >= len(p.input) {
			p.diags.AddError(p.span(start), "The enum %q is missing a closing brace.", name)
			break
		}
		if p.consume("}") {
			break
		}

		lineStart := p.pos
		if strings.HasPrefix(p.input[p.pos:], "@@") {
			attr, ok := p.parseAttribute()
			if !ok {
				p.skipLine()
				p.diags.AddError(p.span(lineStart), "This block attribute is invalid.")
				continue
			}
			enum.Attributes = append(enum.Attributes, attr)
			p.expectLineEnd(lineStart)
			continue
		}

		valueName, ok := p.parseIdentifier()
		if !ok {
			p.skipLine()
			p.diags.AddError(p.span(lineStart), "This line is not an enum value definition.")
			continue
		}
		value := &EnumValueDecl{Name: valueName}
		for {
			p.skipInlineSpace()
			if p.pos >= len(p.input) || p.input[p.pos] != '@' || strings.HasPrefix(p.input[p.pos:], "@@") {
				break
			}
			attr, ok := p.parseAttribute()
			if !ok {
				break
			}
			value.Attributes = append(value.Attributes, attr)
		}
		value.Span = p.span(lineStart)
		enum.Values = append(enum.Values, value)
		p.expectLineEnd(lineStart)
	}

	enum.Span = p.span(start)
	return enum
}

// parseAttribute parses `@name`, `@@name`, `@db.Type` and their argument lists
func (p *Parser) parseAttribute() (domain.Attribute, bool) {
	start := p.pos
	if !p.consume("@") {
		return domain.Attribute{}, false
	}
	p.consume("@")

	name, ok := p.parseIdentifier()
	if !ok {
		return domain.Attribute{}, false
	}
	for p.consume(".") {
		part, ok := p.parseIdentifier()
		if !ok {
			return domain.Attribute{}, false
		}
		name += "." + part
	}

	attr := domain.Attribute{Name: name}
	if p.consume("(") {
		args, ok := p.parseArguments(")")
		if !ok {
			return domain.Attribute{}, false
		}
		attr.Args = args
	}
	attr.Span = p.span(start)
	return attr, true
}

// parseArguments parses a comma separated argument list up to closer.
// The opening delimiter is already consumed.
func (p *Parser) parseArguments(closer string) ([]domain.Argument, bool) {
	var args []domain.Argument
	for {
		p.skipWhitespace()
		if p.consume(closer) {
			return args, true
		}
		if p.pos >= len(p.input) {
			return nil, false
		}

		var arg domain.Argument
		save := p.pos
		if key, ok := p.parseIdentifier(); ok {
			p.skipInlineSpace()
			if p.consume(":") {
				arg.Name = key
				p.skipWhitespace()
			} else {
				p.pos = save
			}
		}

		value, ok := p.parseValue()
		if !ok {
			return nil, false
		}
		arg.Value = value
		args = append(args, arg)

		p.skipWhitespace()
		if p.consume(",") {
			continue
		}
		if p.consume(closer) {
			return args, true
		}
		return nil, false
	}
}

func (p *Parser) parseValue() (domain.Value, bool) {
	start := p.pos
	if p.pos >= len(p.input) {
		return domain.Value{}, false
	}

	c := p.input[p.pos]
	switch {
	case c == '"':
		s, ok := p.parseStringLiteral()
		if !ok {
			return domain.Value{}, false
		}
		return domain.Value{Kind: domain.ValueString, Text: s, Span: p.span(start)}, true

	case c == '[':
		p.pos++
		var items []domain.Value
		for {
			p.skipWhitespace()
			if p.consume("]") {
				break
			}
			item, ok := p.parseValue()
			if !ok {
				return domain.Value{}, false
			}
			items = append(items, item)
			p.skipWhitespace()
			if p.consume(",") {
				continue
			}
			if !p.consume("]") {
				return domain.Value{}, false
			}
			break
		}
		return domain.Value{Kind: domain.ValueArray, Items: items, Span: p.span(start)}, true

	case c == '-' || (c >= '0' && c <= '9'):
		p.pos++
		for p.pos < len(p.input) {
			d := p.input[p.pos]
			if (d < '0' || d > '9') && d != '.' && d != 'e' && d != 'E' {
				break
			}
			p.pos++
		}
		return domain.Value{Kind: domain.ValueNumber, Text: p.input[start:p.pos], Span: p.span(start)}, true
	}

	ident, ok := p.parseIdentifier()
	if !ok {
		return domain.Value{}, false
	}
	for p.pos+1 < len(p.input) && p.input[p.pos] == '.' && isIdentStart(rune(p.input[p.pos+1])) {
		p.pos++
		part, _ := p.parseIdentifier()
		ident += "." + part
	}

	if p.consume("(") {
		args, ok := p.parseArguments(")")
		if !ok {
			return domain.Value{}, false
		}
		values := make([]domain.Value, len(args))
		for i, a := range args {
			values[i] = a.Value
		}
		return domain.Value{Kind: domain.ValueFunction, Text: ident, Args: values, Span: p.span(start)}, true
	}

	if ident == "true" || ident == "false" {
		return domain.Value{Kind: domain.ValueBoolean, Text: ident, Span: p.span(start)}, true
	}
	return domain.Value{Kind: domain.ValueConstant, Text: ident, Span: p.span(start)}, true
}

// Helper methods

func (p *Parser) openBlock(start int, keyword, name string) bool {
	p.skipWhitespace()
	if !p.consume("{") {
		p.diags.AddError(p.span(start), "The %s %q is missing an opening brace.", keyword, name)
		p.skipBlock()
		return false
	}
	return true
}

// expectLineEnd records an error when anything but a comment follows on the
// current line, and moves past it.
func (p *Parser) expectLineEnd(lineStart int) {
	p.skipInlineSpace()
	if p.pos >= len(p.input) || p.input[p.pos] == '\n' || p.input[p.pos] == '}' ||
		strings.HasPrefix(p.input[p.pos:], "//") {
		return
	}
	p.skipLine()
	p.diags.AddError(p.span(lineStart), "This line is not a valid field or attribute definition.")
}

func (p *Parser) consume(token string) bool {
	if strings.HasPrefix(p.input[p.pos:], token) {
		p.pos += len(token)
		return true
	}
	return false
}

func (p *Parser) peekIdentifier() string {
	save := p.pos
	ident, _ := p.parseIdentifier()
	p.pos = save
	return ident
}

func (p *Parser) parseIdentifier() (string, bool) {
	start := p.pos
	if p.pos >= len(p.input) || !isIdentStart(rune(p.input[p.pos])) {
		return "", false
	}
	p.pos++
	for p.pos < len(p.input) {
		r := rune(p.input[p.pos])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		p.pos++
	}
	return p.input[start:p.pos], true
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func (p *Parser) parseStringLiteral() (string, bool) {
	if p.pos >= len(p.input) || p.input[p.pos] != '"' {
		return "", false
	}
	p.pos++ // consume opening quote
	var sb strings.Builder
	for p.pos < len(p.input) {
		r := p.input[p.pos]
		switch r {
		case '"':
			p.pos++ // consume closing quote
			return sb.String(), true
		case '\n':
			return "", false
		case '\\':
			p.pos++
			if p.pos >= len(p.input) {
				return "", false
			}
			switch p.input[p.pos] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(p.input[p.pos])
			}
			p.pos++
		default:
			sb.WriteByte(r)
			p.pos++
		}
	}
	return "", false
}

// skipWhitespace skips whitespace and comments. `///` doc comments are
// collected for the next declaration.
func (p *Parser) skipWhitespace() {
	for {
		startPos := p.pos
		for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
			p.pos++
		}

		if strings.HasPrefix(p.input[p.pos:], "///") {
			p.pos += 3
			lineStart := p.pos
			p.skipToNewline()
			p.doc = append(p.doc, strings.TrimSpace(p.input[lineStart:p.pos]))
		} else if strings.HasPrefix(p.input[p.pos:], "//") {
			p.skipToNewline()
		}

		if p.pos == startPos {
			break
		}
	}
}

func (p *Parser) skipInlineSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

func (p *Parser) skipToNewline() {
	for p.pos < len(p.input) && p.input[p.pos] != '\n' {
		p.pos++
	}
}

func (p *Parser) skipLine() {
	p.skipToNewline()
	if p.pos < len(p.input) {
		p.pos++
	}
}

// skipBlock moves past the next closing brace, or to the end of input.
func (p *Parser) skipBlock() {
	for p.pos < len(p.input) && p.input[p.pos] != '}' {
		p.pos++
	}
	if p.pos < len(p.input) {
		p.pos++
	}
}

func (p *Parser) takeDoc() string {
	doc := strings.Join(p.doc, "\n")
	p.doc = nil
	return doc
}

func (p *Parser) span(start int) domain.Span {
	return domain.Span{Start: start, End: p.pos}
}
