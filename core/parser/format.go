package parser

import (
	"strings"
)

// DefaultTabSize is the indentation used by Format when none is given
const DefaultTabSize = 2

// Format renders schema text in canonical layout: blocks separated by one
// blank line, block bodies indented by tabSize spaces and field columns
// aligned. Text that does not parse is returned unchanged.
func Format(raw string, tabSize int) string {
	if tabSize <= 0 {
		tabSize = DefaultTabSize
	}
	if _, diags := NewParser(raw).Parse(); diags.HasErrors() {
		return raw
	}

	f := &formatter{indent: strings.Repeat(" ", tabSize)}
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		f.line(strings.TrimSpace(line))
	}
	f.flush()
	return strings.Join(f.trimmed(), "\n") + "\n"
}

type formatter struct {
	indent string
	out    []string
	block  string // keyword of the open block, "" at top level
	rows   [][]string
	blank  bool
}

func (f *formatter) line(line string) {
	if f.block == "" {
		f.topLevel(line)
		return
	}

	switch {
	case line == "}":
		f.flush()
		f.dropTrailingBlank()
		f.out = append(f.out, "}")
		f.block = ""
		f.blank = true
	case line == "":
		f.flush()
		if len(f.out) > 0 && f.out[len(f.out)-1] != "" && !strings.HasSuffix(f.out[len(f.out)-1], "{") {
			f.out = append(f.out, "")
		}
	case strings.HasPrefix(line, "//"):
		f.flush()
		f.out = append(f.out, f.indent+line)
	case strings.HasPrefix(line, "@@"):
		f.flush()
		tokens, comment := splitTopLevel(line)
		f.out = append(f.out, f.indent+joinCells(append(tokens, comment)))
	default:
		f.rows = append(f.rows, f.cells(line))
	}
}

func (f *formatter) topLevel(line string) {
	if line == "" {
		f.blank = true
		return
	}
	if f.blank && len(f.out) > 0 {
		f.out = append(f.out, "")
	}
	f.blank = false

	if strings.HasSuffix(line, "{") {
		header := strings.Fields(strings.TrimSuffix(line, "{"))
		f.out = append(f.out, strings.Join(header, " ")+" {")
		f.block = header[0]
		return
	}
	f.out = append(f.out, line)
	if strings.HasSuffix(line, "}") {
		f.blank = true
	}
}

// cells splits a block body line into its alignment columns
func (f *formatter) cells(line string) []string {
	if f.block == keywordDatasource || f.block == keywordGenerator {
		key, value, _ := strings.Cut(line, "=")
		return []string{strings.TrimSpace(key), "= " + strings.TrimSpace(value)}
	}

	tokens, comment := splitTopLevel(line)
	if f.block == keywordEnum {
		return []string{tokens[0], strings.Join(tokens[1:], " "), comment}
	}
	typ := ""
	if len(tokens) > 1 {
		typ = tokens[1]
	}
	attrs := ""
	if len(tokens) > 2 {
		attrs = strings.Join(tokens[2:], " ")
	}
	return []string{tokens[0], typ, attrs, comment}
}

// flush writes the pending rows with every column padded to the widest cell
// that is followed by another cell.
func (f *formatter) flush() {
	if len(f.rows) == 0 {
		return
	}
	widths := make([]int, 4)
	for _, row := range f.rows {
		last := lastCell(row)
		for i := 0; i < last; i++ {
			widths[i] = max(widths[i], len(row[i]))
		}
	}
	for _, row := range f.rows {
		last := lastCell(row)
		var sb strings.Builder
		sb.WriteString(f.indent)
		for i := 0; i <= last; i++ {
			if i < last && widths[i] == 0 {
				continue
			}
			sb.WriteString(row[i])
			if i < last {
				sb.WriteString(strings.Repeat(" ", widths[i]-len(row[i])+1))
			}
		}
		f.out = append(f.out, strings.TrimRight(sb.String(), " "))
	}
	f.rows = nil
}

func (f *formatter) dropTrailingBlank() {
	for len(f.out) > 0 && f.out[len(f.out)-1] == "" {
		f.out = f.out[:len(f.out)-1]
	}
}

func (f *formatter) trimmed() []string {
	f.dropTrailingBlank()
	return f.out
}

func lastCell(row []string) int {
	for i := len(row) - 1; i >= 0; i-- {
		if row[i] != "" {
			return i
		}
	}
	return 0
}

func joinCells(cells []string) string {
	var parts []string
	for _, c := range cells {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

// splitTopLevel splits a line on whitespace outside of quotes and brackets.
// A trailing `//` comment is returned separately.
func splitTopLevel(line string) ([]string, string) {
	var tokens []string
	var current strings.Builder
	depth := 0
	inString := false

	emit := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inString:
			current.WriteByte(c)
			if c == '\\' && i+1 < len(line) {
				i++
				current.WriteByte(line[i])
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
			current.WriteByte(c)
		case c == '(' || c == '[':
			depth++
			current.WriteByte(c)
		case c == ')' || c == ']':
			depth--
			current.WriteByte(c)
		case depth == 0 && strings.HasPrefix(line[i:], "//"):
			emit()
			return tokens, strings.TrimSpace(line[i:])
		case depth == 0 && (c == ' ' || c == '\t'):
			emit()
		default:
			current.WriteByte(c)
		}
	}
	emit()
	return tokens, ""
}
