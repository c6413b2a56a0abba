// SPDX-License-Identifier: MPL-2.0

// Package table parses EUPS table files: the line-oriented declarations
// of a product version's dependencies and environment effects.
//
// The grammar is deliberately forgiving where it can be: comments start
// at '#', directives are case-insensitive keywords followed by a
// parenthesized argument list with shell-style quoting, and arguments
// may span lines while parentheses remain unbalanced. Unknown
// directives are recorded as warnings and skipped so that newer table
// files keep working with older resolvers. Malformed quoting or
// unbalanced parentheses are fatal for the whole table.
package table

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ParseError reports a fatal syntax problem in a table file. It always
// carries the file path so the resolver can surface which table failed.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
}

// Parse reads and parses the table file at path. The product name is
// derived from the file stem.
func Parse(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), ".table")
	return ParseBytes(name, path, data)
}

// ParseFor reads the table file at path on behalf of productName.
func ParseFor(productName, path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(productName, path, data)
}

// ParseBytes parses table-file bytes. The path is used only for error
// reporting.
func ParseBytes(productName, path string, data []byte) (*Table, error) {
	p := &parser{
		table: &Table{Product: productName, Path: path},
		path:  path,
		src:   string(data),
		line:  1,
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.table, nil
}

type parser struct {
	table *Table
	path  string
	src   string
	pos   int
	line  int
}

func (p *parser) errf(line int, format string, args ...any) *ParseError {
	return &ParseError{Path: p.path, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) warnf(line int, format string, args ...any) {
	p.table.Warnings = append(p.table.Warnings,
		fmt.Sprintf("%s:%d: %s", p.path, line, fmt.Sprintf(format, args...)))
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) advance() byte {
	c := p.src[p.pos]
	p.pos++
	if c == '\n' {
		p.line++
	}
	return c
}

// skipToEOL consumes through the end of the current line.
func (p *parser) skipToEOL() {
	for !p.eof() && p.advance() != '\n' {
	}
}

func (p *parser) run() error {
	for !p.eof() {
		c := p.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			p.advance()
		case c == '#':
			p.skipToEOL()
		default:
			if err := p.directive(); err != nil {
				return err
			}
		}
	}
	return nil
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// directive parses one keyword(...) form starting at the current byte.
func (p *parser) directive() error {
	startLine := p.line
	start := p.pos
	for !p.eof() && isIdentByte(p.peek()) {
		p.advance()
	}
	keyword := p.src[start:p.pos]
	if keyword == "" {
		// Stray punctuation; not recoverable into a directive, but
		// harmless — skip the line with a warning.
		p.warnf(startLine, "unexpected character %q", p.peek())
		p.skipToEOL()
		return nil
	}
	// Allow horizontal whitespace between the keyword and its
	// argument list.
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.advance()
	}
	if p.eof() || p.peek() != '(' {
		p.warnf(startLine, "directive %q has no argument list", keyword)
		p.skipToEOL()
		return nil
	}
	p.advance() // consume '('
	args, err := p.arguments(startLine)
	if err != nil {
		return err
	}
	p.emit(keyword, args, startLine)
	return nil
}

// arguments scans a parenthesized argument list. Arguments are split on
// commas and unquoted whitespace; double quotes, single quotes, and
// backslash escapes group words; the list may span lines while the
// parentheses are unbalanced.
func (p *parser) arguments(startLine int) ([]string, error) {
	var args []string
	var cur strings.Builder
	hasCur := false
	depth := 1

	flush := func() {
		if hasCur {
			args = append(args, cur.String())
			cur.Reset()
			hasCur = false
		}
	}

	for {
		if p.eof() {
			return nil, p.errf(startLine, "unbalanced parentheses in directive arguments")
		}
		c := p.advance()
		switch c {
		case ')':
			depth--
			if depth == 0 {
				flush()
				return args, nil
			}
			cur.WriteByte(c)
			hasCur = true
		case '(':
			depth++
			cur.WriteByte(c)
			hasCur = true
		case ',':
			if depth == 1 {
				flush()
			} else {
				cur.WriteByte(c)
				hasCur = true
			}
		case ' ', '\t', '\r', '\n':
			if depth == 1 {
				flush()
			} else {
				cur.WriteByte(c)
				hasCur = true
			}
		case '#':
			// Comment to end of line, even mid-argument-list.
			flush()
			p.skipToEOL()
		case '"', '\'':
			word, err := p.quoted(c, startLine)
			if err != nil {
				return nil, err
			}
			cur.WriteString(word)
			hasCur = true
		case '\\':
			if p.eof() {
				return nil, p.errf(startLine, "dangling backslash escape")
			}
			cur.WriteByte(p.advance())
			hasCur = true
		default:
			cur.WriteByte(c)
			hasCur = true
		}
	}
}

// quoted consumes a quoted word whose opening quote was already read.
// Single quotes are literal; double quotes honor backslash escapes.
func (p *parser) quoted(quote byte, startLine int) (string, error) {
	var b strings.Builder
	for {
		if p.eof() {
			return "", p.errf(startLine, "unterminated %c-quoted string", quote)
		}
		c := p.advance()
		switch {
		case c == quote:
			return b.String(), nil
		case c == '\\' && quote == '"':
			if p.eof() {
				return "", p.errf(startLine, "unterminated %c-quoted string", quote)
			}
			b.WriteByte(p.advance())
		default:
			b.WriteByte(c)
		}
	}
}

// emit validates one directive and appends the resulting Action. Bad
// argument counts are recoverable: the directive is skipped with a
// warning, matching the treatment of unknown directives.
func (p *parser) emit(keyword string, args []string, line int) {
	add := func(a Action) {
		a.Line = line
		p.table.Actions = append(p.table.Actions, a)
	}

	switch strings.ToLower(keyword) {
	case "setuprequired", "setupoptional":
		optional := strings.ToLower(keyword) == "setupoptional"
		prod, version, ok := setupArgs(args)
		if !ok {
			p.warnf(line, "%s expects (product[, version]), got %d arguments", keyword, len(args))
			return
		}
		kind := ActionSetupRequired
		if optional {
			kind = ActionSetupOptional
		}
		add(Action{Kind: kind, Product: prod, Version: version})
		p.table.Dependencies = append(p.table.Dependencies, Dependency{
			Product:  prod,
			Version:  version,
			Optional: optional,
			Line:     line,
		})
	case "envset":
		if len(args) != 2 {
			p.warnf(line, "envSet expects (var, value), got %d arguments", len(args))
			return
		}
		add(Action{Kind: ActionEnvSet, Var: args[0], Value: args[1]})
	case "envunset":
		if len(args) != 1 {
			p.warnf(line, "envUnset expects (var), got %d arguments", len(args))
			return
		}
		add(Action{Kind: ActionEnvUnset, Var: args[0]})
	case "envprepend", "pathprepend":
		p.emitPathDirective(ActionEnvPrepend, keyword, args, line, add)
	case "envappend", "pathappend":
		p.emitPathDirective(ActionEnvAppend, keyword, args, line, add)
	case "alias":
		if len(args) != 2 {
			p.warnf(line, "alias expects (name, body), got %d arguments", len(args))
			return
		}
		add(Action{Kind: ActionAlias, Name: args[0], Body: args[1]})
	case "unalias":
		if len(args) != 1 {
			p.warnf(line, "unalias expects (name), got %d arguments", len(args))
			return
		}
		add(Action{Kind: ActionUnalias, Name: args[0]})
	case "sourcefile":
		if len(args) != 1 {
			p.warnf(line, "sourceFile expects (path), got %d arguments", len(args))
			return
		}
		add(Action{Kind: ActionSourceFile, Path: args[0]})
	default:
		p.warnf(line, "unknown directive %q skipped", keyword)
	}
}

func (p *parser) emitPathDirective(kind ActionKind, keyword string, args []string, line int, add func(Action)) {
	if len(args) < 2 || len(args) > 3 {
		p.warnf(line, "%s expects (var, value[, delim]), got %d arguments", keyword, len(args))
		return
	}
	delim := DefaultDelim
	if len(args) == 3 && args[2] != "" {
		delim = args[2]
	}
	add(Action{Kind: kind, Var: args[0], Value: args[1], Delim: delim})
}

// setupArgs normalizes setup directive arguments. Beyond the plain
// (product[, version]) form, the historical exact-version marker
// "product -j version" is accepted and treated as a pin.
func setupArgs(args []string) (prod, version string, ok bool) {
	var rest []string
	for i := 0; i < len(args); i++ {
		if args[i] == "-j" {
			if i+1 < len(args) {
				version = args[i+1]
				i++
			}
			continue
		}
		rest = append(rest, args[i])
	}
	switch len(rest) {
	case 1:
		return rest[0], version, true
	case 2:
		if version == "" {
			version = rest[1]
		}
		return rest[0], version, true
	default:
		return "", "", false
	}
}
