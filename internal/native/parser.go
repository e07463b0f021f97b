// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

// Package native implements a parser and printer for the HCL native
// syntax. The parser is a scannerless recursive descent over a decoded
// code point buffer: alternatives are tried in order, a failed alternative
// restores the cursor, and the furthest rejection is what gets reported.
package native

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/apparentlymart/go-textseg/v15/textseg"

	"gopkg.microglot.org/hcl.go/ast"
	"gopkg.microglot.org/hcl.go/internal/exc"
	"gopkg.microglot.org/hcl.go/internal/fs"
	"gopkg.microglot.org/hcl.go/internal/iter"
	"gopkg.microglot.org/hcl.go/internal/lang"
)

// ParseFailure describes the furthest point reached before the input was
// rejected and the set of productions that could have continued there.
type ParseFailure struct {
	exc.Exception
	Offset   int
	Line     int
	Column   int
	Expected []string
}

// Parse parses HCL native syntax source text into a ConfigFile. The uri is
// used only for error locations. On failure the returned error is a
// *ParseFailure.
func Parse(uri string, input string) (*ast.ConfigFile, error) {
	return ParseFile(context.Background(), fs.NewFileString(uri, input, lang.FileKindHCL))
}

// ParseFile parses the body of the given file.
func ParseFile(ctx context.Context, f lang.File) (*ast.ConfigFile, error) {
	body, err := f.Body(ctx)
	if err != nil {
		return nil, err
	}
	points, err := iter.Collect(ctx, iter.NewUnicodeFileBodyCtx(ctx, body))
	if err != nil {
		return nil, exc.WrapUnknown(exc.Location{URI: f.Path(ctx)}, err)
	}
	src := make([]rune, len(points))
	for i, pt := range points {
		src[i] = rune(pt)
	}
	return parseSource(f.Path(ctx), src)
}

func parseSource(uri string, src []rune) (*ast.ConfigFile, error) {
	p := &parser{uri: uri, src: src}
	file := p.parseConfigFile()
	if file == nil {
		return nil, p.failure()
	}
	return file, nil
}

const eof = rune(-1)

type parser struct {
	uri string
	src []rune
	pos int
	// heredoc is the marker register: the identifier that terminates the
	// heredoc currently being parsed. It is saved and restored around each
	// heredoc production and never shared between Parse invocations.
	heredoc string
	// furthest/expected track the rightmost rejection for error reporting.
	furthest int
	expected []string
}

func (p *parser) peek() rune {
	return p.at(0)
}

func (p *parser) at(n int) rune {
	if p.pos+n < len(p.src) {
		return p.src[p.pos+n]
	}
	return eof
}

func (p *parser) advance() rune {
	r := p.peek()
	if r != eof {
		p.pos++
	}
	return r
}

// fail records expected at the current position. It always returns false so
// that productions can report and bail in one statement.
func (p *parser) fail(expected string) bool {
	if p.pos > p.furthest {
		p.furthest = p.pos
		p.expected = p.expected[:0]
	}
	if p.pos == p.furthest {
		for _, e := range p.expected {
			if e == expected {
				return false
			}
		}
		p.expected = append(p.expected, expected)
	}
	return false
}

func (p *parser) expect(r rune, what string) bool {
	if p.peek() == r {
		p.advance()
		return true
	}
	return p.fail(what)
}

// lit consumes the given literal text if it appears at the cursor.
func (p *parser) lit(s string) bool {
	for i, r := range []rune(s) {
		if p.at(i) != r {
			return false
		}
	}
	p.pos += len([]rune(s))
	return true
}

// word consumes the given keyword only when it is not a prefix of a longer
// identifier.
func (p *parser) word(s string) bool {
	mark := p.pos
	if !p.lit(s) {
		return false
	}
	if isIdentContinue(p.peek()) {
		p.pos = mark
		return false
	}
	return true
}

// ws consumes inline whitespace: spaces, tabs, and /* */ comments. Inline
// comments count as whitespace even when they span lines.
func (p *parser) ws() {
	for {
		switch r := p.peek(); {
		case r == ' ' || r == '\t':
			p.advance()
		case r == '/' && p.at(1) == '*':
			p.advance()
			p.advance()
			for p.peek() != eof && !(p.peek() == '*' && p.at(1) == '/') {
				p.advance()
			}
			p.advance()
			p.advance()
		default:
			return
		}
	}
}

// nl consumes a single newline equivalent: \n, \r\n, \r, or a line comment
// through its terminating newline.
func (p *parser) nl() bool {
	switch r := p.peek(); {
	case r == '\n':
		p.advance()
		return true
	case r == '\r':
		p.advance()
		if p.peek() == '\n' {
			p.advance()
		}
		return true
	case r == '#' || (r == '/' && p.at(1) == '/'):
		for p.peek() != eof && p.peek() != '\n' {
			p.advance()
		}
		p.advance()
		return true
	}
	return false
}

// wsnl consumes any mix of whitespace and newline equivalents, reporting
// whether at least one newline was crossed.
func (p *parser) wsnl() bool {
	saw := false
	for {
		p.ws()
		if !p.nl() {
			return saw
		}
		saw = true
	}
}

// Terminator = Newline | EOF
func (p *parser) terminator() bool {
	p.ws()
	if p.peek() == eof {
		return true
	}
	if !p.nl() {
		return p.fail("newline")
	}
	p.wsnl()
	return true
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// ValidIdentifier reports whether s is a well-formed identifier: a
// letter, underscore, or non-ASCII code point followed by any mix of
// those plus digits and hyphens.
func ValidIdentifier(s string) bool {
	runes := []rune(s)
	if len(runes) == 0 || !isIdentStart(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if !isIdentContinue(r) {
			return false
		}
	}
	return true
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || (r >= utf8.RuneSelf && r != eof)
}

func isIdentContinue(r rune) bool {
	return isIdentStart(r) || isDigit(r) || r == '-'
}

// ConfigFile = EmptyLines BodyElement*
func (p *parser) parseConfigFile() *ast.ConfigFile {
	this := ast.ConfigFile{Bodies: []ast.BodyElement{}}
	p.wsnl()
	for p.peek() != eof {
		elem := p.parseBodyElement()
		if elem == nil {
			return nil
		}
		this.Bodies = append(this.Bodies, elem)
	}
	return &this
}

// BodyElement = Attribute | Block | OneLineBlock
//
// All three share an identifier prefix, so the split happens on the token
// that follows: "=" commits to an attribute, anything else is the label
// list of a block. The one-line form is attempted before the multi-line
// form and is rejected on any newline before the closing brace.
func (p *parser) parseBodyElement() ast.BodyElement {
	name := p.parseIdentifier()
	if name == nil {
		return nil
	}
	p.ws()
	if p.peek() == '=' && p.at(1) != '=' {
		p.advance()
		p.ws()
		value := p.parseExpression()
		if value == nil {
			return nil
		}
		if !p.terminator() {
			return nil
		}
		return &ast.Attribute{Name: name, Value: value}
	}

	labels := []ast.Label{}
	for {
		r := p.peek()
		if r == '"' {
			label := p.parseStringLiteral()
			if label == nil {
				return nil
			}
			labels = append(labels, label)
		} else if isIdentStart(r) {
			label := p.parseIdentifier()
			if label == nil {
				return nil
			}
			labels = append(labels, label)
		} else {
			break
		}
		p.ws()
	}
	if !p.expect('{', "{") {
		return nil
	}

	// Empty braces on one line are a Block with no bodies.
	mark := p.pos
	p.ws()
	if p.peek() == '}' {
		p.advance()
		if !p.terminator() {
			return nil
		}
		return &ast.Block{BlockType: name, Labels: labels, Bodies: []ast.BodyElement{}}
	}
	p.pos = mark

	if attr, ok := p.parseOneLineBody(); ok {
		if !p.terminator() {
			return nil
		}
		return &ast.OneLineBlock{BlockType: name, Labels: labels, Attribute: attr}
	}

	p.ws()
	if !p.nl() {
		p.fail("newline")
		return nil
	}
	p.wsnl()
	bodies := []ast.BodyElement{}
	for p.peek() != '}' {
		if p.peek() == eof {
			p.fail("}")
			return nil
		}
		elem := p.parseBodyElement()
		if elem == nil {
			return nil
		}
		bodies = append(bodies, elem)
	}
	p.advance()
	if !p.terminator() {
		return nil
	}
	return &ast.Block{BlockType: name, Labels: labels, Bodies: bodies}
}

// OneLineBlock body: (Identifier "=" Expression)? "}" with no newline
// before the closing brace.
func (p *parser) parseOneLineBody() (*ast.Attribute, bool) {
	mark := p.pos
	p.ws()
	name := p.parseIdentifier()
	if name == nil {
		p.pos = mark
		return nil, false
	}
	p.ws()
	if p.peek() != '=' || p.at(1) == '=' {
		p.pos = mark
		return nil, false
	}
	p.advance()
	p.ws()
	value := p.parseExpression()
	if value == nil {
		p.pos = mark
		return nil, false
	}
	p.ws()
	if p.peek() != '}' {
		p.pos = mark
		return nil, false
	}
	p.advance()
	return &ast.Attribute{Name: name, Value: value}, true
}

// Identifier = id_start id_continue*
//
// id_start is a letter, underscore, or any code point above ASCII;
// id_continue adds digits and hyphens.
func (p *parser) parseIdentifier() *ast.Identifier {
	if !isIdentStart(p.peek()) {
		p.fail("identifier")
		return nil
	}
	start := p.pos
	p.advance()
	for isIdentContinue(p.peek()) {
		p.advance()
	}
	return &ast.Identifier{Value: string(p.src[start:p.pos])}
}

// StringLiteral = '"' (escape | char)* '"'
//
// Used for block labels. Unlike quoted templates, no interpolation is
// recognized; escapes are decoded in place.
func (p *parser) parseStringLiteral() *ast.StringLiteral {
	if !p.expect('"', "\"") {
		return nil
	}
	var sb strings.Builder
	for {
		switch r := p.peek(); {
		case r == '"':
			p.advance()
			return &ast.StringLiteral{Value: sb.String()}
		case r == eof || r == '\n' || r == '\r':
			p.fail("closing quote")
			return nil
		case r == '\\':
			p.advance()
			s, ok := p.parseEscape()
			if !ok {
				return nil
			}
			sb.WriteString(s)
		default:
			p.advance()
			sb.WriteRune(r)
		}
	}
}

// escape = "n" | "r" | "t" | `"` | `\` | "u" hex4 | "U" hex8
func (p *parser) parseEscape() (string, bool) {
	switch r := p.advance(); r {
	case 'n':
		return "\n", true
	case 'r':
		return "\r", true
	case 't':
		return "\t", true
	case '"':
		return "\"", true
	case '\\':
		return "\\", true
	case 'u':
		return p.parseEscapeHex(4)
	case 'U':
		return p.parseEscapeHex(8)
	}
	p.fail("escape sequence")
	return "", false
}

func (p *parser) parseEscapeHex(n int) (string, bool) {
	v := 0
	for i := 0; i < n; i++ {
		r := p.peek()
		d := 0
		switch {
		case isDigit(r):
			d = int(r - '0')
		case r >= 'a' && r <= 'f':
			d = int(r-'a') + 10
		case r >= 'A' && r <= 'F':
			d = int(r-'A') + 10
		default:
			p.fail("hex digit")
			return "", false
		}
		p.advance()
		v = v*16 + d
	}
	return string(rune(v)), true
}

// Expression = BinaryLevel0 ("?" Expression ":" Expression)?
//
// The conditional is right associative: both arms recurse into the full
// expression production.
func (p *parser) parseExpression() ast.Expression {
	cond := p.parseBinary(0)
	if cond == nil {
		return nil
	}
	mark := p.pos
	p.ws()
	if p.peek() != '?' {
		p.pos = mark
		return cond
	}
	p.advance()
	p.ws()
	trueExpr := p.parseExpression()
	if trueExpr == nil {
		return nil
	}
	p.ws()
	if !p.expect(':', ":") {
		return nil
	}
	p.ws()
	falseExpr := p.parseExpression()
	if falseExpr == nil {
		return nil
	}
	return &ast.ConditionalOperator{Predicate: cond, TrueExpr: trueExpr, FalseExpr: falseExpr}
}

// binaryLevels is the precedence ladder, loosest first. Each level parses
// the next tighter level on the left and recurses into its own level on
// the right, so same-level chains lean right.
var binaryLevels = [][]string{
	{"||"},
	{"&&"},
	{"==", "!="},
	{">=", "<=", ">", "<"},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *parser) parseBinary(level int) ast.Expression {
	if level >= len(binaryLevels) {
		return p.parseUnary()
	}
	left := p.parseBinary(level + 1)
	if left == nil {
		return nil
	}
	mark := p.pos
	p.ws()
	for _, op := range binaryLevels[level] {
		if p.matchOperator(op) {
			p.ws()
			right := p.parseBinary(level)
			if right == nil {
				return nil
			}
			return &ast.BinaryOperator{Operator: op, Left: left, Right: right}
		}
	}
	p.pos = mark
	return left
}

func (p *parser) matchOperator(op string) bool {
	switch op {
	case "/":
		// Not an operator when it opens a comment.
		if p.at(1) == '/' || p.at(1) == '*' {
			return false
		}
	case ">", "<":
		if p.at(1) == '=' {
			return false
		}
	}
	return p.lit(op)
}

// UnaryOperator = ("-" | "!") Unary | Postfix
func (p *parser) parseUnary() ast.Expression {
	r := p.peek()
	if r == '-' || (r == '!' && p.at(1) != '=') {
		p.advance()
		p.ws()
		term := p.parseUnary()
		if term == nil {
			return nil
		}
		return &ast.UnaryOperator{Operator: string(r), Term: term}
	}
	return p.parsePostfix()
}

// Postfix chain: after a primary term, greedily consume index, legacy
// index, attribute, and splat operators. Each operator takes the
// accumulated expression as its target, which is a left fold.
func (p *parser) parsePostfix() ast.Expression {
	e := p.parsePrimary()
	if e == nil {
		return nil
	}
	for {
		mark := p.pos
		p.ws()
		switch r := p.peek(); {
		case r == '.' && p.at(1) == '*':
			p.advance()
			p.advance()
			e = p.parseAttrSplat(e)
			if e == nil {
				return nil
			}
		case r == '.' && isDigit(p.at(1)):
			p.advance()
			key := p.parseDigits()
			if key == nil {
				return nil
			}
			e = &ast.LegacyIndexOperator{Key: key, Target: e}
		case r == '.' && isIdentStart(p.at(1)):
			p.advance()
			key := p.parseIdentifier()
			if key == nil {
				return nil
			}
			e = &ast.GetAttributeOperator{Key: key, Target: e}
		case r == '[':
			p.advance()
			p.wsnl()
			if p.peek() == '*' {
				starMark := p.pos
				p.advance()
				p.wsnl()
				if p.peek() == ']' {
					p.advance()
					e = p.parseFullSplat(e)
					if e == nil {
						return nil
					}
					continue
				}
				p.pos = starMark
			}
			key := p.parseExpression()
			if key == nil {
				return nil
			}
			p.wsnl()
			if !p.expect(']', "]") {
				return nil
			}
			e = &ast.IndexOperator{Key: key, Target: e}
		default:
			p.pos = mark
			return e
		}
	}
}

// Attribute splat: ".*" followed by a chain of ".ident" steps. The steps
// carry no target of their own.
func (p *parser) parseAttrSplat(target ast.Expression) ast.Expression {
	splat := &ast.SplatOperator{
		Kind:       ast.SplatKindAttribute,
		Attributes: []*ast.GetAttributeOperator{},
		Target:     target,
	}
	for {
		mark := p.pos
		p.ws()
		if p.peek() == '.' && isIdentStart(p.at(1)) {
			p.advance()
			key := p.parseIdentifier()
			if key == nil {
				return nil
			}
			splat.Attributes = append(splat.Attributes, &ast.GetAttributeOperator{Key: key})
			continue
		}
		p.pos = mark
		return splat
	}
}

// Full splat: "[*]" followed by any mix of ".ident" and "[expr]" steps.
func (p *parser) parseFullSplat(target ast.Expression) ast.Expression {
	splat := &ast.SplatOperator{
		Kind:       ast.SplatKindFull,
		Operations: []ast.Expression{},
		Target:     target,
	}
	for {
		mark := p.pos
		p.ws()
		switch r := p.peek(); {
		case r == '.' && isIdentStart(p.at(1)):
			p.advance()
			key := p.parseIdentifier()
			if key == nil {
				return nil
			}
			splat.Operations = append(splat.Operations, &ast.GetAttributeOperator{Key: key})
		case r == '[':
			p.advance()
			p.wsnl()
			key := p.parseExpression()
			if key == nil {
				return nil
			}
			p.wsnl()
			if !p.expect(']', "]") {
				return nil
			}
			splat.Operations = append(splat.Operations, &ast.IndexOperator{Key: key})
		default:
			p.pos = mark
			return splat
		}
	}
}

// Primary terms, tried in order: quoted template, heredoc template,
// number, keyword literal, function call, variable, collection or
// for-expression, parenthesized expression.
func (p *parser) parsePrimary() ast.Expression {
	switch r := p.peek(); {
	case r == '"':
		return p.parseQuotedTemplate()
	case r == '<' && p.at(1) == '<':
		return p.parseHeredoc()
	case isDigit(r):
		return p.parseNumber()
	case r == '[':
		if p.forAhead() {
			return p.parseForTuple()
		}
		return p.parseTuple()
	case r == '{':
		if p.forAhead() {
			return p.parseForObject()
		}
		return p.parseObject()
	case r == '(':
		return p.parseParenthesized()
	case isIdentStart(r):
		if p.word("true") {
			return &ast.BooleanLiteral{Value: true}
		}
		if p.word("false") {
			return &ast.BooleanLiteral{Value: false}
		}
		if p.word("null") {
			return &ast.NullLiteral{}
		}
		name := p.parseIdentifier()
		if name == nil {
			return nil
		}
		mark := p.pos
		p.ws()
		if p.peek() == '(' {
			p.advance()
			args := p.parseExpressionList(')')
			if args == nil {
				return nil
			}
			return &ast.FunctionCallExpression{Name: name, Args: args}
		}
		p.pos = mark
		return &ast.VariableExpression{Name: name}
	}
	p.fail("expression")
	return nil
}

// forAhead peeks past the opening bracket for the `for` keyword, which is
// what distinguishes a for-expression from a collection literal.
func (p *parser) forAhead() bool {
	mark := p.pos
	p.advance()
	p.wsnl()
	ok := p.word("for")
	p.pos = mark
	return ok
}

// NumberLiteral = digits ("." digits)? (("e" | "E") ("+" | "-")? digits)?
func (p *parser) parseNumber() ast.Expression {
	start := p.pos
	for isDigit(p.peek()) {
		p.advance()
	}
	if p.peek() == '.' && isDigit(p.at(1)) {
		p.advance()
		for isDigit(p.peek()) {
			p.advance()
		}
	}
	if r := p.peek(); r == 'e' || r == 'E' {
		mark := p.pos
		p.advance()
		if s := p.peek(); s == '+' || s == '-' {
			p.advance()
		}
		if !isDigit(p.peek()) {
			p.pos = mark
		} else {
			for isDigit(p.peek()) {
				p.advance()
			}
		}
	}
	text := string(p.src[start:p.pos])
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.fail("number")
		return nil
	}
	return &ast.NumberLiteral{Value: value}
}

func (p *parser) parseDigits() *ast.NumberLiteral {
	start := p.pos
	for isDigit(p.peek()) {
		p.advance()
	}
	if start == p.pos {
		p.fail("digits")
		return nil
	}
	value, err := strconv.ParseFloat(string(p.src[start:p.pos]), 64)
	if err != nil {
		p.fail("digits")
		return nil
	}
	return &ast.NumberLiteral{Value: value}
}

// generic comma-separated expression list with an optional trailing comma,
// closed by the given rune. The opening rune has already been consumed.
func (p *parser) parseExpressionList(close rune) []ast.Expression {
	values := []ast.Expression{}
	p.wsnl()
	if p.peek() == close {
		p.advance()
		return values
	}
	for {
		value := p.parseExpression()
		if value == nil {
			return nil
		}
		values = append(values, value)
		p.wsnl()
		if p.peek() == ',' {
			p.advance()
			p.wsnl()
			if p.peek() == close {
				p.advance()
				return values
			}
			continue
		}
		if p.peek() == close {
			p.advance()
			return values
		}
		p.fail(fmt.Sprintf(", or %c", close))
		return nil
	}
}

// TupleValue = "[" (Expression ("," | NL)*)? "]"
//
// Commas are the usual separator; a newline between elements also
// separates, which is how multi-line tuples are written.
func (p *parser) parseTuple() ast.Expression {
	if !p.expect('[', "[") {
		return nil
	}
	elements := []ast.Expression{}
	p.wsnl()
	for p.peek() != ']' {
		element := p.parseExpression()
		if element == nil {
			return nil
		}
		elements = append(elements, element)
		sawNL := p.wsnl()
		if p.peek() == ',' {
			p.advance()
			p.wsnl()
			continue
		}
		if p.peek() == ']' {
			break
		}
		if !sawNL {
			p.fail(", or ]")
			return nil
		}
	}
	p.advance()
	return &ast.TupleValue{Elements: elements}
}

// ObjectValue = "{" (ObjectValueElement ("," | NL)*)? "}"
// ObjectValueElement = Identifier ("=" | ":") Expression
func (p *parser) parseObject() ast.Expression {
	if !p.expect('{', "{") {
		return nil
	}
	elements := []*ast.ObjectValueElement{}
	p.wsnl()
	for p.peek() != '}' {
		key := p.parseIdentifier()
		if key == nil {
			return nil
		}
		p.ws()
		if p.peek() == '=' && p.at(1) != '=' {
			p.advance()
		} else if p.peek() == ':' {
			p.advance()
		} else {
			p.fail("= or :")
			return nil
		}
		p.wsnl()
		value := p.parseExpression()
		if value == nil {
			return nil
		}
		elements = append(elements, &ast.ObjectValueElement{Key: key, Value: value})
		sawNL := p.wsnl()
		if p.peek() == ',' {
			p.advance()
			p.wsnl()
			continue
		}
		if p.peek() == '}' {
			break
		}
		if !sawNL {
			p.fail(", or }")
			return nil
		}
	}
	p.advance()
	return &ast.ObjectValue{Elements: elements}
}

// ParenthesizedExpression = "(" Expression ")"
func (p *parser) parseParenthesized() ast.Expression {
	if !p.expect('(', "(") {
		return nil
	}
	p.wsnl()
	expression := p.parseExpression()
	if expression == nil {
		return nil
	}
	p.wsnl()
	if !p.expect(')', ")") {
		return nil
	}
	return &ast.ParenthesizedExpression{Expression: expression}
}

// ForIntro = "for" Identifier ("," Identifier)? "in" Expression ":"
func (p *parser) parseForIntro() *ast.ForIntro {
	if !p.word("for") {
		p.fail("for")
		return nil
	}
	p.wsnl()
	iterator := p.parseIdentifier()
	if iterator == nil {
		return nil
	}
	p.wsnl()
	var value *ast.Identifier
	if p.peek() == ',' {
		p.advance()
		p.wsnl()
		value = p.parseIdentifier()
		if value == nil {
			return nil
		}
		p.wsnl()
	}
	if !p.word("in") {
		p.fail("in")
		return nil
	}
	p.wsnl()
	collection := p.parseExpression()
	if collection == nil {
		return nil
	}
	p.wsnl()
	if !p.expect(':', ":") {
		return nil
	}
	return &ast.ForIntro{Iterator: iterator, Value: value, Collection: collection}
}

// ForTupleExpression = "[" ForIntro Expression ("if" Expression)? "]"
func (p *parser) parseForTuple() ast.Expression {
	if !p.expect('[', "[") {
		return nil
	}
	p.wsnl()
	intro := p.parseForIntro()
	if intro == nil {
		return nil
	}
	p.wsnl()
	expression := p.parseExpression()
	if expression == nil {
		return nil
	}
	condition, ok := p.parseForCondition()
	if !ok {
		return nil
	}
	p.wsnl()
	if !p.expect(']', "]") {
		return nil
	}
	return &ast.ForTupleExpression{Intro: intro, Expression: expression, Condition: condition}
}

// ForObjectExpression = "{" ForIntro Expression "=>" Expression "..."?
// ("if" Expression)? "}"
func (p *parser) parseForObject() ast.Expression {
	if !p.expect('{', "{") {
		return nil
	}
	p.wsnl()
	intro := p.parseForIntro()
	if intro == nil {
		return nil
	}
	p.wsnl()
	key := p.parseExpression()
	if key == nil {
		return nil
	}
	p.wsnl()
	if !p.lit("=>") {
		p.fail("=>")
		return nil
	}
	p.wsnl()
	value := p.parseExpression()
	if value == nil {
		return nil
	}
	grouping := false
	p.wsnl()
	if p.lit("...") {
		grouping = true
	}
	condition, ok := p.parseForCondition()
	if !ok {
		return nil
	}
	p.wsnl()
	if !p.expect('}', "}") {
		return nil
	}
	return &ast.ForObjectExpression{Intro: intro, Key: key, Value: value, Grouping: grouping, Condition: condition}
}

func (p *parser) parseForCondition() (ast.Expression, bool) {
	mark := p.pos
	p.wsnl()
	if !p.word("if") {
		p.pos = mark
		return nil, true
	}
	p.wsnl()
	condition := p.parseExpression()
	if condition == nil {
		return nil, false
	}
	return condition, true
}

type tmplMode int

const (
	tmplQuoted tmplMode = iota
	tmplHeredoc
)

// templateStop is a %{else}, %{endif}, or %{endfor} marker that hands
// control back to the enclosing directive.
type templateStop struct {
	kind  string
	strip ast.StripBounds
}

// QuotedTemplateExpression = '"' QuotedTemplateContent* '"'
func (p *parser) parseQuotedTemplate() ast.Expression {
	if !p.expect('"', "\"") {
		return nil
	}
	parts, stop, ok := p.parseTemplate(tmplQuoted, false)
	if !ok {
		return nil
	}
	if stop != nil {
		p.fail("template content")
		return nil
	}
	if !p.expect('"', "closing quote") {
		return nil
	}
	return &ast.QuotedTemplateExpression{Parts: parts}
}

// HeredocTemplateExpression = "<<" "-"? Identifier NL Template* Marker
//
// The opening identifier is captured into the marker register; the body
// then runs until a line whose leading identifier equals the register. The
// register is saved and restored so that a heredoc inside an interpolation
// does not clobber the enclosing one.
func (p *parser) parseHeredoc() ast.Expression {
	p.advance()
	p.advance()
	stripIndent := false
	if p.peek() == '-' {
		p.advance()
		stripIndent = true
	}
	marker := p.parseIdentifier()
	if marker == nil {
		return nil
	}
	if p.peek() == '\r' {
		p.advance()
	}
	if !p.expect('\n', "newline") {
		return nil
	}
	prev := p.heredoc
	p.heredoc = marker.Value
	parts, stop, ok := p.parseTemplate(tmplHeredoc, true)
	p.heredoc = prev
	if !ok {
		return nil
	}
	if stop != nil {
		p.fail("heredoc content")
		return nil
	}
	return &ast.HeredocTemplateExpression{Marker: marker, StripIndent: stripIndent, Template: parts}
}

// parseTemplate scans literal runs, interpolations, and directives until
// the end of the surrounding template (the closing quote, which is left
// unconsumed, or the heredoc end marker, which is consumed) or until a
// directive stop marker. atLineStart seeds end-marker detection: heredoc
// end markers only count at the start of a line.
func (p *parser) parseTemplate(mode tmplMode, atLineStart bool) ([]ast.Template, *templateStop, bool) {
	parts := []ast.Template{}
	var lit []rune
	lineStart := atLineStart
	flush := func() {
		if len(lit) > 0 {
			parts = append(parts, &ast.TemplateLiteral{Value: string(lit)})
			lit = nil
		}
	}
	for {
		if mode == tmplHeredoc && lineStart && p.heredocEndAhead() {
			lit = trimTrailingNewline(lit)
			flush()
			p.consumeHeredocEnd()
			return parts, nil, true
		}
		lineStart = false
		r := p.peek()
		switch {
		case r == eof:
			if mode == tmplHeredoc {
				p.fail("heredoc end marker " + p.heredoc)
			} else {
				p.fail("closing quote")
			}
			return nil, nil, false
		case mode == tmplQuoted && r == '"':
			flush()
			return parts, nil, true
		case mode == tmplQuoted && (r == '\n' || r == '\r'):
			p.fail("closing quote")
			return nil, nil, false
		case (r == '$' || r == '%') && p.at(1) == r:
			p.advance()
			p.advance()
			lit = append(lit, r)
		case r == '$' && p.at(1) == '{':
			flush()
			interp := p.parseInterpolation()
			if interp == nil {
				return nil, nil, false
			}
			parts = append(parts, interp)
		case r == '%' && p.at(1) == '{':
			flush()
			part, stop, ok := p.parseTemplateDirective(mode)
			if !ok {
				return nil, nil, false
			}
			if stop != nil {
				flush()
				return parts, stop, true
			}
			parts = append(parts, part)
		case mode == tmplQuoted && r == '\\':
			p.advance()
			s, ok := p.parseEscape()
			if !ok {
				return nil, nil, false
			}
			lit = append(lit, []rune(s)...)
		default:
			p.advance()
			lit = append(lit, r)
			if r == '\n' {
				lineStart = true
			}
		}
	}
}

// heredocEndAhead is a zero-width lookahead for a line holding only the
// end marker (after optional leading whitespace).
func (p *parser) heredocEndAhead() bool {
	j := p.pos
	for j < len(p.src) && (p.src[j] == ' ' || p.src[j] == '\t') {
		j++
	}
	for _, r := range []rune(p.heredoc) {
		if j >= len(p.src) || p.src[j] != r {
			return false
		}
		j++
	}
	if j < len(p.src) && p.src[j] == '\r' {
		j++
	}
	return j >= len(p.src) || p.src[j] == '\n'
}

// consumeHeredocEnd consumes leading whitespace and the marker, leaving
// the trailing newline in place to terminate the surrounding attribute.
func (p *parser) consumeHeredocEnd() {
	for p.peek() == ' ' || p.peek() == '\t' {
		p.advance()
	}
	p.pos += len([]rune(p.heredoc))
}

func trimTrailingNewline(lit []rune) []rune {
	if len(lit) > 0 && lit[len(lit)-1] == '\n' {
		lit = lit[:len(lit)-1]
	}
	if len(lit) > 0 && lit[len(lit)-1] == '\r' {
		lit = lit[:len(lit)-1]
	}
	return lit
}

// TemplateInterpolation = "${" "~"? Expression "~"? "}"
func (p *parser) parseInterpolation() ast.Template {
	p.advance()
	p.advance()
	strip := ast.Strip{}
	if p.peek() == '~' {
		p.advance()
		strip.Left = true
	}
	p.wsnl()
	expression := p.parseExpression()
	if expression == nil {
		return nil
	}
	p.wsnl()
	if p.peek() == '~' {
		p.advance()
		strip.Right = true
	}
	if !p.expect('}', "}") {
		return nil
	}
	return &ast.TemplateInterpolation{Expression: expression, Strip: strip}
}

// TemplateDirective = TemplateIf | TemplateFor
//
// The else/endif/endfor markers are returned as stops for the enclosing
// directive to consume.
func (p *parser) parseTemplateDirective(mode tmplMode) (ast.Template, *templateStop, bool) {
	p.advance()
	p.advance()
	bounds := ast.StripBounds{}
	if p.peek() == '~' {
		p.advance()
		bounds.Start = true
	}
	p.ws()
	switch {
	case p.word("if"):
		p.ws()
		condition := p.parseExpression()
		if condition == nil {
			return nil, nil, false
		}
		if !p.closeDirective(&bounds) {
			return nil, nil, false
		}
		part, ok := p.parseTemplateIf(mode, condition, bounds)
		return part, nil, ok
	case p.word("for"):
		p.ws()
		key := p.parseIdentifier()
		if key == nil {
			return nil, nil, false
		}
		p.ws()
		var value *ast.Identifier
		if p.peek() == ',' {
			p.advance()
			p.ws()
			value = p.parseIdentifier()
			if value == nil {
				return nil, nil, false
			}
			p.ws()
		}
		if !p.word("in") {
			p.fail("in")
			return nil, nil, false
		}
		p.ws()
		collection := p.parseExpression()
		if collection == nil {
			return nil, nil, false
		}
		if !p.closeDirective(&bounds) {
			return nil, nil, false
		}
		part, ok := p.parseTemplateFor(mode, &ast.TemplateForIntro{Key: key, Value: value, Collection: collection}, bounds)
		return part, nil, ok
	case p.word("else"):
		if !p.closeDirective(&bounds) {
			return nil, nil, false
		}
		return nil, &templateStop{kind: "else", strip: bounds}, true
	case p.word("endif"):
		if !p.closeDirective(&bounds) {
			return nil, nil, false
		}
		return nil, &templateStop{kind: "endif", strip: bounds}, true
	case p.word("endfor"):
		if !p.closeDirective(&bounds) {
			return nil, nil, false
		}
		return nil, &templateStop{kind: "endfor", strip: bounds}, true
	}
	p.fail("template directive")
	return nil, nil, false
}

func (p *parser) closeDirective(bounds *ast.StripBounds) bool {
	p.ws()
	if p.peek() == '~' {
		p.advance()
		bounds.End = true
	}
	return p.expect('}', "}")
}

func (p *parser) parseTemplateIf(mode tmplMode, condition ast.Expression, ifBounds ast.StripBounds) (ast.Template, bool) {
	then, stop, ok := p.parseTemplate(mode, false)
	if !ok {
		return nil, false
	}
	if stop == nil {
		p.fail("%{endif}")
		return nil, false
	}
	this := ast.TemplateIf{
		Condition: condition,
		Then:      then,
		Strip:     ast.TemplateIfStrip{If: ifBounds},
	}
	if stop.kind == "else" {
		elseStrip := stop.strip
		this.Strip.Else = &elseStrip
		elseParts, stop2, ok := p.parseTemplate(mode, false)
		if !ok {
			return nil, false
		}
		if stop2 == nil || stop2.kind != "endif" {
			p.fail("%{endif}")
			return nil, false
		}
		this.Else = elseParts
		this.Strip.Endif = stop2.strip
		return &this, true
	}
	if stop.kind != "endif" {
		p.fail("%{endif}")
		return nil, false
	}
	this.Strip.Endif = stop.strip
	return &this, true
}

func (p *parser) parseTemplateFor(mode tmplMode, intro *ast.TemplateForIntro, forBounds ast.StripBounds) (ast.Template, bool) {
	body, stop, ok := p.parseTemplate(mode, false)
	if !ok {
		return nil, false
	}
	if stop == nil || stop.kind != "endfor" {
		p.fail("%{endfor}")
		return nil, false
	}
	return &ast.TemplateFor{
		Intro: intro,
		Body:  body,
		Strip: ast.TemplateForStrip{For: forBounds, Endfor: stop.strip},
	}, true
}

// failure builds the ParseFailure for the furthest rejection.
func (p *parser) failure() *ParseFailure {
	loc := locationAt(p.src, p.furthest)
	found := "EOF"
	code := exc.CodeUnexpectedEOF
	if p.furthest < len(p.src) {
		found = fmt.Sprintf("%q", string(p.src[p.furthest]))
		code = exc.CodeParseError
	}
	expected := append([]string{}, p.expected...)
	message := fmt.Sprintf("unexpected %s (expecting %s)", found, strings.Join(expected, ", "))
	return &ParseFailure{
		Exception: exc.New(exc.Location{Location: loc, URI: p.uri}, code, message),
		Offset:    loc.Offset,
		Line:      loc.Line,
		Column:    loc.Column,
		Expected:  expected,
	}
}

// locationAt converts a code point offset into a line/column location.
// Columns count grapheme clusters, so a combining sequence advances the
// column once.
func locationAt(src []rune, offset int) lang.Location {
	if offset > len(src) {
		offset = len(src)
	}
	line := 1
	lineStart := 0
	for i := 0; i < offset; i++ {
		if src[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	count, err := textseg.TokenCount([]byte(string(src[lineStart:offset])), textseg.ScanGraphemeClusters)
	if err != nil {
		count = offset - lineStart
	}
	return lang.Location{Line: line, Column: count + 1, Offset: offset}
}
