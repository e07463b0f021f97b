// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package native

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gopkg.microglot.org/hcl.go/ast"
)

func newTestParser(input string) *parser {
	return &parser{uri: "/test.hcl", src: []rune(input)}
}

func TestParser(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		input    string
		parser   func(p *parser) ast.Node
		expected ast.Node
	}{
		{
			name:     "identifier",
			input:    "instance",
			parser:   func(p *parser) ast.Node { return p.parseIdentifier() },
			expected: &ast.Identifier{Value: "instance"},
		},
		{
			name:     "identifier with hyphens and digits",
			input:    "web-server-01",
			parser:   func(p *parser) ast.Node { return p.parseIdentifier() },
			expected: &ast.Identifier{Value: "web-server-01"},
		},
		{
			name:     "string literal with escapes",
			input:    `"a\tb\n\"c\" é"`,
			parser:   func(p *parser) ast.Node { return p.parseStringLiteral() },
			expected: &ast.StringLiteral{Value: "a\tb\n\"c\" é"},
		},
		{
			name:     "integer",
			input:    "42",
			parser:   func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.NumberLiteral{Value: 42},
		},
		{
			name:     "number with fraction and signed exponent",
			input:    "1.5e-3",
			parser:   func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.NumberLiteral{Value: 0.0015},
		},
		{
			name:     "booleans and null",
			input:    "[true, false, null]",
			parser:   func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.TupleValue{Elements: []ast.Expression{
				&ast.BooleanLiteral{Value: true},
				&ast.BooleanLiteral{Value: false},
				&ast.NullLiteral{},
			}},
		},
		{
			name:     "variable",
			input:    "nullable",
			parser:   func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.VariableExpression{Name: &ast.Identifier{Value: "nullable"}},
		},
		{
			name:   "function call",
			input:  "max(1, 2,)",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.FunctionCallExpression{
				Name: &ast.Identifier{Value: "max"},
				Args: []ast.Expression{
					&ast.NumberLiteral{Value: 1},
					&ast.NumberLiteral{Value: 2},
				},
			},
		},
		{
			name:     "empty function call",
			input:    "timestamp()",
			parser:   func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.FunctionCallExpression{Name: &ast.Identifier{Value: "timestamp"}, Args: []ast.Expression{}},
		},
		{
			name:   "multiline tuple with newline separators",
			input:  "[\n  1\n  2,\n  3\n]",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.TupleValue{Elements: []ast.Expression{
				&ast.NumberLiteral{Value: 1},
				&ast.NumberLiteral{Value: 2},
				&ast.NumberLiteral{Value: 3},
			}},
		},
		{
			name:   "object with both separators",
			input:  "{ a = 1, b: 2 }",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.ObjectValue{Elements: []*ast.ObjectValueElement{
				{Key: &ast.Identifier{Value: "a"}, Value: &ast.NumberLiteral{Value: 1}},
				{Key: &ast.Identifier{Value: "b"}, Value: &ast.NumberLiteral{Value: 2}},
			}},
		},
		{
			name:     "empty collections",
			input:    "[[], {}]",
			parser:   func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.TupleValue{Elements: []ast.Expression{
				&ast.TupleValue{Elements: []ast.Expression{}},
				&ast.ObjectValue{Elements: []*ast.ObjectValueElement{}},
			}},
		},
		{
			name:   "binary precedence",
			input:  "2 + 3 * 4",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.BinaryOperator{
				Operator: "+",
				Left:     &ast.NumberLiteral{Value: 2},
				Right: &ast.BinaryOperator{
					Operator: "*",
					Left:     &ast.NumberLiteral{Value: 3},
					Right:    &ast.NumberLiteral{Value: 4},
				},
			},
		},
		{
			name:   "same level chains lean right",
			input:  "1 - 2 - 3",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.BinaryOperator{
				Operator: "-",
				Left:     &ast.NumberLiteral{Value: 1},
				Right: &ast.BinaryOperator{
					Operator: "-",
					Left:     &ast.NumberLiteral{Value: 2},
					Right:    &ast.NumberLiteral{Value: 3},
				},
			},
		},
		{
			name:   "parenthesized expression",
			input:  "(2 + 3) * 4",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.BinaryOperator{
				Operator: "*",
				Left: &ast.ParenthesizedExpression{Expression: &ast.BinaryOperator{
					Operator: "+",
					Left:     &ast.NumberLiteral{Value: 2},
					Right:    &ast.NumberLiteral{Value: 3},
				}},
				Right: &ast.NumberLiteral{Value: 4},
			},
		},
		{
			name:   "comparison and logic",
			input:  "a >= 1 && !b",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.BinaryOperator{
				Operator: "&&",
				Left: &ast.BinaryOperator{
					Operator: ">=",
					Left:     &ast.VariableExpression{Name: &ast.Identifier{Value: "a"}},
					Right:    &ast.NumberLiteral{Value: 1},
				},
				Right: &ast.UnaryOperator{
					Operator: "!",
					Term:     &ast.VariableExpression{Name: &ast.Identifier{Value: "b"}},
				},
			},
		},
		{
			name:   "unary minus",
			input:  "-1",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.UnaryOperator{
				Operator: "-",
				Term:     &ast.NumberLiteral{Value: 1},
			},
		},
		{
			name:   "conditional",
			input:  "x ? 1 : 2",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.ConditionalOperator{
				Predicate: &ast.VariableExpression{Name: &ast.Identifier{Value: "x"}},
				TrueExpr:  &ast.NumberLiteral{Value: 1},
				FalseExpr: &ast.NumberLiteral{Value: 2},
			},
		},
		{
			name:   "postfix chain",
			input:  "a.b[1].c",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.GetAttributeOperator{
				Key: &ast.Identifier{Value: "c"},
				Target: &ast.IndexOperator{
					Key: &ast.NumberLiteral{Value: 1},
					Target: &ast.GetAttributeOperator{
						Key:    &ast.Identifier{Value: "b"},
						Target: &ast.VariableExpression{Name: &ast.Identifier{Value: "a"}},
					},
				},
			},
		},
		{
			name:   "legacy index",
			input:  "a.0.b",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.GetAttributeOperator{
				Key: &ast.Identifier{Value: "b"},
				Target: &ast.LegacyIndexOperator{
					Key:    &ast.NumberLiteral{Value: 0},
					Target: &ast.VariableExpression{Name: &ast.Identifier{Value: "a"}},
				},
			},
		},
		{
			name:   "attribute splat",
			input:  "a.*.b.c",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.SplatOperator{
				Kind: ast.SplatKindAttribute,
				Attributes: []*ast.GetAttributeOperator{
					{Key: &ast.Identifier{Value: "b"}},
					{Key: &ast.Identifier{Value: "c"}},
				},
				Target: &ast.VariableExpression{Name: &ast.Identifier{Value: "a"}},
			},
		},
		{
			name:   "full splat",
			input:  "a[*].b[0]",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.SplatOperator{
				Kind: ast.SplatKindFull,
				Operations: []ast.Expression{
					&ast.GetAttributeOperator{Key: &ast.Identifier{Value: "b"}},
					&ast.IndexOperator{Key: &ast.NumberLiteral{Value: 0}},
				},
				Target: &ast.VariableExpression{Name: &ast.Identifier{Value: "a"}},
			},
		},
		{
			name:   "quoted template with interpolation",
			input:  `"Hello, ${var.name}!"`,
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.QuotedTemplateExpression{Parts: []ast.Template{
				&ast.TemplateLiteral{Value: "Hello, "},
				&ast.TemplateInterpolation{Expression: &ast.GetAttributeOperator{
					Key:    &ast.Identifier{Value: "name"},
					Target: &ast.VariableExpression{Name: &ast.Identifier{Value: "var"}},
				}},
				&ast.TemplateLiteral{Value: "!"},
			}},
		},
		{
			name:   "interpolation with strip markers",
			input:  `"${~ a ~}"`,
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.QuotedTemplateExpression{Parts: []ast.Template{
				&ast.TemplateInterpolation{
					Expression: &ast.VariableExpression{Name: &ast.Identifier{Value: "a"}},
					Strip:      ast.Strip{Left: true, Right: true},
				},
			}},
		},
		{
			name:   "dollar and percent escapes",
			input:  `"a$${b}%%{c}"`,
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.QuotedTemplateExpression{Parts: []ast.Template{
				&ast.TemplateLiteral{Value: "a${b}%{c}"},
			}},
		},
		{
			name:   "template if with else",
			input:  `"a%{if x}b%{else}c%{endif}d"`,
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.QuotedTemplateExpression{Parts: []ast.Template{
				&ast.TemplateLiteral{Value: "a"},
				&ast.TemplateIf{
					Condition: &ast.VariableExpression{Name: &ast.Identifier{Value: "x"}},
					Then:      []ast.Template{&ast.TemplateLiteral{Value: "b"}},
					Else:      []ast.Template{&ast.TemplateLiteral{Value: "c"}},
					Strip: ast.TemplateIfStrip{
						Else: &ast.StripBounds{},
					},
				},
				&ast.TemplateLiteral{Value: "d"},
			}},
		},
		{
			name:   "template for with strip markers",
			input:  `"%{~for k, v in m~}${k}%{endfor}"`,
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.QuotedTemplateExpression{Parts: []ast.Template{
				&ast.TemplateFor{
					Intro: &ast.TemplateForIntro{
						Key:        &ast.Identifier{Value: "k"},
						Value:      &ast.Identifier{Value: "v"},
						Collection: &ast.VariableExpression{Name: &ast.Identifier{Value: "m"}},
					},
					Body: []ast.Template{
						&ast.TemplateInterpolation{Expression: &ast.VariableExpression{Name: &ast.Identifier{Value: "k"}}},
					},
					Strip: ast.TemplateForStrip{For: ast.StripBounds{Start: true, End: true}},
				},
			}},
		},
		{
			name:   "heredoc",
			input:  "<<EOF\nhello\nEOF",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.HeredocTemplateExpression{
				Marker:   &ast.Identifier{Value: "EOF"},
				Template: []ast.Template{&ast.TemplateLiteral{Value: "hello"}},
			},
		},
		{
			name:   "indented heredoc with interpolation",
			input:  "<<-EOT\n  a ${x}\n  b\n  EOT",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.HeredocTemplateExpression{
				Marker:      &ast.Identifier{Value: "EOT"},
				StripIndent: true,
				Template: []ast.Template{
					&ast.TemplateLiteral{Value: "  a "},
					&ast.TemplateInterpolation{Expression: &ast.VariableExpression{Name: &ast.Identifier{Value: "x"}}},
					&ast.TemplateLiteral{Value: "\n  b"},
				},
			},
		},
		{
			name:   "empty heredoc",
			input:  "<<EOF\nEOF",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.HeredocTemplateExpression{
				Marker:   &ast.Identifier{Value: "EOF"},
				Template: []ast.Template{},
			},
		},
		{
			name:   "for tuple expression",
			input:  "[for i in range(3): i if i > 0]",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.ForTupleExpression{
				Intro: &ast.ForIntro{
					Iterator: &ast.Identifier{Value: "i"},
					Collection: &ast.FunctionCallExpression{
						Name: &ast.Identifier{Value: "range"},
						Args: []ast.Expression{&ast.NumberLiteral{Value: 3}},
					},
				},
				Expression: &ast.VariableExpression{Name: &ast.Identifier{Value: "i"}},
				Condition: &ast.BinaryOperator{
					Operator: ">",
					Left:     &ast.VariableExpression{Name: &ast.Identifier{Value: "i"}},
					Right:    &ast.NumberLiteral{Value: 0},
				},
			},
		},
		{
			name:   "for object expression with grouping",
			input:  "{for k, v in m : k => v... if v}",
			parser: func(p *parser) ast.Node { return p.parseExpression() },
			expected: &ast.ForObjectExpression{
				Intro: &ast.ForIntro{
					Iterator:   &ast.Identifier{Value: "k"},
					Value:      &ast.Identifier{Value: "v"},
					Collection: &ast.VariableExpression{Name: &ast.Identifier{Value: "m"}},
				},
				Key:       &ast.VariableExpression{Name: &ast.Identifier{Value: "k"}},
				Value:     &ast.VariableExpression{Name: &ast.Identifier{Value: "v"}},
				Grouping:  true,
				Condition: &ast.VariableExpression{Name: &ast.Identifier{Value: "v"}},
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newTestParser(tc.input)
			require.Equal(t, tc.expected, tc.parser(p))
		})
	}
}

func TestParseConfigFile(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		input    string
		expected *ast.ConfigFile
	}{
		{
			name:     "empty input",
			input:    "",
			expected: &ast.ConfigFile{Bodies: []ast.BodyElement{}},
		},
		{
			name:     "comments and whitespace only",
			input:    "// a\n\n# b\n/* c */\n",
			expected: &ast.ConfigFile{Bodies: []ast.BodyElement{}},
		},
		{
			name:  "simple attribute",
			input: `attr = "value"`,
			expected: &ast.ConfigFile{Bodies: []ast.BodyElement{
				&ast.Attribute{
					Name: &ast.Identifier{Value: "attr"},
					Value: &ast.QuotedTemplateExpression{Parts: []ast.Template{
						&ast.TemplateLiteral{Value: "value"},
					}},
				},
			}},
		},
		{
			name:  "empty block with string labels",
			input: `resource "aws_instance" "web" {}`,
			expected: &ast.ConfigFile{Bodies: []ast.BodyElement{
				&ast.Block{
					BlockType: &ast.Identifier{Value: "resource"},
					Labels: []ast.Label{
						&ast.StringLiteral{Value: "aws_instance"},
						&ast.StringLiteral{Value: "web"},
					},
					Bodies: []ast.BodyElement{},
				},
			}},
		},
		{
			name:  "one line block",
			input: "locals { answer = 42 }",
			expected: &ast.ConfigFile{Bodies: []ast.BodyElement{
				&ast.OneLineBlock{
					BlockType: &ast.Identifier{Value: "locals"},
					Labels:    []ast.Label{},
					Attribute: &ast.Attribute{
						Name:  &ast.Identifier{Value: "answer"},
						Value: &ast.NumberLiteral{Value: 42},
					},
				},
			}},
		},
		{
			name:  "nested blocks with identifier label",
			input: "server web {\n  listen = 80\n  tls {\n    enabled = true\n  }\n}\n",
			expected: &ast.ConfigFile{Bodies: []ast.BodyElement{
				&ast.Block{
					BlockType: &ast.Identifier{Value: "server"},
					Labels:    []ast.Label{&ast.Identifier{Value: "web"}},
					Bodies: []ast.BodyElement{
						&ast.Attribute{
							Name:  &ast.Identifier{Value: "listen"},
							Value: &ast.NumberLiteral{Value: 80},
						},
						&ast.Block{
							BlockType: &ast.Identifier{Value: "tls"},
							Labels:    []ast.Label{},
							Bodies: []ast.BodyElement{
								&ast.Attribute{
									Name:  &ast.Identifier{Value: "enabled"},
									Value: &ast.BooleanLiteral{Value: true},
								},
							},
						},
					},
				},
			}},
		},
		{
			name:  "crlf line endings and trailing comment",
			input: "a = 1\r\nb = 2 // note\r\n",
			expected: &ast.ConfigFile{Bodies: []ast.BodyElement{
				&ast.Attribute{Name: &ast.Identifier{Value: "a"}, Value: &ast.NumberLiteral{Value: 1}},
				&ast.Attribute{Name: &ast.Identifier{Value: "b"}, Value: &ast.NumberLiteral{Value: 2}},
			}},
		},
		{
			name:  "heredoc attribute",
			input: "attr = <<EOF\nhello\nEOF",
			expected: &ast.ConfigFile{Bodies: []ast.BodyElement{
				&ast.Attribute{
					Name: &ast.Identifier{Value: "attr"},
					Value: &ast.HeredocTemplateExpression{
						Marker:   &ast.Identifier{Value: "EOF"},
						Template: []ast.Template{&ast.TemplateLiteral{Value: "hello"}},
					},
				},
			}},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			file, err := Parse("/test.hcl", tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expected, file)
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name  string
		input string
	}{
		{name: "missing value", input: "x = "},
		{name: "unterminated string", input: `x = "abc`},
		{name: "newline in quoted string", input: "x = \"a\nb\""},
		{name: "invalid escape", input: `x = "a\qb"`},
		{name: "unterminated heredoc", input: "x = <<EOF\nabc\n"},
		{name: "heredoc marker not on own line", input: "x = <<EOF\nabc EOF"},
		{name: "unbalanced braces", input: "b {\n  a = 1\n"},
		{name: "stray closing brace", input: "}"},
		{name: "identifier starting with digit", input: "1x = 1"},
		{name: "missing block newline", input: "b { a = 1\n}"},
		{name: "unterminated tuple", input: "x = [1, 2"},
		{name: "unterminated interpolation", input: `x = "${a"`},
		{name: "directive without endif", input: `x = "%{if a}b"`},
		{name: "bad exponent", input: "x = 1e"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			file, err := Parse("/test.hcl", tc.input)
			require.Nil(t, file)
			require.Error(t, err)
			require.IsType(t, &ParseFailure{}, err)
		})
	}
}

func TestParseFailureLocation(t *testing.T) {
	t.Parallel()
	_, err := Parse("/test.hcl", "ok = 1\nbad = @")
	require.Error(t, err)
	failure, ok := err.(*ParseFailure)
	require.True(t, ok)
	require.Equal(t, 2, failure.Line)
	require.Equal(t, 7, failure.Column)
	require.Equal(t, 13, failure.Offset)
	require.Contains(t, failure.Expected, "expression")
}

func TestValidIdentifier(t *testing.T) {
	t.Parallel()
	require.True(t, ValidIdentifier("foo"))
	require.True(t, ValidIdentifier("_foo"))
	require.True(t, ValidIdentifier("foo-bar9"))
	require.True(t, ValidIdentifier("ünïcode"))
	require.False(t, ValidIdentifier(""))
	require.False(t, ValidIdentifier("9foo"))
	require.False(t, ValidIdentifier("-foo"))
	require.False(t, ValidIdentifier("foo bar"))
}
