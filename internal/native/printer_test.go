// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package native

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gopkg.microglot.org/hcl.go/ast"
)

// TestPrintNormalized parses source and checks the normalized emission.
func TestPrintNormalized(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "attribute spacing",
			input:    "x=1",
			expected: "x = 1\n",
		},
		{
			name:     "empty block",
			input:    "resource \"aws_instance\" \"web\" {   }",
			expected: "resource \"aws_instance\" \"web\" {}\n",
		},
		{
			name:     "one line block",
			input:    "locals {   answer   =   42   }",
			expected: "locals { answer = 42 }\n",
		},
		{
			name:     "block indentation",
			input:    "server web {\nlisten = 80\ntls {\nenabled = true\n}\n}",
			expected: "server web {\n  listen = 80\n  tls {\n    enabled = true\n  }\n}\n",
		},
		{
			name:     "collections inline",
			input:    "x = [1,\n2,\n3]\ny = {a = 1\nb: 2}",
			expected: "x = [1, 2, 3]\ny = { a = 1, b = 2 }\n",
		},
		{
			name:     "empty collections",
			input:    "x = []\ny = {}",
			expected: "x = []\ny = {}\n",
		},
		{
			name:     "heredoc",
			input:    "x = <<EOF\nhello\nEOF",
			expected: "x = <<EOF\nhello\nEOF\n",
		},
		{
			name:     "strip indent heredoc",
			input:    "x = <<-EOT\n  a\n  EOT",
			expected: "x = <<-EOT\n  a\nEOT\n",
		},
		{
			name:     "template preserved",
			input:    `x = "Hello, ${ var.name }!"`,
			expected: "x = \"Hello, ${var.name}!\"\n",
		},
		{
			name:     "template escapes preserved",
			input:    `x = "a$${b}"`,
			expected: "x = \"a$${b}\"\n",
		},
		{
			name:     "interpolation strip flags",
			input:    `x = "${~ a ~}"`,
			expected: "x = \"${~a~}\"\n",
		},
		{
			name:     "directives",
			input:    `x = "%{if a}y%{else}n%{endif}"`,
			expected: "x = \"%{if a}y%{else}n%{endif}\"\n",
		},
		{
			name:     "legacy index preserved",
			input:    "x = a.0",
			expected: "x = a.0\n",
		},
		{
			name:     "splats",
			input:    "x = a.*.b\ny = a[*].b[0]",
			expected: "x = a.*.b\ny = a[*].b[0]\n",
		},
		{
			name:     "for expressions",
			input:    "x = [for i in range(3): i if i > 0]\ny = {for k, v in m: k => v...}",
			expected: "x = [for i in range(3) : i if i > 0]\ny = {for k, v in m : k => v...}\n",
		},
		{
			name:     "conditional and operators",
			input:    "x = a ? 1 + 2 : b * 3",
			expected: "x = a ? 1 + 2 : b * 3\n",
		},
		{
			name:     "same level chain needs no parentheses",
			input:    "x = 1 - 2 - 3",
			expected: "x = 1 - 2 - 3\n",
		},
		{
			name:     "explicit parentheses survive",
			input:    "x = (2 + 3) * 4",
			expected: "x = (2 + 3) * 4\n",
		},
		{
			name:     "string label escaping",
			input:    "b \"a\\\"b\" {}",
			expected: "b \"a\\\"b\" {}\n",
		},
		{
			name:     "exponent number",
			input:    "x = 1.5e-3",
			expected: "x = 0.0015\n",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			file, err := Parse("/test.hcl", tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expected, Print(file))
		})
	}
}

// TestPrintParenthesization exercises hand-built trees, most of which the
// parser cannot produce directly: the printer must add parentheses so the
// shape survives a reparse wherever that is possible at all, and add none
// where the bare form already reparses to the same shape.
func TestPrintParenthesization(t *testing.T) {
	t.Parallel()
	num := func(v float64) ast.Expression { return &ast.NumberLiteral{Value: v} }
	binary := func(op string, l, r ast.Expression) ast.Expression {
		return &ast.BinaryOperator{Operator: op, Left: l, Right: r}
	}

	testCases := []struct {
		name     string
		expr     ast.Expression
		expected string
	}{
		{
			name:     "left leaning same level",
			expr:     binary("-", binary("-", num(1), num(2)), num(3)),
			expected: "x = (1 - 2) - 3\n",
		},
		{
			name:     "looser on the right",
			expr:     binary("*", num(2), binary("+", num(3), num(4))),
			expected: "x = 2 * (3 + 4)\n",
		},
		{
			name:     "looser on the left",
			expr:     binary("*", binary("+", num(2), num(3)), num(4)),
			expected: "x = (2 + 3) * 4\n",
		},
		{
			name:     "tighter needs nothing",
			expr:     binary("+", num(2), binary("*", num(3), num(4))),
			expected: "x = 2 + 3 * 4\n",
		},
		{
			name: "conditional as operand",
			expr: binary("+", &ast.ConditionalOperator{
				Predicate: num(1),
				TrueExpr:  num(2),
				FalseExpr: num(3),
			}, num(4)),
			expected: "x = (1 ? 2 : 3) + 4\n",
		},
		{
			name: "unary over binary",
			expr: &ast.UnaryOperator{
				Operator: "-",
				Term:     binary("+", num(1), num(2)),
			},
			expected: "x = -(1 + 2)\n",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			file := &ast.ConfigFile{Bodies: []ast.BodyElement{
				&ast.Attribute{Name: &ast.Identifier{Value: "x"}, Value: tc.expr},
			}}
			require.Equal(t, tc.expected, Print(file))
		})
	}
}
