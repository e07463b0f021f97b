// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

// Package schema recognizes well-formed syntax trees. Validation is purely
// structural: every node must carry a known discriminator and the fields
// appropriate to it, recursing through sub-expressions. The grammar is not
// re-run.
package schema

import (
	"fmt"
	"math"
	"sync"

	"github.com/agext/levenshtein"

	"gopkg.microglot.org/hcl.go/ast"
	"gopkg.microglot.org/hcl.go/internal/exc"
	"gopkg.microglot.org/hcl.go/internal/native"
)

// Issue is a single structural problem found in a tree.
type Issue struct {
	Code    string
	Kind    string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Code, i.Message)
}

type checkFunc func(*validator, ast.Node)

var (
	registryOnce sync.Once
	registry     map[string]checkFunc
	knownKinds   []string
)

// checkers returns the per-kind check registry. The registry is built
// exactly once, on first use, which is what lets the expression, template,
// and collection shapes reference each other freely: by the time any
// checker runs, every kind has been registered.
func checkers() map[string]checkFunc {
	registryOnce.Do(func() {
		registry = map[string]checkFunc{
			"ConfigFile":                checkConfigFile,
			"Attribute":                 checkAttribute,
			"Block":                     checkBlock,
			"OneLineBlock":              checkOneLineBlock,
			"Identifier":                checkIdentifier,
			"StringLiteral":             checkNothing,
			"NumberLiteral":             checkNumberLiteral,
			"BooleanLiteral":            checkNothing,
			"NullLiteral":               checkNothing,
			"TupleValue":                checkTupleValue,
			"ObjectValue":               checkObjectValue,
			"ObjectValueElement":        checkObjectValueElement,
			"QuotedTemplateExpression":  checkQuotedTemplate,
			"HeredocTemplateExpression": checkHeredocTemplate,
			"TemplateLiteral":           checkNothing,
			"TemplateInterpolation":     checkTemplateInterpolation,
			"TemplateIf":                checkTemplateIf,
			"TemplateFor":               checkTemplateFor,
			"FunctionCallExpression":    checkFunctionCall,
			"VariableExpression":        checkVariable,
			"ForExpression":             checkForExpression,
			"IndexOperator":             checkIndexOperator,
			"LegacyIndexOperator":       checkLegacyIndexOperator,
			"GetAttributeOperator":      checkGetAttributeOperator,
			"SplatOperator":             checkSplatOperator,
			"UnaryOperator":             checkUnaryOperator,
			"BinaryOperator":            checkBinaryOperator,
			"ConditionalOperator":       checkConditionalOperator,
			"ParenthesizedExpression":   checkParenthesized,
		}
		knownKinds = make([]string, 0, len(registry))
		for kind := range registry {
			knownKinds = append(knownKinds, kind)
		}
	})
	return registry
}

// Validate walks the tree rooted at node and returns the structural
// issues found. An empty result means the tree is well formed.
func Validate(node ast.Node) []Issue {
	v := &validator{
		reporter:   exc.NewReporter([]string{exc.CodeInvalidNode, exc.CodeUnknownNodeKind}),
		splatSteps: map[ast.Node]bool{},
	}
	ast.Walk(node, v.check)
	reported := v.reporter.Reported()
	issues := make([]Issue, 0, len(reported))
	for _, e := range reported {
		issues = append(issues, Issue{Code: e.Code(), Kind: v.kinds[e], Message: e.Message()})
	}
	return issues
}

type validator struct {
	reporter exc.Reporter
	// splatSteps records the stepping elements of visited splat chains,
	// which are the only places a get-attribute or index operator may
	// carry a nil target.
	splatSteps map[ast.Node]bool
	kinds      map[exc.Exception]string
}

func (v *validator) report(kind string, code string, message string) {
	e := exc.New(exc.Location{}, code, message)
	if v.kinds == nil {
		v.kinds = map[exc.Exception]string{}
	}
	v.kinds[e] = kind
	_ = v.reporter.Report(e)
}

func (v *validator) invalid(kind string, format string, args ...any) {
	v.report(kind, exc.CodeInvalidNode, fmt.Sprintf("%s: %s", kind, fmt.Sprintf(format, args...)))
}

func (v *validator) check(n ast.Node) bool {
	kind := n.Type()
	checker, ok := checkers()[kind]
	if !ok {
		message := fmt.Sprintf("unknown node kind %q", kind)
		if suggestion := suggestKind(kind); suggestion != "" {
			message = fmt.Sprintf("%s (did you mean %q?)", message, suggestion)
		}
		v.report(kind, exc.CodeUnknownNodeKind, message)
		return false
	}
	checker(v, n)
	return true
}

// suggestKind proposes the nearest known discriminator for a typo'd kind.
func suggestKind(given string) string {
	best := ""
	bestDistance := 3
	for _, want := range knownKinds {
		if d := levenshtein.Distance(given, want, nil); d < bestDistance {
			best, bestDistance = want, d
		}
	}
	return best
}

func checkNothing(v *validator, n ast.Node) {}

func checkConfigFile(v *validator, n ast.Node) {
	this := n.(*ast.ConfigFile)
	for i, b := range this.Bodies {
		if b == nil {
			v.invalid(n.Type(), "body element %d is missing", i)
		}
	}
}

func checkAttribute(v *validator, n ast.Node) {
	this := n.(*ast.Attribute)
	if this.Name == nil {
		v.invalid(n.Type(), "missing name")
	}
	if this.Value == nil {
		v.invalid(n.Type(), "missing value")
	}
}

func checkBlock(v *validator, n ast.Node) {
	this := n.(*ast.Block)
	if this.BlockType == nil {
		v.invalid(n.Type(), "missing block type")
	}
	for i, l := range this.Labels {
		if l == nil {
			v.invalid(n.Type(), "label %d is missing", i)
		}
	}
	for i, b := range this.Bodies {
		if b == nil {
			v.invalid(n.Type(), "body element %d is missing", i)
		}
	}
}

func checkOneLineBlock(v *validator, n ast.Node) {
	this := n.(*ast.OneLineBlock)
	if this.BlockType == nil {
		v.invalid(n.Type(), "missing block type")
	}
	for i, l := range this.Labels {
		if l == nil {
			v.invalid(n.Type(), "label %d is missing", i)
		}
	}
}

func checkIdentifier(v *validator, n ast.Node) {
	this := n.(*ast.Identifier)
	if !native.ValidIdentifier(this.Value) {
		v.invalid(n.Type(), "%q is not a valid identifier", this.Value)
	}
}

func checkNumberLiteral(v *validator, n ast.Node) {
	this := n.(*ast.NumberLiteral)
	if math.IsNaN(this.Value) || math.IsInf(this.Value, 0) {
		v.invalid(n.Type(), "value must be finite")
	}
}

func checkTupleValue(v *validator, n ast.Node) {
	this := n.(*ast.TupleValue)
	for i, e := range this.Elements {
		if e == nil {
			v.invalid(n.Type(), "element %d is missing", i)
		}
	}
}

func checkObjectValue(v *validator, n ast.Node) {
	this := n.(*ast.ObjectValue)
	for i, e := range this.Elements {
		if e == nil {
			v.invalid(n.Type(), "element %d is missing", i)
		}
	}
}

func checkObjectValueElement(v *validator, n ast.Node) {
	this := n.(*ast.ObjectValueElement)
	if this.Key == nil {
		v.invalid(n.Type(), "missing key")
	}
	if this.Value == nil {
		v.invalid(n.Type(), "missing value")
	}
}

func checkQuotedTemplate(v *validator, n ast.Node) {
	this := n.(*ast.QuotedTemplateExpression)
	for i, p := range this.Parts {
		if p == nil {
			v.invalid(n.Type(), "part %d is missing", i)
		}
	}
}

func checkHeredocTemplate(v *validator, n ast.Node) {
	this := n.(*ast.HeredocTemplateExpression)
	if this.Marker == nil {
		v.invalid(n.Type(), "missing marker")
	} else if !native.ValidIdentifier(this.Marker.Value) {
		v.invalid(n.Type(), "marker %q is not a valid identifier", this.Marker.Value)
	}
	for i, p := range this.Template {
		if p == nil {
			v.invalid(n.Type(), "template part %d is missing", i)
		}
	}
}

func checkTemplateInterpolation(v *validator, n ast.Node) {
	this := n.(*ast.TemplateInterpolation)
	if this.Expression == nil {
		v.invalid(n.Type(), "missing expression")
	}
}

func checkTemplateIf(v *validator, n ast.Node) {
	this := n.(*ast.TemplateIf)
	if this.Condition == nil {
		v.invalid(n.Type(), "missing condition")
	}
	if (this.Else == nil) != (this.Strip.Else == nil) {
		v.invalid(n.Type(), "else strip bounds must be present exactly when the else arm is")
	}
}

func checkTemplateFor(v *validator, n ast.Node) {
	this := n.(*ast.TemplateFor)
	if this.Intro == nil {
		v.invalid(n.Type(), "missing intro")
		return
	}
	if this.Intro.Key == nil {
		v.invalid(n.Type(), "missing intro key")
	}
	if this.Intro.Collection == nil {
		v.invalid(n.Type(), "missing intro collection")
	}
}

func checkFunctionCall(v *validator, n ast.Node) {
	this := n.(*ast.FunctionCallExpression)
	if this.Name == nil {
		v.invalid(n.Type(), "missing name")
	}
	for i, a := range this.Args {
		if a == nil {
			v.invalid(n.Type(), "argument %d is missing", i)
		}
	}
}

func checkVariable(v *validator, n ast.Node) {
	this := n.(*ast.VariableExpression)
	if this.Name == nil {
		v.invalid(n.Type(), "missing name")
	}
}

func checkForExpression(v *validator, n ast.Node) {
	switch this := n.(type) {
	case *ast.ForTupleExpression:
		checkForIntro(v, n, this.Intro)
		if this.Expression == nil {
			v.invalid(n.Type(), "missing expression")
		}
	case *ast.ForObjectExpression:
		checkForIntro(v, n, this.Intro)
		if this.Key == nil {
			v.invalid(n.Type(), "missing key expression")
		}
		if this.Value == nil {
			v.invalid(n.Type(), "missing value expression")
		}
	}
}

func checkForIntro(v *validator, n ast.Node, intro *ast.ForIntro) {
	if intro == nil {
		v.invalid(n.Type(), "missing intro")
		return
	}
	if intro.Iterator == nil {
		v.invalid(n.Type(), "missing intro iterator")
	}
	if intro.Collection == nil {
		v.invalid(n.Type(), "missing intro collection")
	}
}

func checkIndexOperator(v *validator, n ast.Node) {
	this := n.(*ast.IndexOperator)
	if this.Key == nil {
		v.invalid(n.Type(), "missing key")
	}
	if this.Target == nil && !v.splatSteps[n] {
		v.invalid(n.Type(), "missing target")
	}
}

func checkLegacyIndexOperator(v *validator, n ast.Node) {
	this := n.(*ast.LegacyIndexOperator)
	if this.Key == nil {
		v.invalid(n.Type(), "missing key")
	}
	if this.Target == nil {
		v.invalid(n.Type(), "missing target")
	}
}

func checkGetAttributeOperator(v *validator, n ast.Node) {
	this := n.(*ast.GetAttributeOperator)
	if this.Key == nil {
		v.invalid(n.Type(), "missing key")
	}
	if this.Target == nil && !v.splatSteps[n] {
		v.invalid(n.Type(), "missing target")
	}
}

func checkSplatOperator(v *validator, n ast.Node) {
	this := n.(*ast.SplatOperator)
	if this.Target == nil {
		v.invalid(n.Type(), "missing target")
	}
	switch this.Kind {
	case ast.SplatKindAttribute:
		if len(this.Operations) > 0 {
			v.invalid(n.Type(), "attribute splats carry attributes, not operations")
		}
		for i, a := range this.Attributes {
			if a == nil {
				v.invalid(n.Type(), "attribute %d is missing", i)
				continue
			}
			v.splatSteps[a] = true
			if a.Target != nil {
				v.invalid(n.Type(), "attribute %d must not carry a target", i)
			}
		}
	case ast.SplatKindFull:
		if len(this.Attributes) > 0 {
			v.invalid(n.Type(), "full splats carry operations, not attributes")
		}
		for i, op := range this.Operations {
			switch step := op.(type) {
			case *ast.GetAttributeOperator:
				v.splatSteps[step] = true
				if step.Target != nil {
					v.invalid(n.Type(), "operation %d must not carry a target", i)
				}
			case *ast.IndexOperator:
				v.splatSteps[step] = true
				if step.Target != nil {
					v.invalid(n.Type(), "operation %d must not carry a target", i)
				}
			case nil:
				v.invalid(n.Type(), "operation %d is missing", i)
			default:
				v.invalid(n.Type(), "operation %d has kind %q, want a get-attribute or index operator", i, op.Type())
			}
		}
	default:
		v.invalid(n.Type(), "unknown splat kind %q", string(this.Kind))
	}
}

var unaryOperators = map[string]bool{"!": true, "-": true}

func checkUnaryOperator(v *validator, n ast.Node) {
	this := n.(*ast.UnaryOperator)
	if !unaryOperators[this.Operator] {
		v.invalid(n.Type(), "unknown operator %q", this.Operator)
	}
	if this.Term == nil {
		v.invalid(n.Type(), "missing term")
	}
}

var binaryOperators = map[string]bool{
	"*": true, "/": true, "%": true,
	"+": true, "-": true,
	">": true, ">=": true, "<": true, "<=": true,
	"==": true, "!=": true,
	"&&": true, "||": true,
}

func checkBinaryOperator(v *validator, n ast.Node) {
	this := n.(*ast.BinaryOperator)
	if !binaryOperators[this.Operator] {
		v.invalid(n.Type(), "unknown operator %q", this.Operator)
	}
	if this.Left == nil {
		v.invalid(n.Type(), "missing left operand")
	}
	if this.Right == nil {
		v.invalid(n.Type(), "missing right operand")
	}
}

func checkConditionalOperator(v *validator, n ast.Node) {
	this := n.(*ast.ConditionalOperator)
	if this.Predicate == nil {
		v.invalid(n.Type(), "missing predicate")
	}
	if this.TrueExpr == nil {
		v.invalid(n.Type(), "missing true expression")
	}
	if this.FalseExpr == nil {
		v.invalid(n.Type(), "missing false expression")
	}
}

func checkParenthesized(v *validator, n ast.Node) {
	this := n.(*ast.ParenthesizedExpression)
	if this.Expression == nil {
		v.invalid(n.Type(), "missing expression")
	}
}
