// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package ast

// Walk traverses the tree rooted at n in depth-first pre-order, calling f
// for each node. If f returns false the node's children are skipped. Nil
// nodes and nil optional children are never visited.
func Walk(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch v := n.(type) {
	case *ConfigFile:
		for _, b := range v.Bodies {
			Walk(b, f)
		}
	case *Attribute:
		walkIfSet(v.Name, f)
		walkIfSet(v.Value, f)
	case *Block:
		walkIfSet(v.BlockType, f)
		for _, l := range v.Labels {
			Walk(l, f)
		}
		for _, b := range v.Bodies {
			Walk(b, f)
		}
	case *OneLineBlock:
		walkIfSet(v.BlockType, f)
		for _, l := range v.Labels {
			Walk(l, f)
		}
		if v.Attribute != nil {
			Walk(v.Attribute, f)
		}
	case *TupleValue:
		for _, e := range v.Elements {
			Walk(e, f)
		}
	case *ObjectValue:
		for _, e := range v.Elements {
			if e != nil {
				Walk(e, f)
			}
		}
	case *ObjectValueElement:
		walkIfSet(v.Key, f)
		walkIfSet(v.Value, f)
	case *QuotedTemplateExpression:
		for _, p := range v.Parts {
			Walk(p, f)
		}
	case *HeredocTemplateExpression:
		walkIfSet(v.Marker, f)
		for _, p := range v.Template {
			Walk(p, f)
		}
	case *TemplateInterpolation:
		walkIfSet(v.Expression, f)
	case *TemplateIf:
		walkIfSet(v.Condition, f)
		for _, p := range v.Then {
			Walk(p, f)
		}
		for _, p := range v.Else {
			Walk(p, f)
		}
	case *TemplateFor:
		if v.Intro != nil {
			walkIfSet(v.Intro.Key, f)
			walkIfSet(v.Intro.Value, f)
			walkIfSet(v.Intro.Collection, f)
		}
		for _, p := range v.Body {
			Walk(p, f)
		}
	case *FunctionCallExpression:
		walkIfSet(v.Name, f)
		for _, a := range v.Args {
			Walk(a, f)
		}
	case *VariableExpression:
		walkIfSet(v.Name, f)
	case *ForTupleExpression:
		walkIntro(v.Intro, f)
		walkIfSet(v.Expression, f)
		walkIfSet(v.Condition, f)
	case *ForObjectExpression:
		walkIntro(v.Intro, f)
		walkIfSet(v.Key, f)
		walkIfSet(v.Value, f)
		walkIfSet(v.Condition, f)
	case *IndexOperator:
		walkIfSet(v.Key, f)
		walkIfSet(v.Target, f)
	case *LegacyIndexOperator:
		walkIfSet(v.Key, f)
		walkIfSet(v.Target, f)
	case *GetAttributeOperator:
		walkIfSet(v.Key, f)
		walkIfSet(v.Target, f)
	case *SplatOperator:
		for _, a := range v.Attributes {
			if a != nil {
				Walk(a, f)
			}
		}
		for _, op := range v.Operations {
			Walk(op, f)
		}
		walkIfSet(v.Target, f)
	case *UnaryOperator:
		walkIfSet(v.Term, f)
	case *BinaryOperator:
		walkIfSet(v.Left, f)
		walkIfSet(v.Right, f)
	case *ConditionalOperator:
		walkIfSet(v.Predicate, f)
		walkIfSet(v.TrueExpr, f)
		walkIfSet(v.FalseExpr, f)
	case *ParenthesizedExpression:
		walkIfSet(v.Expression, f)
	}
}

func walkIntro(intro *ForIntro, f func(Node) bool) {
	if intro == nil {
		return
	}
	walkIfSet(intro.Iterator, f)
	walkIfSet(intro.Value, f)
	walkIfSet(intro.Collection, f)
}

// walkIfSet guards against typed-nil interface values so that a nil child
// stored in an interface field is not visited.
func walkIfSet(n Node, f func(Node) bool) {
	switch v := n.(type) {
	case nil:
	case *Identifier:
		if v != nil {
			Walk(v, f)
		}
	case *NumberLiteral:
		if v != nil {
			Walk(v, f)
		}
	default:
		Walk(n, f)
	}
}
