package pgsql

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// MakeColumnRef creates a ColumnRef node. If qualifier is non-empty it
// creates a qualified reference (qualifier.column), otherwise just (column).
func MakeColumnRef(column, qualifier string) *pg_query.Node {
	var fields []*pg_query.Node
	if qualifier != "" {
		fields = append(fields, MakeStringNode(qualifier))
	}
	fields = append(fields, MakeStringNode(column))

	return &pg_query.Node{
		Node: &pg_query.Node_ColumnRef{
			ColumnRef: &pg_query.ColumnRef{
				Fields: fields,
			},
		},
	}
}

// MakeStringNode creates a String node used for identifiers.
func MakeStringNode(s string) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_String_{
			String_: &pg_query.String{Sval: s},
		},
	}
}

// CombineWithAnd combines predicates into a single AND. A single predicate
// is returned as-is and an empty list yields nil.
func CombineWithAnd(exprs []*pg_query.Node) *pg_query.Node {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	}
	return &pg_query.Node{
		Node: &pg_query.Node_BoolExpr{
			BoolExpr: &pg_query.BoolExpr{
				Boolop: pg_query.BoolExprType_AND_EXPR,
				Args:   exprs,
			},
		},
	}
}

// Requalify returns a copy of node in which every column reference
// qualified by from (alias or table name, case-insensitive) is rewritten to
// be qualified by to instead. Schema-qualified references to the same name
// are collapsed to the new qualifier.
func Requalify(node *pg_query.Node, from, to string) *pg_query.Node {
	out := Clone(node)
	Walk(out, func(n *pg_query.Node) bool {
		cr := n.GetColumnRef()
		if cr == nil {
			return true
		}
		ref, ok := ColumnRefOf(n)
		if !ok || !strings.EqualFold(ref.QualifierName(), from) {
			return false
		}
		last := cr.Fields[len(cr.Fields)-1]
		cr.Fields = []*pg_query.Node{MakeStringNode(to), last}
		return false
	})
	return out
}

// ReferencesQualifier reports whether node contains a column reference
// qualified by name.
func ReferencesQualifier(node *pg_query.Node, name string) bool {
	for _, ref := range ColumnRefs(node) {
		if strings.EqualFold(ref.QualifierName(), name) {
			return true
		}
	}
	return false
}

// Qualify returns a copy of node in which every unqualified column reference
// is qualified by name. References inside nested subqueries are left alone.
func Qualify(node *pg_query.Node, name string) *pg_query.Node {
	out := Clone(node)
	Walk(out, func(n *pg_query.Node) bool {
		if n.GetSubLink() != nil {
			return false
		}
		cr := n.GetColumnRef()
		if cr == nil {
			return true
		}
		if len(cr.Fields) == 1 && cr.Fields[0].GetString_() != nil {
			cr.Fields = []*pg_query.Node{MakeStringNode(name), cr.Fields[0]}
		}
		return false
	})
	return out
}

// MakeEquality creates the binary expression "left = right".
func MakeEquality(left, right *pg_query.Node) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_AExpr{
			AExpr: &pg_query.A_Expr{
				Kind:  pg_query.A_Expr_Kind_AEXPR_OP,
				Name:  []*pg_query.Node{MakeStringNode("=")},
				Lexpr: left,
				Rexpr: right,
			},
		},
	}
}
