// Walkers that pull column references, table ranges and function calls out
// of parse trees.
package pgsql

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"ddl-cache/internal/domain"
)

// ColumnRef is a column reference split into its qualifier (zero, one or two
// names: [table] or [schema, table]) and column name. Star is set for
// "t.*" and "*".
type ColumnRef struct {
	Qualifier []string
	Column    string
	Star      bool
}

// QualifierName returns the last qualifier part (alias or table name), or ""
// for an unqualified reference.
func (c ColumnRef) QualifierName() string {
	if len(c.Qualifier) == 0 {
		return ""
	}
	return c.Qualifier[len(c.Qualifier)-1]
}

// QualifierSchema returns the schema part of a schema-qualified reference.
func (c ColumnRef) QualifierSchema() string {
	if len(c.Qualifier) < 2 {
		return ""
	}
	return c.Qualifier[len(c.Qualifier)-2]
}

// ColumnRefOf decodes a ColumnRef node. ok is false for shapes that are not
// column references.
func ColumnRefOf(node *pg_query.Node) (ColumnRef, bool) {
	cr := node.GetColumnRef()
	if cr == nil || len(cr.Fields) == 0 {
		return ColumnRef{}, false
	}
	var ref ColumnRef
	last := cr.Fields[len(cr.Fields)-1]
	switch {
	case last.GetAStar() != nil:
		ref.Star = true
	case last.GetString_() != nil:
		ref.Column = strings.ToLower(last.GetString_().Sval)
	default:
		return ColumnRef{}, false
	}
	for _, f := range cr.Fields[:len(cr.Fields)-1] {
		s := f.GetString_()
		if s == nil {
			return ColumnRef{}, false
		}
		ref.Qualifier = append(ref.Qualifier, strings.ToLower(s.Sval))
	}
	return ref, true
}

// ColumnRefs returns every column reference inside node, subqueries included.
func ColumnRefs(node *pg_query.Node) []ColumnRef {
	var refs []ColumnRef
	Walk(node, func(n *pg_query.Node) bool {
		if ref, ok := ColumnRefOf(n); ok {
			refs = append(refs, ref)
			return false
		}
		return true
	})
	return refs
}

// SelectColumnRefs returns every column reference inside sel.
func SelectColumnRefs(sel *pg_query.SelectStmt) []ColumnRef {
	var refs []ColumnRef
	WalkSelect(sel, func(n *pg_query.Node) bool {
		if ref, ok := ColumnRefOf(n); ok {
			refs = append(refs, ref)
			return false
		}
		return true
	})
	return refs
}

// RangeVars returns every table range in sel: FROM items, joins and the
// FROM clauses of nested subqueries.
func RangeVars(sel *pg_query.SelectStmt) []*pg_query.RangeVar {
	var ranges []*pg_query.RangeVar
	WalkSelect(sel, func(n *pg_query.Node) bool {
		if rv := n.GetRangeVar(); rv != nil {
			ranges = append(ranges, rv)
			return false
		}
		return true
	})
	return ranges
}

// FromRangeVars returns the table ranges of sel's own FROM clause (joins
// included, subqueries excluded).
func FromRangeVars(sel *pg_query.SelectStmt) []*pg_query.RangeVar {
	var ranges []*pg_query.RangeVar
	for _, from := range sel.GetFromClause() {
		collectFromRangeVars(from, &ranges)
	}
	return ranges
}

func collectFromRangeVars(node *pg_query.Node, ranges *[]*pg_query.RangeVar) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		*ranges = append(*ranges, n.RangeVar)
	case *pg_query.Node_JoinExpr:
		collectFromRangeVars(n.JoinExpr.Larg, ranges)
		collectFromRangeVars(n.JoinExpr.Rarg, ranges)
	}
}

// TableReferenceOf converts a table range into a domain reference.
func TableReferenceOf(rv *pg_query.RangeVar) domain.TableReference {
	var alias string
	if rv.GetAlias() != nil {
		alias = rv.GetAlias().GetAliasname()
	}
	return domain.NewTableReference(domain.NewTableID(rv.GetSchemaname(), rv.GetRelname()), alias)
}

// FuncName returns the unqualified, lower-cased function name of a call.
func FuncName(fc *pg_query.FuncCall) string {
	if fc == nil || len(fc.Funcname) == 0 {
		return ""
	}
	last := fc.Funcname[len(fc.Funcname)-1].GetString_()
	if last == nil {
		return ""
	}
	return strings.ToLower(last.Sval)
}

// FuncCalls returns every function call inside node, nested calls included.
func FuncCalls(node *pg_query.Node) []*pg_query.FuncCall {
	var calls []*pg_query.FuncCall
	Walk(node, func(n *pg_query.Node) bool {
		if fc := n.GetFuncCall(); fc != nil {
			calls = append(calls, fc)
		}
		return true
	})
	return calls
}

// Conjuncts flattens the top-level AND chain of a predicate.
func Conjuncts(where *pg_query.Node) []*pg_query.Node {
	if where == nil {
		return nil
	}
	if be := where.GetBoolExpr(); be != nil && be.Boolop == pg_query.BoolExprType_AND_EXPR {
		var out []*pg_query.Node
		for _, arg := range be.Args {
			out = append(out, Conjuncts(arg)...)
		}
		return out
	}
	return []*pg_query.Node{where}
}

// EqualityOperands returns both sides of a binary "=" expression.
func EqualityOperands(node *pg_query.Node) (left, right *pg_query.Node, ok bool) {
	ae := node.GetAExpr()
	if ae == nil || ae.Kind != pg_query.A_Expr_Kind_AEXPR_OP || len(ae.Name) != 1 {
		return nil, nil, false
	}
	if op := ae.Name[0].GetString_(); op == nil || op.Sval != "=" {
		return nil, nil, false
	}
	if ae.Lexpr == nil || ae.Rexpr == nil {
		return nil, nil, false
	}
	return ae.Lexpr, ae.Rexpr, true
}
