package pgsql

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Walk visits node and its descendants depth-first. Returning false from
// visit skips the children of the current node. Subqueries (SubLink,
// RangeSubselect) and functions in FROM are descended into.
func Walk(node *pg_query.Node, visit func(*pg_query.Node) bool) {
	if node == nil || node.Node == nil {
		return
	}
	if !visit(node) {
		return
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		WalkSelect(n.SelectStmt, visit)
	case *pg_query.Node_ResTarget:
		Walk(n.ResTarget.Val, visit)
	case *pg_query.Node_FuncCall:
		walkList(n.FuncCall.Args, visit)
		walkList(n.FuncCall.AggOrder, visit)
		Walk(n.FuncCall.AggFilter, visit)
		if over := n.FuncCall.Over; over != nil {
			walkList(over.PartitionClause, visit)
			walkList(over.OrderClause, visit)
			Walk(over.StartOffset, visit)
			Walk(over.EndOffset, visit)
		}
	case *pg_query.Node_AExpr:
		Walk(n.AExpr.Lexpr, visit)
		Walk(n.AExpr.Rexpr, visit)
	case *pg_query.Node_BoolExpr:
		walkList(n.BoolExpr.Args, visit)
	case *pg_query.Node_SubLink:
		Walk(n.SubLink.Testexpr, visit)
		Walk(n.SubLink.Subselect, visit)
	case *pg_query.Node_TypeCast:
		Walk(n.TypeCast.Arg, visit)
	case *pg_query.Node_NullTest:
		Walk(n.NullTest.Arg, visit)
	case *pg_query.Node_BooleanTest:
		Walk(n.BooleanTest.Arg, visit)
	case *pg_query.Node_CaseExpr:
		Walk(n.CaseExpr.Arg, visit)
		walkList(n.CaseExpr.Args, visit)
		Walk(n.CaseExpr.Defresult, visit)
	case *pg_query.Node_CaseWhen:
		Walk(n.CaseWhen.Expr, visit)
		Walk(n.CaseWhen.Result, visit)
	case *pg_query.Node_CoalesceExpr:
		walkList(n.CoalesceExpr.Args, visit)
	case *pg_query.Node_MinMaxExpr:
		walkList(n.MinMaxExpr.Args, visit)
	case *pg_query.Node_AArrayExpr:
		walkList(n.AArrayExpr.Elements, visit)
	case *pg_query.Node_AIndirection:
		Walk(n.AIndirection.Arg, visit)
		walkList(n.AIndirection.Indirection, visit)
	case *pg_query.Node_AIndices:
		Walk(n.AIndices.Lidx, visit)
		Walk(n.AIndices.Uidx, visit)
	case *pg_query.Node_CollateClause:
		Walk(n.CollateClause.Arg, visit)
	case *pg_query.Node_RowExpr:
		walkList(n.RowExpr.Args, visit)
	case *pg_query.Node_List:
		walkList(n.List.Items, visit)
	case *pg_query.Node_SortBy:
		Walk(n.SortBy.Node, visit)
	case *pg_query.Node_NamedArgExpr:
		Walk(n.NamedArgExpr.Arg, visit)
	case *pg_query.Node_JoinExpr:
		Walk(n.JoinExpr.Larg, visit)
		Walk(n.JoinExpr.Rarg, visit)
		Walk(n.JoinExpr.Quals, visit)
	case *pg_query.Node_RangeSubselect:
		Walk(n.RangeSubselect.Subquery, visit)
	case *pg_query.Node_RangeFunction:
		// Functions is a list of (call, column definitions) pairs.
		walkList(n.RangeFunction.Functions, visit)
	}
}

// WalkSelect visits every clause of a SELECT statement.
func WalkSelect(sel *pg_query.SelectStmt, visit func(*pg_query.Node) bool) {
	if sel == nil {
		return
	}
	walkList(sel.TargetList, visit)
	walkList(sel.FromClause, visit)
	Walk(sel.WhereClause, visit)
	walkList(sel.GroupClause, visit)
	Walk(sel.HavingClause, visit)
	walkList(sel.SortClause, visit)
	Walk(sel.LimitCount, visit)
	Walk(sel.LimitOffset, visit)
	if sel.Larg != nil {
		WalkSelect(sel.Larg, visit)
	}
	if sel.Rarg != nil {
		WalkSelect(sel.Rarg, visit)
	}
}

func walkList(nodes []*pg_query.Node, visit func(*pg_query.Node) bool) {
	for _, n := range nodes {
		Walk(n, visit)
	}
}
