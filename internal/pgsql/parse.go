// Package pgsql wraps pg_query_go: it parses cache selects with the real
// PostgreSQL grammar, walks their parse trees and deparses fragments back to
// SQL text.
package pgsql

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"
)

// ParseSelect parses sql and returns its only statement, which must be a
// plain SELECT (no UNION/INTERSECT/EXCEPT).
func ParseSelect(sql string) (*pg_query.SelectStmt, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parse SQL: %w", err)
	}
	if len(result.Stmts) != 1 {
		return nil, fmt.Errorf("expected exactly one statement, got %d", len(result.Stmts))
	}
	sel := result.Stmts[0].GetStmt().GetSelectStmt()
	if sel == nil {
		return nil, fmt.Errorf("expected a SELECT statement")
	}
	if sel.Op != pg_query.SetOperation_SETOP_NONE && sel.Op != pg_query.SetOperation_SET_OPERATION_UNDEFINED {
		return nil, fmt.Errorf("set operations are not supported in cache selects")
	}
	return sel, nil
}

// ParseExpr parses a standalone scalar expression.
func ParseExpr(expr string) (*pg_query.Node, error) {
	sel, err := ParseSelect("select " + expr)
	if err != nil {
		return nil, err
	}
	if len(sel.TargetList) != 1 {
		return nil, fmt.Errorf("expected one expression in %q", expr)
	}
	return sel.TargetList[0].GetResTarget().GetVal(), nil
}

// Deparse renders a SELECT statement back to SQL.
func Deparse(sel *pg_query.SelectStmt) (string, error) {
	tree := &pg_query.ParseResult{
		Stmts: []*pg_query.RawStmt{{
			Stmt: &pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: sel}},
		}},
	}
	out, err := pg_query.Deparse(tree)
	if err != nil {
		return "", fmt.Errorf("deparse SQL: %w", err)
	}
	return out, nil
}

// DeparseExpr renders a single expression node.
func DeparseExpr(node *pg_query.Node) (string, error) {
	if node == nil {
		return "", nil
	}
	out, err := Deparse(&pg_query.SelectStmt{
		TargetList: []*pg_query.Node{{
			Node: &pg_query.Node_ResTarget{ResTarget: &pg_query.ResTarget{Val: node}},
		}},
		Op: pg_query.SetOperation_SETOP_NONE,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimPrefix(out, "SELECT ")), nil
}

// DeparseSortClause renders ORDER BY items without the keyword, e.g.
// "orders.created_at DESC, orders.id".
func DeparseSortClause(items []*pg_query.Node) (string, error) {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		sb := item.GetSortBy()
		if sb == nil {
			return "", fmt.Errorf("unexpected ORDER BY item %T", item.GetNode())
		}
		expr, err := DeparseExpr(sb.Node)
		if err != nil {
			return "", err
		}
		switch sb.SortbyDir {
		case pg_query.SortByDir_SORTBY_DESC:
			expr += " DESC"
		case pg_query.SortByDir_SORTBY_ASC:
			expr += " ASC"
		}
		switch sb.SortbyNulls {
		case pg_query.SortByNulls_SORTBY_NULLS_FIRST:
			expr += " NULLS FIRST"
		case pg_query.SortByNulls_SORTBY_NULLS_LAST:
			expr += " NULLS LAST"
		}
		parts = append(parts, expr)
	}
	return strings.Join(parts, ", "), nil
}

// Clone deep-copies a parse tree node so callers can rewrite it freely.
func Clone(node *pg_query.Node) *pg_query.Node {
	if node == nil {
		return nil
	}
	return proto.Clone(node).(*pg_query.Node)
}

// CloneSelect deep-copies a SELECT statement.
func CloneSelect(sel *pg_query.SelectStmt) *pg_query.SelectStmt {
	if sel == nil {
		return nil
	}
	return proto.Clone(sel).(*pg_query.SelectStmt)
}
