package cache

import (
	"fmt"
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"ddl-cache/internal/ddl"
	"ddl-cache/internal/domain"
	"ddl-cache/internal/pgsql"
)

const prevAlias = "__prev"

// isLastColumn derives the marker column for a rule that picks one row of a
// single source table with "order by ... limit 1". The marker lives on the
// source table and is true for the row the rule would pick among its
// siblings.
func isLastColumn(c *Cache) (domain.TableReference, string, *Select, bool) {
	src, ok := c.Select.SingleSource()
	if !ok {
		return domain.TableReference{}, "", nil, false
	}
	if limit, ok := c.Select.Limit(); !ok || limit != 1 {
		return domain.TableReference{}, "", nil, false
	}
	order := c.Select.OrderBy()
	if len(order) == 0 || order[0].GetSortBy() == nil {
		return domain.TableReference{}, "", nil, false
	}
	srcName, targetName := src.Name(), c.For.Name()
	if srcName == targetName {
		return domain.TableReference{}, "", nil, false
	}

	op := "<"
	if order[0].GetSortBy().SortbyDir == pg_query.SortByDir_SORTBY_DESC {
		op = ">"
	}

	var conds []string
	for _, conj := range pgsql.Conjuncts(c.Select.Where()) {
		cond, ok := siblingCondition(conj, srcName, targetName)
		if !ok {
			continue
		}
		sql, err := pgsql.DeparseExpr(cond)
		if err != nil {
			return domain.TableReference{}, "", nil, false
		}
		conds = append(conds, sql)
	}
	conds = append(conds, fmt.Sprintf("%s.id %s %s.id", prevAlias, op, ddl.QuoteIdentifier(srcName)))

	name := fmt.Sprintf("__%s_%s_is_last", c.Name, c.For.Table.Name)
	sql := fmt.Sprintf("select not exists(select 1 from %s as %s where %s) as %s",
		ddl.QualifiedTable(src.Table), prevAlias, strings.Join(conds, " and "), ddl.QuoteIdentifier(name))
	sel, err := ParseSelect(sql)
	if err != nil {
		return domain.TableReference{}, "", nil, false
	}
	return src, name, sel, true
}

// siblingCondition turns one WHERE conjunct of the rule into a condition
// that selects the rows sharing the current source row's target. Link
// equalities keep their source side; other conjuncts mentioning the target
// are dropped.
func siblingCondition(conj *pg_query.Node, src, target string) (*pg_query.Node, bool) {
	if left, right, ok := pgsql.EqualityOperands(conj); ok {
		lt, rt := pgsql.ReferencesQualifier(left, target), pgsql.ReferencesQualifier(right, target)
		switch {
		case !lt && rt:
			return linkCondition(left, src)
		case lt && !rt:
			return linkCondition(right, src)
		}
	}
	if pgsql.ReferencesQualifier(conj, target) {
		return nil, false
	}
	return pgsql.Requalify(pgsql.Qualify(conj, src), src, prevAlias), true
}

func linkCondition(side *pg_query.Node, src string) (*pg_query.Node, bool) {
	if len(pgsql.ColumnRefs(side)) == 0 {
		return nil, false
	}
	outer := pgsql.Qualify(side, src)
	return pgsql.MakeEquality(pgsql.Requalify(outer, src, prevAlias), outer), true
}

// jsonHelperColumn derives the jsonb snapshot column for a single-source
// rule whose aggregates use DISTINCT or their own ORDER BY.
func jsonHelperColumn(c *Cache, aggregators map[string]bool) (string, *Select, bool) {
	src, ok := c.Select.SingleSource()
	if !ok || !needsJSONHelper(c.Select, aggregators) {
		return "", nil, false
	}
	srcName := src.Name()

	set := map[string]bool{}
	for _, ref := range pgsql.SelectColumnRefs(c.Select.Stmt()) {
		if ref.Star || ref.Column == "id" {
			continue
		}
		if q := ref.QualifierName(); q == "" || q == srcName {
			set[ref.Column] = true
		}
	}
	columns := make([]string, 0, len(set)+1)
	for col := range set {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	columns = append([]string{"id"}, columns...)

	qualifier := ddl.QuoteIdentifier(srcName)
	pairs := make([]string, len(columns))
	for i, col := range columns {
		pairs[i] = fmt.Sprintf("%s, %s.%s", ddl.QuoteLiteral(col), qualifier, ddl.QuoteIdentifier(col))
	}

	name := fmt.Sprintf("__%s_json", c.Name)
	sql := fmt.Sprintf("select jsonb_object_agg(%s.id::text, jsonb_build_object(%s)) as %s from %s",
		qualifier, strings.Join(pairs, ", "), ddl.QuoteIdentifier(name), ddl.TableWithAlias(src))
	where, err := c.Select.WhereSQL()
	if err != nil {
		return "", nil, false
	}
	if where != "" {
		sql += " where " + where
	}
	sel, err := ParseSelect(sql)
	if err != nil {
		return "", nil, false
	}
	return name, sel, true
}

func needsJSONHelper(sel *Select, aggregators map[string]bool) bool {
	for _, col := range sel.Columns() {
		for _, fc := range pgsql.FuncCalls(col.Expr) {
			if aggregators[pgsql.FuncName(fc)] && (fc.AggDistinct || len(fc.AggOrder) > 0) {
				return true
			}
		}
	}
	return false
}
