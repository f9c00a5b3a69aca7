package cache

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"ddl-cache/internal/ddl"
	"ddl-cache/internal/domain"
	"ddl-cache/internal/pgsql"
)

// SelectColumn is one named output expression of a cache select.
type SelectColumn struct {
	Name string
	Expr *pg_query.Node
}

// Select is the parsed SELECT body of a cache rule. It keeps the pg_query
// statement and exposes the parts the graph and the scanner reason about:
// output columns, FROM, WHERE, ORDER BY and LIMIT.
type Select struct {
	stmt    *pg_query.SelectStmt
	columns []SelectColumn
}

// ParseSelect parses the SQL body of a cache rule.
func ParseSelect(sql string) (*Select, error) {
	stmt, err := pgsql.ParseSelect(sql)
	if err != nil {
		return nil, err
	}
	return NewSelect(stmt)
}

// MustParseSelect is ParseSelect for fixed SQL; it panics on error.
func MustParseSelect(sql string) *Select {
	s, err := ParseSelect(sql)
	if err != nil {
		panic(fmt.Sprintf("cache: parse select %q: %v", sql, err))
	}
	return s
}

// NewSelect wraps a parsed statement. Every output column must have a name:
// an explicit alias or a plain column reference.
func NewSelect(stmt *pg_query.SelectStmt) (*Select, error) {
	if stmt == nil {
		return nil, fmt.Errorf("select is required")
	}
	if len(stmt.TargetList) == 0 {
		return nil, fmt.Errorf("select has no columns")
	}
	s := &Select{stmt: stmt}
	seen := make(map[string]bool, len(stmt.TargetList))
	for i, target := range stmt.TargetList {
		rt := target.GetResTarget()
		if rt == nil {
			return nil, fmt.Errorf("column %d: unexpected target %T", i+1, target.GetNode())
		}
		name := strings.ToLower(rt.Name)
		if name == "" {
			if ref, ok := pgsql.ColumnRefOf(rt.Val); ok && !ref.Star {
				name = ref.Column
			}
		}
		if name == "" {
			return nil, fmt.Errorf("column %d: expression needs an alias", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true
		s.columns = append(s.columns, SelectColumn{Name: name, Expr: rt.Val})
	}
	return s, nil
}

// Columns returns the output columns in declaration order.
func (s *Select) Columns() []SelectColumn {
	return s.columns
}

// Stmt returns the underlying parse tree. Callers must not modify it.
func (s *Select) Stmt() *pg_query.SelectStmt {
	return s.stmt
}

// Where returns the WHERE predicate or nil.
func (s *Select) Where() *pg_query.Node {
	return s.stmt.WhereClause
}

// OrderBy returns the ORDER BY items (SortBy nodes).
func (s *Select) OrderBy() []*pg_query.Node {
	return s.stmt.SortClause
}

// Limit returns the constant LIMIT value when there is one.
func (s *Select) Limit() (int64, bool) {
	if s.stmt.LimitCount == nil {
		return 0, false
	}
	c := s.stmt.LimitCount.GetAConst()
	if c == nil || c.GetIval() == nil {
		return 0, false
	}
	return int64(c.GetIval().Ival), true
}

// From returns the tables of the top-level FROM clause, joins included.
func (s *Select) From() []domain.TableReference {
	ranges := pgsql.FromRangeVars(s.stmt)
	refs := make([]domain.TableReference, len(ranges))
	for i, rv := range ranges {
		refs[i] = pgsql.TableReferenceOf(rv)
	}
	return refs
}

// SingleSource returns the only FROM table when the select reads exactly one
// table without joins.
func (s *Select) SingleSource() (domain.TableReference, bool) {
	if len(s.stmt.FromClause) != 1 || s.stmt.FromClause[0].GetRangeVar() == nil {
		return domain.TableReference{}, false
	}
	return pgsql.TableReferenceOf(s.stmt.FromClause[0].GetRangeVar()), true
}

// HasAggregate reports whether any output column calls one of aggregators.
func (s *Select) HasAggregate(aggregators map[string]bool) bool {
	for _, col := range s.columns {
		if callsAggregate(col.Expr, aggregators) {
			return true
		}
	}
	return false
}

// WithColumn returns a copy of the select that outputs only the named column.
func (s *Select) WithColumn(name string) (*Select, bool) {
	for i, col := range s.columns {
		if col.Name != name {
			continue
		}
		stmt := pgsql.CloneSelect(s.stmt)
		target := stmt.TargetList[i]
		if rt := target.GetResTarget(); rt != nil {
			rt.Name = col.Name
		}
		stmt.TargetList = stmt.TargetList[i : i+1]
		return &Select{stmt: stmt, columns: []SelectColumn{{Name: col.Name, Expr: target.GetResTarget().GetVal()}}}, true
	}
	return nil, false
}

// SQL deparses the whole select.
func (s *Select) SQL() (string, error) {
	return pgsql.Deparse(s.stmt)
}

// WhereSQL deparses the WHERE predicate; "" when there is none.
func (s *Select) WhereSQL() (string, error) {
	return pgsql.DeparseExpr(s.stmt.WhereClause)
}

// OrderBySQL deparses the ORDER BY items without the keyword.
func (s *Select) OrderBySQL() (string, error) {
	if len(s.stmt.SortClause) == 0 {
		return "", nil
	}
	return pgsql.DeparseSortClause(s.stmt.SortClause)
}

// FromWhereSQL renders "from <src> as <ref> [where ...]" for a single-source
// select; the scanner uses it to gather evidence rows.
func (s *Select) FromWhereSQL() (string, bool, error) {
	src, ok := s.SingleSource()
	if !ok {
		return "", false, nil
	}
	out := "from " + ddl.TableWithAlias(src)
	where, err := s.WhereSQL()
	if err != nil {
		return "", false, err
	}
	if where != "" {
		out += " where " + where
	}
	return out, true, nil
}

func callsAggregate(expr *pg_query.Node, aggregators map[string]bool) bool {
	for _, fc := range pgsql.FuncCalls(expr) {
		if aggregators[pgsql.FuncName(fc)] {
			return true
		}
	}
	return false
}
