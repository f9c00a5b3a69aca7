package cache

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"ddl-cache/internal/domain"
	"ddl-cache/internal/pgsql"
)

// ColumnKind tells regular cache columns apart from the helper columns the
// graph synthesizes.
type ColumnKind int

const (
	// KindRegular is an output column of a cache rule.
	KindRegular ColumnKind = iota
	// KindIsLast is the boolean marker on the source table of an
	// "order by ... limit 1" rule.
	KindIsLast
	// KindJSONHelper is the jsonb snapshot of source rows kept for
	// aggregates that cannot be maintained incrementally.
	KindJSONHelper
)

func (k ColumnKind) String() string {
	switch k {
	case KindIsLast:
		return "is_last"
	case KindJSONHelper:
		return "json_helper"
	default:
		return "regular"
	}
}

// ColumnID is the identity of a cache column: the physical table it lives on
// and its name. The alias of the rule's table reference is not part of it.
type ColumnID struct {
	Table domain.TableID
	Name  string
}

// String renders "schema.table.column".
func (id ColumnID) String() string {
	return id.Table.String() + "." + id.Name
}

// Column is one derived column produced by a cache rule. Columns are created
// by Build and owned by their Graph.
type Column struct {
	// For is the table reference the column lives on, alias included.
	For  domain.TableReference
	Name string
	Kind ColumnKind

	// CacheName and CacheSignature identify the rule that declared the column.
	CacheName      string
	CacheSignature string

	// Select computes this column alone. Its FROM, WHERE, ORDER BY and
	// LIMIT are those of the rule.
	Select *Select

	// Equivalence decides how the scanner compares stored and expected
	// values. Delimiter holds the SQL of the string_agg delimiter when
	// Equivalence is EquivalenceStringAgg.
	Equivalence Equivalence
	Delimiter   string

	// Aggregated is set when the column expression calls an aggregator.
	Aggregated bool

	// References lists the columns the select reads, resolved to physical
	// tables. Tables lists every table the select reads.
	References []ColumnID
	Tables     []domain.TableID

	index int
}

// ID returns the column identity.
func (c *Column) ID() ColumnID {
	return ColumnID{Table: c.For.Table, Name: c.Name}
}

// String renders "schema.table.column".
func (c *Column) String() string {
	return c.ID().String()
}

// Expr returns the column expression.
func (c *Column) Expr() *pg_query.Node {
	return c.Select.Columns()[0].Expr
}

// ExprSQL deparses the column expression.
func (c *Column) ExprSQL() (string, error) {
	return pgsql.DeparseExpr(c.Expr())
}

// Reads reports whether the column's select reads table.
func (c *Column) Reads(table domain.TableLike) bool {
	id := table.TableID()
	for _, t := range c.Tables {
		if t.Equal(id) {
			return true
		}
	}
	return false
}

// Belongs reports whether the column lives on table.
func (c *Column) Belongs(table domain.TableLike) bool {
	return c.For.Table.Equal(table.TableID())
}

// DependsOn reports whether the column's select reads other.
func (c *Column) DependsOn(other *Column) bool {
	id := other.ID()
	for _, ref := range c.References {
		if ref == id {
			return true
		}
	}
	return false
}

// IsHelper reports whether the column was synthesized by the graph.
func (c *Column) IsHelper() bool {
	return c.Kind != KindRegular
}
