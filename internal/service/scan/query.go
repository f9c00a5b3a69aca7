package scan

import (
	"fmt"
	"strings"

	"ddl-cache/internal/ddl"
	"ddl-cache/internal/service/cache"
)

const expectedAlias = "__expected"

// Result column names of the scan query.
const (
	colID         = "id"
	colActual     = "actual"
	colExpected   = "expected"
	colRow        = "broken_row"
	colSourceRows = "source_rows"
)

// columnQuery holds the SQL fragments shared by the scan query and the
// diagnostic statement of one column.
type columnQuery struct {
	table    string // target table with its alias
	ref      string // qualifier of the target row
	actual   string
	expected string
	lateral  string
	broken   string
	evidence string // "" when the column reads more than one table
}

func newColumnQuery(col *cache.Column) (*columnQuery, error) {
	sel, err := col.Select.SQL()
	if err != nil {
		return nil, fmt.Errorf("render select: %w", err)
	}
	q := &columnQuery{
		table:    ddl.TableWithAlias(col.For),
		ref:      ddl.QuoteIdentifier(col.For.Name()),
		expected: expectedAlias + "." + ddl.QuoteIdentifier(col.Name),
		lateral:  sel,
	}
	q.actual = q.ref + "." + ddl.QuoteIdentifier(col.Name)
	q.broken = brokenPredicate(col, q.actual, q.expected)

	q.evidence, err = evidence(col)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// scanSQL finds the lowest-id row whose stored value is broken.
func (q *columnQuery) scanSQL() string {
	outputs := []string{
		fmt.Sprintf("%s.id as %s", q.ref, colID),
		fmt.Sprintf("to_jsonb(%s) as %s", q.actual, colActual),
		fmt.Sprintf("to_jsonb(%s) as %s", q.expected, colExpected),
		fmt.Sprintf("to_jsonb(%s.*) as %s", q.ref, colRow),
	}
	if q.evidence != "" {
		outputs = append(outputs, fmt.Sprintf("%s as %s", q.evidence, colSourceRows))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "select\n    %s\n", strings.Join(outputs, ",\n    "))
	fmt.Fprintf(&b, "from %s\n", q.table)
	fmt.Fprintf(&b, "left join lateral (\n    %s\n) as %s on true\n", q.lateral, expectedAlias)
	fmt.Fprintf(&b, "where\n    %s\n", q.broken)
	fmt.Fprintf(&b, "order by %s.id\nlimit 1", q.ref)
	return b.String()
}

// diagnosticSQL recomputes and compares the value for one row.
func (q *columnQuery) diagnosticSQL(rowID any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "select\n    %s.id,\n", q.ref)
	fmt.Fprintf(&b, "    %s as %s,\n", q.actual, colActual)
	fmt.Fprintf(&b, "    %s as %s,\n", q.expected, colExpected)
	fmt.Fprintf(&b, "    %s as is_broken\n", q.broken)
	fmt.Fprintf(&b, "from %s\n", q.table)
	fmt.Fprintf(&b, "left join lateral (\n    %s\n) as %s on true\n", q.lateral, expectedAlias)
	fmt.Fprintf(&b, "where %s.id = %s", q.ref, ddl.Literal(rowID))
	return b.String()
}

// brokenPredicate renders the comparison that flags a stored value as wrong
// under the column's equivalence rule.
func brokenPredicate(col *cache.Column, actual, expected string) string {
	switch col.Equivalence {
	case cache.EquivalenceArrayAgg:
		return arrayBroken(actual, expected)
	case cache.EquivalenceSum:
		return fmt.Sprintf("coalesce(%s, 0) is distinct from coalesce(%s, 0)", actual, expected)
	case cache.EquivalenceStringAgg:
		return fmt.Sprintf("%s is distinct from %s and not coalesce(%s, false)",
			actual, expected, arrayEqual(
				fmt.Sprintf("string_to_array(%s, %s)", actual, col.Delimiter),
				fmt.Sprintf("string_to_array(%s, %s)", expected, col.Delimiter),
			))
	case cache.EquivalenceJSONHelper:
		return fmt.Sprintf("coalesce(%s, '{}'::jsonb) is distinct from coalesce(%s, '{}'::jsonb)", actual, expected)
	default:
		return fmt.Sprintf("%s is distinct from %s", actual, expected)
	}
}

func arrayBroken(actual, expected string) string {
	return fmt.Sprintf("%s is distinct from %s and not coalesce(%s, false)",
		actual, expected, arrayEqual(actual, expected))
}

func arrayEqual(a, b string) string {
	return fmt.Sprintf("%s @> %s and %s <@ %s", a, b, a, b)
}

// evidence renders the subquery that collects the source rows feeding the
// column, or "" when the column does not read exactly one table.
func evidence(col *cache.Column) (string, error) {
	src, ok := col.Select.SingleSource()
	if !ok {
		return "", nil
	}
	fromWhere, _, err := col.Select.FromWhereSQL()
	if err != nil {
		return "", fmt.Errorf("render evidence: %w", err)
	}
	row := fmt.Sprintf("to_jsonb(%s.*)", ddl.QuoteIdentifier(src.Name()))

	orderBy, err := col.Select.OrderBySQL()
	if err != nil {
		return "", fmt.Errorf("render evidence: %w", err)
	}
	switch {
	case orderBy != "":
		return fmt.Sprintf("(select jsonb_agg(%s order by %s) %s)", row, orderBy, fromWhere), nil
	case col.Aggregated:
		return fmt.Sprintf("(select jsonb_agg(%s) %s)", row, fromWhere), nil
	default:
		return fmt.Sprintf("(select jsonb_build_array(%s) %s limit 1)", row, fromWhere), nil
	}
}
