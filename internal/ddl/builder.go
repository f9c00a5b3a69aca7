// Package ddl renders the PostgreSQL statements ddl-cache issues: identifier
// quoting, literals and the UPDATE statements that refresh cache columns.
package ddl

import (
	"fmt"
	"strings"

	"ddl-cache/internal/domain"
)

// Assignment is one cache column and the scalar subquery that recomputes it.
type Assignment struct {
	Column string
	Select string
}

// UpdateStatement renders a single UPDATE that recomputes every assignment
// for the rows of target whose stored values differ from the fresh ones:
//
//	update public.companies as companies
//	set (a, b) = row((select ...), (select ...))
//	where (companies.a, companies.b) is distinct from ((select ...), (select ...))
//
// An optional extra predicate narrows the rows (e.g. an id range).
func UpdateStatement(target domain.TableReference, assignments []Assignment, extra string) (string, error) {
	if len(assignments) == 0 {
		return "", fmt.Errorf("at least one assignment is required")
	}
	if target.Table.IsZero() {
		return "", fmt.Errorf("target table is required")
	}

	ref := QuoteIdentifier(target.Name())
	columns := make([]string, len(assignments))
	current := make([]string, len(assignments))
	fresh := make([]string, len(assignments))
	for i, a := range assignments {
		if strings.TrimSpace(a.Select) == "" {
			return "", fmt.Errorf("assignment for %q has no select", a.Column)
		}
		columns[i] = QuoteIdentifier(a.Column)
		current[i] = ref + "." + columns[i]
		fresh[i] = "(" + a.Select + ")"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "update %s\n", TableWithAlias(target))
	if len(assignments) == 1 {
		fmt.Fprintf(&b, "set %s = %s\n", columns[0], fresh[0])
		fmt.Fprintf(&b, "where %s is distinct from %s", current[0], fresh[0])
	} else {
		fmt.Fprintf(&b, "set (%s) = row(%s)\n", strings.Join(columns, ", "), strings.Join(fresh, ", "))
		fmt.Fprintf(&b, "where (%s) is distinct from (%s)", strings.Join(current, ", "), strings.Join(fresh, ", "))
	}
	if extra != "" {
		fmt.Fprintf(&b, "\n  and (%s)", extra)
	}
	return b.String(), nil
}

// IDRangePredicate renders "ref.id >= from and ref.id <= to" for batched
// refreshes. Both bounds are inclusive so the last id of int64 is reachable.
func IDRangePredicate(target domain.TableReference, idColumn string, from, to int64) string {
	col := QuoteIdentifier(target.Name()) + "." + QuoteIdentifier(idColumn)
	return fmt.Sprintf("%s >= %d and %s <= %d", col, from, col, to)
}
