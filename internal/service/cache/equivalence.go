package cache

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"ddl-cache/internal/pgsql"
)

// Equivalence is the comparison rule for stored versus expected values of a
// column. It is decided once, from the shape of the column expression.
type Equivalence int

const (
	// EquivalencePlain compares with "is distinct from".
	EquivalencePlain Equivalence = iota
	// EquivalenceArrayAgg ignores element order: arrays are equal when each
	// contains the other.
	EquivalenceArrayAgg
	// EquivalenceSum treats null and zero as the same value.
	EquivalenceSum
	// EquivalenceStringAgg splits both sides by the delimiter and applies
	// the array rule. Only used when the aggregate has no ORDER BY.
	EquivalenceStringAgg
	// EquivalenceJSONHelper treats null as an empty object.
	EquivalenceJSONHelper
)

func (e Equivalence) String() string {
	switch e {
	case EquivalenceArrayAgg:
		return "array_agg"
	case EquivalenceSum:
		return "sum"
	case EquivalenceStringAgg:
		return "string_agg"
	case EquivalenceJSONHelper:
		return "json_helper"
	default:
		return "plain"
	}
}

// equivalenceOf classifies a column expression by its outermost call. The
// second return value is the delimiter SQL for string_agg.
func equivalenceOf(kind ColumnKind, expr *pg_query.Node) (Equivalence, string) {
	if kind == KindJSONHelper {
		return EquivalenceJSONHelper, ""
	}
	fc := expr.GetFuncCall()
	if fc == nil {
		return EquivalencePlain, ""
	}
	switch pgsql.FuncName(fc) {
	case "array_agg":
		return EquivalenceArrayAgg, ""
	case "sum":
		return EquivalenceSum, ""
	case "string_agg":
		if len(fc.AggOrder) > 0 || len(fc.Args) < 2 {
			return EquivalencePlain, ""
		}
		delimiter, err := pgsql.DeparseExpr(fc.Args[1])
		if err != nil || delimiter == "" {
			return EquivalencePlain, ""
		}
		return EquivalenceStringAgg, delimiter
	}
	return EquivalencePlain, ""
}
