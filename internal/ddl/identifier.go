package ddl

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"ddl-cache/internal/domain"
)

// identifierRe allows lower-case alphanumerics and underscores, starting with a letter or underscore.
var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// maxIdentifierLen is PostgreSQL's NAMEDATALEN - 1.
const maxIdentifierLen = 63

// reservedWords are keywords that cannot appear as bare identifiers in the
// positions this package renders them.
var reservedWords = map[string]bool{
	"all": true, "and": true, "any": true, "array": true, "as": true, "asc": true,
	"case": true, "cast": true, "check": true, "column": true, "constraint": true,
	"create": true, "default": true, "desc": true, "distinct": true, "do": true,
	"else": true, "end": true, "false": true, "for": true, "foreign": true,
	"from": true, "grant": true, "group": true, "having": true, "in": true,
	"limit": true, "not": true, "null": true, "offset": true, "on": true,
	"only": true, "or": true, "order": true, "primary": true, "references": true,
	"select": true, "table": true, "then": true, "to": true, "true": true,
	"union": true, "unique": true, "user": true, "using": true, "when": true,
	"where": true, "with": true,
}

// ValidateIdentifier checks that name is a plain, unquoted-safe identifier.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("name must be at most %d characters", maxIdentifierLen)
	}
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("name %q must match [a-z_][a-z0-9_]*", name)
	}
	return nil
}

// QuoteIdentifier quotes a SQL identifier only when it is not a plain
// lower-case name or collides with a reserved word.
func QuoteIdentifier(name string) string {
	if identifierRe.MatchString(name) && !reservedWords[name] {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral wraps a string value in single quotes, escaping any
// embedded single-quote characters by doubling them (standard SQL).
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// QualifiedTable renders schema.table with quoting applied per part.
func QualifiedTable(t domain.TableID) string {
	return QuoteIdentifier(t.Schema) + "." + QuoteIdentifier(t.Name)
}

// TableWithAlias renders a FROM item that keeps the reference name column
// references expect.
func TableWithAlias(ref domain.TableReference) string {
	return QualifiedTable(ref.Table) + " as " + QuoteIdentifier(ref.Name())
}

// Literal renders a decoded JSON scalar (row ids in practice) as a SQL literal.
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return QuoteLiteral(val)
	case fmt.Stringer:
		return QuoteLiteral(val.String())
	default:
		return QuoteLiteral(fmt.Sprint(val))
	}
}
