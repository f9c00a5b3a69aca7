package declarative

import (
	"fmt"
	"strings"

	"ddl-cache/internal/ddl"
	"ddl-cache/internal/domain"
	"ddl-cache/internal/service/cache"
)

// ValidationError represents a single validation problem.
type ValidationError struct {
	Path    string // e.g. "billing/totals.yaml" or "cache[totals]"
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Valid index methods.
var validIndexMethods = map[string]bool{
	"btree": true,
	"hash":  true,
	"gin":   true,
	"gist":  true,
	"brin":  true,
}

// Validate checks every document and the rule set as a whole: names are
// unique identifiers, selects parse, and no two rules declare the same
// column on the same table.
func Validate(state *DesiredState) []ValidationError {
	var errs []ValidationError
	names := make(map[string]string, len(state.Caches))
	columns := make(map[cache.ColumnID]string)

	for _, res := range state.Caches {
		doc := res.Doc
		path := fmt.Sprintf("%s: cache[%s]", res.Path, doc.Metadata.Name)
		add := func(format string, args ...any) {
			errs = append(errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
		}

		if err := ddl.ValidateIdentifier(doc.Metadata.Name); err != nil {
			add("metadata.name: %v", err)
		} else if prev, ok := names[doc.Metadata.Name]; ok {
			add("duplicate cache name (also declared in %s)", prev)
		} else {
			names[doc.Metadata.Name] = res.Path
		}

		target, err := parseTarget(doc.Spec.For)
		if err != nil {
			add("spec.for: %v", err)
		}
		if doc.Spec.Alias != "" {
			if err := ddl.ValidateIdentifier(doc.Spec.Alias); err != nil {
				add("spec.alias: %v", err)
			}
		}

		if strings.TrimSpace(doc.Spec.Select) == "" {
			add("spec.select is required")
			continue
		}
		sel, err := cache.ParseSelect(doc.Spec.Select)
		if err != nil {
			add("spec.select: %v", err)
			continue
		}

		outputs := make(map[string]bool)
		for _, col := range sel.Columns() {
			outputs[col.Name] = true
			if target.IsZero() {
				continue
			}
			id := cache.ColumnID{Table: target, Name: col.Name}
			if prev, ok := columns[id]; ok {
				add("column %s is already declared by cache %s", id, prev)
				continue
			}
			columns[id] = doc.Metadata.Name
		}

		for _, t := range doc.Spec.WithoutTriggersOn {
			if _, err := parseTarget(t); err != nil {
				add("spec.without_triggers_on: %v", err)
			}
		}

		for i, idx := range doc.Spec.Indexes {
			if idx.Method != "" && !validIndexMethods[strings.ToLower(idx.Method)] {
				add("spec.indexes[%d]: unknown method %q", i, idx.Method)
			}
			if len(idx.On) == 0 {
				add("spec.indexes[%d]: on is required", i)
			}
			for _, col := range idx.On {
				if !outputs[strings.ToLower(col)] {
					add("spec.indexes[%d]: %q is not a column of this cache", i, col)
				}
			}
		}
	}
	return errs
}

// parseTarget parses "schema.table" or "table" and checks both parts.
func parseTarget(s string) (domain.TableID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.TableID{}, fmt.Errorf("table is required")
	}
	if strings.Count(s, ".") > 1 {
		return domain.TableID{}, fmt.Errorf("%q must be schema.table or table", s)
	}
	id := domain.ParseTableID(s)
	if err := ddl.ValidateIdentifier(id.Schema); err != nil {
		return domain.TableID{}, fmt.Errorf("schema: %w", err)
	}
	if err := ddl.ValidateIdentifier(id.Name); err != nil {
		return domain.TableID{}, fmt.Errorf("table: %w", err)
	}
	return id, nil
}
