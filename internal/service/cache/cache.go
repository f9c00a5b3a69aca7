// Package cache models cache columns: denormalized columns whose values are
// defined by a SELECT over other tables. It builds the dependency graph
// between cache columns, levels it for refresh ordering and computes the
// ordered updates needed after a change.
package cache

import (
	"fmt"
	"strings"

	"ddl-cache/internal/domain"
)

// DefaultAggregators are the aggregate functions recognized without
// configuration.
var DefaultAggregators = []string{
	"count", "sum", "min", "max", "avg",
	"array_agg", "string_agg",
	"bool_or", "bool_and", "every",
	"json_agg", "jsonb_agg", "json_object_agg", "jsonb_object_agg",
}

// Cache is one cache rule: "cache <name> for <table> (<select>)".
type Cache struct {
	Name              string
	For               domain.TableReference
	Select            *Select
	WithoutTriggersOn []domain.TableID
	Indexes           []Index
}

// Index is an index the rule asks for on its target table.
type Index struct {
	Method  string
	Columns []string
}

// Signature identifies the rule, e.g. "cache totals for public.companies".
func (c *Cache) Signature() string {
	return fmt.Sprintf("cache %s for %s", c.Name, c.For)
}

// SkipsTriggersOn reports whether the rule opted out of triggers on table.
func (c *Cache) SkipsTriggersOn(table domain.TableID) bool {
	for _, t := range c.WithoutTriggersOn {
		if t.Equal(table) {
			return true
		}
	}
	return false
}

func aggregatorSet(aggregators []string) map[string]bool {
	set := make(map[string]bool, len(aggregators))
	for _, name := range aggregators {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			set[name] = true
		}
	}
	return set
}
