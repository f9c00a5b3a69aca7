package cache

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"ddl-cache/internal/domain"
)

// generatedRules builds one rule per table t<i> with a single column c<i>.
// Bit j of masks[i] makes c<i> read c<j>; when acyclic only j < i is used.
func generatedRules(n int, masks []uint8, acyclic bool) []*Cache {
	caches := make([]*Cache, n)
	for i := 0; i < n; i++ {
		terms := []string{"0"}
		for j := 0; j < n; j++ {
			if masks[i]&(1<<j) == 0 || j == i || (acyclic && j >= i) {
				continue
			}
			terms = append(terms, fmt.Sprintf("coalesce((select t%d.c%d from t%d limit 1), 0)", j, j, j))
		}
		caches[i] = &Cache{
			Name:   fmt.Sprintf("rule%d", i),
			For:    domain.NewTableReference(domain.NewTableID("", fmt.Sprintf("t%d", i)), ""),
			Select: MustParseSelect(fmt.Sprintf("select %s as c%d", strings.Join(terms, " + "), i)),
		}
	}
	return caches
}

func TestProperty_Leveling(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("dependencies are always on an earlier level", prop.ForAll(
		func(n int, masks []uint8) bool {
			g := Build(DefaultAggregators, generatedRules(n, masks, true))
			for _, c := range g.Columns() {
				for _, dep := range g.Dependencies(c) {
					if g.DependencyLevel(dep) >= g.DependencyLevel(c) {
						return false
					}
				}
			}
			for _, root := range g.Roots() {
				if g.DependencyLevel(root) != 0 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.SliceOfN(8, gen.UInt8()),
	))

	properties.Property("every reference to a cache column is an edge", prop.ForAll(
		func(n int, masks []uint8) bool {
			g := Build(DefaultAggregators, generatedRules(n, masks, false))
			for _, c := range g.Columns() {
				deps := map[ColumnID]bool{}
				for _, dep := range g.Dependencies(c) {
					deps[dep.ID()] = true
				}
				for _, ref := range c.References {
					if _, ok := g.Column(ref.Table, ref.Name); ok && ref != c.ID() && !deps[ref] {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.SliceOfN(8, gen.UInt8()),
	))

	properties.Property("updates terminate and never repeat a column on cycles", prop.ForAll(
		func(n int, masks []uint8, start int) bool {
			g := Build(DefaultAggregators, generatedRules(n, masks, false))
			cols := g.Columns()
			changed := cols[start%len(cols)]

			seen := map[ColumnID]bool{}
			for _, u := range g.GenerateUpdatesFor([]*Column{changed}) {
				for _, c := range u.Columns {
					if seen[c.ID()] {
						return false
					}
					seen[c.ID()] = true
				}
			}
			if !seen[changed.ID()] {
				return false
			}

			placed := 0
			for _, level := range g.Levels() {
				placed += len(level)
			}
			return placed == len(cols)
		},
		gen.IntRange(1, 8),
		gen.SliceOfN(8, gen.UInt8()),
		gen.IntRange(0, 7),
	))

	properties.TestingRun(t)
}
