package cache

import (
	"fmt"
	"strings"

	"ddl-cache/internal/domain"
)

// Update is a batch of columns on one table slot that can be recomputed
// together. Updates of the same Level are independent of each other.
type Update struct {
	Level   int
	Table   domain.TableReference
	Columns []*Column
}

// ColumnNames returns the names of the batch's columns.
func (u Update) ColumnNames() []string {
	names := make([]string, len(u.Columns))
	for i, c := range u.Columns {
		names[i] = c.Name
	}
	return names
}

func (u Update) String() string {
	return fmt.Sprintf("level %d: %s (%s)", u.Level, u.Table, strings.Join(u.ColumnNames(), ", "))
}

// GenerateAllUpdates returns the updates that recompute every column.
func (g *Graph) GenerateAllUpdates() []Update {
	all := make([]bool, len(g.columns))
	for i := range all {
		all[i] = true
	}
	return g.updatesFor(all)
}

// GenerateUpdatesFor returns the ordered updates needed after the given
// columns changed: the changed columns plus every column that transitively
// uses them. Unknown columns are ignored.
func (g *Graph) GenerateUpdatesFor(changed []*Column) []Update {
	reachable := make([]bool, len(g.columns))
	onPath := make([]bool, len(g.columns))
	for _, c := range changed {
		if i, ok := g.indexOf(c); ok {
			g.collectUses(i, onPath, reachable)
		}
	}
	return g.updatesFor(reachable)
}

func (g *Graph) collectUses(i int, onPath, reachable []bool) {
	if reachable[i] {
		return
	}
	reachable[i] = true
	onPath[i] = true
	for _, u := range g.notCircularUses(i, onPath) {
		g.collectUses(u, onPath, reachable)
	}
	onPath[i] = false
}

// notCircularUses returns the columns using i that are not on the current
// walk path.
func (g *Graph) notCircularUses(i int, onPath []bool) []int {
	var out []int
	for _, u := range g.uses[i] {
		if !onPath[u] {
			out = append(out, u)
		}
	}
	return out
}

// updatesFor filters the levels down to the included columns and groups
// each level by table slot in first-appearance order.
func (g *Graph) updatesFor(include []bool) []Update {
	var updates []Update
	for k, level := range g.levels {
		slot := make(map[domain.TableReference]int)
		var batch []Update
		for _, i := range level {
			if !include[i] {
				continue
			}
			col := g.columns[i]
			j, ok := slot[col.For]
			if !ok {
				j = len(batch)
				slot[col.For] = j
				batch = append(batch, Update{Level: k, Table: col.For})
			}
			batch[j].Columns = append(batch[j].Columns, col)
		}
		updates = append(updates, batch...)
	}
	return updates
}
