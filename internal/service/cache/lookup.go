package cache

import (
	"strings"

	"ddl-cache/internal/domain"
)

// Columns returns every column in declaration order.
func (g *Graph) Columns() []*Column {
	out := make([]*Column, len(g.columns))
	copy(out, g.columns)
	return out
}

// Levels returns the refresh levels. Level 0 holds the columns that depend
// on no other cache column; every later level only depends on earlier ones.
func (g *Graph) Levels() [][]*Column {
	out := make([][]*Column, len(g.levels))
	for k, level := range g.levels {
		out[k] = g.pick(level)
	}
	return out
}

// ColumnsFromRootToDeps flattens Levels in refresh order.
func (g *Graph) ColumnsFromRootToDeps() []*Column {
	var out []*Column
	for _, level := range g.levels {
		out = append(out, g.pick(level)...)
	}
	return out
}

// Roots returns the columns with no dependency on another cache column.
func (g *Graph) Roots() []*Column {
	var out []*Column
	for i, deps := range g.deps {
		if len(deps) == 0 {
			out = append(out, g.columns[i])
		}
	}
	return out
}

// Dependencies returns the cache columns c reads.
func (g *Graph) Dependencies(c *Column) []*Column {
	i, ok := g.indexOf(c)
	if !ok {
		return nil
	}
	return g.pick(g.deps[i])
}

// Uses returns the cache columns that read c.
func (g *Graph) Uses(c *Column) []*Column {
	i, ok := g.indexOf(c)
	if !ok {
		return nil
	}
	return g.pick(g.uses[i])
}

// Column looks up a column by table and name.
func (g *Graph) Column(table domain.TableLike, name string) (*Column, bool) {
	i, ok := g.byID[ColumnID{Table: table.TableID(), Name: strings.ToLower(name)}]
	if !ok {
		return nil, false
	}
	return g.columns[i], true
}

// ColumnsOf returns the columns living on table.
func (g *Graph) ColumnsOf(table domain.TableLike) []*Column {
	return g.pick(g.byTable[table.TableID()])
}

// DependencyLevel returns the level of the column with c's table and name,
// or -1 when the graph has no such column.
func (g *Graph) DependencyLevel(c *Column) int {
	i, ok := g.indexOf(c)
	if !ok {
		return -1
	}
	return g.levelOf[i]
}

// FindColumnsForTablesOrColumns resolves a comma-separated list of
// "schema.table", "schema.table.column" or "table" tokens. An empty spec
// selects every column; unknown tokens select nothing.
func (g *Graph) FindColumnsForTablesOrColumns(spec string) []*Column {
	if strings.TrimSpace(spec) == "" {
		return g.Columns()
	}

	var out []*Column
	seen := make(map[int]bool)
	add := func(indexes ...int) {
		for _, i := range indexes {
			if !seen[i] {
				seen[i] = true
				out = append(out, g.columns[i])
			}
		}
	}

	for _, token := range strings.Split(spec, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		parts := strings.Split(token, ".")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch len(parts) {
		case 1:
			add(g.byTable[domain.NewTableID("", parts[0])]...)
		case 2:
			add(g.byTable[domain.NewTableID(parts[0], parts[1])]...)
		case 3:
			if i, ok := g.byID[ColumnID{Table: domain.NewTableID(parts[0], parts[1]), Name: parts[2]}]; ok {
				add(i)
			}
		}
	}
	return out
}

// FindColumnsDependentOn returns the columns whose select reads table, plus
// the columns living on it.
func (g *Graph) FindColumnsDependentOn(table domain.TableLike) []*Column {
	var out []*Column
	for _, col := range g.columns {
		if col.Belongs(table) || col.Reads(table) {
			out = append(out, col)
		}
	}
	return out
}

func (g *Graph) indexOf(c *Column) (int, bool) {
	if c == nil {
		return 0, false
	}
	if c.index >= 0 && c.index < len(g.columns) && g.columns[c.index] == c {
		return c.index, true
	}
	i, ok := g.byID[c.ID()]
	return i, ok
}

func (g *Graph) pick(indexes []int) []*Column {
	out := make([]*Column, len(indexes))
	for k, i := range indexes {
		out[k] = g.columns[i]
	}
	return out
}
