package cache

import (
	"fmt"

	"ddl-cache/internal/domain"
	"ddl-cache/internal/pgsql"
)

// Graph is the dependency graph of all cache columns. Column A depends on
// column B when A's select reads B. A Graph is immutable after Build and safe
// for concurrent readers.
type Graph struct {
	aggregators map[string]bool

	columns []*Column
	byID    map[ColumnID]int
	byTable map[domain.TableID][]int

	deps [][]int
	uses [][]int

	levels  [][]int
	levelOf []int
}

// Build creates the graph for a set of cache rules. aggregators names the
// aggregate functions to recognize (see DefaultAggregators). Build panics on
// a nil rule or a rule without a select.
func Build(aggregators []string, caches []*Cache) *Graph {
	g := &Graph{
		aggregators: aggregatorSet(aggregators),
		byID:        make(map[ColumnID]int),
		byTable:     make(map[domain.TableID][]int),
	}

	for _, c := range caches {
		if c == nil {
			panic("cache: nil cache rule")
		}
		if c.Select == nil {
			panic(fmt.Sprintf("cache: rule %q has no select", c.Name))
		}
		for _, sc := range c.Select.Columns() {
			sel, _ := c.Select.WithColumn(sc.Name)
			g.add(c, c.For, sc.Name, KindRegular, sel)
		}
		if target, name, sel, ok := isLastColumn(c); ok {
			g.add(c, target, name, KindIsLast, sel)
		}
		if name, sel, ok := jsonHelperColumn(c, g.aggregators); ok {
			g.add(c, c.For, name, KindJSONHelper, sel)
		}
	}

	g.link()
	g.level()
	return g
}

func (g *Graph) add(c *Cache, target domain.TableReference, name string, kind ColumnKind, sel *Select) {
	expr := sel.Columns()[0].Expr
	equivalence, delimiter := equivalenceOf(kind, expr)
	refs, tables := resolveReferences(target, sel)

	col := &Column{
		For:            target,
		Name:           name,
		Kind:           kind,
		CacheName:      c.Name,
		CacheSignature: c.Signature(),
		Select:         sel,
		Equivalence:    equivalence,
		Delimiter:      delimiter,
		Aggregated:     callsAggregate(expr, g.aggregators),
		References:     refs,
		Tables:         tables,
		index:          len(g.columns),
	}
	g.columns = append(g.columns, col)

	id := col.ID()
	if _, exists := g.byID[id]; !exists {
		g.byID[id] = col.index
	}
	g.byTable[id.Table] = append(g.byTable[id.Table], col.index)
}

// link resolves every column reference against the arena.
func (g *Graph) link() {
	g.deps = make([][]int, len(g.columns))
	g.uses = make([][]int, len(g.columns))
	for i, col := range g.columns {
		seen := make(map[int]bool)
		for _, ref := range col.References {
			j, ok := g.byID[ref]
			if !ok || j == i || seen[j] {
				continue // plain column or self reference
			}
			seen[j] = true
			g.deps[i] = append(g.deps[i], j)
			g.uses[j] = append(g.uses[j], i)
		}
	}
}

// scope maps the qualifiers visible in a cache select to tables.
type scope struct {
	names  map[string]domain.TableID
	single domain.TableID
}

func newScope(target domain.TableReference, sel *Select) scope {
	s := scope{names: map[string]domain.TableID{target.Name(): target.Table}}
	for _, rv := range pgsql.RangeVars(sel.Stmt()) {
		ref := pgsql.TableReferenceOf(rv)
		s.names[ref.Name()] = ref.Table
	}
	switch from := sel.From(); len(from) {
	case 0:
		s.single = target.Table
	case 1:
		s.single = from[0].Table
	}
	return s
}

func (s scope) resolve(ref pgsql.ColumnRef) (ColumnID, bool) {
	if ref.Star {
		return ColumnID{}, false
	}
	var table domain.TableID
	switch len(ref.Qualifier) {
	case 0:
		table = s.single
	case 1:
		table = s.names[ref.Qualifier[0]]
	default:
		table = domain.NewTableID(ref.QualifierSchema(), ref.QualifierName())
	}
	if table.IsZero() {
		return ColumnID{}, false
	}
	return ColumnID{Table: table, Name: ref.Column}, true
}

// resolveReferences returns the columns and tables a single-column select
// reads, deduplicated in first-seen order.
func resolveReferences(target domain.TableReference, sel *Select) ([]ColumnID, []domain.TableID) {
	sc := newScope(target, sel)

	var refs []ColumnID
	seenRefs := make(map[ColumnID]bool)
	var tables []domain.TableID
	seenTables := make(map[domain.TableID]bool)
	addTable := func(t domain.TableID) {
		if !seenTables[t] {
			seenTables[t] = true
			tables = append(tables, t)
		}
	}

	for _, rv := range pgsql.RangeVars(sel.Stmt()) {
		addTable(pgsql.TableReferenceOf(rv).Table)
	}
	for _, ref := range pgsql.SelectColumnRefs(sel.Stmt()) {
		id, ok := sc.resolve(ref)
		if !ok {
			continue
		}
		addTable(id.Table)
		if !seenRefs[id] {
			seenRefs[id] = true
			refs = append(refs, id)
		}
	}
	return refs, tables
}
