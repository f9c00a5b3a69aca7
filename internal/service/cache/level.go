package cache

import "sort"

// level computes the refresh levels with Kahn's algorithm over the
// condensation of the dependency graph. Columns in one strongly connected
// component share a level, so every column is placed even when rules
// reference each other.
func (g *Graph) level() {
	comp, count := g.components()

	members := make([][]int, count)
	for i, c := range comp {
		members[c] = append(members[c], i)
	}

	inDegree := make([]int, count)
	dependents := make([][]int, count)
	seen := make(map[[2]int]bool)
	for i, deps := range g.deps {
		for _, d := range deps {
			from, to := comp[d], comp[i]
			if from == to || seen[[2]int{from, to}] {
				continue
			}
			seen[[2]int{from, to}] = true
			dependents[from] = append(dependents[from], to)
			inDegree[to]++
		}
	}

	var queue []int
	for c, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, c)
		}
	}

	g.levelOf = make([]int, len(g.columns))
	for len(queue) > 0 {
		var level []int
		for _, c := range queue {
			level = append(level, members[c]...)
		}
		sort.Ints(level) // declaration order
		for _, i := range level {
			g.levelOf[i] = len(g.levels)
		}
		g.levels = append(g.levels, level)

		var next []int
		for _, c := range queue {
			for _, d := range dependents[c] {
				inDegree[d]--
				if inDegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		queue = next
	}
}

// components labels the strongly connected components of the dependency
// graph (Tarjan). It returns the component of every column and the count.
func (g *Graph) components() ([]int, int) {
	n := len(g.columns)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	comp := make([]int, n)
	for i := range index {
		index[i] = -1
	}

	var stack []int
	next, count := 0, 0
	var connect func(v int)
	connect = func(v int) {
		index[v], low[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.deps[v] {
			if index[w] < 0 {
				connect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp[w] = count
				if w == v {
					break
				}
			}
			count++
		}
	}

	for v := 0; v < n; v++ {
		if index[v] < 0 {
			connect(v)
		}
	}
	return comp, count
}
