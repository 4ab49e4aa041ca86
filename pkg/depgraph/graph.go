package depgraph

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports that the dependency graph is not acyclic. Nodes names
// the members of the first cycle found.
type CycleError struct {
	// Nodes are the members of the detected cycle, in path order.
	Nodes []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Nodes, " -> "))
}

// Graph is a directed dependency graph over string node IDs. It is built
// once and then ordered; it is not safe for concurrent mutation.
type Graph struct {
	// insertion keeps node registration order so output is deterministic
	// for identical input.
	insertion []string
	nodes     map[string]bool

	// dependents maps a node to the nodes that depend on it.
	dependents map[string][]string

	// deps maps a node to its direct dependencies.
	deps map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[string]bool),
		dependents: make(map[string][]string),
		deps:       make(map[string][]string),
	}
}

// AddNode registers a node. Adding a node twice is a no-op.
func (g *Graph) AddNode(id string) {
	if g.nodes[id] {
		return
	}
	g.nodes[id] = true
	g.insertion = append(g.insertion, id)
}

// AddEdge declares that node depends on dependsOn: dependsOn must deploy
// first. Unknown endpoints are registered implicitly.
func (g *Graph) AddEdge(node, dependsOn string) {
	if node == dependsOn {
		return
	}
	g.AddNode(node)
	g.AddNode(dependsOn)
	g.deps[node] = append(g.deps[node], dependsOn)
	g.dependents[dependsOn] = append(g.dependents[dependsOn], node)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Order returns a strict topological order: every dependency appears
// before its dependents. Ties are broken by sorting node IDs within each
// ready set, which makes the output deterministic for identical input.
// A cyclic graph fails with a *CycleError naming the cycle.
func (g *Graph) Order() ([]string, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(g.nodes))
	for _, level := range levels {
		out = append(out, level...)
	}
	return out, nil
}

// Levels returns the topological order grouped into levels: nodes within
// one level have no ordering constraint between them and may deploy in
// parallel.
func (g *Graph) Levels() ([][]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = len(g.deps[id])
	}

	// Kahn's algorithm, level by level.
	var current []string
	for _, id := range g.insertion {
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}

	var levels [][]string
	processed := 0
	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)
		processed += len(current)

		var next []string
		for _, id := range current {
			for _, dep := range g.dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if processed != len(g.nodes) {
		return nil, &CycleError{Nodes: g.findCycle()}
	}
	return levels, nil
}

// OrderBestEffort repeatedly attempts a topological sort, removing the
// reported cycle's nodes on each failure and recording them as
// unorderable. The loop is bounded by the original node count, so it
// terminates even if cycle detection keeps firing. Pruning removes whole
// reported cycles and may therefore over-prune nodes entangled in one
// report; callers must treat the unorderable set as needing manual
// attention, not silently dropped.
func (g *Graph) OrderBestEffort() (ordered []string, unorderable []string) {
	work := g.clone()
	for attempt := 0; attempt <= len(g.nodes); attempt++ {
		out, err := work.Order()
		if err == nil {
			sort.Strings(unorderable)
			return out, unorderable
		}
		cycleErr := err.(*CycleError)
		for _, id := range cycleErr.Nodes {
			work.remove(id)
			unorderable = append(unorderable, id)
		}
	}
	// Unreachable if remove() makes progress each iteration; return
	// everything still in the graph as unorderable.
	for id := range work.nodes {
		unorderable = append(unorderable, id)
	}
	sort.Strings(unorderable)
	return nil, unorderable
}

// findCycle locates one cycle via depth-first search. It is only called
// when Kahn's algorithm could not process every node, so a cycle exists.
func (g *Graph) findCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, dep := range g.deps[id] {
			if !visited[dep] {
				if visit(dep) {
					return true
				}
			} else if onStack[dep] {
				// Found the cycle: slice the path from the first
				// occurrence of dep.
				for i, p := range path {
					if p == dep {
						cycle = append([]string(nil), path[i:]...)
						return true
					}
				}
			}
		}

		onStack[id] = false
		path = path[:len(path)-1]
		return false
	}

	ids := append([]string(nil), g.insertion...)
	sort.Strings(ids)
	for _, id := range ids {
		if !visited[id] && visit(id) {
			return cycle
		}
	}
	return nil
}

// clone returns a deep copy of the graph for destructive pruning.
func (g *Graph) clone() *Graph {
	c := New()
	for _, id := range g.insertion {
		c.AddNode(id)
	}
	for node, deps := range g.deps {
		for _, dep := range deps {
			c.deps[node] = append(c.deps[node], dep)
			c.dependents[dep] = append(c.dependents[dep], node)
		}
	}
	return c
}

// remove deletes a node and all edges touching it.
func (g *Graph) remove(id string) {
	if !g.nodes[id] {
		return
	}
	delete(g.nodes, id)
	for i, n := range g.insertion {
		if n == id {
			g.insertion = append(g.insertion[:i], g.insertion[i+1:]...)
			break
		}
	}
	delete(g.deps, id)
	delete(g.dependents, id)
	for node, deps := range g.deps {
		g.deps[node] = removeString(deps, id)
	}
	for node, deps := range g.dependents {
		g.dependents[node] = removeString(deps, id)
	}
}

func removeString(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
