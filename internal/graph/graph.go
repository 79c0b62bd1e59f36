// Package graph resolves task names into a directed acyclic graph. Tasks are
// stored arena-style: indexed by dense integer id with dependency relations
// kept as index lists, so the scheduler can read the structure concurrently
// without chasing pointers.
package graph

import (
	"github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/emirpasic/gods/utils"

	"github.com/hpipe/hpipe/internal/errors"
	"github.com/hpipe/hpipe/internal/registry"
)

// Graph is the transitive dependency closure of a set of requested root
// tasks. It is immutable once built; ids follow registration order.
type Graph struct {
	tasks      []*registry.Task
	index      map[string]int
	deps       [][]int // deps[i] = ids task i depends on
	dependents [][]int // dependents[i] = ids that depend on task i
	order      []int   // topological order, dependencies first
	roots      []int
}

// Build resolves the requested root task names against the registry and
// returns the transitive closure of their dependencies. An empty roots slice
// selects every registered task. Unknown references and dependency cycles
// are configuration errors.
func Build(reg *registry.Registry, roots []string) (*Graph, error) {
	if len(roots) == 0 {
		roots = reg.Names()
	}

	reachable, err := collectReachable(reg, roots)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		index: make(map[string]int, len(reachable)),
	}

	// Arena ids follow registration order so that every downstream
	// tie-break (topological sort, ready-queue dispatch) is deterministic.
	for _, name := range reg.Names() {
		if !reachable[name] {
			continue
		}
		t, err := reg.Get(name)
		if err != nil {
			return nil, err
		}
		g.index[name] = len(g.tasks)
		g.tasks = append(g.tasks, t)
	}

	g.deps = make([][]int, len(g.tasks))
	g.dependents = make([][]int, len(g.tasks))
	for i, t := range g.tasks {
		for _, depName := range t.DependsOn {
			j := g.index[depName]
			g.deps[i] = append(g.deps[i], j)
			g.dependents[j] = append(g.dependents[j], i)
		}
	}

	for _, name := range roots {
		if i, ok := g.index[name]; ok {
			g.roots = append(g.roots, i)
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		names := make([]string, len(cycle))
		for i, id := range cycle {
			names[i] = g.tasks[id].Name
		}
		return nil, errors.NewCyclicDependencyError(names)
	}

	g.order = g.topologicalOrder()
	return g, nil
}

// collectReachable walks the declared dependencies from the roots and
// returns the set of task names in the closure. A dependency on an
// unregistered name is reported with the task that referenced it.
func collectReachable(reg *registry.Registry, roots []string) (map[string]bool, error) {
	reachable := make(map[string]bool)

	var visit func(name, referencedBy string) error
	visit = func(name, referencedBy string) error {
		if reachable[name] {
			return nil
		}
		if !reg.Has(name) {
			return errors.NewUnknownTaskError(name, referencedBy)
		}
		reachable[name] = true

		t, err := reg.Get(name)
		if err != nil {
			return err
		}
		for _, dep := range t.DependsOn {
			if err := visit(dep, name); err != nil {
				return err
			}
		}
		return nil
	}

	for _, name := range roots {
		if err := visit(name, ""); err != nil {
			return nil, err
		}
	}
	return reachable, nil
}

// Three-color depth-first marking: unvisited (white), in-progress (gray),
// done (black). A back-edge to a gray node identifies a cycle; the gray
// stack suffix starting at that node is the full cycle.
const (
	white = iota
	gray
	black
)

// findCycle returns the ordered ids forming a dependency cycle, or nil when
// the graph is acyclic.
func (g *Graph) findCycle() []int {
	color := make([]int, len(g.tasks))
	var stack []int
	var cycle []int

	var visit func(id int) bool
	visit = func(id int) bool {
		color[id] = gray
		stack = append(stack, id)

		for _, dep := range g.deps[id] {
			switch color[dep] {
			case gray:
				// Back edge: slice the stack from the first occurrence
				// of dep to recover the whole cycle in order.
				for i, v := range stack {
					if v == dep {
						cycle = append(cycle, stack[i:]...)
						return true
					}
				}
			case white:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for id := range g.tasks {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

// topologicalOrder produces a linearization with every task after all of its
// dependencies. Ties are broken by registration order (= arena id) using a
// priority queue, so repeated runs list tasks identically.
func (g *Graph) topologicalOrder() []int {
	remaining := make([]int, len(g.tasks))
	ready := priorityqueue.NewWith(utils.IntComparator)

	for i := range g.tasks {
		remaining[i] = len(g.deps[i])
		if remaining[i] == 0 {
			ready.Enqueue(i)
		}
	}

	order := make([]int, 0, len(g.tasks))
	for !ready.Empty() {
		v, _ := ready.Dequeue()
		id := v.(int)
		order = append(order, id)

		for _, dep := range g.dependents[id] {
			remaining[dep]--
			if remaining[dep] == 0 {
				ready.Enqueue(dep)
			}
		}
	}
	return order
}

// Len returns the number of tasks in the graph
func (g *Graph) Len() int {
	return len(g.tasks)
}

// Task returns the task stored at the given arena id
func (g *Graph) Task(id int) *registry.Task {
	return g.tasks[id]
}

// Index returns the arena id for a task name
func (g *Graph) Index(name string) (int, bool) {
	id, ok := g.index[name]
	return id, ok
}

// Deps returns the ids the given task depends on
func (g *Graph) Deps(id int) []int {
	return g.deps[id]
}

// Dependents returns the ids that depend on the given task
func (g *Graph) Dependents(id int) []int {
	return g.dependents[id]
}

// Roots returns the ids of the requested root tasks
func (g *Graph) Roots() []int {
	return g.roots
}

// Order returns the topological order as arena ids, dependencies first
func (g *Graph) Order() []int {
	return g.order
}

// OrderedNames returns the topological order as task names
func (g *Graph) OrderedNames() []string {
	names := make([]string, len(g.order))
	for i, id := range g.order {
		names[i] = g.tasks[id].Name
	}
	return names
}
