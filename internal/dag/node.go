// Package dag implements the spec's DAG & Scheduler component: a generic
// dependency graph with deterministic topological ordering, cycle
// detection, and a priority scheduler that hands out ready nodes by
// longest-remaining-path cost. It is grounded on the teacher's
// internal/component (Components.Sort/Filter/CycleCheck,
// ThreadSafeComponents) and internal/queue (NewQueue/Entries ordering)
// packages, generalized from Terragrunt's unit/stack graph to an arbitrary
// named, typed work item.
package dag

import (
	"fmt"
	"sort"
	"sync"

	"github.com/foundryhq/foundry/internal/buildutil"
)

// Node is anything that can sit in the graph: a compile unit, a
// sub-project, or a test suite. ID must be stable and unique within a
// single Graph.
type Node interface {
	ID() string
}

// Graph is a set of nodes plus their declared dependency edges. Dependency
// order is preserved per node (AddDependency appends), which is what makes
// Sort's tie-breaking deterministic: when two nodes have the same
// dependency depth, the one declared first in the graph sorts first.
type Graph[T Node] struct {
	mu     sync.Mutex
	nodes  map[string]T
	order  []string // insertion order, for stable depth ties
	deps   map[string][]string
	rdeps  map[string][]string // reverse edges, for path-cost computation
}

// NewGraph returns an empty graph.
func NewGraph[T Node]() *Graph[T] {
	return &Graph[T]{
		nodes: make(map[string]T),
		deps:  make(map[string][]string),
		rdeps: make(map[string][]string),
	}
}

// AddNode registers n, a no-op if a node with the same ID is already
// present (the existing node is kept, matching
// ThreadSafeComponents.EnsureComponent's dedup-by-path behavior).
func (g *Graph[T]) AddNode(n T) (added bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := n.ID()
	if _, ok := g.nodes[id]; ok {
		return false
	}
	g.nodes[id] = n
	g.order = append(g.order, id)
	return true
}

// AddDependency records that from depends on to; both must already be
// registered via AddNode.
func (g *Graph[T]) AddDependency(from, to T) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	fromID, toID := from.ID(), to.ID()
	if _, ok := g.nodes[fromID]; !ok {
		return buildutil.New(buildutil.KindSetup, "unknown graph node %q", fromID)
	}
	if _, ok := g.nodes[toID]; !ok {
		return buildutil.New(buildutil.KindSetup, "unknown graph node %q", toID)
	}
	g.deps[fromID] = append(g.deps[fromID], toID)
	g.rdeps[toID] = append(g.rdeps[toID], fromID)
	return nil
}

// Dependencies returns the IDs from directly depends on, in declaration
// order.
func (g *Graph[T]) Dependencies(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.deps[id]...)
}

// Node looks up a node by ID.
func (g *Graph[T]) Node(id string) (T, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Len reports the number of nodes in the graph.
func (g *Graph[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.order)
}

// CycleCheck reports an error naming one node on a cycle, if any exists.
func (g *Graph[T]) CycleCheck() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.order))
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, dep := range g.deps[id] {
			switch color[dep] {
			case gray:
				return buildutil.New(buildutil.KindSetup, "cycle detected at %q", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, id := range g.order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Sort returns every node in a deterministic topological order: nodes at
// lower dependency depth come first, and nodes at equal depth come in the
// order they were declared (AddNode order), mirroring
// internal/queue.NewQueue's alphabetical-front / dependency-level ordering,
// generalized from alphabetical to declaration order since Node has no
// notion of a display name.
func (g *Graph[T]) Sort() ([]T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.cycleCheckLocked(); err != nil {
		return nil, err
	}

	depth := make(map[string]int, len(g.order))
	var depthOf func(id string) int
	depthOf = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		depth[id] = 0 // break recursion defensively; CycleCheck already ran
		max := -1
		for _, dep := range g.deps[id] {
			if d := depthOf(dep); d > max {
				max = d
			}
		}
		depth[id] = max + 1
		return depth[id]
	}
	for _, id := range g.order {
		depthOf(id)
	}

	ordered := append([]string(nil), g.order...)
	sort.SliceStable(ordered, func(i, j int) bool { return depth[ordered[i]] < depth[ordered[j]] })

	out := make([]T, len(ordered))
	for i, id := range ordered {
		out[i] = g.nodes[id]
	}
	return out, nil
}

func (g *Graph[T]) cycleCheckLocked() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.order))
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, dep := range g.deps[id] {
			switch color[dep] {
			case gray:
				return buildutil.New(buildutil.KindSetup, "cycle detected at %q", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, id := range g.order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// PathCost computes, for every node, the length of the longest dependency
// chain rooted at that node (a node with no dependents costs 0). The
// scheduler uses this to prioritize nodes that unblock the most work.
func (g *Graph[T]) PathCost() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cost := make(map[string]int, len(g.order))
	var costOf func(id string) int
	costOf = func(id string) int {
		if c, ok := cost[id]; ok {
			return c
		}
		cost[id] = 0
		max := 0
		for _, dependent := range g.rdeps[id] {
			if c := costOf(dependent) + 1; c > max {
				max = c
			}
		}
		cost[id] = max
		return max
	}
	for _, id := range g.order {
		costOf(id)
	}
	return cost
}

func (g *Graph[T]) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("dag.Graph{nodes:%d}", len(g.order))
}
