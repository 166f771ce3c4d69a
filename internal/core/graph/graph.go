// Package graph provides the dependency graph used to order package
// publications. This is part of the Functional Core - all functions are pure
// with no I/O.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// Graph Errors
// =============================================================================

var (
	// ErrCycle is returned when the dependency graph contains a cycle.
	ErrCycle = errors.New("dependency cycle detected")

	// ErrNodeOutOfRange is returned when an edge references a node index
	// that was never added.
	ErrNodeOutOfRange = errors.New("node index out of range")
)

// CycleError reports the nodes that participate in a dependency cycle.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected among: %s", strings.Join(e.Members, ", "))
}

func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// =============================================================================
// Graph
// =============================================================================

// Graph is a directed dependency graph over indexed nodes. An edge from A to
// B means A depends on B: B must be processed before A. Nodes are identified
// by the index they were added at, so ordering is provable without name
// lookups.
type Graph struct {
	names    []string
	edges    [][]int // edges[i] = indices that node i depends on
	incoming []int   // number of unprocessed dependencies per node
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// AddNode appends a node and returns its index. Declaration order is
// significant: it breaks ties during sorting.
func (g *Graph) AddNode(name string) int {
	g.names = append(g.names, name)
	g.edges = append(g.edges, nil)
	g.incoming = append(g.incoming, 0)
	return len(g.names) - 1
}

// AddEdge records that node from depends on node to. Duplicate edges are
// collapsed.
func (g *Graph) AddEdge(from, to int) error {
	if from < 0 || from >= len(g.names) {
		return fmt.Errorf("%w: %d", ErrNodeOutOfRange, from)
	}
	if to < 0 || to >= len(g.names) {
		return fmt.Errorf("%w: %d", ErrNodeOutOfRange, to)
	}
	for _, dep := range g.edges[from] {
		if dep == to {
			return nil
		}
	}
	g.edges[from] = append(g.edges[from], to)
	g.incoming[from]++
	return nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.names)
}

// Name returns the name of the node at index i.
func (g *Graph) Name(i int) string {
	return g.names[i]
}

// Dependencies returns the indices node i depends on.
func (g *Graph) Dependencies(i int) []int {
	return g.edges[i]
}

// =============================================================================
// Topological Sort
// =============================================================================

// Sort returns the node indices in dependency order using Kahn's algorithm:
// a node appears only after everything it depends on. Among nodes whose
// dependencies are all satisfied, declaration order wins, so the result is
// deterministic for identical input.
//
// Unlike a best-effort sort there is no fallback: a cycle fails the whole
// ordering with a CycleError naming the members, and no partial order is
// returned.
func (g *Graph) Sort() ([]int, error) {
	n := len(g.names)

	// Invert edges: dependents[j] = nodes that depend on j.
	dependents := make([][]int, n)
	remaining := make([]int, n)
	copy(remaining, g.incoming)
	for i, deps := range g.edges {
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], i)
		}
	}

	// Ready nodes are kept sorted by index so declaration order breaks ties.
	var ready []int
	for i := 0; i < n; i++ {
		if remaining[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, n)
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, i)

		released := false
		for _, dep := range dependents[i] {
			remaining[dep]--
			if remaining[dep] == 0 {
				ready = append(ready, dep)
				released = true
			}
		}
		if released {
			sort.Ints(ready)
		}
	}

	if len(order) < n {
		var members []string
		for i := 0; i < n; i++ {
			if remaining[i] > 0 {
				members = append(members, g.names[i])
			}
		}
		return nil, &CycleError{Members: members}
	}

	return order, nil
}
