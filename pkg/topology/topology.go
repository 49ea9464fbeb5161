// Package topology classifies a subtask dependency graph into an execution
// shape: parallel, sequential, hybrid layering, or hierarchical with a
// supervisor.
package topology

import (
	"fmt"
	"sort"

	"github.com/zen-systems/helmsman/pkg/baseline"
)

// Above this effective complexity the plan gets a supervisor regardless of
// graph shape.
const hierarchicalThreshold = 0.9

// Type is the coordination shape chosen for a graph.
type Type string

const (
	Parallel     Type = "parallel"
	Sequential   Type = "sequential"
	Hybrid       Type = "hybrid"
	Hierarchical Type = "hierarchical"
)

// Node is one subtask in a dependency graph.
type Node struct {
	ID         string  `json:"id"`
	Complexity float64 `json:"complexity"`
}

// Edge records that From must complete before To starts.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is a subtask dependency graph. Edges form a DAG; cycles are
// rejected at selection time.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Plan is the selected execution topology. Layers are executed in order;
// nodes within a layer run in parallel. A sequential plan is a chain of
// single-node layers. Supervisor names the tier overseeing the workers and
// is set only for hierarchical plans.
type Plan struct {
	Type       Type          `json:"type"`
	Layers     [][]string    `json:"layers"`
	Supervisor baseline.Tier `json:"supervisor,omitempty"`
	Reason     string        `json:"reason"`
}

// Select classifies the graph. Decision order, first match wins:
// effective complexity above 0.9 → hierarchical; no edges → parallel;
// a single total order → sequential; anything else → hybrid layering.
// Effective complexity is the larger of overall and the highest node
// complexity. The graph must be acyclic and every edge endpoint known.
func Select(g Graph, overall float64) (*Plan, error) {
	if len(g.Nodes) == 0 {
		return nil, &ValidationError{Reason: "graph has no nodes"}
	}
	if overall < 0 || overall > 1 {
		return nil, &ValidationError{Reason: fmt.Sprintf("overall complexity out of range: %v", overall)}
	}

	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.ID == "" {
			return nil, &ValidationError{Reason: "node with empty id"}
		}
		if _, dup := index[n.ID]; dup {
			return nil, &ValidationError{Node: n.ID, Reason: "duplicate node id"}
		}
		if n.Complexity < 0 || n.Complexity > 1 {
			return nil, &ValidationError{Node: n.ID, Reason: fmt.Sprintf("complexity out of range: %v", n.Complexity)}
		}
		index[n.ID] = i
	}
	for _, e := range g.Edges {
		if _, ok := index[e.From]; !ok {
			return nil, &ValidationError{Node: e.From, Reason: "edge references unknown node"}
		}
		if _, ok := index[e.To]; !ok {
			return nil, &ValidationError{Node: e.To, Reason: "edge references unknown node"}
		}
	}

	layers, err := layer(g, index)
	if err != nil {
		return nil, err
	}

	effective := overall
	for _, n := range g.Nodes {
		if n.Complexity > effective {
			effective = n.Complexity
		}
	}

	switch {
	case effective > hierarchicalThreshold:
		return &Plan{
			Type:       Hierarchical,
			Layers:     layers,
			Supervisor: baseline.TierPremium,
			Reason:     fmt.Sprintf("effective complexity %.2f needs supervision", effective),
		}, nil
	case len(g.Edges) == 0:
		return &Plan{
			Type:   Parallel,
			Layers: layers,
			Reason: fmt.Sprintf("no dependencies between %d subtasks", len(g.Nodes)),
		}, nil
	case isChain(g):
		return &Plan{
			Type:   Sequential,
			Layers: layers,
			Reason: "single dependency chain",
		}, nil
	default:
		return &Plan{
			Type:   Hybrid,
			Layers: layers,
			Reason: fmt.Sprintf("partial order with %d layers", len(layers)),
		}, nil
	}
}

// isChain reports whether the graph is one total order: n-1 edges with
// every node having at most one predecessor and one successor. Combined
// with acyclicity this forces a single connected path.
func isChain(g Graph) bool {
	if len(g.Edges) != len(g.Nodes)-1 {
		return false
	}
	in := make(map[string]int, len(g.Nodes))
	out := make(map[string]int, len(g.Nodes))
	for _, e := range g.Edges {
		out[e.From]++
		in[e.To]++
		if out[e.From] > 1 || in[e.To] > 1 {
			return false
		}
	}
	return true
}

// layer runs Kahn's algorithm, returning topological layers with nodes
// inside each layer ordered by their position in the input. A cycle
// surfaces as CyclicDependencyError naming one node on it.
func layer(g Graph, index map[string]int) ([][]string, error) {
	indeg := make(map[string]int, len(g.Nodes))
	children := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		indeg[n.ID] = 0
	}
	for _, e := range g.Edges {
		children[e.From] = append(children[e.From], e.To)
		indeg[e.To]++
	}

	var current []string
	for _, n := range g.Nodes {
		if indeg[n.ID] == 0 {
			current = append(current, n.ID)
		}
	}

	var layers [][]string
	processed := 0
	for len(current) > 0 {
		sort.Slice(current, func(a, b int) bool {
			return index[current[a]] < index[current[b]]
		})
		layers = append(layers, current)
		processed += len(current)

		var next []string
		for _, id := range current {
			for _, child := range children[id] {
				indeg[child]--
				if indeg[child] == 0 {
					next = append(next, child)
				}
			}
		}
		current = next
	}

	if processed < len(g.Nodes) {
		return nil, &CyclicDependencyError{Node: cycleMember(g, indeg)}
	}
	return layers, nil
}

// cycleMember walks backwards through unprocessed nodes until one repeats.
// Every unprocessed node has an unprocessed parent, so the walk must
// enter the cycle.
func cycleMember(g Graph, indeg map[string]int) string {
	remaining := func(id string) bool { return indeg[id] > 0 }

	start := ""
	for _, n := range g.Nodes {
		if remaining(n.ID) {
			start = n.ID
			break
		}
	}

	seen := make(map[string]bool)
	cur := start
	for !seen[cur] {
		seen[cur] = true
		for _, e := range g.Edges {
			if e.To == cur && remaining(e.From) {
				cur = e.From
				break
			}
		}
	}
	return cur
}
