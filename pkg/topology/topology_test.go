package topology

import (
	"errors"
	"reflect"
	"testing"

	"github.com/zen-systems/helmsman/pkg/baseline"
)

func nodes(ids ...string) []Node {
	out := make([]Node, len(ids))
	for i, id := range ids {
		out[i] = Node{ID: id, Complexity: 0.5}
	}
	return out
}

func TestParallelWhenNoEdges(t *testing.T) {
	g := Graph{Nodes: nodes("a", "b", "c")}
	plan, err := Select(g, 0.5)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if plan.Type != Parallel {
		t.Fatalf("expected parallel, got %s", plan.Type)
	}
	want := [][]string{{"a", "b", "c"}}
	if !reflect.DeepEqual(plan.Layers, want) {
		t.Fatalf("layers %v, want %v", plan.Layers, want)
	}
}

func TestSequentialChain(t *testing.T) {
	g := Graph{
		Nodes: nodes("a", "b", "c", "d"),
		Edges: []Edge{{"a", "b"}, {"b", "c"}, {"c", "d"}},
	}
	plan, err := Select(g, 0.5)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if plan.Type != Sequential {
		t.Fatalf("expected sequential, got %s", plan.Type)
	}
	want := [][]string{{"a"}, {"b"}, {"c"}, {"d"}}
	if !reflect.DeepEqual(plan.Layers, want) {
		t.Fatalf("layers %v, want %v", plan.Layers, want)
	}
}

func TestHighComplexityForcesHierarchical(t *testing.T) {
	cases := []struct {
		name  string
		graph Graph
	}{
		{"no edges", Graph{Nodes: nodes("a", "b")}},
		{"chain", Graph{Nodes: nodes("a", "b"), Edges: []Edge{{"a", "b"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := Select(tc.graph, 0.95)
			if err != nil {
				t.Fatalf("select: %v", err)
			}
			if plan.Type != Hierarchical {
				t.Fatalf("expected hierarchical, got %s", plan.Type)
			}
			if plan.Supervisor != baseline.TierPremium {
				t.Fatalf("expected premium supervisor, got %s", plan.Supervisor)
			}
		})
	}
}

func TestNodeComplexityCountsTowardHierarchical(t *testing.T) {
	g := Graph{Nodes: []Node{{ID: "a", Complexity: 0.95}, {ID: "b", Complexity: 0.2}}}
	plan, err := Select(g, 0.3)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if plan.Type != Hierarchical {
		t.Fatalf("expected hierarchical from node complexity, got %s", plan.Type)
	}
}

func TestHierarchicalThresholdIsStrict(t *testing.T) {
	g := Graph{
		Nodes: []Node{{ID: "a", Complexity: 0.9}, {ID: "b", Complexity: 0.9}},
		Edges: []Edge{{"a", "b"}},
	}
	plan, err := Select(g, 0.9)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if plan.Type != Sequential {
		t.Fatalf("complexity 0.9 must not trigger supervision, got %s", plan.Type)
	}
}

func TestDiamondIsHybrid(t *testing.T) {
	g := Graph{
		Nodes: nodes("a", "b", "c", "d"),
		Edges: []Edge{{"a", "c"}, {"a", "d"}, {"b", "c"}, {"b", "d"}},
	}
	plan, err := Select(g, 0.5)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if plan.Type != Hybrid {
		t.Fatalf("expected hybrid, got %s", plan.Type)
	}
	want := [][]string{{"a", "b"}, {"c", "d"}}
	if !reflect.DeepEqual(plan.Layers, want) {
		t.Fatalf("layers %v, want %v", plan.Layers, want)
	}
}

func TestFanOutFanInLayers(t *testing.T) {
	g := Graph{
		Nodes: nodes("a", "b", "c", "d"),
		Edges: []Edge{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}},
	}
	plan, err := Select(g, 0.5)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if plan.Type != Hybrid {
		t.Fatalf("expected hybrid, got %s", plan.Type)
	}
	want := [][]string{{"a"}, {"b", "c"}, {"d"}}
	if !reflect.DeepEqual(plan.Layers, want) {
		t.Fatalf("layers %v, want %v", plan.Layers, want)
	}
}

func TestDisconnectedComponentsShareLayers(t *testing.T) {
	g := Graph{
		Nodes: nodes("a", "b", "c", "d"),
		Edges: []Edge{{"a", "b"}, {"c", "d"}},
	}
	plan, err := Select(g, 0.5)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if plan.Type != Hybrid {
		t.Fatalf("expected hybrid, got %s", plan.Type)
	}
	want := [][]string{{"a", "c"}, {"b", "d"}}
	if !reflect.DeepEqual(plan.Layers, want) {
		t.Fatalf("layers %v, want %v", plan.Layers, want)
	}
}

func TestCycleDetected(t *testing.T) {
	g := Graph{
		Nodes: nodes("a", "b", "c"),
		Edges: []Edge{{"a", "b"}, {"b", "c"}, {"c", "a"}},
	}
	_, err := Select(g, 0.5)
	var cycErr *CyclicDependencyError
	if !errors.As(err, &cycErr) {
		t.Fatalf("expected CyclicDependencyError, got %v", err)
	}
	switch cycErr.Node {
	case "a", "b", "c":
	default:
		t.Fatalf("cycle member %q not in graph", cycErr.Node)
	}
}

func TestPartialCycleNamesMember(t *testing.T) {
	g := Graph{
		Nodes: nodes("a", "b", "c"),
		Edges: []Edge{{"a", "b"}, {"b", "c"}, {"c", "b"}},
	}
	_, err := Select(g, 0.5)
	var cycErr *CyclicDependencyError
	if !errors.As(err, &cycErr) {
		t.Fatalf("expected CyclicDependencyError, got %v", err)
	}
	if cycErr.Node != "b" && cycErr.Node != "c" {
		t.Fatalf("node %q is not on the cycle", cycErr.Node)
	}
}

func TestValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		graph   Graph
		overall float64
	}{
		{"empty graph", Graph{}, 0.5},
		{"unknown edge target", Graph{Nodes: nodes("a"), Edges: []Edge{{"a", "zz"}}}, 0.5},
		{"unknown edge source", Graph{Nodes: nodes("a"), Edges: []Edge{{"zz", "a"}}}, 0.5},
		{"duplicate node", Graph{Nodes: nodes("a", "a")}, 0.5},
		{"node complexity out of range", Graph{Nodes: []Node{{ID: "a", Complexity: 1.5}}}, 0.5},
		{"overall out of range", Graph{Nodes: nodes("a")}, 1.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Select(tc.graph, tc.overall)
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestBranchingChainLengthIsNotSequential(t *testing.T) {
	// n-1 edges but a branch: must classify as hybrid, not sequential.
	g := Graph{
		Nodes: nodes("a", "b", "c"),
		Edges: []Edge{{"a", "b"}, {"a", "c"}},
	}
	plan, err := Select(g, 0.5)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if plan.Type != Hybrid {
		t.Fatalf("expected hybrid, got %s", plan.Type)
	}
}
