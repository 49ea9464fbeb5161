package topology

import "fmt"

// CyclicDependencyError reports a dependency cycle; Node lies on it.
type CyclicDependencyError struct {
	Node string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("topology: dependency cycle through %q", e.Node)
}

// ValidationError reports a malformed graph.
type ValidationError struct {
	Node   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Node == "" {
		return "topology: " + e.Reason
	}
	return fmt.Sprintf("topology: node %q: %s", e.Node, e.Reason)
}
