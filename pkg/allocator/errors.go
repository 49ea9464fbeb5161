package allocator

import "fmt"

// InsufficientBudgetError reports a budget too small to guarantee every
// subtask at least one agent.
type InsufficientBudgetError struct {
	Budget   int
	Subtasks int
}

func (e *InsufficientBudgetError) Error() string {
	return fmt.Sprintf("allocator: budget %d cannot cover %d subtasks", e.Budget, e.Subtasks)
}

// ValidationError reports a subtask signal outside [0,1].
type ValidationError struct {
	SubtaskID string
	Field     string
	Value     float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("allocator: subtask %q %s out of range: %v", e.SubtaskID, e.Field, e.Value)
}
