package optimizer

import "fmt"

// Evidence gates named by InsufficientEvidenceError.
const (
	GateSessions = "sessions"
	GateWindow   = "window"
)

// InsufficientEvidenceError reports that an evidence gate blocked an
// evaluation.
type InsufficientEvidenceError struct {
	Gate   string
	Detail string
}

func (e *InsufficientEvidenceError) Error() string {
	return fmt.Sprintf("insufficient evidence (%s gate): %s", e.Gate, e.Detail)
}

// ValidationError reports a proposal that can no longer be applied.
type ValidationError struct {
	ProposalID string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("proposal %s: %s", e.ProposalID, e.Reason)
}
