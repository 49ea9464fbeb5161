package outcome

import "fmt"

// DuplicateSessionError reports an append for an already stored session.
type DuplicateSessionError struct {
	SessionID string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("outcome: session %q already recorded", e.SessionID)
}

// NotFoundError reports a lookup for an unknown session.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("outcome: session %q not found", e.SessionID)
}
