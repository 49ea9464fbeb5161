package consensus

import "fmt"

// ConfigError reports malformed synthesis weights.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("consensus: %s: %s", e.Field, e.Reason)
}

// ValidationError reports malformed session evidence.
type ValidationError struct {
	SessionID string
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("consensus: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("consensus: session %q: %s: %s", e.SessionID, e.Field, e.Reason)
}

// PartialTraceError records an incomplete trace. It degrades confidence
// rather than failing the analysis.
type PartialTraceError struct {
	SessionID string
	Expected  int
	Recorded  int
}

func (e *PartialTraceError) Error() string {
	return fmt.Sprintf("consensus: session %q reported %d of %d subtasks", e.SessionID, e.Recorded, e.Expected)
}
