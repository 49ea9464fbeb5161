package baseline

import "fmt"

// ConfigError reports a malformed or inconsistent baseline configuration,
// such as weights not summing to 1.0 or non-monotonic tier thresholds.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("baseline config %s: %s", e.Field, e.Reason)
}

// VersionNotFoundError is returned by stores when a requested version does not exist.
type VersionNotFoundError struct {
	Version string
}

// Error implements the error interface.
func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("baseline version %s not found", e.Version)
}
