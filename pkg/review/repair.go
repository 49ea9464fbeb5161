package review

import (
	"fmt"
	"strings"

	"github.com/zen-systems/helmsman/pkg/artifact"
)

// RepairPrompt builds a prompt asking the model to fix a failed review,
// quoting the original output and the violations found.
func RepairPrompt(original *artifact.Artifact, r *Result) string {
	var sb strings.Builder

	sb.WriteString("The following output failed quality checks:\n\n")
	sb.WriteString("---\n")
	sb.WriteString(original.Content)
	sb.WriteString("\n---\n\n")

	sb.WriteString("Issues found:\n")
	for _, v := range r.Violations {
		sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", v.Severity, v.Rule, v.Message))
	}

	sb.WriteString("\nOriginal task:\n")
	sb.WriteString(original.Prompt)
	sb.WriteString("\n\nFix all issues and provide the complete corrected output.")

	return sb.String()
}
