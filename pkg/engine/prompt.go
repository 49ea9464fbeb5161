package engine

import (
	"fmt"
	"strings"

	"github.com/zen-systems/helmsman/pkg/allocator"
	"github.com/zen-systems/helmsman/pkg/outcome"
)

// maxContextChars bounds how much upstream output is quoted back into a
// dependent prompt.
const maxContextChars = 2000

// subtaskPrompt frames one subtask for the model: the task itself,
// any upstream output it depends on, and the overall session goal.
func subtaskPrompt(query string, sub allocator.Subtask, context string) string {
	task := sub.Description
	if task == "" {
		task = sub.ID
	}

	var b strings.Builder
	b.WriteString("Complete the following task:\n\n")
	b.WriteString(task)
	b.WriteString("\n")
	if context != "" {
		b.WriteString("\nOutput from earlier steps:\n\n")
		b.WriteString(truncate(context, maxContextChars))
		b.WriteString("\n")
	}
	b.WriteString("\nOverall goal: ")
	b.WriteString(query)
	b.WriteString("\n")
	return b.String()
}

// supervisorPrompt asks the supervisor tier to synthesize the worker
// outputs into a single answer, flagging workers that failed.
func supervisorPrompt(query string, order []string, outputs map[string]string, worker []outcome.SubtaskResult) string {
	var b strings.Builder
	b.WriteString("Synthesize the results below into a single coherent answer.\n\n")
	b.WriteString("Goal: ")
	b.WriteString(query)
	b.WriteString("\n")

	for _, id := range order {
		out, ok := outputs[id]
		if !ok {
			continue
		}
		b.WriteString("\n")
		b.WriteString(formatStep(id, truncate(out, maxContextChars)))
		b.WriteString("\n")
	}

	var failed []string
	for _, res := range worker {
		if !res.Success {
			failed = append(failed, fmt.Sprintf("%s (%s)", res.SubtaskID, res.Error))
		}
	}
	if len(failed) > 0 {
		b.WriteString("\nThese subtasks produced no usable output: ")
		b.WriteString(strings.Join(failed, ", "))
		b.WriteString(". Work with what is available and note the gaps.\n")
	}

	b.WriteString("\nProvide the complete synthesized answer.\n")
	return b.String()
}

func formatStep(id, out string) string {
	return fmt.Sprintf("### %s\n%s", id, out)
}

func joinSteps(parts []string) string {
	return strings.Join(parts, "\n\n")
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "\n[truncated]"
}
