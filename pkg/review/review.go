// Package review scores model outputs before they enter a session trace,
// flagging empty, hollow, and refusal content. A failing review gives the
// engine one repair attempt built from the recorded violations.
package review

import (
	"fmt"
	"strings"

	"github.com/zen-systems/helmsman/pkg/artifact"
)

// Violation severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// PassThreshold is the minimum score an output needs to pass review.
const PassThreshold = 0.6

// Score deductions per violation severity.
const (
	errorPenalty   = 0.5
	warningPenalty = 0.15
)

// Refusal patterns are only checked near the start of the output; a long
// answer that discusses limitations mid-text is not a refusal.
const refusalScanWindow = 160

var refusalMarkers = []string{
	"i cannot",
	"i can't",
	"i am unable",
	"i'm unable",
	"i won't be able",
	"as an ai",
}

var hollowMarkers = []string{
	"todo",
	"fixme",
	"not implemented",
	"placeholder",
	"implementation goes here",
	"left as an exercise",
	"fill in the",
}

const thinOutputChars = 20

// Violation describes one quality issue found in an output.
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Result is the outcome of reviewing one artifact. Score starts at 1.0
// and loses a fixed penalty per violation.
type Result struct {
	Passed     bool        `json:"passed"`
	Score      float64     `json:"score"`
	Violations []Violation `json:"violations,omitempty"`
}

// Check reviews the artifact content. An empty output scores zero; other
// violations deduct from a perfect score, and the result passes when the
// score stays at or above PassThreshold.
func Check(a *artifact.Artifact) *Result {
	content := strings.TrimSpace(a.Content)
	if content == "" {
		return &Result{
			Score: 0,
			Violations: []Violation{{
				Rule:     "empty_output",
				Severity: SeverityError,
				Message:  "output contains no content",
			}},
		}
	}

	var violations []Violation
	lower := strings.ToLower(content)

	head := lower
	if len(head) > refusalScanWindow {
		head = head[:refusalScanWindow]
	}
	for _, marker := range refusalMarkers {
		if strings.Contains(head, marker) {
			violations = append(violations, Violation{
				Rule:     "refusal",
				Severity: SeverityError,
				Message:  fmt.Sprintf("output opens with refusal marker %q", marker),
			})
			break
		}
	}

	for _, marker := range hollowMarkers {
		if strings.Contains(lower, marker) {
			violations = append(violations, Violation{
				Rule:     "hollow_content",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("output contains marker %q", marker),
			})
		}
	}

	if len(content) < thinOutputChars {
		violations = append(violations, Violation{
			Rule:     "thin_output",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("output is only %d characters", len(content)),
		})
	}

	score := 1.0
	for _, v := range violations {
		switch v.Severity {
		case SeverityError:
			score -= errorPenalty
		default:
			score -= warningPenalty
		}
	}
	if score < 0 {
		score = 0
	}

	return &Result{
		Passed:     score >= PassThreshold,
		Score:      score,
		Violations: violations,
	}
}

// Summary returns a short description of the review for trace errors,
// naming the rules that fired.
func (r *Result) Summary() string {
	if len(r.Violations) == 0 {
		return fmt.Sprintf("review score %.2f", r.Score)
	}
	rules := make([]string, 0, len(r.Violations))
	seen := make(map[string]bool)
	for _, v := range r.Violations {
		if !seen[v.Rule] {
			seen[v.Rule] = true
			rules = append(rules, v.Rule)
		}
	}
	return fmt.Sprintf("review score %.2f (%s)", r.Score, strings.Join(rules, ", "))
}
