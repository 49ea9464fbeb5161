// Package dq scores candidate routing decisions. Decision quality combines
// validity (is the tier's range right for the complexity), specificity (how
// close the complexity sits to the tier's optimal band), and correctness
// (historical success for similar routes), weighted per the active baseline.
package dq

import (
	"github.com/zen-systems/helmsman/pkg/baseline"
	"github.com/zen-systems/helmsman/pkg/complexity"
)

// Score holds the DQ components and their weighted overall value.
type Score struct {
	Validity    float64 `json:"validity"`
	Specificity float64 `json:"specificity"`
	Correctness float64 `json:"correctness"`
	Overall     float64 `json:"overall"`
}

// Candidate is one scored tier option.
type Candidate struct {
	Tier         baseline.Tier `json:"tier"`
	Model        string        `json:"model"`
	Score        Score         `json:"score"`
	InRange      bool          `json:"in_range"`
	CostEstimate float64       `json:"cost_estimate"`
}

// Decision is the routing decision produced for a query.
type Decision struct {
	Tier            baseline.Tier         `json:"tier"`
	Model           string                `json:"model"`
	Thinking        baseline.ThinkingTier `json:"thinking"`
	Score           Score                 `json:"score"`
	Complexity      *complexity.Result    `json:"complexity"`
	CostEstimate    float64               `json:"cost_estimate"`
	Candidates      []Candidate           `json:"candidates,omitempty"`
	Reasons         []string              `json:"reasons,omitempty"`
	BaselineVersion string                `json:"baseline_version"`
}
