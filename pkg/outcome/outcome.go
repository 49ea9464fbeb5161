// Package outcome holds the records produced by completed sessions and the
// log that accumulates them for consensus analysis and optimizer evidence.
package outcome

import (
	"time"

	"github.com/zen-systems/helmsman/pkg/baseline"
)

// Names of the six consensus sub-scores.
const (
	ScoreOutcome       = "outcome"
	ScoreQuality       = "quality"
	ScoreRecalibration = "recalibration"
	ScoreCost          = "cost"
	ScoreProductivity  = "productivity"
	ScoreRouting       = "routing"
)

// SubtaskResult is the per-subtask execution evidence inside a session
// trace.
type SubtaskResult struct {
	SubtaskID      string        `json:"subtask_id"`
	Tier           baseline.Tier `json:"tier"`
	Success        bool          `json:"success"`
	DurationMillis int64         `json:"duration_ms"`
	CostUSD        float64       `json:"cost_usd"`
	Complexity     float64       `json:"complexity"`
	ReviewScore    float64       `json:"review_score,omitempty"`
	Reviewed       bool          `json:"reviewed,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// SessionOutcome is the immutable trace of one completed session. Partial
// marks traces where fewer subtasks reported than the plan expected.
type SessionOutcome struct {
	SessionID        string          `json:"session_id"`
	Query            string          `json:"query"`
	Tier             baseline.Tier   `json:"tier"`
	Topology         string          `json:"topology,omitempty"`
	Complexity       float64         `json:"complexity"`
	DQScore          float64         `json:"dq_score"`
	ExpectedSubtasks int             `json:"expected_subtasks"`
	Subtasks         []SubtaskResult `json:"subtasks"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
	Partial          bool            `json:"partial,omitempty"`
}

// Succeeded reports whether the full session completed with every subtask
// successful.
func (o *SessionOutcome) Succeeded() bool {
	if o.Partial || len(o.Subtasks) == 0 {
		return false
	}
	for _, s := range o.Subtasks {
		if !s.Success {
			return false
		}
	}
	return true
}

// SuccessRate is the fraction of recorded subtasks that succeeded.
func (o *SessionOutcome) SuccessRate() float64 {
	if len(o.Subtasks) == 0 {
		return 0
	}
	ok := 0
	for _, s := range o.Subtasks {
		if s.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(o.Subtasks))
}

// CostUSD is the total cost across recorded subtasks.
func (o *SessionOutcome) CostUSD() float64 {
	var sum float64
	for _, s := range o.Subtasks {
		sum += s.CostUSD
	}
	return sum
}

// Duration is the wall-clock span of the session.
func (o *SessionOutcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

func (o *SessionOutcome) clone() SessionOutcome {
	out := *o
	out.Subtasks = make([]SubtaskResult, len(o.Subtasks))
	copy(out.Subtasks, o.Subtasks)
	return out
}

// ConsensusResult is the synthesized multi-signal assessment of one
// session. Scores holds the six named sub-scores; Degraded marks analyses
// that ran over a partial trace.
type ConsensusResult struct {
	SessionID  string             `json:"session_id"`
	Scores     map[string]float64 `json:"scores"`
	Overall    float64            `json:"overall"`
	Confidence float64            `json:"confidence"`
	Degraded   bool               `json:"degraded,omitempty"`
	AnalyzedAt time.Time          `json:"analyzed_at"`
}

func (c *ConsensusResult) clone() *ConsensusResult {
	if c == nil {
		return nil
	}
	out := *c
	out.Scores = make(map[string]float64, len(c.Scores))
	for k, v := range c.Scores {
		out.Scores[k] = v
	}
	return &out
}
