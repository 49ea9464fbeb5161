package optimizer

import (
	"fmt"
	"strings"
	"time"
)

// Proposal lifecycle states.
const (
	StatusProposed   = "proposed"
	StatusValidated  = "validated"
	StatusApplied    = "applied"
	StatusStable     = "stable"
	StatusRolledBack = "rolled_back"
)

// Optimization families and the dotted parameter paths they may adjust.
const (
	FamilyTierRanges = "tier_ranges"

	ParamLightRangeMax    = "tiers.light.range_max"
	ParamStandardRangeMax = "tiers.standard.range_max"
)

// Families returns the optimization families in evaluation order.
func Families() []string {
	return []string{FamilyTierRanges}
}

// Window identifies the evidence a proposal was evaluated against.
type Window struct {
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Sessions int       `json:"sessions"`
}

// Delta is one proposed parameter change.
type Delta struct {
	Parameter string  `json:"parameter"`
	From      float64 `json:"from"`
	To        float64 `json:"to"`
}

// Proposal is a candidate baseline change moving through the lifecycle
// proposed -> validated -> applied -> stable, with rolled_back as the
// bail-out from applied. A proposal blocked at validation keeps status
// proposed and records the failed gate in BlockReason.
type Proposal struct {
	ID          string  `json:"id"`
	Family      string  `json:"family"`
	Window      Window  `json:"window"`
	Deltas      []Delta `json:"deltas,omitempty"`
	Confidence  float64 `json:"confidence"`
	Improvement float64 `json:"improvement"`
	Status      string  `json:"status"`
	BlockReason string  `json:"block_reason,omitempty"`

	// BaselineVersion is the version the evidence was evaluated against;
	// AppliedVersion is the version Apply published.
	BaselineVersion string `json:"baseline_version"`
	AppliedVersion  string `json:"applied_version,omitempty"`

	RollbackCause    string `json:"rollback_cause,omitempty"`
	TriggeringMetric string `json:"triggering_metric,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Report is the outcome of a what-if evaluation. A blocked report names
// the gate that would stop the proposal; nothing is recorded either way.
type Report struct {
	Family      string  `json:"family"`
	WouldApply  bool    `json:"would_apply"`
	BlockedBy   string  `json:"blocked_by,omitempty"`
	Confidence  float64 `json:"confidence"`
	Improvement float64 `json:"improvement"`
	Deltas      []Delta `json:"deltas,omitempty"`
}

func (p *Proposal) clone() *Proposal {
	if p == nil {
		return nil
	}
	out := *p
	out.Deltas = append([]Delta(nil), p.Deltas...)
	return &out
}

// blocksNew reports whether the proposal still occupies its family. A
// proposal blocked at validation is superseded by the next evaluation.
func (p *Proposal) blocksNew() bool {
	switch p.Status {
	case StatusValidated, StatusApplied:
		return true
	case StatusProposed:
		return p.BlockReason == ""
	}
	return false
}

func describeDeltas(deltas []Delta) string {
	parts := make([]string, len(deltas))
	for i, d := range deltas {
		parts[i] = fmt.Sprintf("%s %.3f -> %.3f", d.Parameter, d.From, d.To)
	}
	return strings.Join(parts, ", ")
}
