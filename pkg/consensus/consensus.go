// Package consensus scores completed sessions with six independent
// analyses and synthesizes them into one weighted assessment with a
// confidence derived from how much the analyses agree.
package consensus

import (
	"math"
	"time"

	"github.com/zen-systems/helmsman/pkg/baseline"
	"github.com/zen-systems/helmsman/pkg/outcome"
)

// weightTolerance bounds the acceptable drift of the weight sum from 1.0.
const weightTolerance = 1e-9

// Token counts assumed when estimating what a subtask should have cost.
const (
	referenceInputTokens  = 100
	referenceOutputTokens = 500
)

// Reference durations a session of a given complexity is expected to
// stay within.
const (
	highComplexityBudget   = 600 * time.Second
	mediumComplexityBudget = 300 * time.Second
	lowComplexityBudget    = 120 * time.Second
)

// DefaultWeights returns the synthesis weights. Outcome achievement
// dominates, routing quality second because it feeds the optimizer.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		outcome.ScoreOutcome:       0.30,
		outcome.ScoreQuality:       0.15,
		outcome.ScoreRecalibration: 0.10,
		outcome.ScoreCost:          0.15,
		outcome.ScoreProductivity:  0.10,
		outcome.ScoreRouting:       0.20,
	}
}

// scorers maps each analysis name to its pure scoring function, in the
// order sub-scores are reported.
var scorers = []struct {
	name string
	fn   func(*Analyzer, *outcome.SessionOutcome) float64
}{
	{outcome.ScoreOutcome, (*Analyzer).scoreOutcome},
	{outcome.ScoreQuality, (*Analyzer).scoreQuality},
	{outcome.ScoreRecalibration, (*Analyzer).scoreRecalibration},
	{outcome.ScoreCost, (*Analyzer).scoreCost},
	{outcome.ScoreProductivity, (*Analyzer).scoreProductivity},
	{outcome.ScoreRouting, (*Analyzer).scoreRouting},
}

// Analyzer runs the six analyses against a validated baseline.
type Analyzer struct {
	baseline *baseline.Baseline
	weights  map[string]float64
	logf     func(format string, args ...any)
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithWeights overrides the synthesis weights. The map must cover the six
// analysis names and sum to 1.
func WithWeights(w map[string]float64) AnalyzerOption {
	return func(a *Analyzer) {
		a.weights = w
	}
}

// WithLogger sets the logger for degraded-trace notices.
func WithLogger(logf func(format string, args ...any)) AnalyzerOption {
	return func(a *Analyzer) {
		a.logf = logf
	}
}

// NewAnalyzer validates the baseline and weights.
func NewAnalyzer(b *baseline.Baseline, opts ...AnalyzerOption) (*Analyzer, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	a := &Analyzer{
		baseline: b.Clone(),
		weights:  DefaultWeights(),
		logf:     func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(a)
	}

	var sum float64
	for _, s := range scorers {
		w, ok := a.weights[s.name]
		if !ok {
			return nil, &ConfigError{Field: "weights." + s.name, Reason: "missing"}
		}
		if w < 0 || w > 1 {
			return nil, &ConfigError{Field: "weights." + s.name, Reason: "outside [0,1]"}
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return nil, &ConfigError{Field: "weights", Reason: "must sum to 1.0"}
	}
	return a, nil
}

// Analyze scores one completed session. Partial traces degrade coverage
// and set the Degraded flag instead of failing; genuinely malformed
// evidence (negative cost or duration, out-of-range complexity) returns
// ValidationError.
func (a *Analyzer) Analyze(o *outcome.SessionOutcome) (*outcome.ConsensusResult, error) {
	if err := a.validateEvidence(o); err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(scorers))
	values := make([]float64, 0, len(scorers))
	overall := 0.0
	for _, s := range scorers {
		v := clamp01(s.fn(a, o))
		scores[s.name] = v
		values = append(values, v)
		overall += a.weights[s.name] * v
	}

	coverage := a.coverage(o)
	confidence := clamp01(1-2*stddev(values)) * coverage
	degraded := coverage < 1 || o.Partial
	if degraded {
		missing := o.ExpectedSubtasks - len(o.Subtasks)
		if missing < 0 {
			missing = 0
		}
		err := &PartialTraceError{SessionID: o.SessionID, Expected: o.ExpectedSubtasks, Recorded: len(o.Subtasks)}
		a.logf("consensus: degraded analysis (%d subtasks missing): %v", missing, err)
	}

	return &outcome.ConsensusResult{
		SessionID:  o.SessionID,
		Scores:     scores,
		Overall:    overall,
		Confidence: confidence,
		Degraded:   degraded,
		AnalyzedAt: time.Now().UTC(),
	}, nil
}

func (a *Analyzer) validateEvidence(o *outcome.SessionOutcome) error {
	if o == nil || o.SessionID == "" {
		return &ValidationError{Field: "session_id", Reason: "missing"}
	}
	if o.Complexity < 0 || o.Complexity > 1 {
		return &ValidationError{SessionID: o.SessionID, Field: "complexity", Reason: "outside [0,1]"}
	}
	if !o.FinishedAt.IsZero() && !o.StartedAt.IsZero() && o.FinishedAt.Before(o.StartedAt) {
		return &ValidationError{SessionID: o.SessionID, Field: "finished_at", Reason: "before started_at"}
	}
	for _, s := range o.Subtasks {
		if s.CostUSD < 0 {
			return &ValidationError{SessionID: o.SessionID, Field: "subtask " + s.SubtaskID + " cost", Reason: "negative"}
		}
		if s.DurationMillis < 0 {
			return &ValidationError{SessionID: o.SessionID, Field: "subtask " + s.SubtaskID + " duration", Reason: "negative"}
		}
	}
	return nil
}

// coverage is the fraction of planned subtasks that reported back.
func (a *Analyzer) coverage(o *outcome.SessionOutcome) float64 {
	if o.ExpectedSubtasks <= 0 {
		return 1
	}
	c := float64(len(o.Subtasks)) / float64(o.ExpectedSubtasks)
	if c > 1 {
		return 1
	}
	return c
}

// scoreOutcome measures goal achievement: successes over planned
// subtasks, so missing subtasks count as failures.
func (a *Analyzer) scoreOutcome(o *outcome.SessionOutcome) float64 {
	expected := o.ExpectedSubtasks
	if len(o.Subtasks) > expected {
		expected = len(o.Subtasks)
	}
	if expected == 0 {
		return 0
	}
	ok := 0
	for _, s := range o.Subtasks {
		if s.Success {
			ok++
		}
	}
	return float64(ok) / float64(expected)
}

// scoreQuality averages the review signal over reviewed subtasks, neutral
// when nothing was reviewed.
func (a *Analyzer) scoreQuality(o *outcome.SessionOutcome) float64 {
	var sum float64
	n := 0
	for _, s := range o.Subtasks {
		if s.Reviewed {
			sum += s.ReviewScore
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}

// scoreRecalibration compares the pre-execution complexity estimate with
// what the trace suggests the work actually was.
func (a *Analyzer) scoreRecalibration(o *outcome.SessionOutcome) float64 {
	return 1 - math.Abs(a.observedComplexity(o)-o.Complexity)
}

// observedComplexity estimates post-hoc complexity from trace size and
// wall-clock time.
func (a *Analyzer) observedComplexity(o *outcome.SessionOutcome) float64 {
	n := len(o.Subtasks)
	d := o.Duration()
	switch {
	case n > 8 || d > 10*time.Minute:
		return 0.8
	case n > 3 || d > 3*time.Minute:
		return 0.5
	default:
		return 0.3
	}
}

// scoreCost compares actual spend with what the routed tiers price the
// work at; overruns scale the score down proportionally.
func (a *Analyzer) scoreCost(o *outcome.SessionOutcome) float64 {
	var expected float64
	for _, s := range o.Subtasks {
		cfg, ok := a.baseline.Tiers[a.tierOf(s, o)]
		if !ok {
			continue
		}
		expected += float64(referenceInputTokens)/1e6*cfg.Pricing.InputPerMTok +
			float64(referenceOutputTokens)/1e6*cfg.Pricing.OutputPerMTok
	}
	actual := o.CostUSD()
	if actual <= expected || actual == 0 {
		return 1
	}
	return clamp01(expected / actual)
}

// scoreProductivity compares wall-clock time with the budget a session of
// this complexity warrants.
func (a *Analyzer) scoreProductivity(o *outcome.SessionOutcome) float64 {
	var budget time.Duration
	switch {
	case o.Complexity > 0.7:
		budget = highComplexityBudget
	case o.Complexity > 0.3:
		budget = mediumComplexityBudget
	default:
		budget = lowComplexityBudget
	}
	actual := o.Duration()
	if actual <= budget || actual <= 0 {
		return 1
	}
	return clamp01(budget.Seconds() / actual.Seconds())
}

// scoreRouting checks whether the routed tier matches the post-hoc ideal:
// full credit at a match, half per tier of distance.
func (a *Analyzer) scoreRouting(o *outcome.SessionOutcome) float64 {
	ideal := a.idealTier(a.observedComplexity(o))
	dist := o.Tier.Index() - ideal.Index()
	if dist < 0 {
		dist = -dist
	}
	return 1 - 0.5*float64(dist)
}

// idealTier is the cheapest tier whose range covers the observed
// complexity.
func (a *Analyzer) idealTier(c float64) baseline.Tier {
	for _, tier := range baseline.Tiers() {
		if c <= a.baseline.Tiers[tier].RangeMax {
			return tier
		}
	}
	return baseline.TierPremium
}

func (a *Analyzer) tierOf(s outcome.SubtaskResult, o *outcome.SessionOutcome) baseline.Tier {
	if _, ok := a.baseline.Tiers[s.Tier]; ok {
		return s.Tier
	}
	return o.Tier
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
