package dq

import (
	"fmt"
	"sort"

	"github.com/zen-systems/helmsman/pkg/baseline"
	"github.com/zen-systems/helmsman/pkg/complexity"
)

// HistoryProvider reports past routing outcomes for similar queries. The
// outcome log implements it; scoring works without one.
type HistoryProvider interface {
	// SuccessRate returns the observed success rate for past sessions routed
	// to tier with complexity within tolerance of c, and the sample count.
	SuccessRate(tier baseline.Tier, c, tolerance float64) (rate float64, samples int)
}

// Historical matches are considered similar within this complexity distance.
const historyTolerance = 0.15

const (
	neutralCorrectness  = 0.5
	defaultOutputTokens = 500
	minInputTokens      = 100
)

// Scorer produces routing decisions from a validated baseline.
type Scorer struct {
	baseline *baseline.Baseline
	history  HistoryProvider
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithHistory attaches a history provider for the correctness component.
func WithHistory(h HistoryProvider) ScorerOption {
	return func(s *Scorer) {
		s.history = h
	}
}

// NewScorer validates the baseline and returns a scorer. Inconsistent
// weights or thresholds surface as *baseline.ConfigError.
func NewScorer(b *baseline.Baseline, opts ...ScorerOption) (*Scorer, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	s := &Scorer{baseline: b}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Score analyzes the query and scores it in one step.
func (s *Scorer) Score(query string) (*Decision, error) {
	return s.ScoreComplexity(complexity.Analyze(query))
}

// ScoreComplexity produces a routing decision for a precomputed complexity
// result. The decision's candidates are ordered by DQ descending, cost
// ascending.
func (s *Scorer) ScoreComplexity(c *complexity.Result) (*Decision, error) {
	if c == nil {
		return nil, fmt.Errorf("complexity result is required")
	}
	if c.Score < 0 || c.Score > 1 {
		return nil, fmt.Errorf("complexity score %v outside [0,1]", c.Score)
	}

	candidates := make([]Candidate, 0, len(baseline.Tiers()))
	for _, tier := range baseline.Tiers() {
		cfg := s.baseline.Tiers[tier]
		inRange := c.Score <= cfg.RangeMax

		validity := s.assessValidity(tier, cfg, c.Score, inRange)
		specificity := assessSpecificity(cfg, c.Score)
		correctness := s.assessCorrectness(tier, c.Score)
		overall := validity*s.baseline.Weights.Validity +
			specificity*s.baseline.Weights.Specificity +
			correctness*s.baseline.Weights.Correctness

		candidates = append(candidates, Candidate{
			Tier:  tier,
			Model: s.baseline.Models[tier],
			Score: Score{
				Validity:    validity,
				Specificity: specificity,
				Correctness: correctness,
				Overall:     overall,
			},
			InRange:      inRange,
			CostEstimate: s.estimateCost(tier, c.Tokens),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score.Overall != candidates[j].Score.Overall {
			return candidates[i].Score.Overall > candidates[j].Score.Overall
		}
		return candidates[i].CostEstimate < candidates[j].CostEstimate
	})

	chosen, reason := pickCandidate(candidates)

	thinking := baseline.ThinkingNone
	if chosen.Tier == baseline.TierPremium {
		thinking = s.baseline.ThinkingFor(c.Score)
	}

	return &Decision{
		Tier:            chosen.Tier,
		Model:           chosen.Model,
		Thinking:        thinking,
		Score:           chosen.Score,
		Complexity:      c,
		CostEstimate:    chosen.CostEstimate,
		Candidates:      candidates,
		Reasons:         []string{reason, fmt.Sprintf("complexity %.3f: %s", c.Score, c.Reasoning)},
		BaselineVersion: s.baseline.Version,
	}, nil
}

// pickCandidate selects the best in-range candidate; when no tier's range
// contains the complexity it falls back to the highest-capability tier.
func pickCandidate(candidates []Candidate) (Candidate, string) {
	for _, cand := range candidates {
		if cand.InRange {
			return cand, fmt.Sprintf("%s tier has highest DQ %.3f among in-range tiers", cand.Tier, cand.Score.Overall)
		}
	}

	best := candidates[0]
	for _, cand := range candidates[1:] {
		if cand.Tier.Index() > best.Tier.Index() {
			best = cand
		}
	}
	return best, fmt.Sprintf("no tier range contains the complexity; escalating to %s", best.Tier)
}

// assessValidity scores whether the tier's range suits the complexity.
// Inside the range the score falls off gently with over-provisioning;
// heavily over-provisioned tiers are flagged with fixed penalties. Outside
// the range the score falls off steeply with the overshoot.
func (s *Scorer) assessValidity(tier baseline.Tier, cfg baseline.TierConfig, c float64, inRange bool) float64 {
	if !inRange {
		return clamp01(1 - (c-cfg.RangeMax)*2)
	}
	switch {
	case tier == baseline.TierPremium && c < 0.5:
		return 0.6
	case tier == baseline.TierStandard && c < 0.2:
		return 0.7
	default:
		return clamp01(1 - (cfg.RangeMax-c)*0.2)
	}
}

// assessSpecificity scores the distance from the complexity to the tier's
// optimal band: 1.0 inside, falling off at twice the distance outside.
func assessSpecificity(cfg baseline.TierConfig, c float64) float64 {
	band := cfg.Optimal
	if band.Contains(c, band.Hi >= 1.0) {
		return 1.0
	}
	var distance float64
	if c < band.Lo {
		distance = band.Lo - c
	} else {
		distance = c - band.Hi
	}
	return clamp01(1 - 2*distance)
}

// assessCorrectness uses the historical success rate for similar routes,
// defaulting to neutral without evidence.
func (s *Scorer) assessCorrectness(tier baseline.Tier, c float64) float64 {
	if s.history == nil {
		return neutralCorrectness
	}
	rate, samples := s.history.SuccessRate(tier, c, historyTolerance)
	if samples == 0 {
		return neutralCorrectness
	}
	return clamp01(rate)
}

// estimateCost prices the query against the tier's cost table assuming a
// fixed output budget.
func (s *Scorer) estimateCost(tier baseline.Tier, tokens int) float64 {
	in := tokens
	if in < minInputTokens {
		in = minInputTokens
	}
	pricing := s.baseline.Tiers[tier].Pricing
	return float64(in)/1e6*pricing.InputPerMTok + float64(defaultOutputTokens)/1e6*pricing.OutputPerMTok
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
