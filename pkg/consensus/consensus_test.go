package consensus

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/zen-systems/helmsman/pkg/baseline"
	"github.com/zen-systems/helmsman/pkg/outcome"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func analyzer(t *testing.T, opts ...AnalyzerOption) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(baseline.Default(), opts...)
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}
	return a
}

func TestAnalyzeBalancedSession(t *testing.T) {
	a := analyzer(t)
	o := &outcome.SessionOutcome{
		SessionID:        "s1",
		Tier:             baseline.TierStandard,
		Complexity:       0.5,
		ExpectedSubtasks: 2,
		Subtasks: []outcome.SubtaskResult{
			{SubtaskID: "a", Tier: baseline.TierStandard, Success: true, DurationMillis: 60000, CostUSD: 0.004, Reviewed: true, ReviewScore: 0.9},
			{SubtaskID: "b", Tier: baseline.TierStandard, Success: true, DurationMillis: 60000, CostUSD: 0.004, Reviewed: true, ReviewScore: 0.7},
		},
		StartedAt:  t0,
		FinishedAt: t0.Add(150 * time.Second),
	}

	res, err := a.Analyze(o)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	want := map[string]float64{
		outcome.ScoreOutcome:       1.0,
		outcome.ScoreQuality:       0.8,
		outcome.ScoreRecalibration: 0.8,
		outcome.ScoreCost:          1.0,
		outcome.ScoreProductivity:  1.0,
		outcome.ScoreRouting:       1.0,
	}
	for name, v := range want {
		if math.Abs(res.Scores[name]-v) > 1e-9 {
			t.Fatalf("%s: got %v, want %v", name, res.Scores[name], v)
		}
	}
	if math.Abs(res.Overall-0.95) > 1e-9 {
		t.Fatalf("overall: got %v, want 0.95", res.Overall)
	}
	if math.Abs(res.Confidence-0.8114381917) > 1e-6 {
		t.Fatalf("confidence: got %v", res.Confidence)
	}
	if res.Degraded {
		t.Fatal("complete trace must not be degraded")
	}
}

func TestAnalyzePartialTrace(t *testing.T) {
	a := analyzer(t)
	o := &outcome.SessionOutcome{
		SessionID:        "s2",
		Tier:             baseline.TierLight,
		Complexity:       0.2,
		ExpectedSubtasks: 3,
		Partial:          true,
		Subtasks: []outcome.SubtaskResult{
			{SubtaskID: "a", Tier: baseline.TierLight, Success: true, DurationMillis: 30000, CostUSD: 0.001},
			{SubtaskID: "b", Tier: baseline.TierLight, Success: false, DurationMillis: 30000, CostUSD: 0.001},
		},
		StartedAt:  t0,
		FinishedAt: t0.Add(60 * time.Second),
	}

	res, err := a.Analyze(o)
	if err != nil {
		t.Fatalf("partial trace must not fail: %v", err)
	}
	if !res.Degraded {
		t.Fatal("partial trace must set the degraded flag")
	}
	if math.Abs(res.Scores[outcome.ScoreOutcome]-1.0/3.0) > 1e-9 {
		t.Fatalf("missing subtasks must count as failures: got %v", res.Scores[outcome.ScoreOutcome])
	}
	if res.Scores[outcome.ScoreQuality] != 0.5 {
		t.Fatalf("unreviewed work must score neutral quality: got %v", res.Scores[outcome.ScoreQuality])
	}

	// The same trace at full coverage carries higher confidence.
	full := *o
	full.ExpectedSubtasks = 2
	full.Partial = false
	fullRes, err := a.Analyze(&full)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.Confidence >= fullRes.Confidence {
		t.Fatalf("coverage must scale confidence: partial %v, full %v", res.Confidence, fullRes.Confidence)
	}
}

func TestAnalyzeRejectsMalformedEvidence(t *testing.T) {
	a := analyzer(t)
	valid := outcome.SessionOutcome{
		SessionID:        "s",
		Tier:             baseline.TierLight,
		Complexity:       0.2,
		ExpectedSubtasks: 1,
		Subtasks:         []outcome.SubtaskResult{{SubtaskID: "a", Success: true}},
		StartedAt:        t0,
		FinishedAt:       t0.Add(time.Minute),
	}

	cases := []struct {
		name   string
		mutate func(*outcome.SessionOutcome)
	}{
		{"negative cost", func(o *outcome.SessionOutcome) { o.Subtasks[0].CostUSD = -0.01 }},
		{"negative duration", func(o *outcome.SessionOutcome) { o.Subtasks[0].DurationMillis = -5 }},
		{"complexity out of range", func(o *outcome.SessionOutcome) { o.Complexity = 1.5 }},
		{"finished before started", func(o *outcome.SessionOutcome) { o.FinishedAt = o.StartedAt.Add(-time.Second) }},
		{"missing session id", func(o *outcome.SessionOutcome) { o.SessionID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := valid
			o.Subtasks = []outcome.SubtaskResult{valid.Subtasks[0]}
			tc.mutate(&o)
			_, err := a.Analyze(&o)
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestNewAnalyzerRejectsBadWeights(t *testing.T) {
	bad := DefaultWeights()
	bad[outcome.ScoreOutcome] = 0.5
	_, err := NewAnalyzer(baseline.Default(), WithWeights(bad))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for weight sum, got %v", err)
	}

	missing := DefaultWeights()
	delete(missing, outcome.ScoreRouting)
	if _, err := NewAnalyzer(baseline.Default(), WithWeights(missing)); err == nil {
		t.Fatal("expected error for missing weight")
	}

	b := baseline.Default()
	b.Weights.Validity = 0.9
	var blErr *baseline.ConfigError
	if _, err := NewAnalyzer(b); !errors.As(err, &blErr) {
		t.Fatalf("expected baseline ConfigError, got %v", err)
	}
}

func TestCostOverrunScalesScore(t *testing.T) {
	a := analyzer(t)
	// Standard reference cost is 0.0078; doubling it must halve the score.
	o := &outcome.SessionOutcome{
		SessionID:        "s",
		Tier:             baseline.TierStandard,
		Complexity:       0.5,
		ExpectedSubtasks: 1,
		Subtasks: []outcome.SubtaskResult{
			{SubtaskID: "a", Tier: baseline.TierStandard, Success: true, DurationMillis: 1000, CostUSD: 0.0156},
		},
		StartedAt:  t0,
		FinishedAt: t0.Add(10 * time.Second),
	}
	res, err := a.Analyze(o)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if math.Abs(res.Scores[outcome.ScoreCost]-0.5) > 1e-9 {
		t.Fatalf("cost score: got %v, want 0.5", res.Scores[outcome.ScoreCost])
	}
}

func TestProductivityOverrunScalesScore(t *testing.T) {
	a := analyzer(t)
	// Complexity 0.8 budgets 600s; taking 1200s must halve the score.
	o := &outcome.SessionOutcome{
		SessionID:        "s",
		Tier:             baseline.TierPremium,
		Complexity:       0.8,
		ExpectedSubtasks: 1,
		Subtasks: []outcome.SubtaskResult{
			{SubtaskID: "a", Tier: baseline.TierPremium, Success: true, DurationMillis: 1200000, CostUSD: 0.01},
		},
		StartedAt:  t0,
		FinishedAt: t0.Add(1200 * time.Second),
	}
	res, err := a.Analyze(o)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if math.Abs(res.Scores[outcome.ScoreProductivity]-0.5) > 1e-9 {
		t.Fatalf("productivity score: got %v, want 0.5", res.Scores[outcome.ScoreProductivity])
	}
}

func TestRoutingDistance(t *testing.T) {
	a := analyzer(t)
	// A short, quick trace observes complexity 0.3, making standard the
	// post-hoc ideal tier.
	cases := []struct {
		tier baseline.Tier
		want float64
	}{
		{baseline.TierStandard, 1.0},
		{baseline.TierLight, 0.5},
		{baseline.TierPremium, 0.5},
	}
	for _, tc := range cases {
		o := &outcome.SessionOutcome{
			SessionID:        "s",
			Tier:             tc.tier,
			Complexity:       0.3,
			ExpectedSubtasks: 1,
			Subtasks: []outcome.SubtaskResult{
				{SubtaskID: "a", Tier: tc.tier, Success: true, DurationMillis: 1000, CostUSD: 0.001},
			},
			StartedAt:  t0,
			FinishedAt: t0.Add(10 * time.Second),
		}
		res, err := a.Analyze(o)
		if err != nil {
			t.Fatalf("analyze: %v", err)
		}
		if math.Abs(res.Scores[outcome.ScoreRouting]-tc.want) > 1e-9 {
			t.Fatalf("%s: routing score %v, want %v", tc.tier, res.Scores[outcome.ScoreRouting], tc.want)
		}
	}
}

func TestWorkerAnalyzesSubmittedSessions(t *testing.T) {
	a := analyzer(t)
	log := outcome.NewMemoryLog()
	w := NewWorker(a, log, WithConcurrency(2))
	w.Start(context.Background())

	for _, id := range []string{"s1", "s2", "s3"} {
		o := outcome.SessionOutcome{
			SessionID:        id,
			Tier:             baseline.TierLight,
			Complexity:       0.2,
			ExpectedSubtasks: 1,
			Subtasks: []outcome.SubtaskResult{
				{SubtaskID: id + "-a", Tier: baseline.TierLight, Success: true, DurationMillis: 1000, CostUSD: 0.001},
			},
			StartedAt:  t0,
			FinishedAt: t0.Add(time.Minute),
		}
		if err := w.Submit(o); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}
	w.Close()

	if log.Len() != 3 {
		t.Fatalf("expected 3 logged sessions, got %d", log.Len())
	}
	for _, id := range []string{"s1", "s2", "s3"} {
		rec, err := log.Get(id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if rec.Consensus == nil {
			t.Fatalf("session %s missing consensus", id)
		}
		if rec.Consensus.Overall < 0 || rec.Consensus.Overall > 1 {
			t.Fatalf("session %s overall out of range: %v", id, rec.Consensus.Overall)
		}
	}

	if err := w.Submit(outcome.SessionOutcome{SessionID: "late"}); err == nil {
		t.Fatal("submit after close must fail")
	}
}
