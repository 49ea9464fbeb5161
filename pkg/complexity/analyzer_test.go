package complexity

import (
	"math"
	"strings"
	"testing"
)

func TestScoreAlwaysInRange(t *testing.T) {
	queries := []string{
		"",
		"thanks",
		"Design a distributed caching system",
		"fix fix fix error bug crash broken failed issue problem not working why debug",
		strings.Repeat("analyze the architecture of every microservice across all files ", 50),
	}
	for _, q := range queries {
		r := Analyze(q)
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("score %v out of range for %q", r.Score, q)
		}
	}
}

func TestEmptyQuery(t *testing.T) {
	r := Analyze("")
	if r.Tokens != 1 {
		t.Fatalf("expected 1 token for empty text, got %d", r.Tokens)
	}
	if len(r.Signals) != 0 {
		t.Fatalf("expected no signals for empty text, got %v", r.Signals)
	}
	if r.Score != 0.10 {
		t.Fatalf("expected shortest-band base score 0.10, got %v", r.Score)
	}
}

func TestDistributedCacheAnchor(t *testing.T) {
	r := Analyze("Design a distributed caching system")
	if math.Abs(r.Score-0.85) > 1e-9 {
		t.Fatalf("expected score 0.85, got %v", r.Score)
	}
	sig, ok := r.Signals["architecture"]
	if !ok {
		t.Fatal("expected architecture signals")
	}
	if sig.Count != 3 {
		t.Fatalf("expected 3 architecture matches (design, distributed, system), got %d", sig.Count)
	}
}

func TestReadmeTypoAnchor(t *testing.T) {
	r := Analyze("Fix typo in README")
	if r.Score > 0.2+1e-9 {
		t.Fatalf("trivial edit should score at most 0.2, got %v", r.Score)
	}
}

func TestMonotonicInArchitectureSignals(t *testing.T) {
	// Same token band, increasing architecture keyword matches.
	queries := []string{
		"update the pricing",
		"update the design",
		"update the design pattern",
		"update the design pattern system",
	}
	prev := -1.0
	for _, q := range queries {
		r := Analyze(q)
		if r.Score < prev {
			t.Fatalf("score decreased from %v to %v at %q", prev, r.Score, q)
		}
		prev = r.Score
	}
}

func TestSignalCapAtThree(t *testing.T) {
	r := Analyze("design architecture system refactor restructure pattern")
	sig := r.Signals["architecture"]
	if sig.Count != 6 {
		t.Fatalf("expected raw count 6, got %d", sig.Count)
	}
	if math.Abs(sig.Score-0.75) > 1e-9 {
		t.Fatalf("expected capped contribution 0.75, got %v", sig.Score)
	}
}

func TestConversationalSuppression(t *testing.T) {
	r := Analyze("thanks")
	if r.Score != 0 {
		t.Fatalf("bare acknowledgement should bottom out at 0, got %v", r.Score)
	}

	// Long queries are never treated as conversational even when they open
	// with a greeting.
	long := "hello, please design a scalable distributed system architecture for ingest"
	if Analyze(long).Score < 0.5 {
		t.Fatalf("long query with architecture signals should stay high, got %v", Analyze(long).Score)
	}
}

func TestProjectContextBoost(t *testing.T) {
	without := Analyze("rename the widget")
	with := Analyze("rename the widget in this codebase")
	if with.Score <= without.Score {
		t.Fatalf("project context should raise the score: %v vs %v", with.Score, without.Score)
	}
}

func TestTokenBands(t *testing.T) {
	cases := []struct {
		length int
		want   float64
	}{
		{40, 0.10},   // 10 tokens
		{300, 0.30},  // 75 tokens
		{1800, 0.60}, // 450 tokens
		{4000, 0.90}, // 1000 tokens
	}
	for _, tc := range cases {
		// Filler with no signal keywords.
		q := strings.Repeat("zq", tc.length/2)
		r := Analyze(q)
		if math.Abs(r.Score-tc.want) > 1e-9 {
			t.Errorf("length %d: expected base %v, got %v", tc.length, tc.want, r.Score)
		}
	}
}

func TestDetectPattern(t *testing.T) {
	cases := []struct {
		query    string
		pattern  string
		strategy string
	}{
		{"debug the crash in the parser", "debugging", StrategyReview},
		{"investigate and analyze the options", "research", StrategyResearch},
		{"redesign the system structure", "architecture", StrategyFull},
		{"add a new feature and build it", "implementation", StrategyImplement},
		{"write pytest coverage for the module", "testing", StrategyReview},
		{"improve performance, it is slow", "optimization", StrategyFull},
	}
	for _, tc := range cases {
		got := DetectPattern(tc.query)
		if got.Pattern != tc.pattern {
			t.Errorf("%q: expected pattern %s, got %s", tc.query, tc.pattern, got.Pattern)
		}
		if got.Strategy != tc.strategy {
			t.Errorf("%q: expected strategy %s, got %s", tc.query, tc.strategy, got.Strategy)
		}
		if got.Confidence <= 0 || got.Confidence > 1 {
			t.Errorf("%q: confidence %v out of range", tc.query, got.Confidence)
		}
	}
}

func TestDetectPatternUnknown(t *testing.T) {
	got := DetectPattern("zzz qqq")
	if got.Pattern != "unknown" || got.Confidence != 0 {
		t.Fatalf("expected unknown pattern with zero confidence, got %+v", got)
	}
	if got.Strategy != StrategyImplement {
		t.Fatalf("expected implement default, got %s", got.Strategy)
	}
}
