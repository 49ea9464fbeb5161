package outcome

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zen-systems/helmsman/pkg/baseline"
)

func session(id string, tier baseline.Tier, complexity float64, success bool, finished time.Time) SessionOutcome {
	return SessionOutcome{
		SessionID:        id,
		Query:            "q",
		Tier:             tier,
		Complexity:       complexity,
		ExpectedSubtasks: 1,
		Subtasks: []SubtaskResult{
			{SubtaskID: id + "-1", Tier: tier, Success: success, DurationMillis: 1000, CostUSD: 0.01},
		},
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestAppendAndGet(t *testing.T) {
	log := NewMemoryLog()
	now := time.Now()
	if err := log.Append(session("s1", baseline.TierStandard, 0.4, true, now)); err != nil {
		t.Fatalf("append: %v", err)
	}

	rec, err := log.Get("s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Outcome.Tier != baseline.TierStandard || len(rec.Outcome.Subtasks) != 1 {
		t.Fatalf("unexpected record: %+v", rec.Outcome)
	}

	// Mutating the returned copy must not touch the stored record.
	rec.Outcome.Subtasks[0].Success = false
	again, err := log.Get("s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !again.Outcome.Subtasks[0].Success {
		t.Fatal("stored record was mutated through a returned copy")
	}
}

func TestAppendCopiesCallerSlice(t *testing.T) {
	log := NewMemoryLog()
	o := session("s1", baseline.TierLight, 0.1, true, time.Now())
	if err := log.Append(o); err != nil {
		t.Fatalf("append: %v", err)
	}
	o.Subtasks[0].Success = false

	rec, err := log.Get("s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.Outcome.Subtasks[0].Success {
		t.Fatal("stored record shares the caller's slice")
	}
}

func TestDuplicateAppendRejected(t *testing.T) {
	log := NewMemoryLog()
	now := time.Now()
	if err := log.Append(session("s1", baseline.TierLight, 0.1, true, now)); err != nil {
		t.Fatalf("append: %v", err)
	}
	err := log.Append(session("s1", baseline.TierLight, 0.1, true, now))
	var dupErr *DuplicateSessionError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateSessionError, got %v", err)
	}
}

func TestAttachConsensus(t *testing.T) {
	log := NewMemoryLog()
	if err := log.Append(session("s1", baseline.TierLight, 0.1, true, time.Now())); err != nil {
		t.Fatalf("append: %v", err)
	}

	c := ConsensusResult{
		SessionID:  "s1",
		Scores:     map[string]float64{ScoreOutcome: 1.0, ScoreRouting: 0.8},
		Overall:    0.9,
		Confidence: 0.8,
		AnalyzedAt: time.Now(),
	}
	if err := log.AttachConsensus("s1", c); err != nil {
		t.Fatalf("attach: %v", err)
	}
	c.Scores[ScoreOutcome] = 0.0

	rec, err := log.Get("s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Consensus == nil || rec.Consensus.Scores[ScoreOutcome] != 1.0 {
		t.Fatalf("consensus not stored independently: %+v", rec.Consensus)
	}

	var nfErr *NotFoundError
	if err := log.AttachConsensus("missing", c); !errors.As(err, &nfErr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestLastNNewestFirst(t *testing.T) {
	log := NewMemoryLog()
	now := time.Now()
	for i, id := range []string{"s1", "s2", "s3"} {
		if err := log.Append(session(id, baseline.TierLight, 0.1, true, now.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	recent := log.LastN(2)
	if len(recent) != 2 || recent[0].Outcome.SessionID != "s3" || recent[1].Outcome.SessionID != "s2" {
		t.Fatalf("unexpected order: %v, %v", recent[0].Outcome.SessionID, recent[1].Outcome.SessionID)
	}
	if got := log.LastN(10); len(got) != 3 {
		t.Fatalf("expected all 3 records, got %d", len(got))
	}
}

func TestWindowBounds(t *testing.T) {
	log := NewMemoryLog()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"s1", "s2", "s3"} {
		if err := log.Append(session(id, baseline.TierLight, 0.1, true, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	// [base+1h, base+2h): includes s2 (at from), excludes s3 (at to).
	got := log.Window(base.Add(time.Hour), base.Add(2*time.Hour))
	if len(got) != 1 || got[0].Outcome.SessionID != "s2" {
		t.Fatalf("unexpected window result: %+v", got)
	}
}

func TestSuccessRateFiltering(t *testing.T) {
	log := NewMemoryLog()
	now := time.Now()
	for _, s := range []SessionOutcome{
		session("s1", baseline.TierPremium, 0.80, true, now),
		session("s2", baseline.TierPremium, 0.85, false, now),
		session("s3", baseline.TierPremium, 0.30, true, now),
		session("s4", baseline.TierStandard, 0.80, true, now),
	} {
		if err := log.Append(s); err != nil {
			t.Fatalf("append %s: %v", s.SessionID, err)
		}
	}

	rate, samples := log.SuccessRate(baseline.TierPremium, 0.80, 0.15)
	if samples != 2 {
		t.Fatalf("expected 2 samples, got %d", samples)
	}
	if rate != 0.5 {
		t.Fatalf("expected rate 0.5, got %v", rate)
	}

	if _, samples := log.SuccessRate(baseline.TierLight, 0.80, 0.15); samples != 0 {
		t.Fatalf("expected no samples, got %d", samples)
	}
}

func TestSucceededSemantics(t *testing.T) {
	ok := session("s", baseline.TierLight, 0.1, true, time.Now())
	if !ok.Succeeded() {
		t.Fatal("fully successful session must report success")
	}

	failed := session("s", baseline.TierLight, 0.1, false, time.Now())
	if failed.Succeeded() {
		t.Fatal("failed subtask must fail the session")
	}

	partial := session("s", baseline.TierLight, 0.1, true, time.Now())
	partial.Partial = true
	if partial.Succeeded() {
		t.Fatal("partial trace must not count as success")
	}

	empty := SessionOutcome{SessionID: "s"}
	if empty.Succeeded() {
		t.Fatal("empty trace must not count as success")
	}
}

func TestJournalRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, typ := range []string{EventSessionStarted, EventRoutingDecided, EventSessionCompleted} {
		if err := j.Record(typ, "s1", map[string]any{"step": typ}); err != nil {
			t.Fatalf("record %s: %v", typ, err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	events, err := ReadRecent(path, 2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventRoutingDecided || events[1].Type != EventSessionCompleted {
		t.Fatalf("unexpected order: %s, %s", events[0].Type, events[1].Type)
	}
	if events[1].Session != "s1" {
		t.Fatalf("session id lost: %+v", events[1])
	}
}

func TestJournalSkipsTornLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := j.Record(EventSessionStarted, "s1", nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := f.WriteString(`{"time":"2026-03-01T`); err != nil {
		t.Fatalf("write torn line: %v", err)
	}
	f.Close()

	events, err := ReadRecent(path, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventSessionStarted {
		t.Fatalf("expected the intact event only, got %+v", events)
	}
}

func TestReadRecentMissingFile(t *testing.T) {
	_, err := ReadRecent(filepath.Join(t.TempDir(), "nope.jsonl"), 5)
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
