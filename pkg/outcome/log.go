package outcome

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/zen-systems/helmsman/pkg/baseline"
)

// Record pairs a session trace with its consensus analysis once attached.
type Record struct {
	Outcome   SessionOutcome   `json:"outcome"`
	Consensus *ConsensusResult `json:"consensus,omitempty"`
}

// Log stores completed sessions keyed by session id. Appends are
// immutable; AttachConsensus is the only permitted update. Implementations
// must be safe for concurrent use.
type Log interface {
	// Append stores a new session trace. Re-appending a session id fails.
	Append(o SessionOutcome) error

	// AttachConsensus records the analysis for an appended session.
	AttachConsensus(sessionID string, c ConsensusResult) error

	// Get returns the record for one session.
	Get(sessionID string) (*Record, error)

	// LastN returns up to n records, newest first.
	LastN(n int) []Record

	// Window returns records with FinishedAt in [from, to), oldest first.
	Window(from, to time.Time) []Record

	// SuccessRate reports the observed session success rate for traces
	// routed to tier with complexity within tolerance of c, plus the
	// sample count. Satisfies the scorer's history interface.
	SuccessRate(tier baseline.Tier, c, tolerance float64) (float64, int)

	// Len reports the number of stored sessions.
	Len() int
}

// MemoryLog is the in-memory Log used by tests and single-process runs.
type MemoryLog struct {
	mu    sync.RWMutex
	byID  map[string]*Record
	order []string
}

// NewMemoryLog returns an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{byID: make(map[string]*Record)}
}

// Append stores a copy of the trace so later caller mutations cannot leak
// into the log.
func (l *MemoryLog) Append(o SessionOutcome) error {
	if o.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[o.SessionID]; ok {
		return &DuplicateSessionError{SessionID: o.SessionID}
	}
	stored := o.clone()
	l.byID[o.SessionID] = &Record{Outcome: stored}
	l.order = append(l.order, o.SessionID)
	return nil
}

// AttachConsensus sets (or replaces) the analysis for a session.
func (l *MemoryLog) AttachConsensus(sessionID string, c ConsensusResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.byID[sessionID]
	if !ok {
		return &NotFoundError{SessionID: sessionID}
	}
	rec.Consensus = c.clone()
	return nil
}

// Get returns a copy of the record for sessionID.
func (l *MemoryLog) Get(sessionID string) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.byID[sessionID]
	if !ok {
		return nil, &NotFoundError{SessionID: sessionID}
	}
	out := Record{Outcome: rec.Outcome.clone(), Consensus: rec.Consensus.clone()}
	return &out, nil
}

// LastN returns up to n records, newest first.
func (l *MemoryLog) LastN(n int) []Record {
	if n <= 0 {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.order) {
		n = len(l.order)
	}
	out := make([]Record, 0, n)
	for i := len(l.order) - 1; i >= 0 && len(out) < n; i-- {
		rec := l.byID[l.order[i]]
		out = append(out, Record{Outcome: rec.Outcome.clone(), Consensus: rec.Consensus.clone()})
	}
	return out
}

// Window returns records with FinishedAt in [from, to), oldest first.
func (l *MemoryLog) Window(from, to time.Time) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Record
	for _, id := range l.order {
		rec := l.byID[id]
		fin := rec.Outcome.FinishedAt
		if fin.Before(from) || !fin.Before(to) {
			continue
		}
		out = append(out, Record{Outcome: rec.Outcome.clone(), Consensus: rec.Consensus.clone()})
	}
	return out
}

// SuccessRate aggregates session success for traces routed to tier with
// complexity within tolerance of c.
func (l *MemoryLog) SuccessRate(tier baseline.Tier, c, tolerance float64) (float64, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	matches, successes := 0, 0
	for _, id := range l.order {
		o := &l.byID[id].Outcome
		if o.Tier != tier || math.Abs(o.Complexity-c) > tolerance {
			continue
		}
		matches++
		if o.Succeeded() {
			successes++
		}
	}
	if matches == 0 {
		return 0, 0
	}
	return float64(successes) / float64(matches), matches
}

// Len reports the number of stored sessions.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}
