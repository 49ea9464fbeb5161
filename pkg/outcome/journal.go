package outcome

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal event types, one per coordinator step.
const (
	EventSessionStarted     = "session_started"
	EventRoutingDecided     = "routing_decided"
	EventPlanBuilt          = "plan_built"
	EventSubtaskFinished    = "subtask_finished"
	EventSessionCompleted   = "session_completed"
	EventConsensusRecorded  = "consensus_recorded"
	EventBaselineApplied    = "baseline_applied"
	EventBaselineRolledBack = "baseline_rolled_back"
)

// Event is one journal line.
type Event struct {
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	Session string    `json:"session,omitempty"`
	Detail  any       `json:"detail,omitempty"`
}

// Journal appends coordinator events to a JSONL file. It is the
// human-auditable trail alongside the queryable store; one JSON object per
// line, writes serialized by a mutex.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenJournal opens (creating if needed) the journal at path for
// appending.
func OpenJournal(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Journal{file: f, enc: json.NewEncoder(f)}, nil
}

// Record appends one event with the current time.
func (j *Journal) Record(eventType, sessionID string, detail any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(Event{
		Time:    time.Now().UTC(),
		Type:    eventType,
		Session: sessionID,
		Detail:  detail,
	})
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// ReadRecent returns up to n events from the end of the journal at path,
// oldest first; n <= 0 returns everything. Unparsable lines (for example a
// line torn by a crash) are skipped.
func ReadRecent(path string, n int) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}
