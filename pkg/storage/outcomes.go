package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zen-systems/helmsman/pkg/baseline"
	"github.com/zen-systems/helmsman/pkg/outcome"
)

// OutcomeLog implements outcome.Log over the outcomes and consensus
// tables. Traces are append-only; attaching a consensus analysis is the
// only permitted update.
type OutcomeLog struct {
	db   *sql.DB
	logf func(format string, args ...any)
}

const recordColumns = `
	o.session_id, o.query, o.tier, o.topology, o.complexity, o.dq_score,
	o.expected_subtasks, o.partial, o.subtasks, o.started_at_ns, o.finished_at_ns,
	c.session_id, c.score_outcome, c.score_quality, c.score_recalibration,
	c.score_cost, c.score_productivity, c.score_routing,
	c.overall, c.confidence, c.degraded, c.analyzed_at`

const recordFrom = " FROM outcomes o LEFT JOIN consensus c ON c.session_id = o.session_id"

// Append stores a new session trace. Re-appending a session id fails
// with a DuplicateSessionError.
func (l *OutcomeLog) Append(o outcome.SessionOutcome) error {
	if o.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	subtasks, err := json.Marshal(o.Subtasks)
	if err != nil {
		return fmt.Errorf("marshal subtasks: %w", err)
	}
	if string(subtasks) == "null" {
		subtasks = []byte("[]")
	}
	partial, succeeded := 0, 0
	if o.Partial {
		partial = 1
	}
	if o.Succeeded() {
		succeeded = 1
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM outcomes WHERE session_id = ?", o.SessionID).Scan(&exists); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists > 0 {
		return &outcome.DuplicateSessionError{SessionID: o.SessionID}
	}
	if _, err := tx.Exec(`
		INSERT INTO outcomes (
			session_id, query, tier, topology, complexity, dq_score,
			expected_subtasks, cost_usd, duration_ms, partial, succeeded,
			subtasks, started_at_ns, finished_at_ns, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.SessionID, o.Query, string(o.Tier), o.Topology, o.Complexity, o.DQScore,
		o.ExpectedSubtasks, o.CostUSD(), o.Duration().Milliseconds(), partial, succeeded,
		string(subtasks), o.StartedAt.UnixNano(), o.FinishedAt.UnixNano(),
		time.Now().UTC().Format(timeFormat)); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return tx.Commit()
}

// AttachConsensus records (or replaces) the analysis for an appended
// session.
func (l *OutcomeLog) AttachConsensus(sessionID string, c outcome.ConsensusResult) error {
	degraded := 0
	if c.Degraded {
		degraded = 1
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin attach: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM outcomes WHERE session_id = ?", sessionID).Scan(&exists); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return &outcome.NotFoundError{SessionID: sessionID}
	}
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO consensus (
			session_id, score_outcome, score_quality, score_recalibration,
			score_cost, score_productivity, score_routing,
			overall, confidence, degraded, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		c.Scores[outcome.ScoreOutcome], c.Scores[outcome.ScoreQuality],
		c.Scores[outcome.ScoreRecalibration], c.Scores[outcome.ScoreCost],
		c.Scores[outcome.ScoreProductivity], c.Scores[outcome.ScoreRouting],
		c.Overall, c.Confidence, degraded,
		c.AnalyzedAt.UTC().Format(timeFormat)); err != nil {
		return fmt.Errorf("insert consensus: %w", err)
	}
	return tx.Commit()
}

// Get returns the record for one session.
func (l *OutcomeLog) Get(sessionID string) (*outcome.Record, error) {
	row := l.db.QueryRow("SELECT"+recordColumns+recordFrom+" WHERE o.session_id = ?", sessionID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &outcome.NotFoundError{SessionID: sessionID}
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LastN returns up to n records, newest first.
func (l *OutcomeLog) LastN(n int) []outcome.Record {
	if n <= 0 {
		return nil
	}
	return l.queryRecords(
		"SELECT"+recordColumns+recordFrom+" ORDER BY o.rowid DESC LIMIT ?", n)
}

// Window returns records with FinishedAt in [from, to), oldest first.
func (l *OutcomeLog) Window(from, to time.Time) []outcome.Record {
	return l.queryRecords(
		"SELECT"+recordColumns+recordFrom+
			" WHERE o.finished_at_ns >= ? AND o.finished_at_ns < ? ORDER BY o.rowid ASC",
		from.UnixNano(), to.UnixNano())
}

// SuccessRate reports the observed session success rate for traces routed
// to tier with complexity within tolerance of c, plus the sample count.
func (l *OutcomeLog) SuccessRate(tier baseline.Tier, c, tolerance float64) (float64, int) {
	var matches, successes int
	err := l.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(succeeded), 0) FROM outcomes
		WHERE tier = ? AND complexity BETWEEN ? AND ?`,
		string(tier), c-tolerance, c+tolerance).Scan(&matches, &successes)
	if err != nil {
		l.logf("storage: success rate query: %v", err)
		return 0, 0
	}
	if matches == 0 {
		return 0, 0
	}
	return float64(successes) / float64(matches), matches
}

// Len reports the number of stored sessions.
func (l *OutcomeLog) Len() int {
	var n int
	if err := l.db.QueryRow("SELECT COUNT(*) FROM outcomes").Scan(&n); err != nil {
		l.logf("storage: count outcomes: %v", err)
		return 0
	}
	return n
}

func (l *OutcomeLog) queryRecords(query string, args ...any) []outcome.Record {
	rows, err := l.db.Query(query, args...)
	if err != nil {
		l.logf("storage: query outcomes: %v", err)
		return nil
	}
	defer rows.Close()

	var out []outcome.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			l.logf("storage: scan outcome: %v", err)
			return nil
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		l.logf("storage: iterate outcomes: %v", err)
	}
	return out
}

func scanRecord(row rowScanner) (outcome.Record, error) {
	var sessionID, query, tier, topology, subtasks string
	var complexity, dqScore float64
	var expected, partial int
	var startedNS, finishedNS int64
	var cID, cAnalyzedAt sql.NullString
	var sOutcome, sQuality, sRecal, sCost, sProd, sRouting sql.NullFloat64
	var cOverall, cConfidence sql.NullFloat64
	var cDegraded sql.NullInt64
	err := row.Scan(
		&sessionID, &query, &tier, &topology, &complexity, &dqScore,
		&expected, &partial, &subtasks, &startedNS, &finishedNS,
		&cID, &sOutcome, &sQuality, &sRecal, &sCost, &sProd, &sRouting,
		&cOverall, &cConfidence, &cDegraded, &cAnalyzedAt)
	if err != nil {
		return outcome.Record{}, err
	}

	o := outcome.SessionOutcome{
		SessionID:        sessionID,
		Query:            query,
		Tier:             baseline.Tier(tier),
		Topology:         topology,
		Complexity:       complexity,
		DQScore:          dqScore,
		ExpectedSubtasks: expected,
		Partial:          partial == 1,
		StartedAt:        time.Unix(0, startedNS).UTC(),
		FinishedAt:       time.Unix(0, finishedNS).UTC(),
	}
	if err := json.Unmarshal([]byte(subtasks), &o.Subtasks); err != nil {
		return outcome.Record{}, fmt.Errorf("unmarshal subtasks %s: %w", sessionID, err)
	}

	rec := outcome.Record{Outcome: o}
	if cID.Valid {
		analyzedAt, err := time.Parse(timeFormat, cAnalyzedAt.String)
		if err != nil {
			return outcome.Record{}, fmt.Errorf("parse analyzed_at %s: %w", sessionID, err)
		}
		rec.Consensus = &outcome.ConsensusResult{
			SessionID: cID.String,
			Scores: map[string]float64{
				outcome.ScoreOutcome:       sOutcome.Float64,
				outcome.ScoreQuality:       sQuality.Float64,
				outcome.ScoreRecalibration: sRecal.Float64,
				outcome.ScoreCost:          sCost.Float64,
				outcome.ScoreProductivity:  sProd.Float64,
				outcome.ScoreRouting:       sRouting.Float64,
			},
			Overall:    cOverall.Float64,
			Confidence: cConfidence.Float64,
			Degraded:   cDegraded.Int64 == 1,
			AnalyzedAt: analyzedAt,
		}
	}
	return rec, nil
}
