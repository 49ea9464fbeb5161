// Package optimizer closes the feedback loop. It mines the outcome log
// for evidence that the routing thresholds are mis-set, raises proposals
// validated on held-out traces, applies qualifying changes as new
// baseline versions, and rolls a change back when live metrics degrade
// inside the monitoring window.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zen-systems/helmsman/pkg/baseline"
	"github.com/zen-systems/helmsman/pkg/outcome"
)

const (
	// Evidence gates: a fresh evaluation needs this many sessions since
	// the last one, spanning at least this much wall time.
	minSessions = 50
	minWindow   = 30 * 24 * time.Hour

	// evidenceLimit caps how far back an evaluation reaches.
	evidenceLimit = 200

	// Qualification gates. Both are strict: a proposal must beat them.
	confidenceGate  = 0.75
	improvementGate = 0.05

	// An applied change is watched for monitorWindow; a relative drop
	// beyond degradationTolerance in any tracked metric rolls it back.
	monitorWindow        = 7 * 24 * time.Hour
	degradationTolerance = 0.10

	// metricSample is how many recent sessions feed a metric snapshot.
	metricSample = 50
)

// Metrics tracked while an applied change is being monitored.
const (
	MetricRoutingAccuracy = "routing_accuracy"
	MetricCostEfficiency  = "cost_efficiency"
	MetricDQTrend         = "dq_trend"
)

var monitoredMetrics = []string{MetricRoutingAccuracy, MetricCostEfficiency, MetricDQTrend}

// ErrNoImprovement is returned by Propose when the evidence supports the
// current configuration and there is nothing to change.
var ErrNoImprovement = errors.New("evidence supports the current configuration")

// Optimizer drives the proposal lifecycle against a baseline store and
// an outcome log. At most one proposal per family is in flight and at
// most one applied change is monitored at a time.
type Optimizer struct {
	store baseline.Store
	log   outcome.Log
	logf  func(format string, args ...any)
	now   func() time.Time

	mu            sync.Mutex
	inflight      map[string]*Proposal
	history       []*Proposal
	lastEvalCount int

	// Monitoring state for the applied change, if any.
	applied     *Proposal
	prevVersion string
	appliedAt   time.Time
	preMetrics  map[string]float64
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger routes optimizer progress through logf.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(o *Optimizer) { o.logf = logf }
}

// WithClock overrides the time source used for lifecycle timestamps and
// the monitoring window.
func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) { o.now = now }
}

// New creates an optimizer over the given store and outcome log.
func New(store baseline.Store, log outcome.Log, opts ...Option) (*Optimizer, error) {
	if store == nil {
		return nil, fmt.Errorf("baseline store is required")
	}
	if log == nil {
		return nil, fmt.Errorf("outcome log is required")
	}
	o := &Optimizer{
		store:    store,
		log:      log,
		logf:     func(string, ...any) {},
		now:      time.Now,
		inflight: make(map[string]*Proposal),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Propose evaluates fresh evidence for the family and raises a proposal.
// It fails with *InsufficientEvidenceError when an evidence gate is not
// met, with ErrNoImprovement when the evidence backs the current
// thresholds, and with a plain error while a proposal is already in
// flight for the family.
func (o *Optimizer) Propose(ctx context.Context, family string) (*Proposal, error) {
	if family != FamilyTierRanges {
		return nil, fmt.Errorf("unknown optimization family %q", family)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if p := o.inflight[family]; p != nil && p.blocksNew() {
		return nil, fmt.Errorf("family %q already has proposal %s in flight (%s)", family, p.ID, p.Status)
	}

	records, total, err := o.gatherEvidence()
	if err != nil {
		return nil, err
	}
	cur, err := o.store.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}

	ev := evaluate(records, cur)
	o.lastEvalCount = total
	if len(ev.deltas) == 0 {
		return nil, ErrNoImprovement
	}

	now := o.now().UTC()
	p := &Proposal{
		ID:              uuid.NewString(),
		Family:          family,
		Window:          ev.window,
		Deltas:          ev.deltas,
		Confidence:      ev.confidence,
		Improvement:     ev.holdGain,
		Status:          StatusProposed,
		BaselineVersion: cur.Version,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.inflight[family] = p
	o.history = append(o.history, p)
	o.logf("optimizer: proposed %s for %s: %s (confidence %.2f, holdout gain %+.1f%%)",
		p.ID, family, describeDeltas(p.Deltas), p.Confidence, p.Improvement*100)
	return p.clone(), nil
}

// Validate checks the family's proposal against the qualification gates.
// A passing proposal moves to validated; a failing one stays proposed
// with BlockReason naming the gate. Blocking is a result, not an error.
func (o *Optimizer) Validate(family string) (*Proposal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := o.inflight[family]
	if p == nil {
		return nil, fmt.Errorf("no proposal for family %q", family)
	}
	if p.Status != StatusProposed {
		return nil, fmt.Errorf("proposal %s is %s, not proposed", p.ID, p.Status)
	}

	if reason := gateBlock(p.Confidence, p.Improvement); reason != "" {
		p.BlockReason = reason
		o.logf("optimizer: blocked %s: %s", p.ID, reason)
	} else {
		p.Status = StatusValidated
		p.BlockReason = ""
		o.logf("optimizer: validated %s", p.ID)
	}
	p.UpdatedAt = o.now().UTC()
	return p.clone(), nil
}

// Apply publishes the validated proposal as the next baseline version,
// with a lineage entry citing the evidence window, and flips the current
// pointer. A metric snapshot is taken first so Monitor can compare.
func (o *Optimizer) Apply(ctx context.Context, family string) (*Proposal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := o.inflight[family]
	if p == nil {
		return nil, fmt.Errorf("no proposal for family %q", family)
	}
	if p.Status != StatusValidated {
		return nil, fmt.Errorf("proposal %s is %s, not validated", p.ID, p.Status)
	}
	if o.applied != nil {
		return nil, fmt.Errorf("proposal %s is still being monitored", o.applied.ID)
	}

	cur, err := o.store.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if cur.Version != p.BaselineVersion {
		return nil, &ValidationError{
			ProposalID: p.ID,
			Reason:     fmt.Sprintf("baseline moved from %s to %s since evaluation", p.BaselineVersion, cur.Version),
		}
	}

	next := cur.Clone()
	next.Version = baseline.NextVersion(cur.Version)
	next.Checksum = ""
	next.CreatedAt = time.Time{}

	delta := make(map[string]float64, len(p.Deltas))
	for _, d := range p.Deltas {
		if err := setParameter(next, d.Parameter, d.To); err != nil {
			return nil, err
		}
		delta[d.Parameter] = d.To - d.From
	}
	now := o.now().UTC()
	next.Lineage = append(next.Lineage, baseline.LineageEntry{
		Timestamp:        now,
		Source:           baseline.SourceOptimizer,
		Note:             fmt.Sprintf("proposal %s (%s)", p.ID, p.Family),
		EvidenceFrom:     p.Window.From,
		EvidenceTo:       p.Window.To,
		EvidenceSessions: p.Window.Sessions,
		Delta:            delta,
	})

	before := o.snapshotMetrics()
	if err := o.store.Publish(ctx, next); err != nil {
		return nil, err
	}

	p.Status = StatusApplied
	p.AppliedVersion = next.Version
	p.UpdatedAt = now
	o.applied = p
	o.prevVersion = cur.Version
	o.appliedAt = now
	o.preMetrics = before

	o.logf("optimizer: applied %s as baseline %s (%s)", p.ID, next.Version, describeDeltas(p.Deltas))
	return p.clone(), nil
}

// Monitor compares live metrics against the pre-apply snapshot. A drop
// beyond the tolerance repoints the store at the previous version and
// marks the proposal rolled back; surviving the full window marks it
// stable. Returns nil when no applied change is being monitored.
func (o *Optimizer) Monitor(ctx context.Context) (*Proposal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := o.applied
	if p == nil {
		return nil, nil
	}
	now := o.now().UTC()
	after := o.snapshotMetrics()
	for _, name := range monitoredMetrics {
		before, okBefore := o.preMetrics[name]
		current, okAfter := after[name]
		if !okBefore || !okAfter || before == 0 {
			continue
		}
		drop := (before - current) / before
		if drop <= degradationTolerance {
			continue
		}
		prev := o.prevVersion
		if err := o.store.SetCurrent(ctx, prev); err != nil {
			return nil, err
		}
		p.Status = StatusRolledBack
		p.TriggeringMetric = name
		p.RollbackCause = fmt.Sprintf("%s dropped %.1f%% (%.3f -> %.3f) under baseline %s",
			name, drop*100, before, current, p.AppliedVersion)
		p.UpdatedAt = now
		o.clearMonitoring()
		o.logf("optimizer: rolled back to %s: %s", prev, p.RollbackCause)
		return p.clone(), nil
	}

	if now.Sub(o.appliedAt) >= monitorWindow {
		p.Status = StatusStable
		p.UpdatedAt = now
		o.clearMonitoring()
		o.logf("optimizer: baseline %s held for %s, marking %s stable", p.AppliedVersion, monitorWindow, p.ID)
		return p.clone(), nil
	}
	return p.clone(), nil
}

// DryRun evaluates the family without recording anything. Evidence and
// qualification gates show up in the report, not as errors.
func (o *Optimizer) DryRun(ctx context.Context, family string) (*Report, error) {
	if family != FamilyTierRanges {
		return nil, fmt.Errorf("unknown optimization family %q", family)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	rep := &Report{Family: family}
	records, _, err := o.gatherEvidence()
	if err != nil {
		var gate *InsufficientEvidenceError
		if errors.As(err, &gate) {
			rep.BlockedBy = gate.Error()
			return rep, nil
		}
		return nil, err
	}
	cur, err := o.store.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}

	ev := evaluate(records, cur)
	rep.Confidence = ev.confidence
	rep.Improvement = ev.holdGain
	rep.Deltas = ev.deltas
	switch {
	case len(ev.deltas) == 0:
		rep.BlockedBy = ErrNoImprovement.Error()
	default:
		rep.BlockedBy = gateBlock(ev.confidence, ev.holdGain)
		rep.WouldApply = rep.BlockedBy == ""
	}
	return rep, nil
}

// Cycle runs one full optimization pass: it monitors a previously applied
// change, then evaluates each family and applies whatever qualifies.
// Evidence gates and no-improvement results are logged and skipped.
func (o *Optimizer) Cycle(ctx context.Context) ([]*Proposal, error) {
	var touched []*Proposal

	monitored, err := o.Monitor(ctx)
	if err != nil {
		return touched, err
	}
	if monitored != nil {
		touched = append(touched, monitored)
		if monitored.Status == StatusApplied {
			// Still inside the monitoring window; no new proposals
			// until this change settles.
			return touched, nil
		}
	}

	for _, family := range Families() {
		if p := o.Pending(family); p != nil && p.Status == StatusValidated {
			applied, err := o.Apply(ctx, family)
			if err != nil {
				return touched, err
			}
			touched = append(touched, applied)
			continue
		}

		p, err := o.Propose(ctx, family)
		if err != nil {
			var gate *InsufficientEvidenceError
			if errors.As(err, &gate) || errors.Is(err, ErrNoImprovement) {
				o.logf("optimizer: %s: %v", family, err)
				continue
			}
			return touched, err
		}
		p, err = o.Validate(family)
		if err != nil {
			return touched, err
		}
		touched = append(touched, p)
		if p.Status != StatusValidated {
			continue
		}
		p, err = o.Apply(ctx, family)
		if err != nil {
			return touched, err
		}
		touched[len(touched)-1] = p
	}
	return touched, nil
}

// Pending returns a copy of the family's tracked proposal, or nil.
func (o *Optimizer) Pending(family string) *Proposal {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inflight[family].clone()
}

// Proposals returns every proposal this optimizer has raised, oldest
// first.
func (o *Optimizer) Proposals() []*Proposal {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Proposal, len(o.history))
	for i, p := range o.history {
		out[i] = p.clone()
	}
	return out
}

// gatherEvidence checks the evidence gates and returns the most recent
// traces sorted oldest first, plus the log size at evaluation time.
// Callers hold o.mu.
func (o *Optimizer) gatherEvidence() ([]outcome.Record, int, error) {
	total := o.log.Len()
	fresh := total - o.lastEvalCount
	if fresh < minSessions {
		return nil, 0, &InsufficientEvidenceError{
			Gate:   GateSessions,
			Detail: fmt.Sprintf("%d new sessions since last evaluation, need %d", fresh, minSessions),
		}
	}

	records := o.log.LastN(evidenceLimit)
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Outcome.FinishedAt, records[j].Outcome.FinishedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return records[i].Outcome.SessionID < records[j].Outcome.SessionID
	})

	span := records[len(records)-1].Outcome.FinishedAt.Sub(records[0].Outcome.FinishedAt)
	if span < minWindow {
		return nil, 0, &InsufficientEvidenceError{
			Gate:   GateWindow,
			Detail: fmt.Sprintf("evidence spans %s, need %s", span.Round(time.Hour), minWindow),
		}
	}
	return records, total, nil
}

// snapshotMetrics averages the monitored metrics over recent sessions.
// Metrics with no samples are omitted and later skipped by Monitor.
// Callers hold o.mu.
func (o *Optimizer) snapshotMetrics() map[string]float64 {
	recent := o.log.LastN(metricSample)
	m := make(map[string]float64, len(monitoredMetrics))

	var routingSum, costSum, dqSum float64
	analyzed, sessions := 0, 0
	for i := range recent {
		sessions++
		dqSum += recent[i].Outcome.DQScore
		c := recent[i].Consensus
		if c == nil {
			continue
		}
		analyzed++
		routingSum += c.Scores[outcome.ScoreRouting]
		costSum += c.Scores[outcome.ScoreCost]
	}
	if analyzed > 0 {
		m[MetricRoutingAccuracy] = routingSum / float64(analyzed)
		m[MetricCostEfficiency] = costSum / float64(analyzed)
	}
	if sessions > 0 {
		m[MetricDQTrend] = dqSum / float64(sessions)
	}
	return m
}

func (o *Optimizer) clearMonitoring() {
	o.applied = nil
	o.prevVersion = ""
	o.appliedAt = time.Time{}
	o.preMetrics = nil
}

// gateBlock names the qualification gate the numbers fail, or returns
// empty when both clear their gates.
func gateBlock(confidence, improvement float64) string {
	if confidence <= confidenceGate {
		return fmt.Sprintf("confidence %.2f at or below %.2f gate", confidence, confidenceGate)
	}
	if improvement <= improvementGate {
		return fmt.Sprintf("holdout improvement %.1f%% at or below %.1f%% gate", improvement*100, improvementGate*100)
	}
	return ""
}

// setParameter writes one dotted-path routing parameter onto the
// baseline.
func setParameter(b *baseline.Baseline, param string, value float64) error {
	var tier baseline.Tier
	switch param {
	case ParamLightRangeMax:
		tier = baseline.TierLight
	case ParamStandardRangeMax:
		tier = baseline.TierStandard
	default:
		return fmt.Errorf("unknown parameter %q", param)
	}
	cfg := b.Tiers[tier]
	cfg.RangeMax = value
	b.Tiers[tier] = cfg
	return nil
}
