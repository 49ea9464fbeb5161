// Package engine executes planned sessions against model adapters. It
// runs subtasks in the shape the topology selected, reviews and repairs
// weak outputs, enforces cost and duration guardrails, and assembles the
// session trace the feedback loop consumes.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/zen-systems/helmsman/pkg/adapter"
	"github.com/zen-systems/helmsman/pkg/allocator"
	"github.com/zen-systems/helmsman/pkg/baseline"
	"github.com/zen-systems/helmsman/pkg/dq"
	"github.com/zen-systems/helmsman/pkg/outcome"
	"github.com/zen-systems/helmsman/pkg/topology"
)

// Guardrail defaults. Zero values in Guardrails fall back to these;
// MaxCostUSD zero means unlimited.
const (
	defaultMaxDuration = 300 * time.Second
	defaultHeartbeat   = 60 * time.Second
)

// warnFraction is the budget share at which a warning is logged before
// the hard limit kills the session.
const warnFraction = 0.8

// supervisorTimeout bounds the synthesis call of a hierarchical plan,
// which has no allocation of its own.
const supervisorTimeout = 600 * time.Second

// retryBackoff is the pause before the single retry of a transient
// adapter failure.
const retryBackoff = 200 * time.Millisecond

// SupervisorID names the synthesis step appended to hierarchical traces.
const SupervisorID = "supervisor"

// Request carries one planned session into the engine.
type Request struct {
	SessionID   string
	Query       string
	Decision    *dq.Decision
	Plan        *topology.Plan
	Subtasks    []allocator.Subtask
	Allocations []allocator.Allocation
}

// Result pairs the session trace with the produced outputs. Final holds
// the supervisor synthesis for hierarchical plans, otherwise the output
// of the last completed layer.
type Result struct {
	Outcome *outcome.SessionOutcome
	Outputs map[string]string
	Final   string
}

// Executor runs planned sessions. Execution failures are recorded inside
// the returned trace; the error covers malformed requests and missing
// configuration only.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// Guardrails bound one session. Warnings are logged at 80% of a budget;
// reaching a limit cancels the remaining subtasks and the trace is
// marked partial.
type Guardrails struct {
	MaxCostUSD  float64
	MaxDuration time.Duration
	Heartbeat   time.Duration
}

// Engine is the adapter-backed Executor.
type Engine struct {
	registry *adapter.Registry
	store    baseline.Store
	guard    Guardrails
	logf     func(format string, args ...any)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger routes execution progress through logf.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(e *Engine) { e.logf = logf }
}

// WithGuardrails overrides the session guardrails.
func WithGuardrails(g Guardrails) Option {
	return func(e *Engine) { e.guard = g }
}

// New creates an Engine resolving models through registry and pricing
// through the store's current baseline.
func New(registry *adapter.Registry, store baseline.Store, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("adapter registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("baseline store is required")
	}
	e := &Engine{
		registry: registry,
		store:    store,
		logf:     func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.guard.MaxDuration <= 0 {
		e.guard.MaxDuration = defaultMaxDuration
	}
	if e.guard.Heartbeat <= 0 {
		e.guard.Heartbeat = defaultHeartbeat
	}
	return e, nil
}

// Execute runs the planned session and returns its trace. Subtasks that
// were never dispatched are absent from the trace, which marks it
// partial; dispatched failures appear as failed subtask results.
func (e *Engine) Execute(ctx context.Context, req *Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	b, err := e.store.GetCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.guard.MaxDuration)
	defer cancel()

	run := newSessionRun(e, b, req)
	started := time.Now().UTC()
	results := run.execute(runCtx)
	finished := time.Now().UTC()

	expected := len(req.Subtasks)
	if req.Plan.Type == topology.Hierarchical {
		expected++
	}

	trace := &outcome.SessionOutcome{
		SessionID:        req.SessionID,
		Query:            req.Query,
		Topology:         string(req.Plan.Type),
		ExpectedSubtasks: expected,
		Subtasks:         results,
		StartedAt:        started,
		FinishedAt:       finished,
		Partial:          len(results) < expected,
	}
	if req.Decision != nil {
		trace.Tier = req.Decision.Tier
		trace.DQScore = req.Decision.Score.Overall
		if req.Decision.Complexity != nil {
			trace.Complexity = req.Decision.Complexity.Score
		}
	}

	return &Result{
		Outcome: trace,
		Outputs: run.outputSnapshot(),
		Final:   run.finalOutput(),
	}, nil
}

func validateRequest(req *Request) error {
	if req == nil {
		return fmt.Errorf("request is required")
	}
	if req.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if req.Plan == nil {
		return fmt.Errorf("plan is required")
	}
	if len(req.Subtasks) == 0 {
		return fmt.Errorf("no subtasks to execute")
	}

	known := make(map[string]bool, len(req.Subtasks))
	for _, s := range req.Subtasks {
		known[s.ID] = true
	}
	allocated := make(map[string]bool, len(req.Allocations))
	for _, a := range req.Allocations {
		allocated[a.SubtaskID] = true
	}
	for _, s := range req.Subtasks {
		if !allocated[s.ID] {
			return fmt.Errorf("subtask %s has no allocation", s.ID)
		}
	}
	for _, layer := range req.Plan.Layers {
		for _, id := range layer {
			if !known[id] {
				return fmt.Errorf("plan references unknown subtask %s", id)
			}
		}
	}
	return nil
}
