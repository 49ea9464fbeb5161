package engine

import (
	"context"
	"sync"
	"time"

	"github.com/zen-systems/helmsman/pkg/adapter"
	"github.com/zen-systems/helmsman/pkg/allocator"
	"github.com/zen-systems/helmsman/pkg/baseline"
	"github.com/zen-systems/helmsman/pkg/outcome"
	"github.com/zen-systems/helmsman/pkg/review"
	"github.com/zen-systems/helmsman/pkg/topology"
)

// sessionRun holds the mutable state of one Execute call.
type sessionRun struct {
	engine   *Engine
	baseline *baseline.Baseline
	req      *Request
	subtasks map[string]allocator.Subtask
	allocs   map[string]allocator.Allocation
	tracker  *costTracker

	mu      sync.Mutex
	outputs map[string]string
}

func newSessionRun(e *Engine, b *baseline.Baseline, req *Request) *sessionRun {
	subtasks := make(map[string]allocator.Subtask, len(req.Subtasks))
	for _, s := range req.Subtasks {
		subtasks[s.ID] = s
	}
	allocs := make(map[string]allocator.Allocation, len(req.Allocations))
	for _, a := range req.Allocations {
		allocs[a.SubtaskID] = a
	}
	return &sessionRun{
		engine:   e,
		baseline: b,
		req:      req,
		subtasks: subtasks,
		allocs:   allocs,
		tracker:  newCostTracker(e.guard.MaxCostUSD),
		outputs:  make(map[string]string),
	}
}

// execute walks the plan layers in order. A layer that loses a subtask
// to a guardrail, or that fails under a dependency-ordered plan, halts
// the walk; undispatched subtasks stay absent from the trace.
func (r *sessionRun) execute(ctx context.Context) []outcome.SubtaskResult {
	plan := r.req.Plan
	haltOnFailure := plan.Type == topology.Sequential || plan.Type == topology.Hybrid

	sessionStart := time.Now()
	lastProgress := sessionStart
	durationWarned := false

	var results []outcome.SubtaskResult
	halted := false
	for i, layer := range plan.Layers {
		if ctx.Err() != nil || r.tracker.exceeded() {
			halted = true
			r.engine.logf("engine: %s: halting before layer %d/%d", r.req.SessionID, i+1, len(plan.Layers))
			break
		}
		if !durationWarned && time.Since(sessionStart) >= time.Duration(warnFraction*float64(r.engine.guard.MaxDuration)) {
			durationWarned = true
			r.engine.logf("engine: %s: at %.0f%% of the duration budget", r.req.SessionID, warnFraction*100)
		}
		if since := time.Since(lastProgress); since > r.engine.guard.Heartbeat {
			r.engine.logf("engine: %s: no progress for %s", r.req.SessionID, since.Round(time.Second))
		}

		layerResults, complete := r.runLayer(ctx, layer, r.contextSnippet())
		results = append(results, layerResults...)
		lastProgress = time.Now()

		if !complete {
			halted = true
			break
		}
		if haltOnFailure && i < len(plan.Layers)-1 {
			for _, res := range layerResults {
				if !res.Success {
					halted = true
					break
				}
			}
			if halted {
				r.engine.logf("engine: %s: layer %d failed, skipping dependents", r.req.SessionID, i+1)
				break
			}
		}
	}

	if plan.Type == topology.Hierarchical && !halted {
		if sup, ok := r.runSupervisor(ctx, results); ok {
			results = append(results, sup)
		}
	}
	return results
}

// runLayer dispatches one layer, a goroutine per subtask. The context
// snippet is fixed before dispatch so sibling completions cannot bleed
// into each other's prompts. complete is false when a guardrail blocked
// part of the layer.
func (r *sessionRun) runLayer(ctx context.Context, ids []string, contextText string) ([]outcome.SubtaskResult, bool) {
	layerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type slot struct {
		res        outcome.SubtaskResult
		dispatched bool
	}
	slots := make([]slot, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			res, dispatched := r.runSubtask(layerCtx, id, contextText)
			slots[i] = slot{res: res, dispatched: dispatched}
			if r.tracker.exceeded() {
				// Stop in-flight siblings once the ceiling is hit.
				cancel()
			}
		}(i, id)
	}
	wg.Wait()

	results := make([]outcome.SubtaskResult, 0, len(ids))
	for _, s := range slots {
		if s.dispatched {
			results = append(results, s.res)
		}
	}
	return results, len(results) == len(ids)
}

// runSubtask executes one subtask with its allocated tier and timeout.
// dispatched is false when the cost guardrail blocked the call entirely.
func (r *sessionRun) runSubtask(ctx context.Context, id, contextText string) (outcome.SubtaskResult, bool) {
	start := time.Now()
	sub := r.subtasks[id]
	alloc := r.allocs[id]

	res := outcome.SubtaskResult{
		SubtaskID:  id,
		Tier:       alloc.Tier,
		Complexity: sub.Complexity,
	}
	pricing := r.baseline.Tiers[alloc.Tier].Pricing

	if err := r.tracker.checkBudget(pricing); err != nil {
		r.engine.logf("engine: %s: subtask %s not dispatched: %v", r.req.SessionID, id, err)
		return res, false
	}

	model := r.baseline.Models[alloc.Tier]
	ad, err := r.engine.registry.ForModel(model)
	if err != nil {
		res.Error = err.Error()
		res.DurationMillis = time.Since(start).Milliseconds()
		return res, true
	}

	callCtx := ctx
	if alloc.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, alloc.Timeout)
		defer cancel()
	}

	prompt := subtaskPrompt(r.req.Query, sub, contextText)
	resp, err := r.generate(callCtx, ad, model, prompt)
	if err != nil {
		res.Error = err.Error()
		res.DurationMillis = time.Since(start).Milliseconds()
		return res, true
	}
	r.recordCost(&res, pricing, resp.Usage)

	art := resp.Artifact
	rev := review.Check(art)
	res.Reviewed = true
	res.ReviewScore = rev.Score
	if !rev.Passed {
		r.engine.logf("engine: %s: subtask %s failed review (%s), repairing",
			r.req.SessionID, id, rev.Summary())
		repaired, rerr := r.generate(callCtx, ad, model, review.RepairPrompt(art, rev))
		if rerr == nil {
			r.recordCost(&res, pricing, repaired.Usage)
			if rrev := review.Check(repaired.Artifact); rrev.Score > rev.Score {
				art = art.NewVersion(repaired.Artifact.Content)
				rev = rrev
				res.ReviewScore = rrev.Score
			}
		}
	}
	res.DurationMillis = time.Since(start).Milliseconds()
	if !rev.Passed {
		res.Error = rev.Summary()
		return res, true
	}

	r.storeOutput(id, art.Content)
	res.Success = true
	return res, true
}

// runSupervisor issues the synthesis call of a hierarchical plan.
func (r *sessionRun) runSupervisor(ctx context.Context, worker []outcome.SubtaskResult) (outcome.SubtaskResult, bool) {
	start := time.Now()
	tier := r.req.Plan.Supervisor
	if tier == "" {
		tier = baseline.TierPremium
	}
	res := outcome.SubtaskResult{SubtaskID: SupervisorID, Tier: tier}
	if r.req.Decision != nil && r.req.Decision.Complexity != nil {
		res.Complexity = r.req.Decision.Complexity.Score
	}
	pricing := r.baseline.Tiers[tier].Pricing

	if err := r.tracker.checkBudget(pricing); err != nil {
		r.engine.logf("engine: %s: supervisor not dispatched: %v", r.req.SessionID, err)
		return res, false
	}

	model := r.baseline.Models[tier]
	ad, err := r.engine.registry.ForModel(model)
	if err != nil {
		res.Error = err.Error()
		res.DurationMillis = time.Since(start).Milliseconds()
		return res, true
	}

	callCtx, cancel := context.WithTimeout(ctx, supervisorTimeout)
	defer cancel()

	prompt := supervisorPrompt(r.req.Query, r.layerOrder(), r.outputSnapshot(), worker)
	resp, err := r.generate(callCtx, ad, model, prompt)
	if err != nil {
		res.Error = err.Error()
		res.DurationMillis = time.Since(start).Milliseconds()
		return res, true
	}
	r.recordCost(&res, pricing, resp.Usage)

	rev := review.Check(resp.Artifact)
	res.Reviewed = true
	res.ReviewScore = rev.Score
	res.DurationMillis = time.Since(start).Milliseconds()
	if !rev.Passed {
		res.Error = rev.Summary()
		return res, true
	}

	r.storeOutput(SupervisorID, resp.Artifact.Content)
	res.Success = true
	return res, true
}

// generate calls the adapter, retrying once after a transient failure.
func (r *sessionRun) generate(ctx context.Context, ad adapter.Adapter, model, prompt string) (*adapter.Response, error) {
	resp, err := ad.Generate(ctx, model, prompt)
	if err == nil || !adapter.IsTransient(err) {
		return resp, err
	}
	r.engine.logf("engine: %s: transient adapter failure, retrying: %v", r.req.SessionID, err)
	if serr := sleepWithContext(ctx, retryBackoff); serr != nil {
		return nil, err
	}
	return ad.Generate(ctx, model, prompt)
}

func (r *sessionRun) recordCost(res *outcome.SubtaskResult, pricing baseline.Pricing, usage *adapter.Usage) {
	cost := costOf(pricing, usage)
	res.CostUSD += cost
	if warn := r.tracker.add(cost, usage); warn {
		r.engine.logf("engine: %s: cost at %.0f%% of the %.2f USD budget",
			r.req.SessionID, warnFraction*100, r.engine.guard.MaxCostUSD)
	}
}

func (r *sessionRun) storeOutput(id, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[id] = content
}

// contextSnippet joins the outputs of completed subtasks, in plan order,
// for inclusion in a dependent subtask's prompt.
func (r *sessionRun) contextSnippet() string {
	snapshot := r.outputSnapshot()
	if len(snapshot) == 0 {
		return ""
	}
	parts := make([]string, 0, len(snapshot))
	for _, id := range r.layerOrder() {
		if out, ok := snapshot[id]; ok {
			parts = append(parts, formatStep(id, out))
		}
	}
	return joinSteps(parts)
}

// finalOutput returns the content the session resolved to: the
// supervisor synthesis when present, otherwise the output of the last
// completed layer.
func (r *sessionRun) finalOutput() string {
	snapshot := r.outputSnapshot()
	if sup, ok := snapshot[SupervisorID]; ok {
		return sup
	}
	var parts []string
	for i := len(r.req.Plan.Layers) - 1; i >= 0 && len(parts) == 0; i-- {
		for _, id := range r.req.Plan.Layers[i] {
			if out, ok := snapshot[id]; ok {
				parts = append(parts, out)
			}
		}
	}
	return joinSteps(parts)
}

func (r *sessionRun) outputSnapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.outputs))
	for k, v := range r.outputs {
		out[k] = v
	}
	return out
}

// layerOrder flattens the plan layers; the plan is immutable once
// execution starts.
func (r *sessionRun) layerOrder() []string {
	var order []string
	for _, layer := range r.req.Plan.Layers {
		order = append(order, layer...)
	}
	return order
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
