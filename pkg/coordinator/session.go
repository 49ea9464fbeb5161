package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zen-systems/helmsman/pkg/allocator"
	"github.com/zen-systems/helmsman/pkg/baseline"
	"github.com/zen-systems/helmsman/pkg/complexity"
	"github.com/zen-systems/helmsman/pkg/dq"
	"github.com/zen-systems/helmsman/pkg/engine"
	"github.com/zen-systems/helmsman/pkg/outcome"
	"github.com/zen-systems/helmsman/pkg/topology"
)

// Plan grants this many agents per task when the caller passes no
// budget.
const defaultBudgetPerTask = 2

// History shaping the allocator's failure signal: sessions within this
// complexity distance count, and fewer than minHistorySamples of them
// read as no signal.
const (
	historySimilarity = 0.15
	minHistorySamples = 5
)

// Task is one unit of work in a planning request. Zero Complexity means
// estimate it from the description.
type Task struct {
	ID          string   `yaml:"id" json:"id"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Complexity  float64  `yaml:"complexity,omitempty" json:"complexity,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// ExecutionPlan is a routed, shaped and budgeted session ready for
// Execute.
type ExecutionPlan struct {
	Query       string                 `json:"query"`
	Decision    *dq.Decision           `json:"decision"`
	Topology    *topology.Plan         `json:"topology"`
	Subtasks    []allocator.Subtask    `json:"subtasks"`
	Allocations []allocator.Allocation `json:"allocations"`
}

type routingDetail struct {
	Tier       baseline.Tier         `json:"tier"`
	Thinking   baseline.ThinkingTier `json:"thinking"`
	Model      string                `json:"model"`
	Complexity float64               `json:"complexity"`
	DQ         float64               `json:"dq"`
}

type planDetail struct {
	Type   topology.Type `json:"type"`
	Layers int           `json:"layers"`
	Agents int           `json:"agents"`
}

type sessionDetail struct {
	Query    string        `json:"query"`
	Topology topology.Type `json:"topology"`
}

type subtaskDetail struct {
	ID      string        `json:"id"`
	Tier    baseline.Tier `json:"tier"`
	Success bool          `json:"success"`
	CostUSD float64       `json:"cost_usd"`
}

type completionDetail struct {
	Succeeded      bool    `json:"succeeded"`
	Partial        bool    `json:"partial,omitempty"`
	CostUSD        float64 `json:"cost_usd"`
	DurationMillis int64   `json:"duration_ms"`
}

type consensusDetail struct {
	Overall    float64 `json:"overall"`
	Confidence float64 `json:"confidence"`
	Degraded   bool    `json:"degraded,omitempty"`
}

// Route scores the query against the current baseline and returns the
// routing decision.
func (c *Coordinator) Route(ctx context.Context, query string) (*dq.Decision, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	b, err := c.store.GetCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	scorer, err := dq.NewScorer(b, dq.WithHistory(c.log))
	if err != nil {
		return nil, err
	}
	d, err := scorer.Score(query)
	if err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.RecordRouting(string(d.Tier), string(d.Thinking), d.Complexity.Score, d.Score.Overall)
	}
	c.record(outcome.EventRoutingDecided, "", routingDetail{
		Tier:       d.Tier,
		Thinking:   d.Thinking,
		Model:      d.Model,
		Complexity: d.Complexity.Score,
		DQ:         d.Score.Overall,
	})
	c.logger.Info("routed",
		"tier", d.Tier, "thinking", d.Thinking,
		"complexity", d.Complexity.Score, "dq", d.Score.Overall)
	return d, nil
}

// Plan routes the query, shapes the task graph into a topology, and
// divides the agent budget across the tasks. A budget of zero grants
// two agents per task. Task complexity defaults to an estimate from the
// description; the failure signal comes from the outcome history of the
// routed tier.
func (c *Coordinator) Plan(ctx context.Context, query string, tasks []Task, budget int) (*ExecutionPlan, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("at least one task is required")
	}
	decision, err := c.Route(ctx, query)
	if err != nil {
		return nil, err
	}

	nodes := make([]topology.Node, len(tasks))
	subs := make([]allocator.Subtask, len(tasks))
	var edges []topology.Edge
	for i, t := range tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("task %d has no id", i)
		}
		score := t.Complexity
		if score == 0 && t.Description != "" {
			score = complexity.Analyze(t.Description).Score
		}
		nodes[i] = topology.Node{ID: t.ID, Complexity: score}
		subs[i] = allocator.Subtask{
			ID:          t.ID,
			Description: t.Description,
			Complexity:  score,
			FailureRate: c.failureRate(decision.Tier, score),
		}
		for _, dep := range t.DependsOn {
			edges = append(edges, topology.Edge{From: dep, To: t.ID})
		}
	}

	plan, err := topology.Select(topology.Graph{Nodes: nodes, Edges: edges}, decision.Complexity.Score)
	if err != nil {
		return nil, err
	}

	if budget <= 0 {
		budget = defaultBudgetPerTask * len(tasks)
	}
	allocs, err := allocator.Allocate(subs, budget)
	if err != nil {
		return nil, err
	}

	c.record(outcome.EventPlanBuilt, "", planDetail{
		Type:   plan.Type,
		Layers: len(plan.Layers),
		Agents: budget,
	})
	c.logger.Info("planned",
		"topology", plan.Type, "layers", len(plan.Layers),
		"tasks", len(tasks), "agents", budget)
	return &ExecutionPlan{
		Query:       query,
		Decision:    decision,
		Topology:    plan,
		Subtasks:    subs,
		Allocations: allocs,
	}, nil
}

// Execute runs the plan through the configured executor under a fresh
// session id and journals the trace. The caller passes the returned
// outcome to Complete to feed the loop.
func (c *Coordinator) Execute(ctx context.Context, plan *ExecutionPlan) (*engine.Result, error) {
	if plan == nil || plan.Topology == nil {
		return nil, fmt.Errorf("execution plan is required")
	}
	if c.executor == nil {
		return nil, fmt.Errorf("no executor configured")
	}

	sessionID := uuid.NewString()
	if c.metrics != nil {
		c.metrics.SessionStarted()
		defer c.metrics.SessionEnded()
	}
	c.record(outcome.EventSessionStarted, sessionID, sessionDetail{
		Query:    plan.Query,
		Topology: plan.Topology.Type,
	})

	res, err := c.executor.Execute(ctx, &engine.Request{
		SessionID:   sessionID,
		Query:       plan.Query,
		Decision:    plan.Decision,
		Plan:        plan.Topology,
		Subtasks:    plan.Subtasks,
		Allocations: plan.Allocations,
	})
	if err != nil {
		return nil, err
	}

	trace := res.Outcome
	for _, sub := range trace.Subtasks {
		c.record(outcome.EventSubtaskFinished, sessionID, subtaskDetail{
			ID:      sub.SubtaskID,
			Tier:    sub.Tier,
			Success: sub.Success,
			CostUSD: sub.CostUSD,
		})
	}
	c.record(outcome.EventSessionCompleted, sessionID, completionDetail{
		Succeeded:      trace.Succeeded(),
		Partial:        trace.Partial,
		CostUSD:        trace.CostUSD(),
		DurationMillis: trace.Duration().Milliseconds(),
	})
	c.logger.Info("session completed",
		"session", sessionID, "succeeded", trace.Succeeded(),
		"cost_usd", trace.CostUSD(), "partial", trace.Partial)
	return res, nil
}

// Complete hands a finished session to the consensus worker, which
// appends the trace to the log and attaches its analysis. The call
// never waits on analysis.
func (c *Coordinator) Complete(o *outcome.SessionOutcome) error {
	if o == nil {
		return fmt.Errorf("session outcome is required")
	}
	c.mu.Lock()
	w := c.worker
	c.mu.Unlock()
	if w == nil {
		return fmt.Errorf("coordinator is not started")
	}
	return w.Submit(*o)
}

// failureRate mines the outcome log for how often work at this
// complexity failed on the routed tier. Thin history reads as zero.
func (c *Coordinator) failureRate(tier baseline.Tier, score float64) float64 {
	rate, samples := c.log.SuccessRate(tier, score, historySimilarity)
	if samples < minHistorySamples {
		return 0
	}
	return 1 - rate
}
