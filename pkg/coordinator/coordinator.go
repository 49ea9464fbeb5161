// Package coordinator wires the routing loop together: it routes
// queries against the current baseline, plans and executes sessions,
// hands finished traces to the consensus worker, and runs optimizer
// cycles on a schedule. The CLI and embedding programs talk to this
// facade instead of the individual packages.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zen-systems/helmsman/pkg/baseline"
	"github.com/zen-systems/helmsman/pkg/consensus"
	"github.com/zen-systems/helmsman/pkg/engine"
	"github.com/zen-systems/helmsman/pkg/metrics"
	"github.com/zen-systems/helmsman/pkg/optimizer"
	"github.com/zen-systems/helmsman/pkg/outcome"
)

// defaultCronSpec schedules optimizer cycles hourly.
const defaultCronSpec = "@hourly"

// cycleTimeout bounds a scheduled optimizer cycle.
const cycleTimeout = 10 * time.Minute

// Coordinator is the facade over routing, planning, execution,
// consensus and optimization. Construct with New, call Start before
// Complete, and Close on shutdown.
type Coordinator struct {
	store    baseline.Store
	log      outcome.Log
	executor engine.Executor
	opt      *optimizer.Optimizer
	journal  *outcome.Journal
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cronSpec string

	// cycleMu keeps manual and scheduled optimizer cycles mutually
	// exclusive.
	cycleMu sync.Mutex

	mu      sync.Mutex
	worker  *consensus.Worker
	cron    *cron.Cron
	started bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithExecutor sets the engine Execute runs sessions through.
func WithExecutor(e engine.Executor) Option {
	return func(c *Coordinator) { c.executor = e }
}

// WithJournal records coordinator events to a JSONL journal.
func WithJournal(j *outcome.Journal) Option {
	return func(c *Coordinator) { c.journal = j }
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithCronSchedule overrides the optimizer cycle schedule. It accepts
// a cron expression or a descriptor like "@hourly".
func WithCronSchedule(spec string) Option {
	return func(c *Coordinator) {
		if spec != "" {
			c.cronSpec = spec
		}
	}
}

// New builds a coordinator over the baseline store and outcome log.
// Execution requires WithExecutor; journal and metrics are optional.
func New(store baseline.Store, log outcome.Log, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("baseline store is required")
	}
	if log == nil {
		return nil, fmt.Errorf("outcome log is required")
	}
	c := &Coordinator{
		store:    store,
		log:      log,
		logger:   slog.Default(),
		cronSpec: defaultCronSpec,
	}
	for _, opt := range opts {
		opt(c)
	}
	opt, err := optimizer.New(store, log, optimizer.WithLogger(c.logf))
	if err != nil {
		return nil, err
	}
	c.opt = opt
	return c, nil
}

// Start launches the consensus worker and the optimizer schedule. The
// worker analyzes against the baseline current at start time.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("coordinator already started")
	}

	b, err := c.store.GetCurrent(ctx)
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}
	analyzer, err := consensus.NewAnalyzer(b, consensus.WithLogger(c.logf))
	if err != nil {
		return err
	}
	c.worker = consensus.NewWorker(analyzer, c.log,
		consensus.WithWorkerLogger(c.logf),
		consensus.WithOnResult(c.onConsensus))
	c.worker.Start(ctx)

	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.cronSpec, c.scheduledCycle); err != nil {
		c.worker.Close()
		c.worker = nil
		return fmt.Errorf("cron schedule %q: %w", c.cronSpec, err)
	}
	c.cron.Start()

	c.started = true
	c.logger.Info("coordinator started", "baseline", b.Version, "cron", c.cronSpec)
	return nil
}

// Close stops the schedule and drains the consensus worker.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	<-c.cron.Stop().Done()
	c.worker.Close()
	c.worker = nil
	c.started = false
	c.logger.Info("coordinator stopped")
}

func (c *Coordinator) onConsensus(sessionID string, r *outcome.ConsensusResult) {
	if c.metrics != nil {
		c.metrics.RecordConsensus(r.Overall)
	}
	c.record(outcome.EventConsensusRecorded, sessionID, consensusDetail{
		Overall:    r.Overall,
		Confidence: r.Confidence,
		Degraded:   r.Degraded,
	})
	c.logger.Info("consensus recorded",
		"session", sessionID, "overall", r.Overall, "confidence", r.Confidence)
}

// record writes a journal event, if a journal is attached.
func (c *Coordinator) record(event, sessionID string, detail any) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(event, sessionID, detail); err != nil {
		c.logger.Warn("journal write failed", "event", event, "error", err)
	}
}

// logf bridges the printf-style loggers of the inner packages onto slog.
func (c *Coordinator) logf(format string, args ...any) {
	c.logger.Info(fmt.Sprintf(format, args...))
}
