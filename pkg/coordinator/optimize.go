package coordinator

import (
	"context"
	"fmt"

	"github.com/zen-systems/helmsman/pkg/optimizer"
	"github.com/zen-systems/helmsman/pkg/outcome"
)

type baselineDetail struct {
	Version     string  `json:"version"`
	Family      string  `json:"family,omitempty"`
	Improvement float64 `json:"improvement,omitempty"`
}

type rollbackDetail struct {
	Version string `json:"version"`
	Metric  string `json:"metric,omitempty"`
	Cause   string `json:"cause"`
}

// Optimize runs one full optimizer cycle now. It fails immediately when
// a cycle is already running.
func (c *Coordinator) Optimize(ctx context.Context) ([]*optimizer.Proposal, error) {
	if !c.cycleMu.TryLock() {
		return nil, fmt.Errorf("an optimizer cycle is already running")
	}
	defer c.cycleMu.Unlock()
	return c.runCycle(ctx)
}

// DryRun reports what the optimizer would do for the family without
// recording anything.
func (c *Coordinator) DryRun(ctx context.Context, family string) (*optimizer.Report, error) {
	return c.opt.DryRun(ctx, family)
}

// Proposals returns the optimizer's proposal history, oldest first.
func (c *Coordinator) Proposals() []*optimizer.Proposal {
	return c.opt.Proposals()
}

// RollbackBaseline repoints the store at an earlier version and records
// the rollback.
func (c *Coordinator) RollbackBaseline(ctx context.Context, version string) error {
	if err := c.store.SetCurrent(ctx, version); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordRollback()
	}
	c.record(outcome.EventBaselineRolledBack, "", rollbackDetail{
		Version: version,
		Cause:   "manual rollback",
	})
	c.logger.Info("baseline rolled back", "version", version)
	return nil
}

func (c *Coordinator) runCycle(ctx context.Context) ([]*optimizer.Proposal, error) {
	proposals, err := c.opt.Cycle(ctx)
	for _, p := range proposals {
		if c.metrics != nil {
			c.metrics.RecordProposal(p.Status)
		}
		switch p.Status {
		case optimizer.StatusApplied:
			c.record(outcome.EventBaselineApplied, "", baselineDetail{
				Version:     p.AppliedVersion,
				Family:      p.Family,
				Improvement: p.Improvement,
			})
		case optimizer.StatusRolledBack:
			if c.metrics != nil {
				c.metrics.RecordRollback()
			}
			c.record(outcome.EventBaselineRolledBack, "", rollbackDetail{
				Version: p.BaselineVersion,
				Metric:  p.TriggeringMetric,
				Cause:   p.RollbackCause,
			})
		}
	}
	return proposals, err
}

// scheduledCycle is the cron entry point. An overrunning previous cycle
// skips this tick instead of stacking.
func (c *Coordinator) scheduledCycle() {
	if !c.cycleMu.TryLock() {
		c.logger.Info("optimizer cycle skipped, previous still running")
		return
	}
	defer c.cycleMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()
	if _, err := c.runCycle(ctx); err != nil {
		c.logger.Error("scheduled optimizer cycle failed", "error", err)
	}
}
