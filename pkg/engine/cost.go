package engine

import (
	"fmt"
	"sync"

	"github.com/zen-systems/helmsman/pkg/adapter"
	"github.com/zen-systems/helmsman/pkg/baseline"
)

// costTracker accumulates session spend against the cost ceiling. A
// zero ceiling disables enforcement.
type costTracker struct {
	mu        sync.Mutex
	maxUSD    float64
	total     float64
	lastUsage *adapter.Usage
	warned    bool
}

func newCostTracker(maxUSD float64) *costTracker {
	return &costTracker{maxUSD: maxUSD}
}

// checkBudget reports an error when the ceiling is already spent, or
// when a call priced like the last observed usage would overshoot it.
func (c *costTracker) checkBudget(price baseline.Pricing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxUSD <= 0 {
		return nil
	}
	if c.total >= c.maxUSD {
		return fmt.Errorf("cost budget %.2f USD exceeded (spent %.2f)", c.maxUSD, c.total)
	}
	if c.lastUsage != nil {
		if projected := c.total + costOf(price, c.lastUsage); projected > c.maxUSD {
			return fmt.Errorf("cost budget %.2f USD would be exceeded (projected %.2f)", c.maxUSD, projected)
		}
	}
	return nil
}

// add records the cost of a completed call. warn is true exactly once,
// when the running total first crosses the warning fraction.
func (c *costTracker) add(cost float64, usage *adapter.Usage) (warn bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += cost
	if usage != nil {
		c.lastUsage = usage
	}
	if c.maxUSD > 0 && !c.warned && c.total >= warnFraction*c.maxUSD {
		c.warned = true
		return true
	}
	return false
}

func (c *costTracker) exceeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxUSD > 0 && c.total >= c.maxUSD
}

func (c *costTracker) spent() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// costOf prices a call from its token usage and the tier's per-million
// token rates.
func costOf(p baseline.Pricing, u *adapter.Usage) float64 {
	if u == nil {
		return 0
	}
	in := float64(u.PromptTokens) / 1e6 * p.InputPerMTok
	out := float64(u.CompletionTokens) / 1e6 * p.OutputPerMTok
	return in + out
}
