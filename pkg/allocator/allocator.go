// Package allocator divides an integer compute budget across subtasks in
// proportion to their uncertainty, so the least predictable work receives
// the most resources.
package allocator

import (
	"math"
	"sort"
	"time"

	"github.com/zen-systems/helmsman/pkg/baseline"
)

// Entropy combination weights. Complexity dominates because it is the
// strongest predictor of rework; failure history and score variance share
// the remainder equally.
const (
	complexityWeight  = 0.4
	failureRateWeight = 0.3
	dqVarianceWeight  = 0.3
)

// Entropy band boundaries and the tier/timeout granted inside each band.
const (
	highEntropy   = 0.7
	mediumEntropy = 0.3

	highTimeout   = 600 * time.Second
	mediumTimeout = 300 * time.Second
	lowTimeout    = 120 * time.Second
)

// Subtask carries the uncertainty signals for one unit of work. All three
// signals are in [0,1]; callers without history pass zero for FailureRate
// and DQVariance.
type Subtask struct {
	ID          string  `json:"id"`
	Description string  `json:"description,omitempty"`
	Complexity  float64 `json:"complexity"`
	FailureRate float64 `json:"failure_rate"`
	DQVariance  float64 `json:"dq_variance"`
}

// Allocation is the resource grant for one subtask.
type Allocation struct {
	SubtaskID string        `json:"subtask_id"`
	Tier      baseline.Tier `json:"tier"`
	Timeout   time.Duration `json:"timeout"`
	Agents    int           `json:"agents"`
	Entropy   float64       `json:"entropy"`
}

// Entropy combines the three uncertainty signals into a single score in
// [0,1].
func Entropy(s Subtask) float64 {
	return complexityWeight*s.Complexity +
		failureRateWeight*s.FailureRate +
		dqVarianceWeight*s.DQVariance
}

// Allocate divides budget agents across the subtasks in proportion to
// their entropy. The integer grants always sum to exactly budget, every
// subtask receives at least one agent, and grants never decrease as
// entropy increases. Returns InsufficientBudgetError when budget is
// smaller than the subtask count and ValidationError when any signal lies
// outside [0,1]. Results are in input order.
func Allocate(subtasks []Subtask, budget int) ([]Allocation, error) {
	if len(subtasks) == 0 {
		return nil, nil
	}
	for _, s := range subtasks {
		if err := validate(s); err != nil {
			return nil, err
		}
	}
	if budget < len(subtasks) {
		return nil, &InsufficientBudgetError{Budget: budget, Subtasks: len(subtasks)}
	}

	entropies := make([]float64, len(subtasks))
	var sum float64
	for i, s := range subtasks {
		entropies[i] = Entropy(s)
		sum += entropies[i]
	}

	shares := make([]float64, len(subtasks))
	if sum == 0 {
		// Nothing distinguishes the subtasks; split evenly.
		for i := range shares {
			shares[i] = float64(budget) / float64(len(subtasks))
		}
	} else {
		for i, e := range entropies {
			shares[i] = float64(budget) * e / sum
		}
	}

	agents := integerize(shares, entropies, budget)
	ensureMinimum(agents, entropies)

	out := make([]Allocation, len(subtasks))
	for i, s := range subtasks {
		tier, timeout := bandFor(entropies[i])
		out[i] = Allocation{
			SubtaskID: s.ID,
			Tier:      tier,
			Timeout:   timeout,
			Agents:    agents[i],
			Entropy:   entropies[i],
		}
	}
	return out, nil
}

func validate(s Subtask) error {
	checks := []struct {
		field string
		value float64
	}{
		{"complexity", s.Complexity},
		{"failure_rate", s.FailureRate},
		{"dq_variance", s.DQVariance},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || c.value < 0 || c.value > 1 {
			return &ValidationError{SubtaskID: s.ID, Field: c.field, Value: c.value}
		}
	}
	return nil
}

// integerize converts fractional shares to integers summing exactly to
// budget via largest-remainder rounding. Remainder ties go to the
// higher-entropy subtask, which keeps grants non-decreasing in entropy.
func integerize(shares, entropies []float64, budget int) []int {
	agents := make([]int, len(shares))
	assigned := 0
	for i, sh := range shares {
		agents[i] = int(math.Floor(sh))
		assigned += agents[i]
	}

	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra := shares[order[a]] - math.Floor(shares[order[a]])
		rb := shares[order[b]] - math.Floor(shares[order[b]])
		if ra != rb {
			return ra > rb
		}
		return entropies[order[a]] > entropies[order[b]]
	})
	for k := 0; k < budget-assigned; k++ {
		agents[order[k]]++
	}
	return agents
}

// ensureMinimum lifts every zero grant to one agent. The unit is taken
// from the lowest-entropy holder of the current maximum; with budget >=
// subtask count that holder always has at least two, and the transfer
// cannot invert the entropy ordering.
func ensureMinimum(agents []int, entropies []float64) {
	for {
		zero := -1
		for i, a := range agents {
			if a == 0 {
				zero = i
				break
			}
		}
		if zero < 0 {
			return
		}
		donor := -1
		max := 0
		for i, a := range agents {
			if a > max {
				max = a
				donor = i
			} else if a == max && donor >= 0 && entropies[i] < entropies[donor] {
				donor = i
			}
		}
		agents[donor]--
		agents[zero]++
	}
}

func bandFor(entropy float64) (baseline.Tier, time.Duration) {
	switch {
	case entropy > highEntropy:
		return baseline.TierPremium, highTimeout
	case entropy > mediumEntropy:
		return baseline.TierStandard, mediumTimeout
	default:
		return baseline.TierLight, lowTimeout
	}
}
