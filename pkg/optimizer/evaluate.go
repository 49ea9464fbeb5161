package optimizer

import (
	"math"

	"github.com/zen-systems/helmsman/pkg/baseline"
	"github.com/zen-systems/helmsman/pkg/outcome"
)

// evaluation is the result of replaying evidence against candidate
// thresholds: the proposed deltas plus the gain they showed on each
// partition of the train/holdout split.
type evaluation struct {
	window     Window
	deltas     []Delta
	trainGain  float64
	holdGain   float64
	confidence float64
}

// evaluate splits the evidence into interleaved train and holdout
// partitions, picks the tier thresholds that maximize counterfactual
// routing accuracy on the train partition, and measures the resulting
// gain on both. Thresholds are tuned one at a time, light before
// standard, so the ordering constraint between them always holds.
func evaluate(records []outcome.Record, cur *baseline.Baseline) evaluation {
	var train, holdout []outcome.Record
	for i, rec := range records {
		if i%2 == 0 {
			train = append(train, rec)
		} else {
			holdout = append(holdout, rec)
		}
	}

	curLight := cur.Tiers[baseline.TierLight].RangeMax
	curStandard := cur.Tiers[baseline.TierStandard].RangeMax

	newLight := bestThreshold(train, curLight,
		func(c float64) bool { return c <= curStandard },
		func(c float64) float64 { return accuracy(train, c, curStandard) })
	newStandard := bestThreshold(train, curStandard,
		func(c float64) bool { return c >= newLight },
		func(c float64) float64 { return accuracy(train, newLight, c) })

	ev := evaluation{
		window: Window{
			From:     records[0].Outcome.FinishedAt,
			To:       records[len(records)-1].Outcome.FinishedAt,
			Sessions: len(records),
		},
	}
	if newLight != curLight {
		ev.deltas = append(ev.deltas, Delta{Parameter: ParamLightRangeMax, From: curLight, To: newLight})
	}
	if newStandard != curStandard {
		ev.deltas = append(ev.deltas, Delta{Parameter: ParamStandardRangeMax, From: curStandard, To: newStandard})
	}

	ev.trainGain = relativeGain(
		accuracy(train, curLight, curStandard),
		accuracy(train, newLight, newStandard))
	ev.holdGain = relativeGain(
		accuracy(holdout, curLight, curStandard),
		accuracy(holdout, newLight, newStandard))

	consistency := clamp01(1 - math.Abs(ev.trainGain-ev.holdGain))
	ev.confidence = math.Min(1, float64(len(records))/float64(minSessions)) * consistency
	return ev
}

// bestThreshold scores the current value plus every admissible observed
// complexity as a candidate threshold and returns the winner. Score ties
// break toward the candidate nearest the current value, then toward the
// lower threshold, so the result does not depend on evidence order.
func bestThreshold(train []outcome.Record, cur float64, ok func(float64) bool, score func(float64) float64) float64 {
	seen := map[float64]bool{cur: true}
	candidates := []float64{cur}
	for i := range train {
		c := train[i].Outcome.Complexity
		if c <= 0 || c > 1 || !ok(c) || seen[c] {
			continue
		}
		seen[c] = true
		candidates = append(candidates, c)
	}

	best, bestScore := cur, score(cur)
	for _, cand := range candidates[1:] {
		s := score(cand)
		if s > bestScore || (s == bestScore && preferred(cand, best, cur)) {
			best, bestScore = cand, s
		}
	}
	return best
}

func preferred(cand, best, cur float64) bool {
	dc, db := math.Abs(cand-cur), math.Abs(best-cur)
	if dc != db {
		return dc < db
	}
	return cand < best
}

// accuracy is the fraction of records whose counterfactual routing under
// the given thresholds matches the tier the outcome says they needed.
func accuracy(records []outcome.Record, lightMax, standardMax float64) float64 {
	if len(records) == 0 {
		return 0
	}
	hits := 0
	for i := range records {
		o := &records[i].Outcome
		if routedUnder(lightMax, standardMax, o.Complexity) == correctedTier(o) {
			hits++
		}
	}
	return float64(hits) / float64(len(records))
}

// routedUnder replays the dispatch rule: the cheapest tier whose range
// still covers the complexity wins.
func routedUnder(lightMax, standardMax, c float64) baseline.Tier {
	switch {
	case c <= lightMax:
		return baseline.TierLight
	case c <= standardMax:
		return baseline.TierStandard
	default:
		return baseline.TierPremium
	}
}

// correctedTier is the tier a session should have used, judged after the
// fact: a successful session validates its own tier and a failed one is
// assumed to have needed the next tier up.
func correctedTier(o *outcome.SessionOutcome) baseline.Tier {
	if o.Succeeded() {
		return o.Tier
	}
	tiers := baseline.Tiers()
	i := o.Tier.Index()
	if i < 0 || i+1 >= len(tiers) {
		return baseline.TierPremium
	}
	return tiers[i+1]
}

func relativeGain(before, after float64) float64 {
	if before == 0 {
		return after
	}
	return (after - before) / before
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
