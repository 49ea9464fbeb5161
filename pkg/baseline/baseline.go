// Package baseline defines the versioned routing configuration: DQ weights,
// per-tier complexity ranges, thinking-tier bands, and the cost table. A
// Baseline is immutable once published; updates create a new version and the
// store flips a current pointer atomically.
package baseline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Tier identifies a model capability tier.
type Tier string

const (
	TierLight    Tier = "light"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Tiers returns all tiers ordered from lowest to highest capability.
func Tiers() []Tier {
	return []Tier{TierLight, TierStandard, TierPremium}
}

// Index returns the tier's position in capability order, or -1 if unknown.
func (t Tier) Index() int {
	for i, tier := range Tiers() {
		if tier == t {
			return i
		}
	}
	return -1
}

// ThinkingTier identifies an extended-thinking effort level.
type ThinkingTier string

const (
	ThinkingNone   ThinkingTier = "none"
	ThinkingLow    ThinkingTier = "low"
	ThinkingMedium ThinkingTier = "medium"
	ThinkingHigh   ThinkingTier = "high"
	ThinkingMax    ThinkingTier = "max"
)

// ThinkingTiers returns the banded thinking tiers ordered by effort.
// ThinkingNone is the implicit tier below the first band.
func ThinkingTiers() []ThinkingTier {
	return []ThinkingTier{ThinkingLow, ThinkingMedium, ThinkingHigh, ThinkingMax}
}

// Weights holds the DQ component weights. They must sum to 1.0.
type Weights struct {
	Validity    float64 `yaml:"validity" json:"validity"`
	Specificity float64 `yaml:"specificity" json:"specificity"`
	Correctness float64 `yaml:"correctness" json:"correctness"`
}

// Sum returns the total of the three weights.
func (w Weights) Sum() float64 {
	return w.Validity + w.Specificity + w.Correctness
}

// Band is a half-open interval [Lo, Hi). The topmost band in a contiguous
// set is treated as closed at 1.0.
type Band struct {
	Lo float64 `yaml:"lo" json:"lo"`
	Hi float64 `yaml:"hi" json:"hi"`
}

// Contains reports whether score falls inside the band. closedHi treats the
// upper bound as inclusive (used for the topmost band).
func (b Band) Contains(score float64, closedHi bool) bool {
	if closedHi {
		return score >= b.Lo && score <= b.Hi
	}
	return score >= b.Lo && score < b.Hi
}

// Pricing defines per-million-token costs in USD.
type Pricing struct {
	InputPerMTok  float64 `yaml:"input_per_mtok" json:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok" json:"output_per_mtok"`
}

// TierConfig holds the routing thresholds and pricing for one tier.
// The tier's full complexity range is [0, RangeMax]; Optimal is the
// sub-range where the tier is the ideal choice.
type TierConfig struct {
	RangeMax float64 `yaml:"range_max" json:"range_max"`
	Optimal  Band    `yaml:"optimal" json:"optimal"`
	Pricing  Pricing `yaml:"pricing" json:"pricing"`
}

// LineageEntry records the evidence behind a published baseline version.
type LineageEntry struct {
	Timestamp        time.Time          `yaml:"timestamp" json:"timestamp"`
	Source           string             `yaml:"source" json:"source"`
	Note             string             `yaml:"note,omitempty" json:"note,omitempty"`
	EvidenceFrom     time.Time          `yaml:"evidence_from,omitempty" json:"evidence_from,omitempty"`
	EvidenceTo       time.Time          `yaml:"evidence_to,omitempty" json:"evidence_to,omitempty"`
	EvidenceSessions int                `yaml:"evidence_sessions,omitempty" json:"evidence_sessions,omitempty"`
	Delta            map[string]float64 `yaml:"delta,omitempty" json:"delta,omitempty"`
}

// Lineage source markers.
const (
	SourceInitial   = "initial"
	SourceOptimizer = "optimizer"
	SourceRollback  = "rollback"
)

// Baseline is one immutable version of the routing configuration.
type Baseline struct {
	Version   string                `yaml:"version" json:"version"`
	Weights   Weights               `yaml:"weights" json:"weights"`
	Tiers     map[Tier]TierConfig   `yaml:"tiers" json:"tiers"`
	Thinking  map[ThinkingTier]Band `yaml:"thinking" json:"thinking"`
	Models    map[Tier]string       `yaml:"models" json:"models"`
	Lineage   []LineageEntry        `yaml:"lineage,omitempty" json:"lineage,omitempty"`
	Checksum  string                `yaml:"checksum,omitempty" json:"checksum,omitempty"`
	CreatedAt time.Time             `yaml:"created_at,omitempty" json:"created_at,omitempty"`
}

const weightTolerance = 1e-9

// Default returns the initial baseline version with documented defaults.
func Default() *Baseline {
	return &Baseline{
		Version: "1.0.0",
		Weights: Weights{Validity: 0.35, Specificity: 0.25, Correctness: 0.40},
		Tiers: map[Tier]TierConfig{
			TierLight: {
				RangeMax: 0.20,
				Optimal:  Band{Lo: 0.0, Hi: 0.25},
				Pricing:  Pricing{InputPerMTok: 0.80, OutputPerMTok: 4.00},
			},
			TierStandard: {
				RangeMax: 0.70,
				Optimal:  Band{Lo: 0.25, Hi: 0.75},
				Pricing:  Pricing{InputPerMTok: 3.00, OutputPerMTok: 15.00},
			},
			TierPremium: {
				RangeMax: 1.00,
				Optimal:  Band{Lo: 0.75, Hi: 1.00},
				Pricing:  Pricing{InputPerMTok: 5.00, OutputPerMTok: 25.00},
			},
		},
		Thinking: map[ThinkingTier]Band{
			ThinkingLow:    {Lo: 0.60, Hi: 0.72},
			ThinkingMedium: {Lo: 0.72, Hi: 0.85},
			ThinkingHigh:   {Lo: 0.85, Hi: 0.95},
			ThinkingMax:    {Lo: 0.95, Hi: 1.00},
		},
		Models: map[Tier]string{
			TierLight:    "claude-haiku-4-20250514",
			TierStandard: "claude-sonnet-4-20250514",
			TierPremium:  "claude-opus-4-20250514",
		},
		Lineage: []LineageEntry{{
			Timestamp: time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
			Source:    SourceInitial,
			Note:      "hand-tuned defaults",
		}},
		CreatedAt: time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
	}
}

// Validate checks the baseline for consistency. It returns a *ConfigError
// describing the first violation found.
func (b *Baseline) Validate() error {
	if b == nil {
		return &ConfigError{Field: "baseline", Reason: "nil"}
	}
	if b.Version == "" {
		return &ConfigError{Field: "version", Reason: "empty"}
	}

	if math.Abs(b.Weights.Sum()-1.0) > weightTolerance {
		return &ConfigError{
			Field:  "weights",
			Reason: fmt.Sprintf("must sum to 1.0, got %.12f", b.Weights.Sum()),
		}
	}
	for name, w := range map[string]float64{
		"weights.validity":    b.Weights.Validity,
		"weights.specificity": b.Weights.Specificity,
		"weights.correctness": b.Weights.Correctness,
	} {
		if w < 0 || w > 1 {
			return &ConfigError{Field: name, Reason: fmt.Sprintf("outside [0,1]: %v", w)}
		}
	}

	prevMax := 0.0
	prevOptimalHi := 0.0
	for i, tier := range Tiers() {
		cfg, ok := b.Tiers[tier]
		if !ok {
			return &ConfigError{Field: "tiers." + string(tier), Reason: "missing"}
		}
		if cfg.RangeMax <= 0 || cfg.RangeMax > 1 {
			return &ConfigError{
				Field:  "tiers." + string(tier) + ".range_max",
				Reason: fmt.Sprintf("outside (0,1]: %v", cfg.RangeMax),
			}
		}
		if cfg.RangeMax < prevMax {
			return &ConfigError{
				Field:  "tiers." + string(tier) + ".range_max",
				Reason: "ranges must be non-decreasing across tiers",
			}
		}
		prevMax = cfg.RangeMax

		if cfg.Optimal.Lo >= cfg.Optimal.Hi {
			return &ConfigError{
				Field:  "tiers." + string(tier) + ".optimal",
				Reason: fmt.Sprintf("empty band [%v,%v)", cfg.Optimal.Lo, cfg.Optimal.Hi),
			}
		}
		if i == 0 && cfg.Optimal.Lo != 0 {
			return &ConfigError{
				Field:  "tiers." + string(tier) + ".optimal",
				Reason: "lowest tier band must start at 0",
			}
		}
		if i > 0 && math.Abs(cfg.Optimal.Lo-prevOptimalHi) > weightTolerance {
			return &ConfigError{
				Field:  "tiers." + string(tier) + ".optimal",
				Reason: "optimal bands must be contiguous across tiers",
			}
		}
		prevOptimalHi = cfg.Optimal.Hi

		if cfg.Pricing.InputPerMTok < 0 || cfg.Pricing.OutputPerMTok < 0 {
			return &ConfigError{Field: "tiers." + string(tier) + ".pricing", Reason: "negative cost"}
		}
		if b.Models[tier] == "" {
			return &ConfigError{Field: "models." + string(tier), Reason: "missing model id"}
		}
	}
	if math.Abs(prevOptimalHi-1.0) > weightTolerance {
		return &ConfigError{Field: "tiers", Reason: "optimal bands must cover up to 1.0"}
	}

	prevHi := 0.0
	for i, tt := range ThinkingTiers() {
		band, ok := b.Thinking[tt]
		if !ok {
			return &ConfigError{Field: "thinking." + string(tt), Reason: "missing"}
		}
		if band.Lo >= band.Hi {
			return &ConfigError{
				Field:  "thinking." + string(tt),
				Reason: fmt.Sprintf("empty band [%v,%v)", band.Lo, band.Hi),
			}
		}
		if i > 0 && math.Abs(band.Lo-prevHi) > weightTolerance {
			return &ConfigError{Field: "thinking." + string(tt), Reason: "bands must be contiguous"}
		}
		prevHi = band.Hi
	}
	if math.Abs(prevHi-1.0) > weightTolerance {
		return &ConfigError{Field: "thinking", Reason: "top band must end at 1.0"}
	}

	return nil
}

// ThinkingFor maps a score to a thinking tier using half-open band
// boundaries; the top band is closed at 1.0. Scores below the first band
// map to ThinkingNone.
func (b *Baseline) ThinkingFor(score float64) ThinkingTier {
	tiers := ThinkingTiers()
	for i, tt := range tiers {
		if b.Thinking[tt].Contains(score, i == len(tiers)-1) {
			return tt
		}
	}
	return ThinkingNone
}

// Clone returns a deep copy. Stored baselines are cloned on read so callers
// can never mutate a published version.
func (b *Baseline) Clone() *Baseline {
	if b == nil {
		return nil
	}
	out := *b
	out.Tiers = make(map[Tier]TierConfig, len(b.Tiers))
	for k, v := range b.Tiers {
		out.Tiers[k] = v
	}
	out.Thinking = make(map[ThinkingTier]Band, len(b.Thinking))
	for k, v := range b.Thinking {
		out.Thinking[k] = v
	}
	out.Models = make(map[Tier]string, len(b.Models))
	for k, v := range b.Models {
		out.Models[k] = v
	}
	out.Lineage = make([]LineageEntry, len(b.Lineage))
	copy(out.Lineage, b.Lineage)
	for i, entry := range b.Lineage {
		if entry.Delta != nil {
			d := make(map[string]float64, len(entry.Delta))
			for k, v := range entry.Delta {
				d[k] = v
			}
			out.Lineage[i].Delta = d
		}
	}
	return &out
}

// ComputeChecksum returns the first 16 hex chars of the sha256 over the
// baseline's routing parameters. Lineage and timestamps are excluded so the
// checksum identifies the parameter set, not its provenance.
func (b *Baseline) ComputeChecksum() string {
	params := struct {
		Version  string                `json:"version"`
		Weights  Weights               `json:"weights"`
		Tiers    map[Tier]TierConfig   `json:"tiers"`
		Thinking map[ThinkingTier]Band `json:"thinking"`
		Models   map[Tier]string       `json:"models"`
	}{b.Version, b.Weights, b.Tiers, b.Thinking, b.Models}
	data, _ := json.Marshal(params)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// NextVersion returns the version string with the patch component bumped,
// e.g. "1.0.0" -> "1.0.1". Malformed versions gain a ".1" suffix.
func NextVersion(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return version + ".1"
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return version + ".1"
	}
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
}
