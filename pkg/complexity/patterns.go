package complexity

import "strings"

// Strategy names suggested by pattern detection.
const (
	StrategyReview    = "review"
	StrategyResearch  = "research"
	StrategyFull      = "full"
	StrategyImplement = "implement"
)

// PatternMatch names the dominant task pattern in a query and the execution
// strategy it suggests. Confidence is the fraction of the pattern's keywords
// that matched.
type PatternMatch struct {
	Pattern    string  `json:"pattern"`
	Confidence float64 `json:"confidence"`
	Strategy   string  `json:"strategy"`
}

type taskPattern struct {
	name     string
	strategy string
	keywords []string
}

var patternTable = []taskPattern{
	{"debugging", StrategyReview, []string{
		"debug", "fix", "bug", "error", "issue", "broken", "crash", "traceback",
	}},
	{"research", StrategyResearch, []string{
		"research", "explore", "investigate", "understand", "analyze", "study", "survey",
	}},
	{"architecture", StrategyFull, []string{
		"architect", "design", "structure", "system", "refactor major", "redesign",
	}},
	{"refactoring", StrategyImplement, []string{
		"refactor", "rename", "extract", "reorganize", "cleanup", "simplify",
	}},
	{"implementation", StrategyImplement, []string{
		"implement", "build", "create", "add", "feature", "develop", "new",
	}},
	{"testing", StrategyReview, []string{
		"test", "spec", "coverage", "vitest", "jest", "pytest", "assert",
	}},
	{"documentation", StrategyResearch, []string{
		"doc", "readme", "comment", "explain", "guide", "tutorial",
	}},
	{"optimization", StrategyFull, []string{
		"optim", "performance", "speed", "efficient", "cache", "fast", "slow",
	}},
}

// DetectPattern scores each task pattern by keyword matches and returns the
// best one. Ties keep the earliest pattern in table order. Queries matching
// nothing return the implement default with zero confidence.
func DetectPattern(query string) PatternMatch {
	lower := strings.ToLower(query)

	best := -1
	bestMatches := 0
	for i, p := range patternTable {
		matches := countMatches(lower, p.keywords)
		if matches > bestMatches {
			best = i
			bestMatches = matches
		}
	}

	if best < 0 {
		return PatternMatch{Pattern: "unknown", Confidence: 0, Strategy: StrategyImplement}
	}

	p := patternTable[best]
	confidence := float64(bestMatches) / float64(len(p.keywords))
	if confidence > 1 {
		confidence = 1
	}
	return PatternMatch{Pattern: p.name, Confidence: confidence, Strategy: p.strategy}
}
