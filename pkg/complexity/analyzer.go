// Package complexity estimates how demanding a natural-language task is.
// The score drives tier selection: keyword signals and query length place a
// query on a [0,1] scale, with negative signals suppressing trivially
// conversational queries.
package complexity

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// SignalScore records the matches found for one signal category.
type SignalScore struct {
	Count int     `json:"count"`
	Score float64 `json:"score"`
}

// Result holds a complexity estimate with its evidence.
type Result struct {
	Score     float64                `json:"score"`
	Tokens    int                    `json:"tokens"`
	Signals   map[string]SignalScore `json:"signals,omitempty"`
	Reasoning string                 `json:"reasoning"`
}

// signalCategory pairs a named keyword set with its weight. Keywords match
// as lowercase substrings; per category the contribution is capped at three
// matches.
type signalCategory struct {
	name     string
	weight   float64
	keywords []string
}

// Categories are scanned in a fixed order so reasoning strings are
// deterministic.
var signalTable = []signalCategory{
	{"code", 0.15, []string{
		"function", "class", "async", "import", "export", "const", "let",
		"var", "interface", "type", "enum", "module", "require", "def ",
		"return",
	}},
	{"architecture", 0.25, []string{
		"design", "architecture", "system", "refactor", "restructure",
		"pattern", "microservice", "distributed", "scalable", "optimize",
	}},
	{"debug", 0.10, []string{
		"error", "fix", "bug", "debug", "why", "not working", "broken",
		"crash", "exception", "failed", "issue", "problem",
	}},
	{"multiFile", 0.20, []string{
		"across", "all files", "every", "multiple", "entire codebase",
		"project-wide", "refactor all", "update all",
	}},
	{"analysis", 0.15, []string{
		"analyze", "review", "audit", "compare", "evaluate", "assess",
		"investigate", "research", "study", "understand",
	}},
	{"creation", 0.10, []string{
		"create", "build", "implement", "develop", "write", "generate",
		"make", "add", "new feature", "from scratch",
	}},
	{"simple", -0.15, []string{
		"what is", "how to", "explain", "show me", "list", "print",
		"hello", "thanks", "yes", "no", "ok",
	}},
}

// Token-count bands and their base scores.
var tokenBands = []struct {
	max   int
	score float64
	label string
}{
	{20, 0.10, "short"},
	{100, 0.30, "medium"},
	{500, 0.60, "long"},
	{math.MaxInt, 0.90, "very long"},
}

var projectContextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(this|our|my|the)\s+\w+\s+(file|code|project|app|component)`),
	regexp.MustCompile(`(?i)\bin\s+(this|the)\s+(codebase|repo|project)`),
	regexp.MustCompile(`(?i)\bcurrent\s+(file|directory|project)`),
}

var conversationalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(hi|hello|hey|thanks|thank you|ok|okay|yes|no|sure)`),
	regexp.MustCompile(`(?i)^what (is|are) \w+\??$`),
	regexp.MustCompile(`(?i)^(how|can|could) (do|can) (i|you)`),
}

const (
	maxMatchesPerCategory = 3
	projectContextBoost   = 0.15
	conversationalPenalty = 0.20
)

// EstimateTokens approximates the token count at roughly four characters per
// token, never below one.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// Analyze estimates the complexity of a query. It is pure and deterministic;
// empty text yields the shortest-band base score with no signals.
func Analyze(query string) *Result {
	tokens := EstimateTokens(query)
	lower := strings.ToLower(query)

	var reasons []string
	score := 0.0
	for _, band := range tokenBands {
		if tokens <= band.max {
			score = band.score
			reasons = append(reasons, fmt.Sprintf("%s query (%d tokens)", band.label, tokens))
			break
		}
	}

	signals := make(map[string]SignalScore)
	for _, cat := range signalTable {
		count := countMatches(lower, cat.keywords)
		if count == 0 {
			continue
		}
		capped := count
		if capped > maxMatchesPerCategory {
			capped = maxMatchesPerCategory
		}
		contribution := cat.weight * float64(capped)
		signals[cat.name] = SignalScore{Count: count, Score: contribution}
		score += contribution
		if cat.weight > 0 {
			reasons = append(reasons, fmt.Sprintf("%s: %d signal(s)", cat.name, count))
		}
	}

	if hasProjectContext(query) {
		score += projectContextBoost
		reasons = append(reasons, "requires project context")
	}
	if isConversational(query) {
		score -= conversationalPenalty
		reasons = append(reasons, "conversational")
	}

	score = clamp01(score)
	score = math.Round(score*1000) / 1000

	return &Result{
		Score:     score,
		Tokens:    tokens,
		Signals:   signals,
		Reasoning: strings.Join(reasons, "; "),
	}
}

// countMatches counts how many keywords of a category appear in the query.
// Each keyword counts once regardless of repetition.
func countMatches(lowerQuery string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(lowerQuery, kw) {
			count++
		}
	}
	return count
}

func hasProjectContext(query string) bool {
	for _, p := range projectContextPatterns {
		if p.MatchString(query) {
			return true
		}
	}
	return false
}

func isConversational(query string) bool {
	if len(query) >= 50 {
		return false
	}
	for _, p := range conversationalPatterns {
		if p.MatchString(query) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
