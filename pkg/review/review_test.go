package review

import (
	"strings"
	"testing"

	"github.com/zen-systems/helmsman/pkg/artifact"
)

func art(content string) *artifact.Artifact {
	return artifact.New(content, "mock", "mock-1", "implement the session store")
}

func TestCheck(t *testing.T) {
	solid := "func NewStore(path string) (*Store, error) {\n" +
		"\tdb, err := sql.Open(\"sqlite\", path)\n" +
		"\tif err != nil {\n\t\treturn nil, err\n\t}\n" +
		"\treturn &Store{db: db}, nil\n}"

	tests := []struct {
		name    string
		content string
		passed  bool
		score   float64
		rule    string
	}{
		{
			name:    "solid output passes clean",
			content: solid,
			passed:  true,
			score:   1.0,
		},
		{
			name:    "empty output scores zero",
			content: "   \n\t ",
			passed:  false,
			score:   0,
			rule:    "empty_output",
		},
		{
			name:    "refusal at the start fails",
			content: "I cannot help with this request because the task is unclear.",
			passed:  false,
			score:   0.5,
			rule:    "refusal",
		},
		{
			name:    "late limitation note is not a refusal",
			content: solid + "\n\nNote for completeness: I cannot verify the schema against your production database.",
			passed:  true,
			score:   1.0,
		},
		{
			name:    "single hollow marker passes with a note",
			content: solid + "\n// TODO: wire the busy timeout",
			passed:  true,
			score:   0.85,
			rule:    "hollow_content",
		},
		{
			name:    "stacked markers fail",
			content: "// TODO: everything\nfunc Store() { panic(\"not implemented\") } // FIXME",
			passed:  false,
			score:   0.55,
			rule:    "hollow_content",
		},
		{
			name:    "thin output is flagged",
			content: "done",
			passed:  true,
			score:   0.85,
			rule:    "thin_output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Check(art(tt.content))
			if res.Passed != tt.passed {
				t.Fatalf("passed = %v, want %v (violations %+v)", res.Passed, tt.passed, res.Violations)
			}
			if diff := res.Score - tt.score; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("score = %v, want %v", res.Score, tt.score)
			}
			if tt.rule != "" {
				found := false
				for _, v := range res.Violations {
					if v.Rule == tt.rule {
						found = true
					}
				}
				if !found {
					t.Fatalf("expected violation %q, got %+v", tt.rule, res.Violations)
				}
			}
		})
	}
}

func TestSummaryNamesRules(t *testing.T) {
	res := Check(art("TODO: write this later"))
	s := res.Summary()
	if !strings.Contains(s, "hollow_content") {
		t.Fatalf("summary missing rule: %q", s)
	}
	if !strings.Contains(s, "0.") {
		t.Fatalf("summary missing score: %q", s)
	}
}

func TestRepairPromptQuotesViolations(t *testing.T) {
	a := art("I cannot do that.")
	res := Check(a)
	if res.Passed {
		t.Fatal("fixture should fail review")
	}

	prompt := RepairPrompt(a, res)
	if !strings.Contains(prompt, a.Content) {
		t.Fatal("repair prompt missing original output")
	}
	if !strings.Contains(prompt, "refusal") {
		t.Fatal("repair prompt missing violation rule")
	}
	if !strings.Contains(prompt, a.Prompt) {
		t.Fatal("repair prompt missing original task")
	}
	if !strings.Contains(prompt, "corrected output") {
		t.Fatal("repair prompt missing instruction")
	}
}
