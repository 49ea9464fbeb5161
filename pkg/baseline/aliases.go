package baseline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ModelAliases maps friendly model names to canonical model ids and tracks
// which provider serves each canonical model. Tier models in a user-supplied
// baseline resolve through this table before the baseline is published.
type ModelAliases struct {
	Aliases   map[string]string   `yaml:"aliases"`
	Providers map[string][]string `yaml:"providers"`
}

// LoadAliases reads model aliases from a YAML file.
func LoadAliases(path string) (*ModelAliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var aliases ModelAliases
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, err
	}

	if aliases.Aliases == nil {
		aliases.Aliases = make(map[string]string)
	}
	if aliases.Providers == nil {
		aliases.Providers = make(map[string][]string)
	}
	return &aliases, nil
}

// LoadAliasesWithFallback loads aliases from the user config dir, falling
// back to the provided default path, then to DefaultAliases.
func LoadAliasesWithFallback(defaultPath string) (*ModelAliases, error) {
	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".helmsman", "models.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return LoadAliases(userPath)
		}
	}

	if defaultPath != "" {
		if _, err := os.Stat(defaultPath); err == nil {
			return LoadAliases(defaultPath)
		}
	}

	return DefaultAliases(), nil
}

// Resolve returns the canonical model name for an alias. Unknown names pass
// through unchanged.
func (a *ModelAliases) Resolve(modelOrAlias string) string {
	if a == nil || a.Aliases == nil {
		return modelOrAlias
	}
	if canonical, ok := a.Aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// ProviderFor returns the provider name serving a canonical model, or "".
func (a *ModelAliases) ProviderFor(model string) string {
	if a == nil || a.Providers == nil {
		return ""
	}
	for provider, models := range a.Providers {
		for _, m := range models {
			if m == model {
				return provider
			}
		}
	}
	return ""
}

// ValidateModel checks that a model exists in the provider's list.
func (a *ModelAliases) ValidateModel(provider, model string) error {
	if a == nil || a.Providers == nil {
		return nil
	}

	models, ok := a.Providers[provider]
	if !ok {
		return fmt.Errorf("unknown provider %q", provider)
	}
	for _, m := range models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("model %q not in %s provider list", model, provider)
}

// ListProviders returns a sorted list of provider names.
func (a *ModelAliases) ListProviders() []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	providers := make([]string, 0, len(a.Providers))
	for p := range a.Providers {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// ProviderModels returns the models for a given provider.
func (a *ModelAliases) ProviderModels(provider string) []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	return a.Providers[provider]
}

// DefaultAliases returns the default alias table. Tier names resolve to the
// Default() baseline's models so CLI flags accept "light"/"standard"/"premium"
// directly.
func DefaultAliases() *ModelAliases {
	return &ModelAliases{
		Aliases: map[string]string{
			"light":    "claude-haiku-4-20250514",
			"standard": "claude-sonnet-4-20250514",
			"premium":  "claude-opus-4-20250514",
			// Friendly names kept for overrides.
			"cheap":    "deepseek-chat",
			"fast":     "gpt-5.2-instant",
			"thinking": "gpt-5.2-thinking",
			"research": "gemini-2.0-pro",
			"deep":     "claude-opus-4-20250514",
		},
		Providers: map[string][]string{
			"anthropic": {"claude-haiku-4-20250514", "claude-sonnet-4-20250514", "claude-opus-4-20250514"},
			"openai":    {"gpt-5.2-instant", "gpt-5.2-thinking", "gpt-5.2-codex", "gpt-5.2-pro"},
			"google":    {"gemini-2.0-pro"},
			"deepseek":  {"deepseek-chat", "deepseek-coder", "deepseek-reasoner"},
		},
	}
}
