package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"subconscious/internal/models"
)

// ModelMap resolves which backend model handles each thought type, the
// per-model generation cap, and the seed insight keywords for scoring.
type ModelMap struct {
	// Models maps thought type -> model identifier.
	Models map[models.ThoughtType]string `yaml:"models"`
	// DefaultModel handles any type without an explicit entry.
	DefaultModel string `yaml:"default_model"`
	// MaxTokens maps model identifier -> generation cap (num_predict).
	MaxTokens map[string]int `yaml:"max_tokens"`
	// InsightKeywords seed the scoring profile's keyword weights.
	InsightKeywords []string `yaml:"insight_keywords"`
}

// DefaultModelMap mirrors the historical reasoning/fast split: deep
// reasoning types go to the large model, everything else to the small
// one.
func DefaultModelMap() *ModelMap {
	reasoning := getEnv("SUBCONSCIOUS_REASONING_MODEL", "deepseek-r1:latest")
	fast := getEnv("SUBCONSCIOUS_FAST_MODEL", "llama3.2:latest")
	return &ModelMap{
		Models: map[models.ThoughtType]string{
			models.TypeProblem:  reasoning,
			models.TypeDesign:   reasoning,
			models.TypeAnalysis: reasoning,
		},
		DefaultModel: fast,
		MaxTokens: map[string]int{
			reasoning: 4096,
			fast:      1024,
		},
		InsightKeywords: []string{
			"realize", "notice", "pattern", "connect", "understand",
			"interesting", "significant", "elegant", "fundamental",
		},
	}
}

// LoadModelMap reads a model map from a YAML file, falling back to the
// defaults for any field left empty.
func LoadModelMap(path string) (*ModelMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read models file: %w", err)
	}

	var mm ModelMap
	if err := yaml.Unmarshal(data, &mm); err != nil {
		return nil, fmt.Errorf("failed to parse models YAML: %w", err)
	}

	defaults := DefaultModelMap()
	if mm.DefaultModel == "" {
		mm.DefaultModel = defaults.DefaultModel
	}
	if len(mm.Models) == 0 {
		mm.Models = defaults.Models
	}
	if len(mm.MaxTokens) == 0 {
		mm.MaxTokens = defaults.MaxTokens
	}
	if len(mm.InsightKeywords) == 0 {
		mm.InsightKeywords = defaults.InsightKeywords
	}

	for t := range mm.Models {
		if !t.IsValid() {
			return nil, fmt.Errorf("models file maps unknown thought type %q", t)
		}
	}
	return &mm, nil
}

// ModelFor resolves the model assigned to a thought type.
func (m *ModelMap) ModelFor(t models.ThoughtType) string {
	if model, ok := m.Models[t]; ok {
		return model
	}
	return m.DefaultModel
}

// MaxTokensFor returns the generation cap for a model. Models without
// an explicit cap get the conservative small-model limit.
func (m *ModelMap) MaxTokensFor(model string) int {
	if n, ok := m.MaxTokens[model]; ok {
		return n
	}
	return 1024
}
