package irtsim

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StrategyDef is one entry of the rescripting strategy taxonomy.
type StrategyDef struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Taxonomy is the closed set of therapeutic strategy categories a plan may
// declare. It is the single source of truth: the extraction whitelist and
// the judge prompt are both derived from it at runtime.
type Taxonomy struct {
	Strategies []StrategyDef `yaml:"strategies" json:"strategies"`
	MaxPerPlan int           `yaml:"max_per_plan" json:"max_per_plan"`
}

// LoadTaxonomy reads a strategy taxonomy YAML file.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}
	if len(t.Strategies) == 0 {
		return nil, fmt.Errorf("taxonomy %s: no strategies defined", path)
	}
	for i, s := range t.Strategies {
		if s.ID == "" {
			return nil, fmt.Errorf("taxonomy %s: strategy %d has no id", path, i)
		}
	}
	if t.MaxPerPlan == 0 {
		t.MaxPerPlan = 2
	}
	return &t, nil
}

// IDs returns the set of valid strategy identifiers.
func (t *Taxonomy) IDs() map[string]bool {
	ids := make(map[string]bool, len(t.Strategies))
	for _, s := range t.Strategies {
		ids[s.ID] = true
	}
	return ids
}

// Lookup returns the definition for an id.
func (t *Taxonomy) Lookup(id string) (StrategyDef, bool) {
	for _, s := range t.Strategies {
		if s.ID == id {
			return s, true
		}
	}
	return StrategyDef{}, false
}

// Block formats every strategy as a markdown bullet list for the judge's
// system prompt.
func (t *Taxonomy) Block() string {
	var b strings.Builder
	for _, s := range t.Strategies {
		fmt.Fprintf(&b, "- **%s** (%s): %s\n", s.ID, s.Name, s.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// DefaultTaxonomy returns the built-in six-category taxonomy used when no
// file is supplied.
func DefaultTaxonomy() *Taxonomy {
	return &Taxonomy{
		MaxPerPlan: 2,
		Strategies: []StrategyDef{
			{ID: "agency", Name: "Agency", Description: "Give the dreamer control or capability within the dream narrative."},
			{ID: "safety", Name: "Safety", Description: "Introduce protection, shelter, or removal of the threat."},
			{ID: "cognitive_reframe", Name: "Cognitive Reframe", Description: "Reinterpret the meaning of threatening dream elements."},
			{ID: "emotional_regulation", Name: "Emotional Regulation", Description: "Reduce the emotional intensity of the imagery."},
			{ID: "social_support", Name: "Social Support", Description: "Introduce allies, helpers, or companions into the dream."},
			{ID: "sensory_modulation", Name: "Sensory Modulation", Description: "Alter sensory qualities of the dream (light, sound, texture)."},
		},
	}
}
