package irtsim

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Nightmare describes the recurring nightmare of a synthetic patient.
type Nightmare struct {
	Content   string `json:"content"`
	Frequency string `json:"frequency,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Impact    string `json:"impact,omitempty"`
}

// Vignette is a static synthetic-patient profile, consumed read-only by the
// patient agent to build its persona prompt.
type Vignette struct {
	Name                string    `json:"name"`
	Age                 int       `json:"age,omitempty"`
	Gender              string    `json:"gender,omitempty"`
	Background          string    `json:"background,omitempty"`
	Nightmare           Nightmare `json:"nightmare"`
	PersonalityTraits   []string  `json:"personality_traits,omitempty"`
	ResistanceLevel     string    `json:"resistance_level,omitempty"`
	ResistanceBehaviors []string  `json:"resistance_behaviors,omitempty"`
	EngagementTriggers  []string  `json:"engagement_triggers,omitempty"`
	SampleResponses     []string  `json:"sample_responses,omitempty"`
}

// LoadVignette reads a vignette JSON file by name from a vignettes directory.
func LoadVignette(dir, name string) (*Vignette, error) {
	path := filepath.Join(dir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vignette %q: %w", name, err)
	}
	var v Vignette
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vignette %s: %w", path, err)
	}
	if v.Nightmare.Content == "" {
		return nil, fmt.Errorf("vignette %q: nightmare.content is required", name)
	}
	return &v, nil
}

// ListVignettes returns the vignette names available in a directory.
func ListVignettes(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list vignettes: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	return names, nil
}

// FormatForPrompt renders the vignette through the configured template, or a
// built-in profile block when no template is set.
func (v *Vignette) FormatForPrompt(template string) string {
	if template == "" {
		return fmt.Sprintf(`## Current Patient Profile
Name: %s
Age: %d
Gender: %s

Background: %s

Nightmare:
- Content: %s
- Frequency: %s
- Duration: %s
- Impact: %s

Personality: %s
Resistance Level: %s
Resistance Behaviors: %s
Engagement Triggers: %s`,
			v.Name, v.Age, v.Gender, v.Background,
			v.Nightmare.Content, v.Nightmare.Frequency, v.Nightmare.Duration, v.Nightmare.Impact,
			strings.Join(v.PersonalityTraits, ", "),
			v.ResistanceLevel,
			strings.Join(v.ResistanceBehaviors, ", "),
			strings.Join(v.EngagementTriggers, ", "))
	}

	replacements := map[string]string{
		"{name}":                 v.Name,
		"{age}":                  fmt.Sprintf("%d", v.Age),
		"{gender}":               v.Gender,
		"{background}":           v.Background,
		"{nightmare.content}":    v.Nightmare.Content,
		"{nightmare.frequency}":  v.Nightmare.Frequency,
		"{nightmare.duration}":   v.Nightmare.Duration,
		"{nightmare.impact}":     v.Nightmare.Impact,
		"{personality_traits}":   strings.Join(v.PersonalityTraits, ", "),
		"{resistance_level}":     v.ResistanceLevel,
		"{resistance_behaviors}": strings.Join(v.ResistanceBehaviors, ", "),
		"{engagement_triggers}":  strings.Join(v.EngagementTriggers, ", "),
	}
	out := template
	for k, val := range replacements {
		out = strings.ReplaceAll(out, k, val)
	}
	return out
}

// HasTrait reports whether the vignette lists a personality trait.
func (v *Vignette) HasTrait(trait string) bool {
	for _, t := range v.PersonalityTraits {
		if strings.EqualFold(t, trait) {
			return true
		}
	}
	return false
}
