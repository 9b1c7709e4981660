package irtsim

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PromptStore holds every prompt the simulation needs, loaded once from a
// prompt pack directory:
//
//	<dir>/routing.yaml                  — router system prompt + default stage
//	<dir>/stages/<stage>.yaml           — therapist prompt per stage, keyed by language
//	<dir>/patient.yaml                  — patient base prompt, vignette template, intro messages
//	<dir>/evaluation/internal_plan.yaml — split-mode plan system prompt
//	<dir>/evaluation/fused_plan_response.yaml
//	<dir>/evaluation/alignment_judge.yaml
//
// Missing files or languages are configuration errors and fail the load.
type PromptStore struct {
	Routing RoutingPrompt
	Patient PatientPrompt
	Eval    EvalPrompts

	stagePrompts map[Stage]map[Language]string
}

// RoutingPrompt configures the stage classifier.
type RoutingPrompt struct {
	SystemPrompt string `yaml:"system_prompt"`
	DefaultStage string `yaml:"default_stage"`
}

// PatientPrompt configures the patient simulator.
type PatientPrompt struct {
	SystemPrompt   string            `yaml:"system_prompt"`
	VignetteFormat string            `yaml:"vignette_format"`
	IntroMessages  map[string]string `yaml:"intro_messages"`
}

// EvalPrompts configures the evaluation stack and the alignment judge.
type EvalPrompts struct {
	InternalPlan string // split mode: plan-only system prompt
	Fused        string // fused mode: plan + response in one completion
	JudgeSystem  string // alignment judge system template ({taxonomy_block})
	JudgeUser    string // alignment judge user template ({strategies_block}, {response})
}

// LoadPromptStore reads the full prompt pack from dir.
func LoadPromptStore(dir string) (*PromptStore, error) {
	ps := &PromptStore{stagePrompts: make(map[Stage]map[Language]string)}

	if err := loadYAMLFile(filepath.Join(dir, "routing.yaml"), &ps.Routing); err != nil {
		return nil, err
	}
	if ps.Routing.SystemPrompt == "" {
		return nil, fmt.Errorf("routing.yaml: system_prompt is required")
	}
	if ps.Routing.DefaultStage == "" {
		ps.Routing.DefaultStage = string(StageRecording)
	}
	if !IsValidStage(Stage(ps.Routing.DefaultStage)) {
		return nil, fmt.Errorf("routing.yaml: unknown default_stage %q", ps.Routing.DefaultStage)
	}

	if err := loadYAMLFile(filepath.Join(dir, "patient.yaml"), &ps.Patient); err != nil {
		return nil, err
	}
	if ps.Patient.SystemPrompt == "" {
		return nil, fmt.Errorf("patient.yaml: system_prompt is required")
	}

	for _, stage := range StageOrder {
		var byLang map[string]string
		path := filepath.Join(dir, "stages", string(stage)+".yaml")
		if err := loadYAMLFile(path, &byLang); err != nil {
			return nil, err
		}
		ps.stagePrompts[stage] = make(map[Language]string, len(byLang))
		for lang, prompt := range byLang {
			ps.stagePrompts[stage][Language(lang)] = prompt
		}
	}

	var planDoc, fusedDoc struct {
		SystemPrompt string `yaml:"system_prompt"`
	}
	if err := loadYAMLFile(filepath.Join(dir, "evaluation", "internal_plan.yaml"), &planDoc); err != nil {
		return nil, err
	}
	if err := loadYAMLFile(filepath.Join(dir, "evaluation", "fused_plan_response.yaml"), &fusedDoc); err != nil {
		return nil, err
	}

	var judgeDoc struct {
		SystemPrompt string `yaml:"system_prompt"`
		UserTemplate string `yaml:"user_template"`
	}
	if err := loadYAMLFile(filepath.Join(dir, "evaluation", "alignment_judge.yaml"), &judgeDoc); err != nil {
		return nil, err
	}
	if judgeDoc.SystemPrompt == "" || judgeDoc.UserTemplate == "" {
		return nil, fmt.Errorf("alignment_judge.yaml: system_prompt and user_template are required")
	}

	ps.Eval = EvalPrompts{
		InternalPlan: planDoc.SystemPrompt,
		Fused:        fusedDoc.SystemPrompt,
		JudgeSystem:  judgeDoc.SystemPrompt,
		JudgeUser:    judgeDoc.UserTemplate,
	}

	return ps, nil
}

// StagePrompt returns the therapist system prompt for a stage and language.
func (ps *PromptStore) StagePrompt(stage Stage, lang Language) (string, error) {
	byLang, ok := ps.stagePrompts[stage]
	if !ok {
		return "", fmt.Errorf("no prompts loaded for stage %q", stage)
	}
	prompt, ok := byLang[lang]
	if !ok {
		return "", fmt.Errorf("stage %q has no prompt for language %q", stage, lang)
	}
	return prompt, nil
}

// IntroMessage returns the session intro line for a language, falling back
// to English when the language has no dedicated intro.
func (ps *PromptStore) IntroMessage(lang Language) string {
	if msg, ok := ps.Patient.IntroMessages[string(lang)]; ok {
		return msg
	}
	return ps.Patient.IntroMessages[string(LanguageEnglish)]
}

// DefaultStage returns the configured classifier fallback stage.
func (ps *PromptStore) DefaultStage() Stage {
	return Stage(ps.Routing.DefaultStage)
}

func loadYAMLFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read prompt file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
