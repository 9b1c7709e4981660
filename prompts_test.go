package irtsim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testPromptStore builds an in-memory prompt pack so stack tests don't need
// files on disk.
func testPromptStore() *PromptStore {
	stages := make(map[Stage]map[Language]string, len(StageOrder))
	for _, s := range StageOrder {
		stages[s] = map[Language]string{
			LanguageEnglish: "You are in the " + string(s) + " stage.",
			LanguageGerman:  "Du bist in der Phase " + string(s) + ".",
		}
	}
	return &PromptStore{
		Routing: RoutingPrompt{
			SystemPrompt: "Classify the current stage of the session.",
			DefaultStage: string(StageRecording),
		},
		Patient: PatientPrompt{
			SystemPrompt: "You are a therapy patient with recurring nightmares.",
			IntroMessages: map[string]string{
				"en": "Welcome. What brings you here today?",
				"de": "Willkommen. Was führt Sie heute her?",
			},
		},
		Eval: EvalPrompts{
			InternalPlan: "Write your therapeutic plan inside <plan> tags.",
			Fused:        "Write a <plan> block, then the reply to the user.",
			JudgeSystem:  "You judge whether planned strategies appear in a response.\n{taxonomy_block}",
			JudgeUser:    "Planned strategies:\n{strategies_block}\n\nResponse:\n{response}",
		},
		stagePrompts: stages,
	}
}

func writePromptPack(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"routing.yaml": "system_prompt: Classify the stage.\ndefault_stage: recording\n",
		"patient.yaml": "system_prompt: You are a patient.\nvignette_format: \"\"\nintro_messages:\n  en: Welcome.\n  de: Willkommen.\n",
		"evaluation/internal_plan.yaml":       "system_prompt: Plan inside <plan> tags.\n",
		"evaluation/fused_plan_response.yaml": "system_prompt: Plan then reply.\n",
		"evaluation/alignment_judge.yaml":     "system_prompt: Judge strategies.\nuser_template: \"{strategies_block} {response}\"\n",
	}
	for _, s := range StageOrder {
		files[filepath.Join("stages", string(s)+".yaml")] = "en: Stage " + string(s) + " prompt.\nde: Phase " + string(s) + ".\n"
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoadPromptStore(t *testing.T) {
	dir := writePromptPack(t)
	ps, err := LoadPromptStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if ps.Routing.SystemPrompt == "" {
		t.Error("routing prompt missing")
	}
	if ps.DefaultStage() != StageRecording {
		t.Errorf("expected default stage recording, got %s", ps.DefaultStage())
	}
	prompt, err := ps.StagePrompt(StageRewriting, LanguageGerman)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "rewriting") {
		t.Errorf("unexpected stage prompt: %q", prompt)
	}
	if ps.Eval.JudgeUser == "" {
		t.Error("judge user template missing")
	}
}

func TestLoadPromptStoreMissingFile(t *testing.T) {
	dir := writePromptPack(t)
	os.Remove(filepath.Join(dir, "stages", "rehearsal.yaml"))
	if _, err := LoadPromptStore(dir); err == nil {
		t.Error("expected error for missing stage prompt file")
	}
}

func TestLoadPromptStoreEmptyRouting(t *testing.T) {
	dir := writePromptPack(t)
	os.WriteFile(filepath.Join(dir, "routing.yaml"), []byte("default_stage: recording\n"), 0644)
	if _, err := LoadPromptStore(dir); err == nil {
		t.Error("expected error for empty routing system prompt")
	}
}

func TestLoadPromptStoreBadDefaultStage(t *testing.T) {
	dir := writePromptPack(t)
	os.WriteFile(filepath.Join(dir, "routing.yaml"), []byte("system_prompt: x\ndefault_stage: warmup\n"), 0644)
	if _, err := LoadPromptStore(dir); err == nil {
		t.Error("expected error for unknown default stage")
	}
}

func TestStagePromptMissingLanguage(t *testing.T) {
	ps := testPromptStore()
	delete(ps.stagePrompts[StageSummary], LanguageGerman)
	if _, err := ps.StagePrompt(StageSummary, LanguageGerman); err == nil {
		t.Error("expected error for missing language")
	}
}

func TestIntroMessageFallsBackToEnglish(t *testing.T) {
	ps := testPromptStore()
	delete(ps.Patient.IntroMessages, "de")
	got := ps.IntroMessage(LanguageGerman)
	if got != ps.Patient.IntroMessages["en"] {
		t.Errorf("expected english fallback, got %q", got)
	}
}
