package irtsim

import (
	"context"
	"strings"
	"sync"
	"testing"
)

// scriptedSession routes fake models by call shape: the router always
// returns the next stage in its script, the therapist echoes the stage, and
// the patient produces numbered replies.
type scriptedRouter struct {
	mu     sync.Mutex
	stages []string
	i      int
}

func (s *scriptedRouter) Generate(ctx context.Context, msgs []ChatMessage, opts GenerateOptions) (string, Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage := s.stages[s.i]
	if s.i < len(s.stages)-1 {
		s.i++
	}
	return stage, Usage{TotalTokens: 1}, nil
}

func newTestStack(routerStages []string, maxTurns int) (*GenerationStack, *fakeGenerator, *fakeGenerator) {
	therapist := &fakeGenerator{script: []string{"therapist reply"}}
	patient := &fakeGenerator{script: []string{"patient reply"}}
	prompts := testPromptStore()

	stack := NewGenerationStack(
		NewPatientAgent(patient, prompts, testVignette(), LanguageEnglish),
		NewStageRouter(&scriptedRouter{stages: routerStages}, prompts),
		NewTherapistAgent(therapist, prompts),
		LanguageEnglish,
		WithMaxTurns(maxTurns),
	)
	return stack, therapist, patient
}

func TestGenerationRunCompletes(t *testing.T) {
	stack, _, _ := newTestStack([]string{"recording", "rewriting", "summary", "rehearsal", "final"}, 10)

	result, err := stack.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Completed {
		t.Error("session reaching final should be completed")
	}
	if result.Turns != 5 {
		t.Errorf("expected 5 turns, got %d", result.Turns)
	}
	if result.FinalStage != StageFinal {
		t.Errorf("expected final stage, got %s", result.FinalStage)
	}
	// 5 exchanges, patient + therapist each.
	if len(result.Conversation.Messages) != 10 {
		t.Errorf("expected 10 messages, got %d", len(result.Conversation.Messages))
	}
}

func TestGenerationOpeningIsDeterministic(t *testing.T) {
	stack, _, patient := newTestStack([]string{"recording", "final"}, 10)
	// Guardrails push the first "final" to summary, then rehearsal, then final.
	result, err := stack.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	first := result.Conversation.Messages[0]
	if first.Role != RoleUser {
		t.Fatal("conversation must start with the patient")
	}
	if !strings.HasPrefix(first.Content, "I've been having these bad dreams.") {
		t.Errorf("opening should come from the vignette, got %q", first.Content)
	}
	// The opening line itself must not hit the patient model.
	if patient.callCount() >= result.Turns {
		t.Errorf("patient model called %d times for %d turns", patient.callCount(), result.Turns)
	}
}

func TestGenerationGuardrailsForceProtocol(t *testing.T) {
	// A router that wants to end immediately still has to pass through
	// summary and rehearsal first.
	stack, _, _ := newTestStack([]string{"final"}, 10)
	result, err := stack.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Completed {
		t.Fatal("session should still complete")
	}
	stages := result.Conversation.Stages
	if len(stages) != 3 || stages[0] != "summary" || stages[1] != "rehearsal" || stages[2] != "final" {
		t.Errorf("expected guarded summary->rehearsal->final, got %v", stages)
	}
}

func TestGenerationTurnCapIncomplete(t *testing.T) {
	stack, _, _ := newTestStack([]string{"recording"}, 3)
	result, err := stack.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Completed {
		t.Error("hitting the turn cap must not count as completed")
	}
	if result.Turns != 3 {
		t.Errorf("expected 3 turns, got %d", result.Turns)
	}
}

func TestGenerationMessageTagging(t *testing.T) {
	stack, _, _ := newTestStack([]string{"recording", "rewriting", "summary", "rehearsal", "final"}, 10)
	result, err := stack.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for i, m := range result.Conversation.Messages {
		if m.Role == RoleUser && m.Stage != "" {
			t.Errorf("message %d: patient turns must be untagged, got %q", i, m.Stage)
		}
		if m.Role == RoleAssistant && m.Stage == "" {
			t.Errorf("message %d: therapist turns must carry a stage", i)
		}
	}
}

func TestGenerationUsageAccumulates(t *testing.T) {
	stack, _, _ := newTestStack([]string{"recording", "final"}, 10)
	result, err := stack.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalUsage.TotalTokens == 0 {
		t.Error("total usage should accumulate across calls")
	}
}

func TestGenerationContextCancel(t *testing.T) {
	stack, _, _ := newTestStack([]string{"recording"}, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := stack.Run(ctx); err == nil {
		t.Error("expected context cancellation error")
	}
}

func TestGenerationResultSummary(t *testing.T) {
	stack, _, _ := newTestStack([]string{"recording", "rewriting", "summary", "rehearsal", "final"}, 10)
	result, err := stack.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s := result.Summary()
	if !strings.Contains(s, "completed") || !strings.Contains(s, "5 turns") {
		t.Errorf("unexpected summary: %q", s)
	}
}
