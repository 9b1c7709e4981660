package irtsim

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// StageRouter decides which protocol stage the next therapist turn should
// use. Classification is delegated to a model; the raw label is then parsed
// leniently and run through the transition guardrails, so a confused
// classifier can degrade the routing but never break the session.
type StageRouter struct {
	gen     Generator
	prompts *PromptStore
}

// NewStageRouter creates a router backed by the given classifier model.
func NewStageRouter(gen Generator, prompts *PromptStore) *StageRouter {
	return &StageRouter{gen: gen, prompts: prompts}
}

// Classify returns the guarded stage for the conversation's next turn.
func (r *StageRouter) Classify(ctx context.Context, conv *Conversation, patientMessage string) (Stage, Usage, error) {
	history := conv.HistoryAsString(0)
	if patientMessage != "" {
		if history != "" {
			history += "\n"
		}
		history += "User: " + patientMessage
	}

	user := fmt.Sprintf("<transcript>\n%s\n</transcript>\n\nClassification:", history)
	msgs := []ChatMessage{
		{Role: RoleSystem, Content: r.prompts.Routing.SystemPrompt},
		{Role: RoleUser, Content: user},
	}

	raw, usage, err := r.gen.Generate(ctx, msgs, Temp(0))
	if err != nil {
		return "", usage, fmt.Errorf("stage classification: %w", err)
	}

	stageHistory := conv.StageHistory()
	proposed := ParseStage(raw, stageHistory, r.prompts.DefaultStage())
	guarded := ApplyGuardrails(proposed, stageHistory)
	if guarded != proposed {
		log.Printf("[irtsim] guardrail override: classifier proposed %s, using %s", proposed, guarded)
	}
	return guarded, usage, nil
}

// ClassifyAndUpdate classifies the next stage and appends it to the
// conversation's stage sequence.
func (r *StageRouter) ClassifyAndUpdate(ctx context.Context, conv *Conversation, patientMessage string) (Stage, Usage, error) {
	stage, usage, err := r.Classify(ctx, conv, patientMessage)
	if err != nil {
		return "", usage, err
	}
	conv.Stages = append(conv.Stages, string(stage))
	return stage, usage, nil
}

// historyContext assembles the therapist-side user turn: the session intro as
// an "AI:" line, the transcript so far, and the latest patient message.
func historyContext(intro, history, userMessage string) string {
	parts := []string{"AI: " + intro}
	if history != "" {
		parts = append(parts, history)
	}
	if userMessage != "" {
		parts = append(parts, "User: "+userMessage)
	}
	return "\n\nConversation history:\n" + strings.Join(parts, "\n")
}
