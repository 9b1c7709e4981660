package irtsim

import (
	"context"
	"strings"
)

// TherapistAgent generates a therapy-guide reply for the conversation's
// current protocol stage. Each stage has its own system prompt; the session
// transcript and the latest patient message are passed as a single user turn.
type TherapistAgent struct {
	gen     Generator
	prompts *PromptStore
}

// NewTherapistAgent creates a stage-driven therapist.
func NewTherapistAgent(gen Generator, prompts *PromptStore) *TherapistAgent {
	return &TherapistAgent{gen: gen, prompts: prompts}
}

// FormatMessages builds the model input for one stage turn.
func (t *TherapistAgent) FormatMessages(stage Stage, language Language, conv *Conversation, patientMessage string) ([]ChatMessage, error) {
	system, err := t.prompts.StagePrompt(stage, language)
	if err != nil {
		return nil, err
	}

	history := ""
	if conv != nil {
		history = conv.HistoryAsString(0)
	}
	user := historyContext(t.prompts.IntroMessage(language), history, patientMessage)

	return []ChatMessage{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}, nil
}

// Generate produces the therapist's reply for the given stage.
func (t *TherapistAgent) Generate(ctx context.Context, stage Stage, language Language, conv *Conversation, patientMessage string) (string, Usage, error) {
	msgs, err := t.FormatMessages(stage, language, conv, patientMessage)
	if err != nil {
		return "", Usage{}, err
	}
	text, usage, err := t.gen.Generate(ctx, msgs, GenerateOptions{})
	if err != nil {
		return "", usage, err
	}
	return strings.TrimSpace(text), usage, nil
}

// Stream produces the therapist's reply as a chunk stream when the underlying
// generator supports streaming; otherwise it falls back to a single blocking
// generation delivered as one chunk.
func (t *TherapistAgent) Stream(ctx context.Context, stage Stage, language Language, conv *Conversation, patientMessage string) (<-chan Chunk, error) {
	msgs, err := t.FormatMessages(stage, language, conv, patientMessage)
	if err != nil {
		return nil, err
	}
	if sg, ok := t.gen.(StreamingGenerator); ok {
		return sg.Stream(ctx, msgs, GenerateOptions{})
	}

	out := make(chan Chunk, 2)
	go func() {
		defer close(out)
		text, usage, err := t.gen.Generate(ctx, msgs, GenerateOptions{})
		if err != nil {
			out <- Chunk{Err: err, Final: true}
			return
		}
		out <- Chunk{Delta: text}
		out <- Chunk{Usage: usage, Final: true}
	}()
	return out, nil
}
