package irtsim

import (
	"context"
	"fmt"
	"strings"
)

// PatientAgent simulates a therapy patient from a vignette profile. Its own
// prior utterances are stored in the conversation with role "user", so the
// history must be role-inverted before it reaches the model: the patient's
// lines become assistant turns and the therapist's lines become user turns.
type PatientAgent struct {
	gen      Generator
	prompts  *PromptStore
	vignette *Vignette
	language Language
}

// NewPatientAgent creates a patient simulator.
func NewPatientAgent(gen Generator, prompts *PromptStore, vignette *Vignette, language Language) *PatientAgent {
	return &PatientAgent{gen: gen, prompts: prompts, vignette: vignette, language: language}
}

// Name returns the vignette's patient name.
func (p *PatientAgent) Name() string {
	if p.vignette.Name != "" {
		return p.vignette.Name
	}
	return "Patient"
}

// SystemPrompt merges the base patient prompt, a language note, the formatted
// vignette, and sample-response exemplars.
func (p *PatientAgent) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(p.prompts.Patient.SystemPrompt)

	langName := "English (en)"
	if p.language == LanguageGerman {
		langName = "German (de)"
	}
	fmt.Fprintf(&b, "\n\n## Language\nRespond in %s.", langName)

	b.WriteString("\n\n")
	b.WriteString(p.vignette.FormatForPrompt(p.prompts.Patient.VignetteFormat))

	if len(p.vignette.SampleResponses) > 0 {
		b.WriteString("\n\n## How You Talk\n")
		b.WriteString("Aim for this register and length. Some of your messages can be even shorter (a single sentence, or just 'yeah', 'I guess', 'I don't know'):\n")
		for _, r := range p.vignette.SampleResponses {
			fmt.Fprintf(&b, "- %q\n", r)
		}
	}

	return b.String()
}

// FormatMessages builds the model input with inverted roles. The session
// intro is presented as the therapist's first line (a user turn from the
// patient's perspective).
func (p *PatientAgent) FormatMessages(conv *Conversation, therapistMessage string) []ChatMessage {
	msgs := []ChatMessage{
		{Role: RoleSystem, Content: p.SystemPrompt()},
		{Role: RoleUser, Content: p.prompts.IntroMessage(p.language)},
	}

	if conv != nil {
		for _, m := range conv.Messages {
			if m.Role == RoleUser {
				msgs = append(msgs, ChatMessage{Role: RoleAssistant, Content: m.Content})
			} else {
				msgs = append(msgs, ChatMessage{Role: RoleUser, Content: m.Content})
			}
		}
	}

	if therapistMessage != "" {
		msgs = append(msgs, ChatMessage{Role: RoleUser, Content: therapistMessage})
	}

	return msgs
}

// Generate produces the patient's reply to a therapist message.
func (p *PatientAgent) Generate(ctx context.Context, conv *Conversation, therapistMessage string) (string, Usage, error) {
	text, usage, err := p.gen.Generate(ctx, p.FormatMessages(conv, therapistMessage), GenerateOptions{})
	if err != nil {
		return "", usage, err
	}
	return strings.TrimSpace(text), usage, nil
}

// OpeningMessage synthesizes the patient's first line deterministically from
// the vignette — no generation call. The first clause of the nightmare
// description is rewritten from third to first person and wrapped in an
// opener keyed to the personality traits.
func (p *PatientAgent) OpeningMessage() string {
	content := p.vignette.Nightmare.Content
	firstClause := strings.TrimSpace(strings.SplitN(content, ".", 2)[0])
	firstClause = firstPerson(firstClause)

	var opener string
	switch {
	case p.vignette.HasTrait("worried") || p.vignette.HasTrait("anxious"):
		opener = "I've been having these bad dreams. "
	case p.vignette.HasTrait("resistant") || p.vignette.HasTrait("dismissive"):
		opener = "I don't really know why I'm here but "
	case p.vignette.HasTrait("cooperative") || p.vignette.HasTrait("engaged"):
		opener = "I'd like to tell you about a recurring dream I've been having. "
	default:
		opener = "I've been having this nightmare. "
	}

	return fmt.Sprintf("%sIt's about %s.", opener, lowerFirstClause(firstClause))
}

// lowerFirstClause lowercases the leading rune so the clause reads as a
// sentence continuation, except when it starts with the pronoun I.
func lowerFirstClause(s string) string {
	if s == "" || strings.HasPrefix(s, "I ") || strings.HasPrefix(s, "I'") {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// firstPerson rewrites common third-person pronouns to first person.
func firstPerson(s string) string {
	pairs := []struct{ from, to string }{
		{"She is ", "I am "}, {"He is ", "I am "},
		{" she is ", " I am "}, {" he is ", " I am "},
		{" her ", " my "}, {" his ", " my "},
		{" she ", " I "}, {" he ", " I "},
		{"Her ", "My "}, {"His ", "My "},
		{"She ", "I "}, {"He ", "I "},
	}
	for _, p := range pairs {
		s = strings.ReplaceAll(s, p.from, p.to)
	}
	return s
}
