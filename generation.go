package irtsim

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerationResult is the outcome of one simulated session.
type GenerationResult struct {
	Conversation *Conversation `json:"conversation"`
	Completed    bool          `json:"completed"`
	Turns        int           `json:"turns"`
	FinalStage   Stage         `json:"final_stage"`
	TotalUsage   Usage         `json:"total_usage"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}

// GenerationStack wires a patient, a stage router, and a therapist into a
// full dialogue loop. The loop ends when the router reaches the final stage
// and the therapist has replied there, or when maxTurns is exhausted; hitting
// the turn cap produces an incomplete result, not an error.
type GenerationStack struct {
	patient   *PatientAgent
	router    *StageRouter
	therapist *TherapistAgent
	language  Language
	maxTurns  int
	store     *Store
}

// GenerationOption customizes a GenerationStack.
type GenerationOption func(*GenerationStack)

// WithMaxTurns caps the number of patient/therapist exchange pairs.
func WithMaxTurns(n int) GenerationOption {
	return func(g *GenerationStack) { g.maxTurns = n }
}

// WithSessionStore archives finished sessions to the store.
func WithSessionStore(s *Store) GenerationOption {
	return func(g *GenerationStack) { g.store = s }
}

// NewGenerationStack assembles the dialogue loop.
func NewGenerationStack(patient *PatientAgent, router *StageRouter, therapist *TherapistAgent, language Language, opts ...GenerationOption) *GenerationStack {
	g := &GenerationStack{
		patient:   patient,
		router:    router,
		therapist: therapist,
		language:  language,
		maxTurns:  30,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run simulates a full session. The patient's opening line is deterministic;
// every subsequent patient turn, routing decision, and therapist turn hits
// the respective model.
func (g *GenerationStack) Run(ctx context.Context) (*GenerationResult, error) {
	start := time.Now()
	conv := NewConversation(uuid.NewString(), string(g.language))
	conv.UserID = g.patient.Name()

	var total Usage
	add := func(u Usage) {
		total.PromptTokens += u.PromptTokens
		total.CompletionTokens += u.CompletionTokens
		total.TotalTokens += u.TotalTokens
		if u.Model != "" {
			total.Model = u.Model
		}
	}

	patientMessage := g.patient.OpeningMessage()
	completed := false
	turns := 0

	for turns < g.maxTurns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		turns++

		stage, usage, err := g.router.ClassifyAndUpdate(ctx, conv, patientMessage)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", turns, err)
		}
		add(usage)

		reply, usage, err := g.therapist.Generate(ctx, stage, g.language, conv, patientMessage)
		if err != nil {
			return nil, fmt.Errorf("turn %d therapist: %w", turns, err)
		}
		add(usage)

		conv.AddMessage(patientMessage, RoleUser, "", string(g.language))
		conv.AddMessage(reply, RoleAssistant, stage, string(g.language))
		log.Printf("[irtsim] turn %d stage=%s patient=%dc therapist=%dc", turns, stage, len(patientMessage), len(reply))

		if stage == StageFinal {
			completed = true
			break
		}

		patientMessage, usage, err = g.patient.Generate(ctx, conv, reply)
		if err != nil {
			return nil, fmt.Errorf("turn %d patient: %w", turns, err)
		}
		add(usage)
	}

	result := &GenerationResult{
		Conversation: conv,
		Completed:    completed,
		Turns:        turns,
		TotalUsage:   total,
		Elapsed:      time.Since(start),
	}
	if s, ok := conv.CurrentStage(); ok {
		result.FinalStage = s
	}

	if g.store != nil {
		if err := g.store.SaveSession(ctx, result); err != nil {
			log.Printf("[irtsim] session archive failed: %v", err)
		}
	}
	return result, nil
}

// Summary renders a compact one-line description of a result for logs.
func (r *GenerationResult) Summary() string {
	status := "incomplete"
	if r.Completed {
		status = "completed"
	}
	return fmt.Sprintf("%s session %s: %d turns, %d messages, final stage %s, %d tokens",
		status, shortID(r.Conversation.SessionID), r.Turns, len(r.Conversation.Messages), r.FinalStage, r.TotalUsage.TotalTokens)
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
