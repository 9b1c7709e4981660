package irtsim

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// EvalMode selects how the plan and the patient-facing response are produced.
type EvalMode string

const (
	// EvalSplit makes two independent calls against the same context: one
	// for the internal plan, one for the patient-facing response.
	EvalSplit EvalMode = "split"
	// EvalFused makes a single call that emits the plan in <plan> tags
	// followed by the response.
	EvalFused EvalMode = "fused"
)

// ParseEvalMode validates a mode label.
func ParseEvalMode(raw string) (EvalMode, error) {
	switch EvalMode(strings.ToLower(strings.TrimSpace(raw))) {
	case EvalSplit:
		return EvalSplit, nil
	case EvalFused:
		return EvalFused, nil
	}
	return "", fmt.Errorf("unknown evaluation mode %q", raw)
}

var (
	planClosedRe = regexp.MustCompile(`(?is)<plan>(.*?)</plan>`)
	planOpenRe   = regexp.MustCompile(`(?is)<plan>(.*?)(?:\n\n|\z)`)
)

// ExtractPlan pulls the plan body out of model output. A properly closed
// <plan> block wins; with a dangling open tag everything up to the first
// blank line counts as the plan. No tag at all yields an empty plan.
func ExtractPlan(raw string) string {
	if m := planClosedRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := planOpenRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// SplitFusedOutput separates a fused completion into plan and response. The
// plan keeps its tags, normalized to a closed <plan>…</plan> block; the
// response is everything after the block. Output with no plan tag at all is
// all response.
func SplitFusedOutput(raw string) (plan, response string) {
	raw = strings.TrimSpace(raw)
	loc := planClosedRe.FindStringSubmatchIndex(raw)
	if loc == nil {
		loc = planOpenRe.FindStringSubmatchIndex(raw)
	}
	if loc == nil {
		return "", raw
	}
	inner := strings.TrimSpace(raw[loc[2]:loc[3]])
	return "<plan>" + inner + "</plan>", strings.TrimSpace(raw[loc[1]:])
}

// EvaluationStack produces plan/response trials from a frozen conversation
// slice at a fixed decision point. The same prompt context is reused across
// trials so temperature is the only varying input.
type EvaluationStack struct {
	gen     Generator
	prompts *PromptStore
	mode    EvalMode

	frozen         *Conversation
	patientMessage string
}

// NewEvaluationStack freezes the decision point: the conversation sliced up
// to (and excluding) the patient message the model must answer.
func NewEvaluationStack(gen Generator, prompts *PromptStore, mode EvalMode, frozen *Conversation, patientMessage string) *EvaluationStack {
	return &EvaluationStack{
		gen:            gen,
		prompts:        prompts,
		mode:           mode,
		frozen:         frozen,
		patientMessage: patientMessage,
	}
}

// FreezeAtRewritingTurn builds an evaluation stack from the n-th rewriting
// turn of a finished conversation. The patient message following that turn
// becomes the message under evaluation.
func FreezeAtRewritingTurn(gen Generator, prompts *PromptStore, mode EvalMode, conv *Conversation, n int) (*EvaluationStack, error) {
	sliced, err := conv.SliceAtRewritingTurn(n)
	if err != nil {
		return nil, err
	}
	patientMessage := ""
	if k := len(sliced.Messages); k > 0 && sliced.Messages[k-1].Role == RoleUser {
		patientMessage = sliced.Messages[k-1].Content
		sliced.Messages = sliced.Messages[:k-1]
	}
	return NewEvaluationStack(gen, prompts, mode, sliced, patientMessage), nil
}

func (e *EvaluationStack) language() Language {
	lang, ok := ParseLanguage(e.frozen.Language)
	if !ok {
		lang = LanguageEnglish
	}
	return lang
}

func (e *EvaluationStack) userTurn() string {
	lang := e.language()
	return historyContext(e.prompts.IntroMessage(lang), e.frozen.HistoryAsString(0), e.patientMessage)
}

// Frozen returns a copy of the conversation prefix the trials run against,
// with the patient message under evaluation restored as the final user turn.
func (e *EvaluationStack) Frozen() *Conversation {
	out := *e.frozen
	out.Messages = append([]Message(nil), e.frozen.Messages...)
	out.Stages = append([]string(nil), e.frozen.Stages...)
	if e.patientMessage != "" {
		out.Messages = append(out.Messages, Message{
			Content:  e.patientMessage,
			Role:     RoleUser,
			Language: e.frozen.Language,
		})
	}
	return &out
}

// RunTrial produces one plan/response pair at the given temperature.
func (e *EvaluationStack) RunTrial(ctx context.Context, temperature float64) (TrialResult, error) {
	switch e.mode {
	case EvalFused:
		return e.runFused(ctx, temperature)
	default:
		return e.runSplit(ctx, temperature)
	}
}

// runSplit makes two independent calls against the same frozen context: the
// plan never enters the response call. Whether the response then actually
// follows the plan is exactly what the alignment judge measures, so wiring
// the plan into the response context would defeat the measurement. The plan
// is stored raw, tags intact.
func (e *EvaluationStack) runSplit(ctx context.Context, temperature float64) (TrialResult, error) {
	turn := e.userTurn()

	planMsgs := []ChatMessage{
		{Role: RoleSystem, Content: e.prompts.Eval.InternalPlan},
		{Role: RoleUser, Content: turn},
	}
	rawPlan, planUsage, err := e.gen.Generate(ctx, planMsgs, Temp(temperature))
	if err != nil {
		return TrialResult{}, fmt.Errorf("plan generation: %w", err)
	}

	stagePrompt, err := e.prompts.StagePrompt(StageRewriting, e.language())
	if err != nil {
		return TrialResult{}, err
	}
	respMsgs := []ChatMessage{
		{Role: RoleSystem, Content: stagePrompt},
		{Role: RoleUser, Content: turn},
	}
	response, respUsage, err := e.gen.Generate(ctx, respMsgs, Temp(temperature))
	if err != nil {
		return TrialResult{}, fmt.Errorf("response generation: %w", err)
	}

	return TrialResult{
		Temperature:   temperature,
		Plan:          strings.TrimSpace(rawPlan),
		Response:      strings.TrimSpace(response),
		PlanUsage:     planUsage,
		ResponseUsage: respUsage,
	}, nil
}

func (e *EvaluationStack) runFused(ctx context.Context, temperature float64) (TrialResult, error) {
	msgs := []ChatMessage{
		{Role: RoleSystem, Content: e.prompts.Eval.Fused},
		{Role: RoleUser, Content: e.userTurn()},
	}
	raw, usage, err := e.gen.Generate(ctx, msgs, Temp(temperature))
	if err != nil {
		return TrialResult{}, fmt.Errorf("fused generation: %w", err)
	}
	plan, response := SplitFusedOutput(raw)
	return TrialResult{
		Temperature: temperature,
		Plan:        plan,
		Response:    response,
		PlanUsage:   usage,
	}, nil
}
