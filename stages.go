package irtsim

import "strings"

// Stage represents one of the 5 phases of an IRT session.
type Stage string

const (
	StageRecording Stage = "recording" // Nightmare elicitation
	StageRewriting Stage = "rewriting" // Rescripting — the evaluation target
	StageSummary   Stage = "summary"   // Consolidation of the rescripted imagery
	StageRehearsal Stage = "rehearsal" // Practice instructions
	StageFinal     Stage = "final"     // Session closing
)

// StageOrder lists the stages in protocol order. The session only ever moves
// forward through this list or stays in place.
var StageOrder = []Stage{
	StageRecording,
	StageRewriting,
	StageSummary,
	StageRehearsal,
	StageFinal,
}

// StageIndex returns the zero-based position of a stage in the protocol
// order, or -1 for an unknown value.
func StageIndex(s Stage) int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// IsValidStage reports whether s is one of the 5 canonical stages.
func IsValidStage(s Stage) bool {
	return StageIndex(s) >= 0
}

// LegalNextStage returns the single stage that legally follows current.
// Staying in the same stage is always allowed and is not a transition;
// FINAL has no successor and returns itself.
func LegalNextStage(current Stage) Stage {
	i := StageIndex(current)
	if i < 0 || i == len(StageOrder)-1 {
		return StageFinal
	}
	return StageOrder[i+1]
}

// CanTransition reports whether moving from current to next is legal under
// the protocol: staying put, or advancing exactly one stage.
func CanTransition(current, next Stage) bool {
	if current == next {
		return true
	}
	return LegalNextStage(current) == next && current != StageFinal
}

// ApplyGuardrails repairs a premature FINAL proposal. The upstream stage
// classification is an LLM call and may hallucinate FINAL before the session
// has consolidated or rehearsed; stageHistory is the conversation's full
// classification log. Non-FINAL proposals pass through unchanged.
func ApplyGuardrails(proposed Stage, stageHistory []Stage) Stage {
	if proposed != StageFinal {
		return proposed
	}

	seen := make(map[Stage]bool, len(stageHistory))
	for _, s := range stageHistory {
		seen[s] = true
	}

	if !seen[StageSummary] {
		return StageSummary
	}
	if !seen[StageRehearsal] {
		return StageRehearsal
	}
	return StageFinal
}

// ParseStage parses a raw classifier response into a Stage. The match is
// case-insensitive and whitespace-tolerant. Unparseable output is recovered
// locally: fall back to the last stage in history, or fallback if the history
// is empty. Stage classification drives a live session and must never fail.
func ParseStage(raw string, history []Stage, fallback Stage) Stage {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if candidate := Stage(lowered); IsValidStage(candidate) {
		return candidate
	}
	// Classifiers wrap the label in prose often enough to warrant a
	// substring pass before giving up.
	for _, s := range StageOrder {
		if strings.Contains(lowered, string(s)) {
			return s
		}
	}
	if len(history) > 0 {
		return history[len(history)-1]
	}
	return fallback
}

// Language is a supported session language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageGerman  Language = "de"
)

// ParseLanguage parses a language code or full name ("german", "deutsch").
func ParseLanguage(raw string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "en", "english":
		return LanguageEnglish, true
	case "de", "german", "deutsch":
		return LanguageGerman, true
	}
	return "", false
}
