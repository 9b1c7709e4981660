package irtsim

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
)

// Judgment is one strategy-level verdict from the alignment judge.
type Judgment struct {
	Strategy  string `json:"strategy"`
	Reasoning string `json:"reasoning"`
	Score     int    `json:"score"`
}

// TrialJudgment holds the judge's full output for one trial. A judge
// failure is recorded here instead of aborting the batch: the trial scores
// 0.0 and Error carries the cause.
type TrialJudgment struct {
	TrialIndex int        `json:"trial_index"`
	Score      float64    `json:"score"`
	Judgments  []Judgment `json:"judgments"`
	RawOutput  string     `json:"raw_output"`
	Skipped    bool       `json:"skipped,omitempty"`
	SkipReason string     `json:"skip_reason,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// AlignmentResult aggregates plan/response alignment across a trial batch.
type AlignmentResult struct {
	MeanAlignment float64            `json:"mean_alignment"`
	PerTrial      []TrialJudgment    `json:"per_trial"`
	PerStrategy   map[string]float64 `json:"per_strategy"`
	Errors        int                `json:"errors"`
}

// judgmentLineRe matches one judged strategy: "id: reasoning | score: N"
// with N in 0..2.
var judgmentLineRe = regexp.MustCompile(`(?im)^(\w+):\s*(.+?)\s*\|\s*score:\s*([012])\s*$`)

// AlignmentJudge asks a model whether each planned strategy actually shows
// up in the patient-facing response, on a 0-2 scale per strategy.
type AlignmentJudge struct {
	gen     Generator
	prompts *PromptStore
	tax     *Taxonomy
}

// NewAlignmentJudge creates a judge backed by the given model.
func NewAlignmentJudge(gen Generator, prompts *PromptStore, tax *Taxonomy) *AlignmentJudge {
	return &AlignmentJudge{gen: gen, prompts: prompts, tax: tax}
}

// BuildUserPrompt fills the judge template with the taxonomy, the planned
// strategies, and the response under judgment.
func (j *AlignmentJudge) BuildUserPrompt(strategies []string, response string) string {
	var lines []string
	for _, id := range strategies {
		if def, ok := j.tax.Lookup(id); ok {
			lines = append(lines, fmt.Sprintf("- %s: %s", def.ID, def.Description))
		} else {
			lines = append(lines, "- "+id)
		}
	}

	prompt := j.prompts.Eval.JudgeUser
	prompt = strings.ReplaceAll(prompt, "{taxonomy_block}", j.tax.Block())
	prompt = strings.ReplaceAll(prompt, "{strategies_block}", strings.Join(lines, "\n"))
	prompt = strings.ReplaceAll(prompt, "{response}", response)
	return prompt
}

// JudgeTrial scores one trial. A trial with no planned strategies or a
// blank response is skipped outright: it scores 0.0, no judge call is made,
// and the skip is marked in the judgment record. Every planned strategy
// must appear in the judge's output; a strategy the judge skipped scores 0.
// The trial score is the mean strategy score normalized to [0,1].
func (j *AlignmentJudge) JudgeTrial(ctx context.Context, index int, strategies []string, response string) TrialJudgment {
	tj := TrialJudgment{TrialIndex: index}
	if len(strategies) == 0 || strings.TrimSpace(response) == "" {
		tj.Skipped = true
		tj.SkipReason = "empty strategies or response"
		return tj
	}

	msgs := []ChatMessage{
		{Role: RoleSystem, Content: j.prompts.Eval.JudgeSystem},
		{Role: RoleUser, Content: j.BuildUserPrompt(strategies, response)},
	}
	raw, _, err := j.gen.Generate(ctx, msgs, Temp(0))
	if err != nil {
		log.Printf("[irtsim] alignment judge failed on trial %d: %v", index, err)
		tj.Error = err.Error()
		return tj
	}
	tj.RawOutput = raw

	scored := make(map[string]Judgment)
	for _, m := range judgmentLineRe.FindAllStringSubmatch(raw, -1) {
		id := strings.ToLower(m[1])
		scored[id] = Judgment{Strategy: id, Reasoning: m[2], Score: int(m[3][0] - '0')}
	}

	sum := 0
	for _, id := range strategies {
		jd, ok := scored[id]
		if !ok {
			jd = Judgment{Strategy: id, Reasoning: "not addressed by judge"}
		}
		tj.Judgments = append(tj.Judgments, jd)
		sum += jd.Score
	}
	tj.Score = float64(sum) / float64(len(strategies)) / 2.0
	return tj
}

// JudgeBatch scores every trial and aggregates per-trial and per-strategy
// means. Trials with judge errors count as 0.0 in the mean.
func (j *AlignmentJudge) JudgeBatch(ctx context.Context, trials []TrialResult) AlignmentResult {
	result := AlignmentResult{PerStrategy: make(map[string]float64)}
	stratSum := make(map[string]int)
	stratCount := make(map[string]int)

	sum := 0.0
	for _, t := range trials {
		tj := j.JudgeTrial(ctx, t.Index, t.Strategies, t.Response)
		if tj.Error != "" {
			result.Errors++
		}
		for _, jd := range tj.Judgments {
			stratSum[jd.Strategy] += jd.Score
			stratCount[jd.Strategy]++
		}
		sum += tj.Score
		result.PerTrial = append(result.PerTrial, tj)
	}

	if len(trials) > 0 {
		result.MeanAlignment = sum / float64(len(trials))
	}
	for id, n := range stratCount {
		result.PerStrategy[id] = float64(stratSum[id]) / float64(n) / 2.0
	}
	return result
}
