package irtsim

import (
	"sort"
	"strings"
)

// ExtractPlanStrategies pulls taxonomy strategy IDs out of a <plan>…</plan>
// block. The expected wire format is "<plan>id1 / id2</plan>": the block
// contents are split on "/", lowercased, trimmed, and whitelist-filtered
// against the taxonomy. Text with no closed plan block yields nothing —
// prose mentioning strategies does not count as a plan. The result is
// deduplicated in taxonomy order.
func ExtractPlanStrategies(plan string, tax *Taxonomy) []string {
	m := planClosedRe.FindStringSubmatch(plan)
	if m == nil {
		return nil
	}
	block := strings.TrimSpace(m[1])
	if block == "" {
		return nil
	}

	known := tax.IDs()
	found := make(map[string]bool)
	for _, part := range strings.Split(block, "/") {
		id := strings.ToLower(strings.TrimSpace(part))
		if known[id] {
			found[id] = true
		}
	}

	var out []string
	for _, def := range tax.Strategies {
		if found[def.ID] {
			out = append(out, def.ID)
		}
	}
	return out
}

// ValidatePlanLength reports whether a strategy set fits the taxonomy's
// per-plan budget: at least one strategy and at most MaxPerPlan.
func ValidatePlanLength(strategies []string, tax *Taxonomy) bool {
	max := tax.MaxPerPlan
	if max < 1 {
		max = 2
	}
	return len(strategies) >= 1 && len(strategies) <= max
}

// ComputeValidityRate is the fraction of trials whose strategy set fits the
// per-plan budget. An empty trial list scores 0.0.
func ComputeValidityRate(sets [][]string, tax *Taxonomy) float64 {
	if len(sets) == 0 {
		return 0.0
	}
	valid := 0
	for _, s := range sets {
		if ValidatePlanLength(s, tax) {
			valid++
		}
	}
	return float64(valid) / float64(len(sets))
}

// Jaccard computes set overlap between two strategy lists. Two empty sets
// are treated as identical plans and score 1.0.
func Jaccard(a, b []string) float64 {
	sa := toSet(a)
	sb := toSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1.0
	}
	inter := 0
	for k := range sa {
		if sb[k] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// ComputePairwiseJaccard averages Jaccard over all unordered pairs of
// strategy sets. With onlyValid set, invalid-length sets are filtered out
// first. Fewer than two remaining sets means there is nothing to disagree
// about, so the score is 1.0.
func ComputePairwiseJaccard(sets [][]string, tax *Taxonomy, onlyValid bool) float64 {
	pool := sets
	if onlyValid {
		pool = nil
		for _, s := range sets {
			if ValidatePlanLength(s, tax) {
				pool = append(pool, s)
			}
		}
	}
	if len(pool) < 2 {
		return 1.0
	}
	sum := 0.0
	pairs := 0
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			sum += Jaccard(pool[i], pool[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// StabilityMetrics is the per-run stability report over a trial batch.
type StabilityMetrics struct {
	Trials               int                `json:"trials"`
	ValidityRate         float64            `json:"validity_rate"`
	JaccardAll           float64            `json:"jaccard_all"`
	JaccardValid         float64            `json:"jaccard_valid"`
	MeanSetSize          float64            `json:"mean_set_size"`
	UniqueSets           int                `json:"unique_sets"`
	ResponseF1Mean       float64            `json:"response_f1_mean,omitempty"`
	ResponsePrec         float64            `json:"response_precision_mean,omitempty"`
	ResponseRecall       float64            `json:"response_recall_mean,omitempty"`
	MeanAlignment        float64            `json:"mean_alignment,omitempty"`
	AlignmentPerTrial    []float64          `json:"alignment_per_trial,omitempty"`
	AlignmentPerStrategy map[string]float64 `json:"alignment_per_strategy,omitempty"`
	AlignmentErrors      int                `json:"alignment_errors,omitempty"`
}

// ComputeStabilityMetrics derives the full plan-level report from trial
// results, annotating each trial with its extracted strategies.
func ComputeStabilityMetrics(trials []TrialResult, tax *Taxonomy) StabilityMetrics {
	sets := make([][]string, len(trials))
	sizeSum := 0
	seen := make(map[string]bool)
	for i := range trials {
		trials[i].Strategies = ExtractPlanStrategies(trials[i].Plan, tax)
		sets[i] = trials[i].Strategies
		sizeSum += len(sets[i])
		seen[setKey(sets[i])] = true
	}

	m := StabilityMetrics{
		Trials:       len(trials),
		ValidityRate: ComputeValidityRate(sets, tax),
		JaccardAll:   ComputePairwiseJaccard(sets, tax, false),
		JaccardValid: ComputePairwiseJaccard(sets, tax, true),
		UniqueSets:   len(seen),
	}
	if len(trials) > 0 {
		m.MeanSetSize = float64(sizeSum) / float64(len(trials))
	}
	return m
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		if it != "" {
			s[it] = true
		}
	}
	return s
}

func setKey(items []string) string {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
