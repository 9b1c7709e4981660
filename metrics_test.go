package irtsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPlanStrategies(t *testing.T) {
	tax := DefaultTaxonomy()
	got := ExtractPlanStrategies("<plan>agency / safety</plan>", tax)
	assert.Equal(t, []string{"agency", "safety"}, got)
}

func TestExtractPlanStrategiesRequiresPlanBlock(t *testing.T) {
	tax := DefaultTaxonomy()
	// Prose mentioning strategies is not a plan.
	got := ExtractPlanStrategies("I think giving her agency and safety would help here.", tax)
	assert.Nil(t, got)
}

func TestExtractPlanStrategiesMultiline(t *testing.T) {
	tax := DefaultTaxonomy()
	got := ExtractPlanStrategies("Thinking it over.\n<plan>\nagency / sensory_modulation\n</plan>\nDone.", tax)
	assert.Equal(t, []string{"agency", "sensory_modulation"}, got)
}

func TestExtractPlanStrategiesIgnoresUnknown(t *testing.T) {
	tax := DefaultTaxonomy()
	got := ExtractPlanStrategies("<plan>hypnosis / agency</plan>", tax)
	assert.Equal(t, []string{"agency"}, got)
}

func TestExtractPlanStrategiesCaseInsensitive(t *testing.T) {
	tax := DefaultTaxonomy()
	got := ExtractPlanStrategies("<PLAN>Agency / SAFETY</PLAN>", tax)
	assert.Equal(t, []string{"agency", "safety"}, got)
}

func TestExtractPlanStrategiesDeduplicates(t *testing.T) {
	tax := DefaultTaxonomy()
	got := ExtractPlanStrategies("<plan>agency / agency / safety</plan>", tax)
	assert.Equal(t, []string{"agency", "safety"}, got)
}

func TestExtractPlanStrategiesSplitsOnSlashOnly(t *testing.T) {
	tax := DefaultTaxonomy()
	// Comma-separated lists do not parse: "agency, safety" is one unknown token.
	assert.Nil(t, ExtractPlanStrategies("<plan>agency, safety</plan>", tax))
}

func TestExtractPlanStrategiesEmptyPlan(t *testing.T) {
	tax := DefaultTaxonomy()
	assert.Nil(t, ExtractPlanStrategies("   ", tax))
	assert.Nil(t, ExtractPlanStrategies("<plan></plan>", tax))
}

func TestValidatePlanLength(t *testing.T) {
	tax := DefaultTaxonomy() // MaxPerPlan = 2
	assert.False(t, ValidatePlanLength(nil, tax))
	assert.True(t, ValidatePlanLength([]string{"agency"}, tax))
	assert.True(t, ValidatePlanLength([]string{"agency", "safety"}, tax))
	assert.False(t, ValidatePlanLength([]string{"agency", "safety", "social_support"}, tax))
}

func TestComputeValidityRate(t *testing.T) {
	tax := DefaultTaxonomy()
	sets := [][]string{
		{"agency"},                                // valid
		{"agency", "safety"},                      // valid
		{},                                        // invalid: empty
		{"agency", "safety", "cognitive_reframe"}, // invalid: too many
	}
	assert.InDelta(t, 0.5, ComputeValidityRate(sets, tax), 1e-9)
}

func TestComputeValidityRateEmptyList(t *testing.T) {
	assert.Equal(t, 0.0, ComputeValidityRate(nil, DefaultTaxonomy()))
}

func TestJaccardOverlap(t *testing.T) {
	got := Jaccard([]string{"agency", "safety"}, []string{"agency", "safety", "social_support"})
	assert.InDelta(t, 0.6667, got, 0.001)
}

func TestJaccardDisjoint(t *testing.T) {
	assert.Equal(t, 0.0, Jaccard([]string{"agency"}, []string{"safety"}))
}

func TestJaccardBothEmpty(t *testing.T) {
	// Two empty plans agree with each other.
	assert.Equal(t, 1.0, Jaccard(nil, nil))
}

func TestJaccardOneEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Jaccard([]string{"agency"}, nil))
}

func TestJaccardIgnoresDuplicatesAndOrder(t *testing.T) {
	a := Jaccard([]string{"safety", "agency", "agency"}, []string{"agency", "safety"})
	assert.Equal(t, 1.0, a)
}

func TestComputePairwiseJaccard(t *testing.T) {
	tax := DefaultTaxonomy()
	sets := [][]string{
		{"agency", "safety"},
		{"agency", "safety"},
		{"agency"},
	}
	// pairs: (1,2)=1.0, (1,3)=0.5, (2,3)=0.5 -> mean 2/3
	got := ComputePairwiseJaccard(sets, tax, false)
	assert.InDelta(t, 0.6667, got, 0.001)
}

func TestComputePairwiseJaccardOnlyValid(t *testing.T) {
	tax := DefaultTaxonomy()
	sets := [][]string{
		{"agency", "safety"},
		{},
		{"agency", "safety"},
	}
	// The empty set is invalid and filtered; the remaining pair is identical.
	got := ComputePairwiseJaccard(sets, tax, true)
	assert.Equal(t, 1.0, got)
}

func TestComputePairwiseJaccardTooFewSets(t *testing.T) {
	tax := DefaultTaxonomy()
	assert.Equal(t, 1.0, ComputePairwiseJaccard([][]string{{"agency"}}, tax, false))
	assert.Equal(t, 1.0, ComputePairwiseJaccard(nil, tax, false))
}

func TestComputeStabilityMetrics(t *testing.T) {
	tax := DefaultTaxonomy()
	trials := []TrialResult{
		{Plan: "<plan>agency / safety</plan>"},
		{Plan: "<plan>agency / safety</plan>"},
		{Plan: "<plan>agency</plan>"},
		{Plan: "nothing recognizable"},
	}
	m := ComputeStabilityMetrics(trials, tax)

	assert.Equal(t, 4, m.Trials)
	assert.InDelta(t, 0.75, m.ValidityRate, 1e-9)
	assert.Equal(t, 3, m.UniqueSets)
	assert.InDelta(t, 1.25, m.MeanSetSize, 1e-9)
	// Trials get annotated with their extracted strategy sets.
	assert.Equal(t, []string{"agency", "safety"}, trials[0].Strategies)
	assert.Nil(t, trials[3].Strategies)
	// Valid-only Jaccard over 3 sets: (1.0 + 0.5 + 0.5) / 3.
	assert.InDelta(t, 0.6667, m.JaccardValid, 0.001)
}
