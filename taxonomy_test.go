package irtsim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultTaxonomy(t *testing.T) {
	tax := DefaultTaxonomy()
	if len(tax.Strategies) != 6 {
		t.Fatalf("expected 6 strategies, got %d", len(tax.Strategies))
	}
	if tax.MaxPerPlan != 2 {
		t.Errorf("expected per-plan budget 2, got %d", tax.MaxPerPlan)
	}
}

func TestTaxonomyIDs(t *testing.T) {
	ids := DefaultTaxonomy().IDs()
	if !ids["agency"] || !ids["sensory_modulation"] {
		t.Errorf("missing expected IDs: %v", ids)
	}
	if ids["hypnosis"] {
		t.Error("unexpected ID in set")
	}
}

func TestTaxonomyLookup(t *testing.T) {
	tax := DefaultTaxonomy()
	def, ok := tax.Lookup("safety")
	if !ok || def.Name != "Safety" {
		t.Errorf("lookup failed: %+v ok=%v", def, ok)
	}
	if _, ok := tax.Lookup("unknown"); ok {
		t.Error("unknown ID should not resolve")
	}
}

func TestTaxonomyBlock(t *testing.T) {
	block := DefaultTaxonomy().Block()
	if strings.Count(block, "\n") != 5 {
		t.Errorf("expected 6 bullet lines, got %q", block)
	}
	if !strings.Contains(block, "**agency**") {
		t.Errorf("missing agency bullet: %q", block)
	}
}

func TestLoadTaxonomy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	content := `max_per_plan: 3
strategies:
  - id: flight
    name: Flight
    description: Give the dreamer wings.
  - id: light
    name: Light
    description: Brighten the scene.
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	tax, err := LoadTaxonomy(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(tax.Strategies) != 2 || tax.MaxPerPlan != 3 {
		t.Errorf("unexpected taxonomy: %+v", tax)
	}
}

func TestLoadTaxonomyRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	os.WriteFile(path, []byte("strategies: []\n"), 0644)
	if _, err := LoadTaxonomy(path); err == nil {
		t.Error("expected error for empty strategy list")
	}
}

func TestLoadTaxonomyRejectsMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	os.WriteFile(path, []byte("strategies:\n  - name: NoID\n"), 0644)
	if _, err := LoadTaxonomy(path); err == nil {
		t.Error("expected error for strategy without an id")
	}
}
