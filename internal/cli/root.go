// Package cli implements the irtsim CLI commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	irtsim "github.com/goblincore/irtsim"
	"github.com/spf13/cobra"
)

var (
	modelsPath   string
	promptsDir   string
	vignettesDir string
	taxonomyPath string
	dbPath       string
	runsDir      string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "irtsim",
	Short: "Simulated imagery-rehearsal-therapy dialogues and LLM stability evaluation",
	Long: "irtsim generates synthetic nightmare-therapy dialogues between a patient\n" +
		"simulator and a stage-routed therapist, then measures how stable a model's\n" +
		"therapeutic planning is across repeated trials at a frozen decision point.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&modelsPath, "models", "m", "config/models.yaml", "Model configuration YAML")
	RootCmd.PersistentFlags().StringVarP(&promptsDir, "prompts", "p", "prompts", "Prompt pack directory")
	RootCmd.PersistentFlags().StringVar(&vignettesDir, "vignettes", "vignettes", "Vignette directory")
	RootCmd.PersistentFlags().StringVar(&taxonomyPath, "taxonomy", "", "Strategy taxonomy YAML (default: built-in taxonomy)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite path (default: $IRTSIM_DB or ./data/irtsim.db)")
	RootCmd.PersistentFlags().StringVar(&runsDir, "runs", "runs", "Experiment run output directory")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("IRTSIM_DB"); env != "" {
		return env
	}
	return filepath.Join("data", "irtsim.db")
}

func openStore() (*irtsim.Store, error) {
	return irtsim.NewStore(getDBPath())
}

func loadPrompts() (*irtsim.PromptStore, error) {
	return irtsim.LoadPromptStore(promptsDir)
}

func loadTaxonomy() (*irtsim.Taxonomy, error) {
	if taxonomyPath == "" {
		return irtsim.DefaultTaxonomy(), nil
	}
	return irtsim.LoadTaxonomy(taxonomyPath)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
