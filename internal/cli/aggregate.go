package cli

import (
	"encoding/json"
	"fmt"
	"os"

	irtsim "github.com/goblincore/irtsim"
	"github.com/spf13/cobra"
)

var aggregateOut string

func init() {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Reduce finished runs into per-model and per-vignette stats",
		Run:   runAggregate,
	}
	cmd.Flags().StringVarP(&aggregateOut, "out", "o", "", "Write the report JSON to this path instead of stdout")

	RootCmd.AddCommand(cmd)
}

func runAggregate(cmd *cobra.Command, args []string) {
	report, err := irtsim.AggregateRuns(runsDir)
	if err != nil {
		exitErr("aggregate", err)
	}

	b, _ := json.MarshalIndent(report, "", "  ")
	if aggregateOut != "" {
		if err := writeFile(aggregateOut, b); err != nil {
			exitErr("write report", err)
		}
		fmt.Printf("aggregated %d runs (%d skipped) to %s\n", len(report.Runs), len(report.SkippedDirs), aggregateOut)
		return
	}
	fmt.Println(string(b))
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
