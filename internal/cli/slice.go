package cli

import (
	"fmt"

	irtsim "github.com/goblincore/irtsim"
	"github.com/spf13/cobra"
)

var (
	sliceIn    string
	sliceOut   string
	sliceTurn  int
	sliceStage string
)

func init() {
	cmd := &cobra.Command{
		Use:   "slice",
		Short: "Cut a saved conversation at a rewriting turn or stage boundary",
		Run:   runSlice,
	}
	cmd.Flags().StringVarP(&sliceIn, "in", "i", "", "Conversation JSON to slice (required)")
	cmd.Flags().StringVarP(&sliceOut, "out", "o", "", "Output path (required)")
	cmd.Flags().IntVarP(&sliceTurn, "turn", "t", 0, "1-based rewriting turn to cut at")
	cmd.Flags().StringVarP(&sliceStage, "stage", "s", "", "Cut at the end of this stage instead")
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagRequired("out")

	RootCmd.AddCommand(cmd)
}

func runSlice(cmd *cobra.Command, args []string) {
	conv, err := irtsim.LoadConversation(sliceIn)
	if err != nil {
		exitErr("load conversation", err)
	}

	var sliced *irtsim.Conversation
	switch {
	case sliceStage != "":
		sliced, err = conv.SliceAtStage(irtsim.Stage(sliceStage))
	case sliceTurn > 0:
		sliced, err = conv.SliceAtRewritingTurn(sliceTurn)
	default:
		exitErr("slice", fmt.Errorf("provide --turn or --stage"))
	}
	if err != nil {
		exitErr("slice", err)
	}

	if err := irtsim.SaveConversation(sliced, sliceOut); err != nil {
		exitErr("save slice", err)
	}
	fmt.Printf("wrote %d messages to %s\n", len(sliced.Messages), sliceOut)
}
