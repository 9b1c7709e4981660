package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	sessionsLimit int
	sessionsShow  string
)

func init() {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List or export archived sessions",
		Run:   runSessions,
	}
	cmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Max sessions to list")
	cmd.Flags().StringVar(&sessionsShow, "show", "", "Print the full transcript for this session ID")

	RootCmd.AddCommand(cmd)
}

func runSessions(cmd *cobra.Command, args []string) {
	store, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer store.Close()

	if sessionsShow != "" {
		conv, err := store.LoadSession(cmd.Context(), sessionsShow)
		if err != nil {
			exitErr("load session", err)
		}
		b, _ := json.MarshalIndent(conv, "", "  ")
		fmt.Println(string(b))
		return
	}

	records, err := store.ListSessions(cmd.Context(), sessionsLimit)
	if err != nil {
		exitErr("list sessions", err)
	}
	for _, r := range records {
		status := "incomplete"
		if r.Completed {
			status = "completed "
		}
		fmt.Printf("%s  %s  %-10s  %2d turns  %6d tok  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04"), r.SessionID, status, r.Turns, r.TotalTokens, r.FinalStage)
	}
}
