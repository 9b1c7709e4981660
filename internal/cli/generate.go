package cli

import (
	"fmt"

	irtsim "github.com/goblincore/irtsim"
	"github.com/spf13/cobra"
)

var (
	genVignette string
	genLanguage string
	genMaxTurns int
	genOut      string
	genArchive  bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Simulate one patient/therapist session",
		Run:   runGenerate,
	}
	cmd.Flags().StringVarP(&genVignette, "vignette", "v", "", "Vignette name (required)")
	cmd.Flags().StringVarP(&genLanguage, "language", "l", "en", "Session language: en or de")
	cmd.Flags().IntVar(&genMaxTurns, "max-turns", 30, "Maximum exchange pairs before giving up")
	cmd.Flags().StringVarP(&genOut, "out", "o", "", "Write the conversation JSON to this path")
	cmd.Flags().BoolVar(&genArchive, "archive", true, "Archive the session in the SQLite store")
	cmd.MarkFlagRequired("vignette")

	RootCmd.AddCommand(cmd)
}

func runGenerate(cmd *cobra.Command, args []string) {
	lang, ok := irtsim.ParseLanguage(genLanguage)
	if !ok {
		exitErr("language", fmt.Errorf("unknown language %q", genLanguage))
	}

	cfg, err := irtsim.LoadModelConfig(modelsPath)
	if err != nil {
		exitErr("model config", err)
	}
	prompts, err := loadPrompts()
	if err != nil {
		exitErr("prompts", err)
	}
	vignette, err := irtsim.LoadVignette(vignettesDir, genVignette)
	if err != nil {
		exitErr("vignette", err)
	}

	patientGen, err := cfg.GeneratorFor("patient")
	if err != nil {
		exitErr("patient model", err)
	}
	therapistGen, err := cfg.GeneratorFor("therapist")
	if err != nil {
		exitErr("therapist model", err)
	}
	routerGen, err := cfg.GeneratorFor("router")
	if err != nil {
		exitErr("router model", err)
	}

	opts := []irtsim.GenerationOption{irtsim.WithMaxTurns(genMaxTurns)}
	if genArchive {
		store, err := openStore()
		if err != nil {
			exitErr("open store", err)
		}
		defer store.Close()
		opts = append(opts, irtsim.WithSessionStore(store))
	}

	stack := irtsim.NewGenerationStack(
		irtsim.NewPatientAgent(patientGen, prompts, vignette, lang),
		irtsim.NewStageRouter(routerGen, prompts),
		irtsim.NewTherapistAgent(therapistGen, prompts),
		lang,
		opts...,
	)

	result, err := stack.Run(cmd.Context())
	if err != nil {
		exitErr("generate", err)
	}

	if genOut != "" {
		if err := irtsim.SaveConversation(result.Conversation, genOut); err != nil {
			exitErr("save conversation", err)
		}
	}
	fmt.Println(result.Summary())
}
