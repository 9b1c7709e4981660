package cli

import (
	"fmt"

	irtsim "github.com/goblincore/irtsim"
	"github.com/spf13/cobra"
)

var (
	evalHistory     string
	evalMode        string
	evalTrials      int
	evalTemperature float64
	evalTurn        int
	evalConcurrency int
	evalJudge       bool
	evalSimilarity  bool
	evalModel       string
	evalVignetteTag string
)

func init() {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run a multi-trial stability evaluation at a frozen decision point",
		Run:   runEvaluate,
	}
	cmd.Flags().StringVarP(&evalHistory, "history", "i", "", "Finished conversation JSON (required)")
	cmd.Flags().StringVar(&evalMode, "mode", "split", "Evaluation mode: split or fused")
	cmd.Flags().IntVarP(&evalTrials, "trials", "n", 10, "Trials per run")
	cmd.Flags().Float64VarP(&evalTemperature, "temperature", "t", 0.7, "Sampling temperature")
	cmd.Flags().IntVar(&evalTurn, "turn", 1, "1-based rewriting turn to freeze at")
	cmd.Flags().IntVarP(&evalConcurrency, "concurrency", "c", 1, "Parallel trials (1 = sequential)")
	cmd.Flags().BoolVar(&evalJudge, "judge", false, "Judge plan/response alignment")
	cmd.Flags().BoolVar(&evalSimilarity, "similarity", false, "Score pairwise response similarity with embeddings")
	cmd.Flags().StringVar(&evalModel, "model-label", "", "Model label in the run directory name (default: evaluation role model)")
	cmd.Flags().StringVar(&evalVignetteTag, "vignette-label", "unknown", "Vignette label in the run directory name")
	cmd.MarkFlagRequired("history")

	RootCmd.AddCommand(cmd)
}

func runEvaluate(cmd *cobra.Command, args []string) {
	mode, err := irtsim.ParseEvalMode(evalMode)
	if err != nil {
		exitErr("mode", err)
	}

	cfg, err := irtsim.LoadModelConfig(modelsPath)
	if err != nil {
		exitErr("model config", err)
	}
	prompts, err := loadPrompts()
	if err != nil {
		exitErr("prompts", err)
	}
	tax, err := loadTaxonomy()
	if err != nil {
		exitErr("taxonomy", err)
	}
	conv, err := irtsim.LoadConversation(evalHistory)
	if err != nil {
		exitErr("load conversation", err)
	}

	evalGen, err := cfg.GeneratorFor("evaluation")
	if err != nil {
		exitErr("evaluation model", err)
	}

	stack, err := irtsim.FreezeAtRewritingTurn(evalGen, prompts, mode, conv, evalTurn)
	if err != nil {
		exitErr("freeze", err)
	}
	sampler := irtsim.NewSampler(stack, evalConcurrency)

	var opts []irtsim.ExperimentOption
	if evalJudge {
		judgeGen, err := cfg.GeneratorFor("judge")
		if err != nil {
			exitErr("judge model", err)
		}
		opts = append(opts, irtsim.WithAlignmentJudge(irtsim.NewAlignmentJudge(judgeGen, prompts, tax)))
	}
	if evalSimilarity {
		embedder, err := embedderFromEnv()
		if err != nil {
			exitErr("embedder", err)
		}
		opts = append(opts, irtsim.WithSimilarityScorer(irtsim.NewEmbeddingScorer(embedder)))
	}

	store, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer store.Close()
	opts = append(opts, irtsim.WithRunIndex(store))

	model := evalModel
	if model == "" {
		model = modelLabel(cfg, "evaluation")
	}

	runner := irtsim.NewExperimentRunner(sampler, stack.Frozen(), tax, runsDir, opts...)
	dir, err := runner.Run(cmd.Context(), irtsim.ExperimentConfig{
		Model:         model,
		Vignette:      evalVignetteTag,
		Mode:          mode,
		Trials:        evalTrials,
		Temperature:   evalTemperature,
		RewritingTurn: evalTurn,
		Language:      conv.Language,
	})
	if err != nil {
		exitErr("evaluate", err)
	}
	fmt.Println(dir)
}
