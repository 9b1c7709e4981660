// irtsim-mcp exposes the dialogue simulator and stability evaluator as an
// MCP stdio server.
//
// Environment variables:
//
//	IRTSIM_MODELS     — model config YAML (default: ./config/models.yaml)
//	IRTSIM_PROMPTS    — prompt pack directory (default: ./prompts)
//	IRTSIM_VIGNETTES  — vignette directory (default: ./vignettes)
//	IRTSIM_DB         — SQLite database path (default: ./data/irtsim.db)
//	IRTSIM_RUNS       — experiment run output directory (default: ./runs)
//
// Usage:
//
//	go install github.com/goblincore/irtsim/cmd/irtsim-mcp
//	irtsim-mcp
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	irtsim "github.com/goblincore/irtsim"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type app struct {
	cfg          *irtsim.ModelConfig
	prompts      *irtsim.PromptStore
	tax          *irtsim.Taxonomy
	store        *irtsim.Store
	vignettesDir string
	runsDir      string
}

func main() {
	godotenv.Load()

	a := &app{
		vignettesDir: envOr("IRTSIM_VIGNETTES", "./vignettes"),
		runsDir:      envOr("IRTSIM_RUNS", "./runs"),
	}

	var err error
	a.cfg, err = irtsim.LoadModelConfig(envOr("IRTSIM_MODELS", "./config/models.yaml"))
	if err != nil {
		log.Fatalf("model config: %v", err)
	}
	a.prompts, err = irtsim.LoadPromptStore(envOr("IRTSIM_PROMPTS", "./prompts"))
	if err != nil {
		log.Fatalf("prompts: %v", err)
	}
	a.tax = irtsim.DefaultTaxonomy()

	a.store, err = irtsim.NewStore(envOr("IRTSIM_DB", "./data/irtsim.db"))
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer a.store.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "irtsim-mcp",
		Version: "1.0.0",
	}, nil)

	// --- Tool: generate_session ---
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_session",
		Description: "Simulate a full patient/therapist dialogue for a vignette. Returns the session summary and ID.",
	}, a.generateHandler)

	// --- Tool: get_session ---
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_session",
		Description: "Retrieve an archived session transcript by session ID.",
	}, a.getSessionHandler)

	// --- Tool: list_sessions ---
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List archived sessions, newest first.",
	}, a.listSessionsHandler)

	// --- Tool: evaluate ---
	mcp.AddTool(server, &mcp.Tool{
		Name:        "evaluate",
		Description: "Run a multi-trial stability evaluation against an archived session, frozen at a rewriting turn. Returns the run directory and metrics.",
	}, a.evaluateHandler)

	// --- Tool: list_runs ---
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_runs",
		Description: "List indexed experiment runs, optionally filtered by model.",
	}, a.listRunsHandler)

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("irtsim-mcp: %v", err)
	}
}

// --- Input types ---

type generateInput struct {
	Vignette string `json:"vignette"            jsonschema:"Vignette name, e.g. cooperative"`
	Language string `json:"language,omitempty"  jsonschema:"Session language: en (default) or de"`
	MaxTurns int    `json:"max_turns,omitempty" jsonschema:"Max exchange pairs before giving up (default 30)"`
}

type getSessionInput struct {
	SessionID string `json:"session_id" jsonschema:"Session ID from generate_session or list_sessions"`
}

type listSessionsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Max sessions to return (default 20)"`
}

type evaluateInput struct {
	SessionID     string  `json:"session_id"                jsonschema:"Archived session to evaluate"`
	Mode          string  `json:"mode,omitempty"            jsonschema:"Evaluation mode: split (default) or fused"`
	Trials        int     `json:"trials,omitempty"          jsonschema:"Trials per run (default 10)"`
	Temperature   float64 `json:"temperature,omitempty"     jsonschema:"Sampling temperature (default 0.7)"`
	RewritingTurn int     `json:"rewriting_turn,omitempty"  jsonschema:"1-based rewriting turn to freeze at (default 1)"`
	Judge         bool    `json:"judge,omitempty"           jsonschema:"Also judge plan/response alignment"`
}

type listRunsInput struct {
	Model string `json:"model,omitempty" jsonschema:"Filter to one model"`
	Limit int    `json:"limit,omitempty" jsonschema:"Max runs to return (default 20)"`
}

// --- Handlers ---

func (a *app) generateHandler(ctx context.Context, req *mcp.CallToolRequest, input generateInput) (*mcp.CallToolResult, any, error) {
	lang, ok := irtsim.ParseLanguage(input.Language)
	if !ok {
		lang = irtsim.LanguageEnglish
	}

	vignette, err := irtsim.LoadVignette(a.vignettesDir, input.Vignette)
	if err != nil {
		return textResult(fmt.Sprintf("error: %v", err)), nil, nil
	}

	patientGen, err := a.cfg.GeneratorFor("patient")
	if err != nil {
		return textResult(fmt.Sprintf("error: %v", err)), nil, nil
	}
	therapistGen, err := a.cfg.GeneratorFor("therapist")
	if err != nil {
		return textResult(fmt.Sprintf("error: %v", err)), nil, nil
	}
	routerGen, err := a.cfg.GeneratorFor("router")
	if err != nil {
		return textResult(fmt.Sprintf("error: %v", err)), nil, nil
	}

	opts := []irtsim.GenerationOption{irtsim.WithSessionStore(a.store)}
	if input.MaxTurns > 0 {
		opts = append(opts, irtsim.WithMaxTurns(input.MaxTurns))
	}

	stack := irtsim.NewGenerationStack(
		irtsim.NewPatientAgent(patientGen, a.prompts, vignette, lang),
		irtsim.NewStageRouter(routerGen, a.prompts),
		irtsim.NewTherapistAgent(therapistGen, a.prompts),
		lang,
		opts...,
	)

	result, err := stack.Run(ctx)
	if err != nil {
		return textResult(fmt.Sprintf("error: %v", err)), nil, nil
	}
	return textResult(jsonString(map[string]any{
		"session_id":  result.Conversation.SessionID,
		"completed":   result.Completed,
		"turns":       result.Turns,
		"final_stage": result.FinalStage,
		"tokens":      result.TotalUsage.TotalTokens,
	})), nil, nil
}

func (a *app) getSessionHandler(ctx context.Context, req *mcp.CallToolRequest, input getSessionInput) (*mcp.CallToolResult, any, error) {
	conv, err := a.store.LoadSession(ctx, input.SessionID)
	if err != nil {
		return textResult(fmt.Sprintf("error: %v", err)), nil, nil
	}
	return textResult(jsonString(conv)), nil, nil
}

func (a *app) listSessionsHandler(ctx context.Context, req *mcp.CallToolRequest, input listSessionsInput) (*mcp.CallToolResult, any, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	records, err := a.store.ListSessions(ctx, limit)
	if err != nil {
		return textResult(fmt.Sprintf("error: %v", err)), nil, nil
	}

	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = map[string]any{
			"session_id":  r.SessionID,
			"user_id":     r.UserID,
			"language":    r.Language,
			"completed":   r.Completed,
			"turns":       r.Turns,
			"final_stage": r.FinalStage,
			"created_at":  r.CreatedAt,
		}
	}
	return textResult(jsonString(out)), nil, nil
}

func (a *app) evaluateHandler(ctx context.Context, req *mcp.CallToolRequest, input evaluateInput) (*mcp.CallToolResult, any, error) {
	mode := irtsim.EvalSplit
	if input.Mode != "" {
		var err error
		mode, err = irtsim.ParseEvalMode(input.Mode)
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
	}
	trials := input.Trials
	if trials <= 0 {
		trials = 10
	}
	temperature := input.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	turn := input.RewritingTurn
	if turn <= 0 {
		turn = 1
	}

	conv, err := a.store.LoadSession(ctx, input.SessionID)
	if err != nil {
		return textResult(fmt.Sprintf("error: %v", err)), nil, nil
	}

	evalGen, err := a.cfg.GeneratorFor("evaluation")
	if err != nil {
		return textResult(fmt.Sprintf("error: %v", err)), nil, nil
	}

	stack, err := irtsim.FreezeAtRewritingTurn(evalGen, a.prompts, mode, conv, turn)
	if err != nil {
		return textResult(fmt.Sprintf("error: %v", err)), nil, nil
	}

	opts := []irtsim.ExperimentOption{irtsim.WithRunIndex(a.store)}
	if input.Judge {
		judgeGen, err := a.cfg.GeneratorFor("judge")
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		opts = append(opts, irtsim.WithAlignmentJudge(irtsim.NewAlignmentJudge(judgeGen, a.prompts, a.tax)))
	}

	model := "unknown"
	if rc, ok := a.cfg.Roles["evaluation"]; ok {
		model = rc.Model
	}

	runner := irtsim.NewExperimentRunner(irtsim.NewSampler(stack, 1), stack.Frozen(), a.tax, a.runsDir, opts...)
	dir, err := runner.Run(ctx, irtsim.ExperimentConfig{
		Model:         model,
		Vignette:      conv.UserID,
		Mode:          mode,
		Trials:        trials,
		Temperature:   temperature,
		RewritingTurn: turn,
		Language:      conv.Language,
	})
	if err != nil {
		return textResult(fmt.Sprintf("error: %v", err)), nil, nil
	}
	return textResult(jsonString(map[string]any{
		"run_dir": dir,
		"status":  "done",
	})), nil, nil
}

func (a *app) listRunsHandler(ctx context.Context, req *mcp.CallToolRequest, input listRunsInput) (*mcp.CallToolResult, any, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	runs, err := a.store.ListRuns(ctx, input.Model, limit)
	if err != nil {
		return textResult(fmt.Sprintf("error: %v", err)), nil, nil
	}
	return textResult(jsonString(runs)), nil, nil
}

// --- Helpers ---

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func jsonString(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "marshal: %v"}`, err)
	}
	return string(b)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
