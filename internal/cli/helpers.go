package cli

import (
	"fmt"
	"os"

	irtsim "github.com/goblincore/irtsim"
)

// embedderFromEnv picks an embedding backend from whichever API key is
// present, falling back to a local Ollama model.
func embedderFromEnv() (irtsim.EmbeddingProvider, error) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return irtsim.NewOpenAIEmbedder(key), nil
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return irtsim.NewGeminiEmbedder(key, 768), nil
	}
	if model := os.Getenv("IRTSIM_EMBED_MODEL"); model != "" {
		return irtsim.NewOllamaEmbedder(model, 768), nil
	}
	return nil, fmt.Errorf("set OPENAI_API_KEY, GEMINI_API_KEY, or IRTSIM_EMBED_MODEL")
}

func modelLabel(cfg *irtsim.ModelConfig, role string) string {
	if rc, ok := cfg.Roles[role]; ok {
		return rc.Model
	}
	return "unknown"
}
