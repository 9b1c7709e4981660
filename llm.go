package irtsim

import "context"

// ChatMessage is one entry in a generation request. Role is one of
// RoleSystem, RoleUser, RoleAssistant.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage records token accounting for one generation call.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model,omitempty"`
}

// GenerateOptions override per-call sampling parameters. Zero values defer
// to the provider's configured defaults.
type GenerateOptions struct {
	Temperature *float64
	MaxTokens   int
}

// Temp is a convenience for building a temperature override.
func Temp(t float64) GenerateOptions {
	return GenerateOptions{Temperature: &t}
}

// Generator is the single capability every agent consumes: turn an ordered
// message list into text plus usage metadata. Implementations are network
// bound; cancellation and timeouts travel through ctx. Transport failures
// are returned as-is — the core never retries.
type Generator interface {
	Generate(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (string, Usage, error)
}

// Chunk is one increment of a streamed generation. Usage is populated only
// on the final chunk (Final=true); all other chunks carry a text delta.
type Chunk struct {
	Delta string
	Usage Usage
	Final bool
	Err   error
}

// StreamingGenerator is implemented by providers that support incremental
// output. The returned channel is closed after the final chunk; cancelling
// ctx tears the stream down at the transport.
type StreamingGenerator interface {
	Generator
	Stream(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (<-chan Chunk, error)
}
