package irtsim

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator talks to any OpenAI-compatible chat completion API
// (OpenAI, Groq, Scaleway, vLLM, ...). Implements StreamingGenerator.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAIGenerator creates a generator for an OpenAI-compatible provider.
// baseURL may be empty for api.openai.com, or point at a compatible endpoint
// (e.g. https://api.groq.com/openai/v1).
func NewOpenAIGenerator(apiKey, model, baseURL string, temperature float64, maxTokens int) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key")
	}
	if model == "" {
		return nil, fmt.Errorf("no model configured")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (g *OpenAIGenerator) buildRequest(messages []ChatMessage, opts GenerateOptions) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	temp := g.temperature
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}
	maxTokens := g.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	return openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: float32(temp),
		MaxTokens:   maxTokens,
	}
}

// Generate performs a single-shot chat completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (string, Usage, error) {
	resp, err := g.client.CreateChatCompletion(ctx, g.buildRequest(messages, opts))
	if err != nil {
		return "", Usage{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("openai chat: no choices returned")
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Model:            resp.Model,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// Stream performs an incremental chat completion. The returned channel
// yields text deltas and closes after a final usage-bearing chunk.
func (g *OpenAIGenerator) Stream(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (<-chan Chunk, error) {
	req := g.buildRequest(messages, opts)
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer stream.Close()

		var usage Usage
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				usage.Model = g.model
				out <- Chunk{Usage: usage, Final: true}
				return
			}
			if err != nil {
				out <- Chunk{Err: fmt.Errorf("openai stream recv: %w", err), Final: true}
				return
			}
			if resp.Usage != nil {
				usage = Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
					Model:            resp.Model,
				}
			}
			if len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
				select {
				case out <- Chunk{Delta: resp.Choices[0].Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
