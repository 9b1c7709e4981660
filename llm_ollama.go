package irtsim

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaGenerator talks to a local Ollama server. Implements
// StreamingGenerator. No API key required.
type OllamaGenerator struct {
	host        string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// OllamaGenOption configures an OllamaGenerator.
type OllamaGenOption func(*OllamaGenerator)

// WithOllamaGenHost sets the Ollama server URL (default: http://localhost:11434).
func WithOllamaGenHost(host string) OllamaGenOption {
	return func(g *OllamaGenerator) { g.host = host }
}

// NewOllamaGenerator creates a generator for a pulled Ollama chat model.
func NewOllamaGenerator(model string, temperature float64, maxTokens int, opts ...OllamaGenOption) *OllamaGenerator {
	g := &OllamaGenerator{
		host:        "http://localhost:11434",
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *OllamaGenerator) buildRequest(messages []ChatMessage, opts GenerateOptions, stream bool) ollamaChatRequest {
	temp := g.temperature
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}
	maxTokens := g.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	msgs := make([]ollamaChatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = ollamaChatMessage{Role: m.Role, Content: m.Content}
	}

	return ollamaChatRequest{
		Model:    g.model,
		Messages: msgs,
		Stream:   stream,
		Options:  ollamaChatOptions{Temperature: temp, NumPredict: maxTokens},
	}
}

// Generate performs a single non-streamed chat call.
func (g *OllamaGenerator) Generate(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (string, Usage, error) {
	jsonData, err := json.Marshal(g.buildRequest(messages, opts, false))
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.host+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", Usage{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", Usage{}, fmt.Errorf("ollama chat %d: %s", resp.StatusCode, string(body[:min(len(body), 200)]))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", Usage{}, fmt.Errorf("decode: %w", err)
	}

	return chatResp.Message.Content, chatResp.usage(g.model), nil
}

// Stream performs a streamed chat call; Ollama emits one JSON object per
// line, the last carrying the token counts.
func (g *OllamaGenerator) Stream(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (<-chan Chunk, error) {
	jsonData, err := json.Marshal(g.buildRequest(messages, opts, true))
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.host+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama chat %d: %s", resp.StatusCode, string(body[:min(len(body), 200)]))
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var chatResp ollamaChatResponse
			if err := json.Unmarshal(scanner.Bytes(), &chatResp); err != nil {
				out <- Chunk{Err: fmt.Errorf("ollama stream decode: %w", err), Final: true}
				return
			}
			if chatResp.Done {
				out <- Chunk{Usage: chatResp.usage(g.model), Final: true}
				return
			}
			select {
			case out <- Chunk{Delta: chatResp.Message.Content}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- Chunk{Err: fmt.Errorf("ollama stream: %w", err), Final: true}
		}
	}()
	return out, nil
}

// --- Ollama Chat API types ---

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaChatOptions   `json:"options"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaChatMessage `json:"message"`
	Done            bool              `json:"done"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}

func (r ollamaChatResponse) usage(model string) Usage {
	return Usage{
		PromptTokens:     r.PromptEvalCount,
		CompletionTokens: r.EvalCount,
		TotalTokens:      r.PromptEvalCount + r.EvalCount,
		Model:            model,
	}
}
