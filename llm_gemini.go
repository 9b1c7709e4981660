package irtsim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GeminiGenerator talks to the Google Generative Language API directly.
// Implements Generator.
type GeminiGenerator struct {
	apiKey      string
	model       string
	baseURL     string // overridable for tests
	temperature float64
	maxTokens   int
	client      *http.Client
}

// NewGeminiGenerator creates a generator for a Gemini model.
func NewGeminiGenerator(apiKey, model string, temperature float64, maxTokens int) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key")
	}
	if model == "" {
		model = "gemini-2.5-flash-lite"
	}
	return &GeminiGenerator{
		apiKey:      apiKey,
		model:       model,
		baseURL:     "https://generativelanguage.googleapis.com/v1beta/models",
		temperature: temperature,
		maxTokens:   maxTokens,
		client:      &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Generate converts the message list to Gemini's content format (system
// messages become systemInstruction, assistant maps to "model") and performs
// one generateContent call.
func (g *GeminiGenerator) Generate(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (string, Usage, error) {
	url := g.baseURL + "/" + g.model + ":generateContent?key=" + g.apiKey

	temp := g.temperature
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}
	maxTokens := g.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	var contents []geminiContent
	var system string
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = m.Content
		case RoleAssistant:
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	reqBody := geminiGenerateRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     temp,
			MaxOutputTokens: maxTokens,
		},
	}
	if system != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
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
		return "", Usage{}, fmt.Errorf("gemini generate %d: %s", resp.StatusCode, string(body[:min(len(body), 300)]))
	}

	var geminiResp geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", Usage{}, fmt.Errorf("decode: %w", err)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", Usage{}, fmt.Errorf("empty response")
	}

	usage := Usage{
		PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
		CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
		Model:            g.model,
	}
	return geminiResp.Candidates[0].Content.Parts[0].Text, usage, nil
}

// --- Gemini API types ---

type geminiGenerateRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}
