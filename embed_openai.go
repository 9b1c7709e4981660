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

// OpenAIEmbedder generates vector embeddings via the OpenAI API.
// Implements EmbeddingProvider.
type OpenAIEmbedder struct {
	apiKey    string
	model     string
	dimension int
	baseURL   string
	client    *http.Client
}

// OpenAIEmbedOption configures an OpenAIEmbedder.
type OpenAIEmbedOption func(*OpenAIEmbedder)

// WithOpenAIEmbedModel sets the embedding model (default: text-embedding-3-small).
func WithOpenAIEmbedModel(model string) OpenAIEmbedOption {
	return func(e *OpenAIEmbedder) { e.model = model }
}

// WithOpenAIEmbedDimension sets the output embedding dimension (default: 1536).
func WithOpenAIEmbedDimension(dim int) OpenAIEmbedOption {
	return func(e *OpenAIEmbedder) { e.dimension = dim }
}

// WithOpenAIEmbedBaseURL sets the API base URL (default: https://api.openai.com).
// Useful for Azure OpenAI, proxies, or compatible APIs.
func WithOpenAIEmbedBaseURL(url string) OpenAIEmbedOption {
	return func(e *OpenAIEmbedder) { e.baseURL = url }
}

// NewOpenAIEmbedder creates an embedding provider for OpenAI's embedding models.
func NewOpenAIEmbedder(apiKey string, opts ...OpenAIEmbedOption) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		apiKey:    apiKey,
		model:     "text-embedding-3-small",
		dimension: 1536,
		baseURL:   "https://api.openai.com",
		client:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed generates a vector for the given text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("no API key")
	}

	url := e.baseURL + "/v1/embeddings"

	reqBody := openAIEmbedRequest{
		Input:      text,
		Model:      e.model,
		Dimensions: e.dimension,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai embed %d: %s", resp.StatusCode, string(body[:min(len(body), 200)]))
	}

	var oaiResp openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if len(oaiResp.Data) == 0 || len(oaiResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	vec := make([]float32, len(oaiResp.Data[0].Embedding))
	for i, v := range oaiResp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimension returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// --- OpenAI Embed API types ---

type openAIEmbedRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

type openAIEmbedResponse struct {
	Data []openAIEmbedData `json:"data"`
}

type openAIEmbedData struct {
	Embedding []float64 `json:"embedding"`
}
