package embedder

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GeminiEmbedder implements rag.Embedder with the Gemini EmbedContent API.
type GeminiEmbedder struct {
	// client is the shared genai client.
	client *genai.Client
	// model is the embedding model name (e.g. "text-embedding-004").
	model string
	// dimensions is the requested output dimensionality.
	dimensions int
	// timeout bounds each embed call.
	timeout time.Duration
}

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Google AI Studio API key.
	APIKey string
	// Model is the embedding model name.
	Model string
	// Dimensions is the requested output dimensionality (default 768).
	Dimensions int
	// Timeout bounds each embed call (default 30s).
	Timeout time.Duration
}

// NewGeminiEmbedder constructs a GeminiEmbedder backed by the Gemini API.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedder: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: create client: %w", err)
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = defaultGeminiDimensions
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GeminiEmbedder{client: client, model: cfg.Model, dimensions: dims, timeout: timeout}, nil
}

// Dimension returns the requested output dimensionality.
func (e *GeminiEmbedder) Dimension() int { return e.dimensions }

// Embed converts a batch of texts into embeddings parallel to texts.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkInput("gemini", texts); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	dims := int32(e.dimensions) //nolint:gosec // bounded by model limits
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: request failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embedder: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	if err := checkDims("gemini", e.dimensions, out); err != nil {
		return nil, err
	}
	return out, nil
}
