package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/docarag-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768

	// defaultTimeout bounds a single embedding call.
	defaultTimeout = 30 * time.Second
)

// Backend returns the effective embedding backend: EMBEDDING_PROVIDER, else
// MODEL_PROVIDER when that names an embedding-capable backend, else ollama.
func Backend() string {
	if b := os.Getenv("EMBEDDING_PROVIDER"); b != "" {
		return b
	}
	switch p := os.Getenv("MODEL_PROVIDER"); p {
	case "openai", "azure", "gemini", "ollama":
		return p
	default:
		return "ollama"
	}
}

// DefaultDimensions returns the embedding vector size for backend.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "gemini":
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// NewFromEnv constructs a rag.Embedder, inheriting credentials from the
// chat provider's env vars when embedding-specific overrides are absent.
//
// Environment variables:
//
//	EMBEDDING_PROVIDER   = ollama | openai | azure | gemini (default: see Backend)
//	EMBEDDING_MODEL      overrides the backend's default model
//	EMBEDDING_API_KEY    overrides the inherited API key
//	EMBEDDING_ENDPOINT   overrides the inherited endpoint
//	EMBEDDING_DIMENSIONS overrides the default dimensions
//	EMBEDDING_TIMEOUT    per-call timeout as a Go duration (default: 30s)
func NewFromEnv(ctx context.Context) (rag.Embedder, error) {
	backend := Backend()
	dims := DefaultDimensions(backend)
	timeout := getEnvDuration("EMBEDDING_TIMEOUT", defaultTimeout)

	switch backend {
	case "ollama":
		host := firstNonEmpty(os.Getenv("EMBEDDING_ENDPOINT"), os.Getenv("OLLAMA_HOST"), "http://localhost:11434")
		return NewOllamaEmbedder(&OllamaConfig{
			Host:       host,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
			Dimensions: dims,
			Timeout:    timeout,
		}), nil

	case "openai":
		apiKey := firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: dims,
			Timeout:    timeout,
		}), nil

	case "azure":
		apiKey := firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("AZURE_OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstNonEmpty(os.Getenv("EMBEDDING_ENDPOINT"), os.Getenv("AZURE_OPENAI_ENDPOINT"))
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: dims,
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
			Timeout:    timeout,
		}), nil

	case "gemini":
		apiKey := firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultGeminiModel),
			Dimensions: dims,
			Timeout:    timeout,
		})

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q, valid values: ollama, openai, azure, gemini", backend)
	}
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// getEnvOrDefault returns the named environment variable or fallback.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of key, or fallback when unset or invalid.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration parses key as a Go duration, falling back on absence or error.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
