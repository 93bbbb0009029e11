// Package provider selects and constructs the LLM backend the query agent
// talks to. Every backend is exposed through the same narrow Generator
// interface: one prompt in, one completion out, temperature chosen per call.
// Supported backends: Ollama, OpenAI, Azure OpenAI, Volcengine Ark, Google
// Gemini (all via eino) and Anthropic (via the official SDK).
package provider

import "context"

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects the Volcengine Ark model runtime.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendAnthropic selects the Anthropic Messages API.
	BackendAnthropic Backend = "anthropic"
)

// Generator produces a single completion for a single prompt. It is the only
// LLM contract the agent depends on. Implementations must be safe to call
// from multiple goroutines.
type Generator interface {
	// Generate sends prompt as a user message and returns the completion text.
	Generate(ctx context.Context, prompt string, temperature float32) (string, error)
}

// ProviderOllama holds Ollama connection settings.
type ProviderOllama struct {
	// Host is the Ollama base URL (OLLAMA_HOST).
	Host string
	// Model is the chat model name (OLLAMA_MODEL).
	Model string
}

// ProviderOpenAI holds OpenAI credentials.
type ProviderOpenAI struct {
	// APIKey is the OpenAI API key (OPENAI_API_KEY).
	APIKey string
	// Model is the chat model name (OPENAI_MODEL).
	Model string
	// BaseURL optionally points at an OpenAI-compatible endpoint (OPENAI_BASE_URL).
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	// APIKey is the Azure resource key (AZURE_OPENAI_API_KEY).
	APIKey string
	// Endpoint is the resource URL (AZURE_OPENAI_ENDPOINT).
	Endpoint string
	// Deployment is the chat deployment name (AZURE_OPENAI_DEPLOYMENT).
	Deployment string
	// APIVersion is the REST API version (AZURE_OPENAI_API_VERSION).
	APIVersion string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	// APIKey is the Ark API key (ARK_API_KEY).
	APIKey string
	// Model is the Ark endpoint or model ID (ARK_MODEL).
	Model string
	// BaseURL overrides the regional Ark endpoint (ARK_BASE_URL).
	BaseURL string
}

// ProviderGemini holds Google AI Studio settings.
type ProviderGemini struct {
	// APIKey is the Google API key (GOOGLE_API_KEY).
	APIKey string
	// Model is the Gemini model name (GEMINI_MODEL).
	Model string
}

// ProviderAnthropic holds Anthropic settings.
type ProviderAnthropic struct {
	// APIKey is the Anthropic API key (ANTHROPIC_API_KEY).
	APIKey string
	// Model is the Claude model name (ANTHROPIC_MODEL).
	Model string
	// BaseURL overrides the API endpoint (ANTHROPIC_BASE_URL).
	BaseURL string
}

// SharedTuning holds generation settings common to every backend.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per call (MODEL_MAX_TOKENS).
	MaxTokens int
	// Temperature is the backend default; the agent overrides it per call
	// (MODEL_TEMPERATURE).
	Temperature float32
}

// Config holds all provider-level configuration. Only the sub-struct that
// matches Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Ollama is used when Backend is BackendOllama.
	Ollama ProviderOllama
	// OpenAI is used when Backend is BackendOpenAI.
	OpenAI ProviderOpenAI
	// AzureOpenAI is used when Backend is BackendAzure.
	AzureOpenAI ProviderAzureOpenAI
	// Ark is used when Backend is BackendArk.
	Ark ProviderArk
	// Gemini is used when Backend is BackendGemini.
	Gemini ProviderGemini
	// Anthropic is used when Backend is BackendAnthropic.
	Anthropic ProviderAnthropic

	// Tuning applies to every backend.
	Tuning SharedTuning
}

// ModelName returns the model or deployment the configured backend will call.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	case BackendGemini:
		return c.Gemini.Model
	case BackendAnthropic:
		return c.Anthropic.Model
	default:
		return ""
	}
}
