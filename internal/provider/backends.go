package provider

import (
	"context"
	"fmt"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"google.golang.org/genai"
)

// newOllama constructs a Generator backed by a local Ollama instance.
func newOllama(ctx context.Context, cfg *Config) (Generator, error) {
	m, err := einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: cfg.Ollama.Host,
		Model:   cfg.Ollama.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create ollama model: %w", err)
	}
	return NewChatGenerator(m, BackendOllama, cfg.Ollama.Model), nil
}

// newOpenAI constructs a Generator backed by the OpenAI API.
func newOpenAI(ctx context.Context, cfg *Config) (Generator, error) {
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature
	m, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.OpenAI.Model,
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create openai model: %w", err)
	}
	return NewChatGenerator(m, BackendOpenAI, cfg.OpenAI.Model), nil
}

// newAzure constructs a Generator backed by Azure OpenAI Service. Reasoning
// deployments reject temperature and max_tokens, so neither is configured
// nor sent per call.
func newAzure(ctx context.Context, cfg *Config) (Generator, error) {
	az := cfg.AzureOpenAI
	reasoning := isAzureReasoningModel(az.Deployment)

	mc := &einoopenai.ChatModelConfig{
		Model:      az.Deployment,
		APIKey:     az.APIKey,
		BaseURL:    az.Endpoint,
		ByAzure:    true,
		APIVersion: az.APIVersion,
		// Use the deployment name as-is; the default mapper strips dots and
		// colons, which breaks deployment names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	}
	if !reasoning {
		maxTokens := cfg.Tuning.MaxTokens
		temp := cfg.Tuning.Temperature
		mc.MaxTokens = &maxTokens
		mc.Temperature = &temp
	}

	m, err := einoopenai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create azure model: %w", err)
	}
	g := NewChatGenerator(m, BackendAzure, az.Deployment)
	g.fixedTemperature = reasoning
	return g, nil
}

// newArk constructs a Generator backed by the Volcengine Ark runtime.
func newArk(ctx context.Context, cfg *Config) (Generator, error) {
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature
	m, err := einoark.NewChatModel(ctx, &einoark.ChatModelConfig{
		Model:       cfg.Ark.Model,
		APIKey:      cfg.Ark.APIKey,
		BaseURL:     cfg.Ark.BaseURL,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create ark model: %w", err)
	}
	return NewChatGenerator(m, BackendArk, cfg.Ark.Model), nil
}

// newGemini constructs a Generator backed by Google Gemini (AI Studio).
func newGemini(ctx context.Context, cfg *Config) (Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create Gemini client: %w", err)
	}
	m, err := einogemini.NewChatModel(ctx, &einogemini.Config{
		Client: client,
		Model:  cfg.Gemini.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create gemini model: %w", err)
	}
	return NewChatGenerator(m, BackendGemini, cfg.Gemini.Model), nil
}
