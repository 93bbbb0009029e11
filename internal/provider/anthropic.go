package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// AnthropicGenerator implements Generator on the Anthropic Messages API.
type AnthropicGenerator struct {
	// client is the SDK client; it carries the API key and base URL.
	client anthropic.Client
	// model is the Claude model name.
	model string
	// maxTokens caps each completion.
	maxTokens int64
}

// NewAnthropicGenerator constructs an AnthropicGenerator. tuning.MaxTokens
// falls back to 4096 when unset.
func NewAnthropicGenerator(cfg *ProviderAnthropic, tuning SharedTuning) *AnthropicGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := int64(tuning.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicGenerator{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// Generate implements Generator. Text blocks of the reply are concatenated.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   g.maxTokens,
		Temperature: param.NewOpt(float64(temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("provider: anthropic generate: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("provider: anthropic: %w", ErrEmptyCompletion)
	}
	return sb.String(), nil
}
