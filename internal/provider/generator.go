package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrEmptyCompletion is returned when a backend answers with no text at all.
var ErrEmptyCompletion = errors.New("provider: empty completion")

// ChatGenerator adapts an eino chat model to Generator. Each call is wrapped
// in a callback run so globally registered handlers (Langfuse) observe it.
type ChatGenerator struct {
	// model is the underlying eino chat model.
	model model.BaseChatModel
	// backend labels the callback run.
	backend Backend
	// modelName labels the callback run.
	modelName string
	// fixedTemperature suppresses the per-call temperature option for models
	// that reject it.
	fixedTemperature bool
}

// NewChatGenerator wraps m. backend and modelName label traces only.
func NewChatGenerator(m model.BaseChatModel, backend Backend, modelName string) *ChatGenerator {
	return &ChatGenerator{model: m, backend: backend, modelName: modelName}
}

// Generate implements Generator.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      g.modelName,
		Type:      string(g.backend),
		Component: components.ComponentOfChatModel,
	})

	var opts []model.Option
	if !g.fixedTemperature {
		opts = append(opts, model.WithTemperature(temperature))
	}

	msg, err := g.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, opts...)
	if err != nil {
		return "", fmt.Errorf("provider: %s generate: %w", g.backend, err)
	}
	if msg == nil || msg.Content == "" {
		return "", fmt.Errorf("provider: %s: %w", g.backend, ErrEmptyCompletion)
	}
	return msg.Content, nil
}
