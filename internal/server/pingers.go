package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docarag-go/internal/provider"
	"github.com/54b3r/docarag-go/internal/rag"
)

// LLMPinger probes the generation backend. It prefers the backend's
// model-listing endpoint and only sends a real prompt when none exists.
type LLMPinger struct {
	// gen is used for the token-spending fallback probe.
	gen provider.Generator
	// hc is the zero-cost probe; nil selects the fallback.
	hc provider.HealthChecker
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger. hc may be nil.
func NewLLMPinger(gen provider.Generator, hc provider.HealthChecker, name string) *LLMPinger {
	return &LLMPinger{gen: gen, hc: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend for readiness.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.hc != nil {
		if err := p.hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}

	slog.Warn("pinger: no listing endpoint, probing with a generate call",
		slog.String("backend", p.name),
	)
	if _, err := p.gen.Generate(ctx, "ping", 0); err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// EmbedderPinger probes the embedding service by embedding a single word
// and checking the vector length.
type EmbedderPinger struct {
	embedder rag.Embedder
}

// NewEmbedderPinger constructs an EmbedderPinger.
func NewEmbedderPinger(e rag.Embedder) *EmbedderPinger {
	return &EmbedderPinger{embedder: e}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds "ping" and checks the dimension.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("embed returned %d vectors, want 1", len(vecs))
	}
	if d := p.embedder.Dimension(); d > 0 && len(vecs[0]) != d {
		return fmt.Errorf("embed returned dimension %d, want %d", len(vecs[0]), d)
	}
	return nil
}
