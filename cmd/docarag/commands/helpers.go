package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/docarag-go/internal/agent"
	"github.com/54b3r/docarag-go/internal/embedder"
	"github.com/54b3r/docarag-go/internal/provider"
	"github.com/54b3r/docarag-go/internal/rag"
	"github.com/54b3r/docarag-go/internal/store"
	"github.com/54b3r/docarag-go/internal/tracing"
	"github.com/54b3r/docarag-go/internal/version"
)

// deps bundles the collaborators a command needs. close releases them in
// reverse order of construction.
type deps struct {
	agent       *agent.Agent
	generator   provider.Generator
	providerCfg *provider.Config
	embedder    rag.Embedder
	index       *rag.QdrantIndex
	journal     *store.SQLiteStore
	closers     []func()
}

func (r *deps) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// depsOptions selects the optional parts of deps.
type depsOptions struct {
	// withGenerator builds the LLM and the agent. Search and load skip it.
	withGenerator bool
	// withJournal opens the run journal.
	withJournal bool
}

// buildDeps wires tracing, the embedder, the Qdrant index and, when
// asked, the LLM, the run journal and the agent. On error everything built
// so far is released.
func buildDeps(ctx context.Context, log *slog.Logger, opts depsOptions) (_ *deps, err error) {
	rt := &deps{}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	rt.closers = append(rt.closers, setupTracing(ctx, log))

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	rt.embedder, err = embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("backend", embedder.Backend()),
		slog.Int("dimensions", rt.embedder.Dimension()),
	)

	rt.index, err = buildIndex(ctx, log, rt.embedder.Dimension())
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() { _ = rt.index.Close() })

	if !opts.withGenerator {
		return rt, nil
	}

	rt.providerCfg = provider.ConfigFromEnv()
	rt.generator, err = provider.New(ctx, rt.providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(rt.providerCfg.Backend)),
		slog.String("model", rt.providerCfg.ModelName()),
	)

	cfg := agent.ConfigFromEnv()
	cfg.Generator = rt.generator
	cfg.Embedder = rt.embedder
	cfg.Index = rt.index
	if cfg.Reranker, err = buildReranker(os.Getenv("AGENT_RERANKER")); err != nil {
		return nil, err
	}
	if cfg.Scorer, err = buildScorer(os.Getenv("AGENT_SCORER"), rt.generator); err != nil {
		return nil, err
	}

	if opts.withJournal {
		rt.journal = openJournal(log, os.Getenv("DOCARAG_HISTORY_DB"))
		if rt.journal != nil {
			cfg.Journal = rt.journal
			rt.closers = append(rt.closers, func() { _ = rt.journal.Close() })
		}
	}

	rt.agent, err = agent.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise agent: %w", err)
	}
	log.Info("agent ready",
		slog.Float64("confidence_threshold", rt.agent.Threshold()),
		slog.Int("max_iterations", cfg.DefaultMaxIterations),
	)
	return rt, nil
}

// buildIndex connects to Qdrant using QDRANT_* env vars. dim sizes the
// collection if it has to be created.
func buildIndex(ctx context.Context, log *slog.Logger, dim int) (*rag.QdrantIndex, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)

	idx, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: getEnvOrDefault("QDRANT_COLLECTION", rag.DefaultCollection),
		VectorSize: uint64(dim), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	log.Info("qdrant index ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("collection", idx.Collection()),
	)
	return idx, nil
}

// buildReranker maps AGENT_RERANKER onto a reranker. Empty and "none"
// disable reranking.
func buildReranker(name string) (rag.Reranker, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return nil, nil
	case "cosine":
		return rag.NewCosineReranker(), nil
	case "mmr":
		return rag.NewMMRReranker(), nil
	default:
		return nil, fmt.Errorf("unknown AGENT_RERANKER %q, valid values: none, cosine, mmr", name)
	}
}

// buildScorer maps AGENT_SCORER onto a scorer. Empty selects the LLM judge.
func buildScorer(name string, gen provider.Generator) (agent.Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "llm":
		return agent.NewLLMScorer(gen), nil
	case "heuristic":
		return agent.HeuristicScorer{}, nil
	default:
		return nil, fmt.Errorf("unknown AGENT_SCORER %q, valid values: llm, heuristic", name)
	}
}

// openJournal opens the run journal at path, ~/.docarag/runs.db when path is
// empty. "disabled" turns it off. Failures disable the journal with a
// warning; answering questions does not depend on it.
func openJournal(log *slog.Logger, path string) *store.SQLiteStore {
	if path == "disabled" {
		log.Info("journal: disabled via DOCARAG_HISTORY_DB=disabled")
		return nil
	}
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("journal: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}
	js, err := store.Open(path)
	if err != nil {
		log.Warn("journal: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("journal: store opened", slog.String("path", path))
	return js
}

// setupTracing enables Langfuse and OpenTelemetry when configured and
// returns a function that flushes both.
func setupTracing(ctx context.Context, log *slog.Logger) func() {
	flush, ok := tracing.SetupLangfuse()
	if ok {
		log.Info("langfuse tracing enabled")
	} else {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
	}

	shutdown, enabled, err := tracing.SetupOTel(ctx, tracing.OTelConfig{ServiceVersion: version.Version})
	switch {
	case err != nil:
		log.Warn("otel tracing disabled", slog.Any("error", err))
	case enabled:
		log.Info("otel tracing enabled")
	}

	return func() {
		flush()
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("otel shutdown failed", slog.Any("error", err))
		}
	}
}

// getEnvOrDefault returns the env var value or fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt parses an integer env var, returning fallback on absence or
// parse failure.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
