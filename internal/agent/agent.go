// Package agent implements the document question-answering loop:
// rephrase the question, embed it, retrieve the nearest chunks, generate an
// answer from them and score that answer, looping back while confidence is
// low and the iteration budget allows. The loop is an explicit state machine
// driven by Run: each step returns an Update, and Advance maps
// (phase, state, update) to (next phase, next state). Transition is the
// phase half of that map. Every collaborator is injected through Config so
// tests can substitute fakes.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/54b3r/docarag-go/internal/budget"
	"github.com/54b3r/docarag-go/internal/logging"
	"github.com/54b3r/docarag-go/internal/provider"
	"github.com/54b3r/docarag-go/internal/rag"
	"github.com/54b3r/docarag-go/internal/store"
	"github.com/54b3r/docarag-go/internal/tracing"
)

const (
	// MaxIterationsLimit is the largest iteration cap a caller may request.
	MaxIterationsLimit = 5
	// MaxSearchK caps the result count of a direct search.
	MaxSearchK = 100

	DefaultConfidenceThreshold = 0.7
	DefaultMaxIterations       = 2
	DefaultRetrievalK          = 20
	DefaultContextTopN         = 5
	DefaultGenerateTemperature = 0.2
	DefaultCallTimeout         = 60 * time.Second
	DefaultEmbedTimeout        = 30 * time.Second
)

// Config holds the collaborators and tuning of an Agent.
type Config struct {
	// Generator is the LLM used for rephrasing, answering and (by default)
	// scoring. Required.
	Generator provider.Generator

	// Embedder turns the query into a vector. Required.
	Embedder rag.Embedder

	// Index is searched for chunks. Required.
	Index rag.VectorIndex

	// Reranker optionally reorders retrieved chunks. A failing reranker is
	// logged and ignored.
	Reranker rag.Reranker

	// Scorer rates answers. Defaults to an LLMScorer over Generator.
	Scorer Scorer

	// Journal optionally records each completed run.
	Journal store.RunJournal

	// ConfidenceThreshold is the score below which another iteration may run.
	ConfidenceThreshold float64

	// DefaultMaxIterations applies when a Request leaves MaxIterations at 0.
	DefaultMaxIterations int

	// RetrievalK is the number of chunks requested from the index.
	RetrievalK int

	// ContextTopN is the number of top chunks placed in the answer prompt.
	ContextTopN int

	// GenerateTemperature is the sampling temperature for answers.
	GenerateTemperature float32

	// MaxContextTokens bounds the estimated size of the context block.
	MaxContextTokens int

	// CallTimeout bounds each LLM and index call.
	CallTimeout time.Duration

	// EmbedTimeout bounds each embedding call.
	EmbedTimeout time.Duration

	// NewRunID generates run identifiers. Defaults to random UUIDs.
	NewRunID func() string
}

// ConfigFromEnv returns a Config with tuning read from AGENT_* and
// EMBEDDING_TIMEOUT. Collaborators are left nil for the caller to fill in.
//
//	AGENT_CONFIDENCE_THRESHOLD  (default: 0.7)
//	AGENT_MAX_ITERATIONS        (default: 2)
//	AGENT_RETRIEVAL_K           (default: 20)
//	AGENT_CONTEXT_TOP_N         (default: 5)
//	AGENT_GENERATE_TEMPERATURE  (default: 0.2)
//	AGENT_MAX_CONTEXT_TOKENS    (default: 6000)
//	AGENT_CALL_TIMEOUT          (default: 60s)
//	EMBEDDING_TIMEOUT           (default: 30s)
func ConfigFromEnv() *Config {
	return &Config{
		ConfidenceThreshold:  envFloat("AGENT_CONFIDENCE_THRESHOLD", DefaultConfidenceThreshold),
		DefaultMaxIterations: envInt("AGENT_MAX_ITERATIONS", DefaultMaxIterations),
		RetrievalK:           envInt("AGENT_RETRIEVAL_K", DefaultRetrievalK),
		ContextTopN:          envInt("AGENT_CONTEXT_TOP_N", DefaultContextTopN),
		GenerateTemperature:  float32(envFloat("AGENT_GENERATE_TEMPERATURE", DefaultGenerateTemperature)),
		MaxContextTokens:     envInt("AGENT_MAX_CONTEXT_TOKENS", budget.DefaultMaxContextTokens),
		CallTimeout:          envDuration("AGENT_CALL_TIMEOUT", DefaultCallTimeout),
		EmbedTimeout:         envDuration("EMBEDDING_TIMEOUT", DefaultEmbedTimeout),
	}
}

// Agent runs queries. It holds no per-run state and is safe for concurrent
// use; each Run owns its State exclusively.
type Agent struct {
	gen      provider.Generator
	searcher *Searcher
	reranker rag.Reranker
	scorer   Scorer
	journal  store.RunJournal

	threshold           float64
	defaultMaxIter      int
	topN                int
	generateTemperature float32
	maxContextTokens    int
	callTimeout         time.Duration
	newRunID            func() string
}

// New constructs an Agent from cfg, applying defaults to zero values.
func New(cfg *Config) (*Agent, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("agent: Generator must not be nil")
	}
	searcher, err := NewSearcher(SearchConfig{
		Embedder:     cfg.Embedder,
		Index:        cfg.Index,
		RetrievalK:   cfg.RetrievalK,
		CallTimeout:  cfg.CallTimeout,
		EmbedTimeout: cfg.EmbedTimeout,
	})
	if err != nil {
		return nil, err
	}

	a := &Agent{
		gen:                 cfg.Generator,
		searcher:            searcher,
		reranker:            cfg.Reranker,
		scorer:              cfg.Scorer,
		journal:             cfg.Journal,
		threshold:           cfg.ConfidenceThreshold,
		defaultMaxIter:      cfg.DefaultMaxIterations,
		topN:                cfg.ContextTopN,
		generateTemperature: cfg.GenerateTemperature,
		maxContextTokens:    cfg.MaxContextTokens,
		callTimeout:         cfg.CallTimeout,
		newRunID:            cfg.NewRunID,
	}
	if a.scorer == nil {
		a.scorer = NewLLMScorer(cfg.Generator)
	}
	if a.threshold == 0 {
		a.threshold = DefaultConfidenceThreshold
	}
	if a.threshold < 0 || a.threshold > 1 {
		return nil, fmt.Errorf("agent: confidence threshold %v outside [0,1]", a.threshold)
	}
	if a.defaultMaxIter == 0 {
		a.defaultMaxIter = DefaultMaxIterations
	}
	if a.defaultMaxIter < 1 || a.defaultMaxIter > MaxIterationsLimit {
		return nil, fmt.Errorf("agent: default max iterations %d outside [1,%d]", a.defaultMaxIter, MaxIterationsLimit)
	}
	if a.topN <= 0 {
		a.topN = DefaultContextTopN
	}
	if a.generateTemperature == 0 {
		a.generateTemperature = DefaultGenerateTemperature
	}
	if a.maxContextTokens == 0 {
		a.maxContextTokens = budget.DefaultMaxContextTokens
	}
	if a.callTimeout <= 0 {
		a.callTimeout = DefaultCallTimeout
	}
	if a.newRunID == nil {
		a.newRunID = uuid.NewString
	}
	return a, nil
}

// Search runs a direct vector search through the agent's Searcher.
func (a *Agent) Search(ctx context.Context, req SearchRequest) ([]rag.Chunk, error) {
	return a.searcher.Search(ctx, req)
}

// Threshold returns the configured confidence threshold.
func (a *Agent) Threshold() float64 { return a.threshold }

// Request is one question put to the agent.
type Request struct {
	// Query is the user's question. Must be non-blank.
	Query string
	// FileID optionally restricts retrieval to one document.
	FileID string
	// SourceType optionally restricts retrieval to one document kind.
	SourceType string
	// MaxIterations caps the loop, in [1,5]. Zero selects the default.
	MaxIterations int
}

// Result is the outcome of a successful run.
type Result struct {
	RunID          string
	Query          string
	Answer         string
	RephrasedQuery string
	Confidence     float64
	Iterations     int
	// SourcesUsed is the number of chunks retrieved in the final iteration.
	SourcesUsed int
	// Sources are those chunks, most relevant first.
	Sources  []rag.Chunk
	Duration time.Duration
}

// Run answers req. It validates the request before any external call, then
// drives the state machine to PhaseDone. Any unrecovered step failure aborts
// the run with a *StepError; no partial result is returned. Cancelling ctx
// stops the run before the next step starts.
func (a *Agent) Run(ctx context.Context, req Request) (*Result, error) {
	maxIter, err := a.validate(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	runID := a.newRunID()
	ctx = logging.With(ctx, slog.String("run_id", runID))
	ctx, span := tracing.Start(ctx, "agent.run",
		attribute.String("run_id", runID),
		attribute.Int("max_iterations", maxIter),
		attribute.Bool("file_scoped", req.FileID != ""),
	)

	state, err := a.drive(ctx, NewState(req.Query, req.FileID, req.SourceType, maxIter))
	tracing.End(span, err)
	if err != nil {
		logging.FromContext(ctx).Error("agent: run failed", slog.Any("error", err))
		return nil, err
	}

	res := &Result{
		RunID:          runID,
		Query:          state.Query,
		Answer:         state.Answer,
		RephrasedQuery: state.RephrasedQuery,
		Confidence:     state.Confidence,
		Iterations:     state.Iterations,
		SourcesUsed:    len(state.RetrievedDocs),
		Sources:        state.RetrievedDocs,
		Duration:       time.Since(start),
	}
	logging.FromContext(ctx).Info("agent: run complete",
		slog.Float64("confidence", res.Confidence),
		slog.Int("iterations", res.Iterations),
		slog.Int("sources", res.SourcesUsed),
		slog.Duration("duration", res.Duration),
	)
	a.record(ctx, req, res)
	return res, nil
}

// drive runs steps through Advance until PhaseDone.
func (a *Agent) drive(ctx context.Context, s State) (State, error) {
	p := PhaseRephrasing
	for p != PhaseDone {
		if err := ctx.Err(); err != nil {
			return s, &StepError{Phase: p, Err: err}
		}
		u, err := a.step(ctx, p, s)
		if err != nil {
			return s, err
		}
		p, s = Advance(p, s, u)
	}
	return s, nil
}

// validate checks req and resolves the iteration cap.
func (a *Agent) validate(req Request) (int, error) {
	if strings.TrimSpace(req.Query) == "" {
		return 0, validationError("query must not be empty")
	}
	maxIter := req.MaxIterations
	if maxIter == 0 {
		maxIter = a.defaultMaxIter
	}
	if maxIter < 1 || maxIter > MaxIterationsLimit {
		return 0, validationError("max_iterations must be between 1 and %d, got %d", MaxIterationsLimit, req.MaxIterations)
	}
	return maxIter, nil
}

// record appends the run to the journal. Journal failures never fail a run.
func (a *Agent) record(ctx context.Context, req Request, res *Result) {
	if a.journal == nil {
		return
	}
	err := a.journal.SaveRun(context.WithoutCancel(ctx), store.Run{
		ID:             res.RunID,
		Query:          res.Query,
		RephrasedQuery: res.RephrasedQuery,
		Answer:         res.Answer,
		Confidence:     res.Confidence,
		Iterations:     res.Iterations,
		SourcesUsed:    res.SourcesUsed,
		FileID:         req.FileID,
		SourceType:     req.SourceType,
		Duration:       res.Duration,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("agent: failed to journal run", slog.Any("error", err))
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
