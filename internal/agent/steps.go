package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/54b3r/docarag-go/internal/budget"
	"github.com/54b3r/docarag-go/internal/logging"
	"github.com/54b3r/docarag-go/internal/rag"
	"github.com/54b3r/docarag-go/internal/tracing"
)

// rephraseTemperature leaves some room for the rewrite to differ between
// iterations.
const rephraseTemperature = 0.3

// step runs the step function for phase p inside its own span and log scope.
func (a *Agent) step(ctx context.Context, p Phase, s State) (Update, error) {
	ctx = logging.With(ctx, slog.String("phase", p.String()))
	ctx, span := tracing.Start(ctx, "agent."+p.String(), attribute.Int("iteration", s.Iterations+1))

	var (
		u   Update
		err error
	)
	switch p {
	case PhaseRephrasing:
		u = a.rephrase(ctx, s)
	case PhaseEmbedding:
		u, err = a.embed(ctx, s)
	case PhaseRetrieving:
		u, err = a.retrieve(ctx, s)
	case PhaseGenerating:
		u, err = a.generate(ctx, s)
	case PhaseEvaluating:
		u, err = a.evaluate(ctx, s)
	default:
		err = fmt.Errorf("agent: no step for phase %s", p)
	}
	tracing.End(span, err)
	return u, err
}

// rephrase asks the LLM for a retrieval-oriented rewrite of the original
// query. It never fails: on an LLM error or an unusable rewrite the original
// query is kept and the reason logged.
func (a *Agent) rephrase(ctx context.Context, s State) Update {
	log := logging.FromContext(ctx)
	log.Info("agent: rephrasing query", slog.Int("iteration", s.Iterations))

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	reply, err := a.gen.Generate(callCtx, rephrasePrompt(s.Query), rephraseTemperature)
	if err != nil {
		log.Warn("agent: rephrase failed, keeping original query", slog.Any("error", err))
		return Update{RephrasedQuery: ptr(s.Query)}
	}

	candidate := strings.TrimSpace(reply)
	if ok, reason := acceptRephrase(s.Query, candidate); !ok {
		log.Warn("agent: rephrase rejected, keeping original query", slog.String("reason", reason))
		return Update{RephrasedQuery: ptr(s.Query)}
	}
	log.Debug("agent: rephrased query", slog.String("rephrased", candidate))
	return Update{RephrasedQuery: ptr(candidate)}
}

// embed vectorises the effective query.
func (a *Agent) embed(ctx context.Context, s State) (Update, error) {
	vec, err := a.searcher.embedText(ctx, s.EffectiveQuery())
	if err != nil {
		return Update{}, embedError(err)
	}
	logging.FromContext(ctx).Debug("agent: embedded query", slog.Int("dimension", len(vec)))
	return Update{QueryEmbedding: vec}, nil
}

// embedError classifies an embedding failure: blank input is the caller's
// fault, anything else is the provider's.
func embedError(err error) error {
	if errors.Is(err, rag.ErrEmptyInput) {
		return &StepError{Phase: PhaseEmbedding, Err: fmt.Errorf("%w: %w", ErrValidation, err)}
	}
	return providerError(PhaseEmbedding, err)
}

// retrieve runs the nearest-neighbour search, then the optional reranker.
// No matches is a valid, empty result.
func (a *Agent) retrieve(ctx context.Context, s State) (Update, error) {
	log := logging.FromContext(ctx)

	chunks, err := a.searcher.search(ctx, rag.SearchRequest{
		Vector:      s.QueryEmbedding,
		K:           a.searcher.retrievalK,
		Filter:      rag.Filter{DocumentName: s.FileID, SourceType: s.SourceType},
		WithVectors: a.reranker != nil,
	})
	if err != nil {
		return Update{}, providerError(PhaseRetrieving, err)
	}

	if a.reranker != nil && len(chunks) > 0 {
		chunks = a.rerank(ctx, s.QueryEmbedding, chunks)
	}
	for i := range chunks {
		chunks[i].Vector = nil
	}

	if len(chunks) == 0 {
		log.Warn("agent: no documents retrieved",
			slog.String("file_id", s.FileID),
			slog.String("source_type", s.SourceType),
		)
	} else {
		log.Info("agent: retrieved documents", slog.Int("count", len(chunks)))
	}
	return Update{Retrieved: true, RetrievedDocs: chunks}, nil
}

// rerank applies the configured reranker, keeping the index order on failure.
func (a *Agent) rerank(ctx context.Context, queryVector []float32, chunks []rag.Chunk) []rag.Chunk {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	reranked, err := a.reranker.Rerank(callCtx, queryVector, chunks, len(chunks))
	if err != nil {
		logging.FromContext(ctx).Warn("agent: rerank failed, keeping index order", slog.Any("error", err))
		return chunks
	}
	return reranked
}

// generate answers from the top chunks. With nothing retrieved it returns
// the fixed fallback answer without calling the LLM.
func (a *Agent) generate(ctx context.Context, s State) (Update, error) {
	log := logging.FromContext(ctx)

	if len(s.RetrievedDocs) == 0 {
		log.Warn("agent: nothing retrieved, returning fallback answer")
		return Update{Answer: ptr(FallbackAnswer), Confidence: ptr(0.0)}, nil
	}

	top := s.RetrievedDocs[:min(a.topN, len(s.RetrievedDocs))]
	ctxChunks := budget.TrimChunks(top, a.maxContextTokens)
	if dropped := len(top) - len(ctxChunks); dropped > 0 {
		log.Warn("budget: dropped chunks to fit context budget",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(ctxChunks)),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}
	if est := budget.EstimateChunks(ctxChunks); a.maxContextTokens > 0 && est > a.maxContextTokens {
		log.Warn("budget: top chunk alone exceeds context budget",
			slog.Int("estimated_tokens", est),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	reply, err := a.gen.Generate(callCtx, generatePrompt(buildContext(ctxChunks), s.Query), a.generateTemperature)
	if err != nil {
		return Update{}, providerError(PhaseGenerating, err)
	}
	answer := strings.TrimSpace(reply)
	log.Info("agent: generated answer", slog.Int("length", len(answer)))
	return Update{Answer: &answer}, nil
}

// evaluate scores the answer, counts the iteration and decides whether to
// loop. With nothing retrieved it scores 0 and stops without calling the
// scorer, since another pass would repeat the same empty retrieval.
func (a *Agent) evaluate(ctx context.Context, s State) (Update, error) {
	log := logging.FromContext(ctx)
	iterations := s.Iterations + 1

	if len(s.RetrievedDocs) == 0 {
		return Update{Confidence: ptr(0.0), Iterations: &iterations, ShouldIterate: ptr(false)}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	conf, err := a.scorer.Score(callCtx, s.Query, s.Answer, s.RetrievedDocs)
	if err != nil {
		return Update{}, providerError(PhaseEvaluating, err)
	}
	conf = min(max(conf, 0), 1)

	again := decideIteration(iterations, s.MaxIterations, conf, a.threshold, len(s.RetrievedDocs))
	log.Info("agent: evaluated answer",
		slog.Float64("confidence", conf),
		slog.Int("iteration", iterations),
		slog.Int("max_iterations", s.MaxIterations),
		slog.Bool("should_iterate", again),
	)
	return Update{Confidence: &conf, Iterations: &iterations, ShouldIterate: &again}, nil
}
