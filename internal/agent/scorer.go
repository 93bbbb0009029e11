package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/54b3r/docarag-go/internal/logging"
	"github.com/54b3r/docarag-go/internal/provider"
	"github.com/54b3r/docarag-go/internal/rag"
)

// Scorer rates an answer's confidence in [0,1]. It is only consulted when
// at least one chunk was retrieved.
type Scorer interface {
	Score(ctx context.Context, query, answer string, docs []rag.Chunk) (float64, error)
}

// neutralConfidence is used when the LLM's score cannot be parsed.
const neutralConfidence = 0.5

// evaluateTemperature keeps the self-score close to deterministic.
const evaluateTemperature = 0.1

// LLMScorer asks the LLM to grade its own answer.
type LLMScorer struct {
	// Generator answers the evaluation prompt.
	Generator provider.Generator
}

// NewLLMScorer returns an LLMScorer backed by g.
func NewLLMScorer(g provider.Generator) *LLMScorer {
	return &LLMScorer{Generator: g}
}

// Score implements Scorer. A reply that is not a number yields 0.5 and a
// warning; only a generator failure is returned as an error.
func (s *LLMScorer) Score(ctx context.Context, query, answer string, _ []rag.Chunk) (float64, error) {
	reply, err := s.Generator.Generate(ctx, evaluatePrompt(query, answer), evaluateTemperature)
	if err != nil {
		return 0, err
	}
	conf, err := parseConfidence(reply)
	if err != nil {
		logging.FromContext(ctx).Warn("agent: could not parse confidence score, using neutral value",
			slog.String("reply", reply),
			slog.Float64("confidence", neutralConfidence),
			slog.Any("error", err),
		)
		return neutralConfidence, nil
	}
	return conf, nil
}

// parseConfidence reads a bare number and clamps it to [0,1]. Out-of-range
// literals such as 1e400 parse as ±Inf and clamp like any other number.
func parseConfidence(reply string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%w: %q", ErrParse, reply)
	}
	switch {
	case math.IsNaN(v):
		return 0, fmt.Errorf("%w: %q", ErrParse, reply)
	case v < 0:
		return 0, nil
	case v > 1:
		return 1, nil
	}
	return v, nil
}

// HeuristicScorer estimates confidence without an LLM call from how many
// chunks were found, how well they scored, and how long the answer is.
type HeuristicScorer struct {
	// TargetDocs is the document count that earns the full coverage term.
	// Defaults to 5.
	TargetDocs int
}

// Score implements Scorer.
func (h HeuristicScorer) Score(_ context.Context, _, answer string, docs []rag.Chunk) (float64, error) {
	target := h.TargetDocs
	if target <= 0 {
		target = 5
	}

	var conf float64
	if len(docs) > 0 {
		conf += 0.3 * min(float64(len(docs))/float64(target), 1)

		var sum float64
		for _, d := range docs {
			sum += d.Relevance()
		}
		conf += 0.4 * min(max(sum/float64(len(docs)), 0), 1)
	}

	switch n := len([]rune(answer)); {
	case n > 50:
		conf += 0.3
	case n > 20:
		conf += 0.15
	}
	return min(conf, 1), nil
}
