package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/54b3r/docarag-go/internal/rag"
)

// SearchConfig holds the collaborators of a Searcher.
type SearchConfig struct {
	// Embedder turns the query into a vector. Required.
	Embedder rag.Embedder

	// Index is searched for chunks. Required.
	Index rag.VectorIndex

	// RetrievalK is the result count used when a request leaves K at 0.
	RetrievalK int

	// CallTimeout bounds each index call.
	CallTimeout time.Duration

	// EmbedTimeout bounds each embedding call.
	EmbedTimeout time.Duration
}

// Searcher embeds text and looks up the nearest chunks. It needs no LLM, so
// commands that only search can build one without configuring a provider.
// An Agent retrieves through its own Searcher.
type Searcher struct {
	embedder     rag.Embedder
	index        rag.VectorIndex
	retrievalK   int
	callTimeout  time.Duration
	embedTimeout time.Duration
}

// NewSearcher constructs a Searcher from cfg, applying defaults to zero values.
func NewSearcher(cfg SearchConfig) (*Searcher, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("agent: Embedder must not be nil")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("agent: Index must not be nil")
	}
	s := &Searcher{
		embedder:     cfg.Embedder,
		index:        cfg.Index,
		retrievalK:   cfg.RetrievalK,
		callTimeout:  cfg.CallTimeout,
		embedTimeout: cfg.EmbedTimeout,
	}
	if s.retrievalK <= 0 {
		s.retrievalK = DefaultRetrievalK
	}
	if s.callTimeout <= 0 {
		s.callTimeout = DefaultCallTimeout
	}
	if s.embedTimeout <= 0 {
		s.embedTimeout = DefaultEmbedTimeout
	}
	return s, nil
}

// SearchRequest is a direct vector search with no LLM involvement.
type SearchRequest struct {
	// Query is embedded as-is. Must be non-blank.
	Query string
	// FileID optionally restricts results to one document.
	FileID string
	// SourceType optionally restricts results to one document kind.
	SourceType string
	// K is the number of results, in [1,100]. Zero selects the retrieval default.
	K int
}

// Search embeds req.Query and returns the nearest chunks with normalised
// similarity, most relevant first.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) ([]rag.Chunk, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, validationError("query must not be empty")
	}
	k := req.K
	if k == 0 {
		k = s.retrievalK
	}
	if k < 1 || k > MaxSearchK {
		return nil, validationError("k must be between 1 and %d, got %d", MaxSearchK, req.K)
	}

	vec, err := s.embedText(ctx, req.Query)
	if err != nil {
		return nil, embedError(err)
	}
	chunks, err := s.search(ctx, rag.SearchRequest{
		Vector: vec,
		K:      k,
		Filter: rag.Filter{DocumentName: req.FileID, SourceType: req.SourceType},
	})
	if err != nil {
		return nil, providerError(PhaseRetrieving, err)
	}
	return chunks, nil
}

// embedText embeds a single text under the embedding timeout.
func (s *Searcher) embedText(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()

	vecs, err := s.embedder.Embed(callCtx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vecs))
	}
	return vecs[0], nil
}

// search queries the index under the call timeout and normalises scores.
func (s *Searcher) search(ctx context.Context, req rag.SearchRequest) ([]rag.Chunk, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	chunks, err := s.index.Search(callCtx, req)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].Similarity = rag.SimilarityFromDistance(chunks[i].Distance)
	}
	return chunks, nil
}
