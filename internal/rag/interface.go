// Package rag defines the collaborator contracts the query agent consumes:
// text embedding, nearest-neighbour search over stored chunks, and optional
// reranking. Concrete backends (Qdrant, the HTTP embedders) satisfy these
// interfaces so the agent never depends on a specific vendor.
package rag

import (
	"context"
	"errors"
)

// ErrEmptyInput is returned by embedders when asked to embed empty or
// whitespace-only text.
var ErrEmptyInput = errors.New("rag: empty input")

// Chunk is a single stored document fragment as returned by a vector search.
type Chunk struct {
	// ID is the unique point identifier in the index.
	ID string

	// Content is the raw text of the chunk.
	Content string

	// DocumentName identifies the source document. File-scoped queries filter
	// on equality against this field.
	DocumentName string

	// Page is the page (or offset marker) of the chunk within its document.
	Page int

	// ChunkIndex is the position of the chunk within its document.
	ChunkIndex int

	// SourceType is the document kind (pdf, docx, html, txt, md). May be empty.
	SourceType string

	// Distance is the raw distance reported by the index. Nil when the
	// backend did not report one.
	Distance *float64

	// Similarity is the normalised score in [0,1], see SimilarityFromDistance.
	Similarity float64

	// RerankScore is set by a Reranker and is only meaningful when Reranked
	// is true. It may legitimately be zero or negative.
	RerankScore float64

	// Reranked reports whether a Reranker scored this chunk.
	Reranked bool

	// Vector is the stored embedding. Only populated when the search asked
	// for vectors (rerankers need them).
	Vector []float32
}

// Relevance is the rerank score when a reranker ran, otherwise the
// normalised similarity.
func (c Chunk) Relevance() float64 {
	if c.Reranked {
		return c.RerankScore
	}
	return c.Similarity
}

// Filter scopes a search. Empty fields do not constrain the result.
type Filter struct {
	// DocumentName restricts results to chunks of one document.
	DocumentName string

	// SourceType restricts results to one document kind.
	SourceType string
}

// IsZero reports whether the filter places no constraint on the search.
func (f Filter) IsZero() bool {
	return f.DocumentName == "" && f.SourceType == ""
}

// SearchRequest describes a nearest-neighbour query.
type SearchRequest struct {
	// Vector is the query embedding.
	Vector []float32

	// K is the maximum number of chunks to return.
	K int

	// Filter optionally scopes the search.
	Filter Filter

	// WithVectors asks the index to return stored vectors alongside payloads.
	WithVectors bool
}

// VectorIndex is the nearest-neighbour search contract. Results are ordered
// most relevant first. No matches is an empty slice, not an error.
// Implementations must be safe to call from multiple goroutines.
type VectorIndex interface {
	Search(ctx context.Context, req SearchRequest) ([]Chunk, error)
}

// Embedder converts text into dense vectors of a fixed dimension.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into embeddings. The returned slice is
	// parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of the vectors produced by Embed.
	Dimension() int
}

// Reranker reorders retrieved chunks against the query vector and returns at
// most limit of them, most relevant first, with RerankScore populated.
type Reranker interface {
	Rerank(ctx context.Context, queryVector []float32, chunks []Chunk, limit int) ([]Chunk, error)
}
