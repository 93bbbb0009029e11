package rag

import (
	"context"
	"math"
	"sort"
)

// CosineReranker orders chunks by the cosine similarity between the query
// vector and each chunk's stored vector. Chunks without a usable vector keep
// their index similarity as the score.
type CosineReranker struct{}

// NewCosineReranker returns a CosineReranker.
func NewCosineReranker() *CosineReranker { return &CosineReranker{} }

// Rerank implements Reranker.
func (CosineReranker) Rerank(_ context.Context, queryVector []float32, chunks []Chunk, limit int) ([]Chunk, error) {
	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		c.RerankScore, c.Reranked = relevance(queryVector, c), true
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RerankScore > out[j].RerankScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MMRReranker implements maximal marginal relevance: each pick trades
// relevance to the query (weighted by Lambda) against similarity to the
// chunks already picked, which keeps near-duplicate chunks out of the
// context block.
type MMRReranker struct {
	// Lambda weighs relevance against diversity, in [0,1]. Default 0.7.
	Lambda float64
}

// NewMMRReranker returns an MMRReranker with Lambda 0.7.
func NewMMRReranker() *MMRReranker { return &MMRReranker{Lambda: 0.7} }

// Rerank implements Reranker.
func (m *MMRReranker) Rerank(_ context.Context, queryVector []float32, chunks []Chunk, limit int) ([]Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(chunks) {
		limit = len(chunks)
	}

	remaining := make([]Chunk, len(chunks))
	for i, c := range chunks {
		c.RerankScore, c.Reranked = relevance(queryVector, c), true
		remaining[i] = c
	}

	selected := make([]Chunk, 0, limit)
	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i, cand := range remaining {
			penalty := 0.0
			for _, picked := range selected {
				if sim, ok := cosine(cand.Vector, picked.Vector); ok && sim > penalty {
					penalty = sim
				}
			}
			score := m.Lambda*cand.RerankScore - (1-m.Lambda)*penalty
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected, nil
}

// relevance scores c against the query, falling back to the index similarity.
func relevance(queryVector []float32, c Chunk) float64 {
	if sim, ok := cosine(queryVector, c.Vector); ok {
		return sim
	}
	return c.Similarity
}

// cosine returns the cosine similarity of a and b. ok is false when the
// vectors are empty, of different length, or zero.
func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
