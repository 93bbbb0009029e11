package rag

import (
	"context"
	"testing"
)

func TestCosineReranker_OrdersByVector(t *testing.T) {
	t.Parallel()

	query := []float32{1, 0}
	chunks := []Chunk{
		{ID: "far", Vector: []float32{0, 1}, Similarity: 0.9},
		{ID: "near", Vector: []float32{1, 0}, Similarity: 0.1},
		{ID: "novec", Similarity: 0.5},
	}

	got, err := NewCosineReranker().Rerank(context.Background(), query, chunks, 2)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(got))
	}
	if got[0].ID != "near" || got[1].ID != "novec" {
		t.Errorf("order = [%s %s], want [near novec]", got[0].ID, got[1].ID)
	}
	if got[0].RerankScore != 1 {
		t.Errorf("near score = %v, want 1", got[0].RerankScore)
	}
}

func TestCosineReranker_ZeroScoreStillCounts(t *testing.T) {
	t.Parallel()

	chunks := []Chunk{{ID: "orth", Vector: []float32{0, 1}, Similarity: 0.9}}
	got, err := NewCosineReranker().Rerank(context.Background(), []float32{1, 0}, chunks, 1)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if !got[0].Reranked || got[0].RerankScore != 0 {
		t.Fatalf("chunk = %+v, want reranked with score 0", got[0])
	}
	if rel := got[0].Relevance(); rel != 0 {
		t.Errorf("Relevance() = %v, want the rerank score 0, not the similarity", rel)
	}
	if rel := chunks[0].Relevance(); rel != 0.9 {
		t.Errorf("unreranked Relevance() = %v, want similarity 0.9", rel)
	}
}

func TestMMRReranker_PrefersDiversity(t *testing.T) {
	t.Parallel()

	query := []float32{1, 1}
	chunks := []Chunk{
		{ID: "a", Vector: []float32{1, 0.2}},
		{ID: "a-dup", Vector: []float32{1, 0.2}},
		{ID: "b", Vector: []float32{0, 1}},
	}

	got, err := NewMMRReranker().Rerank(context.Background(), query, chunks, 2)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(got))
	}
	if got[0].ID != "a" {
		t.Errorf("first pick = %s, want a", got[0].ID)
	}
	if got[1].ID != "b" {
		t.Errorf("second pick = %s, want b (duplicate should be penalised)", got[1].ID)
	}
}

func TestMMRReranker_Empty(t *testing.T) {
	t.Parallel()

	got, err := NewMMRReranker().Rerank(context.Background(), []float32{1}, nil, 5)
	if err != nil || got != nil {
		t.Errorf("want nil, nil; got %v, %v", got, err)
	}
}
