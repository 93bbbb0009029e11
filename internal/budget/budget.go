// Package budget provides token estimation and context trimming for the
// answer prompt. Because the agent supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose and code).
package budget

import (
	"github.com/54b3r/docarag-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default context-block budget in tokens.
	// Small enough to fit 8k-context models with room for the question, the
	// instructions and the answer. Override via AGENT_MAX_CONTEXT_TOKENS.
	DefaultMaxContextTokens = 6000

	// chunkOverhead approximates the "Document N (from X, page Y):" header.
	chunkOverhead = 12
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateChunk returns the estimated token cost of one chunk in the
// context block, header included.
func EstimateChunk(c rag.Chunk) int {
	return chunkOverhead + Estimate(c.DocumentName) + Estimate(c.Content)
}

// EstimateChunks sums EstimateChunk over chunks.
func EstimateChunks(chunks []rag.Chunk) int {
	total := 0
	for _, c := range chunks {
		total += EstimateChunk(c)
	}
	return total
}

// TrimChunks drops chunks from the tail (least relevant first) until the
// estimated total fits within maxTokens. The first chunk is always kept,
// even when it alone exceeds the budget; callers should warn separately.
// A non-positive maxTokens disables trimming.
func TrimChunks(chunks []rag.Chunk, maxTokens int) []rag.Chunk {
	if maxTokens <= 0 || len(chunks) <= 1 {
		return chunks
	}
	total := EstimateChunks(chunks)
	for len(chunks) > 1 && total > maxTokens {
		total -= EstimateChunk(chunks[len(chunks)-1])
		chunks = chunks[:len(chunks)-1]
	}
	return chunks
}
