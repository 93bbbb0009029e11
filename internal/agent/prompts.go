package agent

import (
	"fmt"
	"strings"

	"github.com/54b3r/docarag-go/internal/rag"
)

// FallbackAnswer is returned without calling the LLM when retrieval finds
// nothing.
const FallbackAnswer = "I couldn't find any relevant information in the documents to answer your question."

// maxRephraseLen rejects rephrases that have drifted into an essay.
const maxRephraseLen = 500

func rephrasePrompt(query string) string {
	return `You are a query optimization assistant. Your task is to rephrase the user's question to make it more effective for semantic search in a document database.

User Query: ` + query + `

Rephrase this query to be more specific, clear, and optimized for finding relevant information in technical documents. Keep it concise and focused on the key information needs.

IMPORTANT: Maintain the SAME LANGUAGE as the original query. Do not translate.

Rephrased Query:`
}

func generatePrompt(contextBlock, query string) string {
	return `You are a helpful AI assistant that answers questions based on the provided document context.

Context from documents:
` + contextBlock + `

User Question: ` + query + `

Please provide a comprehensive answer based on the context above. If the context doesn't contain enough information to fully answer the question, acknowledge this and provide what information is available.

IMPORTANT: Answer in the SAME LANGUAGE as the user's question. Do not translate the question or answer to another language.

Answer:`
}

func evaluatePrompt(query, answer string) string {
	return `You are an answer quality evaluator. Assess how well the given answer addresses the user's question.

User Question: ` + query + `

Answer: ` + answer + `

Evaluate the answer on a scale from 0.0 to 1.0 based on:
- Relevance to the question
- Completeness of the answer
- Use of specific information from the context

Respond with ONLY a number between 0.0 and 1.0, nothing else.

Confidence Score:`
}

// buildContext renders chunks as numbered, attributed excerpts.
func buildContext(chunks []rag.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		parts = append(parts, fmt.Sprintf("Document %d (from %s, page %d):\n%s\n", i+1, c.DocumentName, c.Page, c.Content))
	}
	return strings.Join(parts, "\n")
}

// acceptRephrase reports whether candidate should replace query, and if not,
// why.
func acceptRephrase(query, candidate string) (bool, string) {
	switch {
	case candidate == "":
		return false, "empty rephrase"
	case candidate == query:
		return false, "rephrase identical to query"
	case len(candidate) >= maxRephraseLen:
		return false, "rephrase too long"
	default:
		return true, ""
	}
}
