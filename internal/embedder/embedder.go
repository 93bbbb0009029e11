// Package embedder provides rag.Embedder implementations. Ollama and
// OpenAI/Azure are reached over plain HTTP; Gemini goes through the genai
// SDK that the chat provider already uses.
package embedder

import (
	"fmt"
	"strings"

	"github.com/54b3r/docarag-go/internal/rag"
)

// checkInput rejects empty batches and blank texts before any network call.
func checkInput(backend string, texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%s embedder: %w: no texts", backend, rag.ErrEmptyInput)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%s embedder: %w: text %d is blank", backend, rag.ErrEmptyInput, i)
		}
	}
	return nil
}

// checkDims verifies every vector has the advertised dimension. A zero
// dimension means the embedder has not been told its size and accepts any.
func checkDims(backend string, dim int, vectors [][]float32) error {
	if dim == 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%s embedder: vector %d has dimension %d, want %d (check EMBEDDING_DIMENSIONS)", backend, i, len(v), dim)
		}
	}
	return nil
}
