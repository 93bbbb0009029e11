package agent

import "github.com/54b3r/docarag-go/internal/rag"

// Phase is a node of the query state machine.
type Phase int

const (
	// PhaseRephrasing asks the LLM for a retrieval-friendly rewrite of the query.
	PhaseRephrasing Phase = iota
	// PhaseEmbedding turns the (rephrased) query into a vector.
	PhaseEmbedding
	// PhaseRetrieving runs the nearest-neighbour search.
	PhaseRetrieving
	// PhaseGenerating produces the answer from the retrieved context.
	PhaseGenerating
	// PhaseEvaluating scores the answer and decides whether to loop.
	PhaseEvaluating
	// PhaseDone is terminal.
	PhaseDone
)

var phaseNames = [...]string{
	PhaseRephrasing: "rephrasing",
	PhaseEmbedding:  "embedding",
	PhaseRetrieving: "retrieving",
	PhaseGenerating: "generating",
	PhaseEvaluating: "evaluating",
	PhaseDone:       "done",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// State is the record threaded through one run. It is owned by a single run
// and never shared, so it carries no locking.
type State struct {
	// Query is the user's question. Never modified.
	Query string
	// RephrasedQuery is set by the rephrase step. Empty means "use Query".
	RephrasedQuery string
	// QueryEmbedding is set by the embed step.
	QueryEmbedding []float32
	// RetrievedDocs is set by the retrieve step, most relevant first.
	RetrievedDocs []rag.Chunk
	// Answer is set by the generate step.
	Answer string
	// Confidence is in [0,1]; set by the evaluate step.
	Confidence float64
	// Iterations counts completed evaluations.
	Iterations int
	// ShouldIterate drives the only conditional edge of the machine.
	ShouldIterate bool
	// FileID optionally scopes retrieval to one document.
	FileID string
	// SourceType optionally scopes retrieval to one document kind.
	SourceType string
	// MaxIterations bounds the number of cycles, in [1, MaxIterationsLimit].
	MaxIterations int
}

// NewState returns the initial state of a run: no iterations, zero
// confidence and no pending loop-back.
func NewState(query, fileID, sourceType string, maxIterations int) State {
	return State{
		Query:         query,
		FileID:        fileID,
		SourceType:    sourceType,
		MaxIterations: maxIterations,
	}
}

// EffectiveQuery is the text the embedder sees: the rephrase when there is
// one, otherwise the original query.
func (s State) EffectiveQuery() string {
	if s.RephrasedQuery != "" {
		return s.RephrasedQuery
	}
	return s.Query
}

// Update is the partial result of one step. Nil pointers and a false
// Retrieved leave the corresponding fields untouched.
type Update struct {
	RephrasedQuery *string
	QueryEmbedding []float32
	// Retrieved marks RetrievedDocs as set, so an empty result still
	// replaces the previous iteration's documents.
	Retrieved     bool
	RetrievedDocs []rag.Chunk
	Answer        *string
	Confidence    *float64
	Iterations    *int
	ShouldIterate *bool
}

// Apply returns s with u merged in. s itself is not modified.
func (s State) Apply(u Update) State {
	if u.RephrasedQuery != nil {
		s.RephrasedQuery = *u.RephrasedQuery
	}
	if u.QueryEmbedding != nil {
		s.QueryEmbedding = u.QueryEmbedding
	}
	if u.Retrieved {
		s.RetrievedDocs = u.RetrievedDocs
	}
	if u.Answer != nil {
		s.Answer = *u.Answer
	}
	if u.Confidence != nil {
		s.Confidence = *u.Confidence
	}
	if u.Iterations != nil {
		s.Iterations = *u.Iterations
	}
	if u.ShouldIterate != nil {
		s.ShouldIterate = *u.ShouldIterate
	}
	return s
}

func ptr[T any](v T) *T { return &v }
