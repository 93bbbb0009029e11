package agent

import (
	"context"
	"testing"

	"github.com/54b3r/docarag-go/internal/rag"
)

func TestTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		phase Phase
		state State
		want  Phase
	}{
		{"rephrase to embed", PhaseRephrasing, State{}, PhaseEmbedding},
		{"embed to retrieve", PhaseEmbedding, State{}, PhaseRetrieving},
		{"retrieve to generate", PhaseRetrieving, State{}, PhaseGenerating},
		{"retrieve to generate with no docs", PhaseRetrieving, State{RetrievedDocs: nil}, PhaseGenerating},
		{"generate to evaluate", PhaseGenerating, State{}, PhaseEvaluating},
		{"evaluate loops", PhaseEvaluating, State{ShouldIterate: true, Iterations: 1, MaxIterations: 2}, PhaseRephrasing},
		{"evaluate stops without flag", PhaseEvaluating, State{ShouldIterate: false, Iterations: 1, MaxIterations: 2}, PhaseDone},
		{"evaluate stops at cap despite flag", PhaseEvaluating, State{ShouldIterate: true, Iterations: 2, MaxIterations: 2}, PhaseDone},
		{"evaluate stops past cap", PhaseEvaluating, State{ShouldIterate: true, Iterations: 7, MaxIterations: 2}, PhaseDone},
		{"done is absorbing", PhaseDone, State{ShouldIterate: true}, PhaseDone},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Transition(tc.phase, tc.state); got != tc.want {
				t.Errorf("Transition(%s) = %s, want %s", tc.phase, got, tc.want)
			}
		})
	}
}

func TestAdvance(t *testing.T) {
	t.Parallel()

	s := State{Query: "q", Iterations: 0, MaxIterations: 2}

	t.Run("evaluation below cap loops with updated state", func(t *testing.T) {
		t.Parallel()
		p, got := Advance(PhaseEvaluating, s, Update{Confidence: ptr(0.3), Iterations: ptr(1), ShouldIterate: ptr(true)})
		if p != PhaseRephrasing {
			t.Errorf("phase = %s, want %s", p, PhaseRephrasing)
		}
		if got.Iterations != 1 || got.Confidence != 0.3 || !got.ShouldIterate {
			t.Errorf("state = %+v", got)
		}
		if s.Iterations != 0 {
			t.Error("Advance mutated the input state")
		}
	})

	t.Run("evaluation at cap finishes", func(t *testing.T) {
		t.Parallel()
		p, got := Advance(PhaseEvaluating, s, Update{Iterations: ptr(2), ShouldIterate: ptr(true)})
		if p != PhaseDone || got.Iterations != 2 {
			t.Errorf("Advance = (%s, %+v), want done at 2 iterations", p, got)
		}
	})

	t.Run("retrieval stores documents and moves on", func(t *testing.T) {
		t.Parallel()
		p, got := Advance(PhaseRetrieving, s, Update{Retrieved: true, RetrievedDocs: []rag.Chunk{{ID: "a"}}})
		if p != PhaseGenerating || len(got.RetrievedDocs) != 1 {
			t.Errorf("Advance = (%s, %d docs)", p, len(got.RetrievedDocs))
		}
	})
}

func TestDecideIteration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		iterations int
		max        int
		conf       float64
		docs       int
		want       bool
	}{
		{"low confidence with budget", 1, 2, 0.2, 3, true},
		{"at threshold", 1, 2, 0.7, 3, false},
		{"high confidence", 1, 2, 0.9, 3, false},
		{"budget spent", 2, 2, 0.2, 3, false},
		{"no documents", 1, 5, 0.0, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := decideIteration(tc.iterations, tc.max, tc.conf, 0.7, tc.docs); got != tc.want {
				t.Errorf("decideIteration = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewState(t *testing.T) {
	t.Parallel()

	s := NewState("q", "doc.pdf", "pdf", 3)
	if s.Iterations != 0 || s.Confidence != 0 || s.ShouldIterate {
		t.Errorf("initial state not zeroed: %+v", s)
	}
	if s.EffectiveQuery() != "q" {
		t.Errorf("EffectiveQuery() = %q, want original", s.EffectiveQuery())
	}
	s.RephrasedQuery = "better q"
	if s.EffectiveQuery() != "better q" {
		t.Errorf("EffectiveQuery() = %q, want rephrase", s.EffectiveQuery())
	}
}

func TestStateApply(t *testing.T) {
	t.Parallel()

	s := State{
		Query:         "q",
		Answer:        "old",
		RetrievedDocs: []rag.Chunk{{ID: "a"}},
		Confidence:    0.4,
	}

	t.Run("nil fields leave state alone", func(t *testing.T) {
		t.Parallel()
		got := s.Apply(Update{Answer: ptr("new")})
		if got.Answer != "new" || got.Confidence != 0.4 || len(got.RetrievedDocs) != 1 {
			t.Errorf("Apply = %+v", got)
		}
		if s.Answer != "old" {
			t.Error("Apply mutated the receiver")
		}
	})

	t.Run("empty retrieval replaces documents", func(t *testing.T) {
		t.Parallel()
		got := s.Apply(Update{Retrieved: true})
		if len(got.RetrievedDocs) != 0 {
			t.Errorf("RetrievedDocs = %v, want empty", got.RetrievedDocs)
		}
	})
}

func TestPhaseString(t *testing.T) {
	t.Parallel()
	if PhaseGenerating.String() != "generating" || Phase(42).String() != "unknown" {
		t.Errorf("unexpected names: %s, %s", PhaseGenerating, Phase(42))
	}
}

func TestEvaluateStep(t *testing.T) {
	t.Parallel()

	docs := []rag.Chunk{chunk("c1", 0.1)}
	tests := []struct {
		name       string
		iterations int
		reply      string
		wantIter   int
		wantAgain  bool
	}{
		{"first pass low score loops", 0, "0.2", 1, true},
		{"second pass low score stops", 1, "0.2", 2, false},
		{"first pass high score stops", 0, "0.8", 1, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, docs)
			h.gen.replies["evaluate"] = []string{tc.reply}

			s := NewState("q", "", "", 2)
			s.Iterations = tc.iterations
			s.RetrievedDocs = docs
			s.Answer = "an answer"

			u, err := h.agent.evaluate(context.Background(), s)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if *u.Iterations != tc.wantIter || *u.ShouldIterate != tc.wantAgain {
				t.Errorf("iterations=%d should_iterate=%v, want %d/%v",
					*u.Iterations, *u.ShouldIterate, tc.wantIter, tc.wantAgain)
			}
		})
	}

	t.Run("no documents skips the scorer", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil)
		u, err := h.agent.evaluate(context.Background(), NewState("q", "", "", 3))
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if *u.Confidence != 0 || *u.ShouldIterate || *u.Iterations != 1 {
			t.Errorf("update = conf %v again %v iter %d", *u.Confidence, *u.ShouldIterate, *u.Iterations)
		}
		if h.gen.total() != 0 {
			t.Error("scorer consulted with no documents")
		}
	})
}
