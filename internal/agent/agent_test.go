package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/54b3r/docarag-go/internal/rag"
)

func TestRun_HighConfidenceStopsAfterOneIteration(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []rag.Chunk{chunk("c1", 0.2)})

	res, err := h.agent.Run(context.Background(), Request{Query: "What is Python?", MaxIterations: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Answer != "Python is a language." {
		t.Errorf("Answer = %q", res.Answer)
	}
	if res.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", res.Confidence)
	}
	if res.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", res.Iterations)
	}
	if res.RephrasedQuery != "Python programming language overview" {
		t.Errorf("RephrasedQuery = %q", res.RephrasedQuery)
	}
	if res.SourcesUsed != 1 || len(res.Sources) != 1 {
		t.Fatalf("sources = %d/%d, want 1", res.SourcesUsed, len(res.Sources))
	}
	if sim := res.Sources[0].Similarity; sim < 0.7999 || sim > 0.8001 {
		t.Errorf("Similarity = %v, want 0.8", sim)
	}
	if res.RunID != "run-test" {
		t.Errorf("RunID = %q", res.RunID)
	}
	for kind, want := range map[string]int{"rephrase": 1, "generate": 1, "evaluate": 1} {
		if got := h.gen.count(kind); got != want {
			t.Errorf("%s calls = %d, want %d", kind, got, want)
		}
	}
	if got := h.embedder.inputs; len(got) != 1 || got[0] != "Python programming language overview" {
		t.Errorf("embedder inputs = %q, want the rephrased query", got)
	}
}

func TestRun_LowConfidenceLoopsUntilMax(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []rag.Chunk{chunk("c1", 0.2)})
	h.gen.replies["evaluate"] = []string{"0.2", "0.1"}

	res, err := h.agent.Run(context.Background(), Request{Query: "What is Python?", MaxIterations: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", res.Iterations)
	}
	if res.Confidence != 0.1 {
		t.Errorf("Confidence = %v, want final score 0.1", res.Confidence)
	}
	for kind, want := range map[string]int{"rephrase": 2, "generate": 2, "evaluate": 2} {
		if got := h.gen.count(kind); got != want {
			t.Errorf("%s calls = %d, want %d", kind, got, want)
		}
	}
	if h.index.calls() != 2 {
		t.Errorf("index calls = %d, want 2", h.index.calls())
	}
}

func TestRun_SecondIterationCanSucceed(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []rag.Chunk{chunk("c1", 0.2)})
	h.gen.replies["evaluate"] = []string{"0.3", "0.95"}

	res, err := h.agent.Run(context.Background(), Request{Query: "What is Python?", MaxIterations: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != 2 || res.Confidence != 0.95 {
		t.Errorf("got iterations=%d confidence=%v, want 2 / 0.95", res.Iterations, res.Confidence)
	}
}

func TestRun_Termination(t *testing.T) {
	t.Parallel()
	for maxIter := 1; maxIter <= MaxIterationsLimit; maxIter++ {
		t.Run(fmt.Sprintf("max=%d", maxIter), func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, []rag.Chunk{chunk("c1", 0.5)})
			h.gen.replies["evaluate"] = []string{"0.0"}

			res, err := h.agent.Run(context.Background(), Request{Query: "q", MaxIterations: maxIter})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Iterations != maxIter {
				t.Errorf("Iterations = %d, want %d", res.Iterations, maxIter)
			}
			if got := h.gen.count("rephrase"); got != maxIter {
				t.Errorf("cycles = %d, want %d", got, maxIter)
			}
		})
	}
}

func TestRun_EmptyRetrievalShortCircuits(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	res, err := h.agent.Run(context.Background(), Request{Query: "What is Python?", MaxIterations: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Answer != FallbackAnswer {
		t.Errorf("Answer = %q, want fallback", res.Answer)
	}
	if res.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", res.Confidence)
	}
	if res.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", res.Iterations)
	}
	if res.SourcesUsed != 0 {
		t.Errorf("SourcesUsed = %d, want 0", res.SourcesUsed)
	}
	if h.gen.count("generate") != 0 || h.gen.count("evaluate") != 0 {
		t.Errorf("LLM called on empty retrieval: generate=%d evaluate=%d",
			h.gen.count("generate"), h.gen.count("evaluate"))
	}
	if h.index.calls() != 1 {
		t.Errorf("index calls = %d, want 1 (no retry on empty retrieval)", h.index.calls())
	}
}

func TestRun_ConfidenceClamping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		reply string
		want  float64
	}{
		{"1.5", 1.0},
		{"-3", 0.0},
		{" 0.42\n", 0.42},
		{"1", 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.reply, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)})
			h.gen.replies["evaluate"] = []string{tc.reply}

			res, err := h.agent.Run(context.Background(), Request{Query: "q", MaxIterations: 1})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Confidence != tc.want {
				t.Errorf("Confidence = %v, want %v", res.Confidence, tc.want)
			}
		})
	}
}

func TestRun_ConfidenceParseFallback(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)})
	h.gen.replies["evaluate"] = []string{"high"}

	res, err := h.agent.Run(context.Background(), Request{Query: "q", MaxIterations: 1})
	if err != nil {
		t.Fatalf("Run must not fail on unparseable score: %v", err)
	}
	if res.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5", res.Confidence)
	}
}

func TestRun_Validation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		req  Request
	}{
		{"empty query", Request{Query: "", MaxIterations: 2}},
		{"whitespace query", Request{Query: " \t\n", MaxIterations: 2}},
		{"max iterations too high", Request{Query: "q", MaxIterations: 6}},
		{"max iterations negative", Request{Query: "q", MaxIterations: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)})

			_, err := h.agent.Run(context.Background(), tc.req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
			if h.gen.total() != 0 || h.embedder.calls() != 0 || h.index.calls() != 0 {
				t.Errorf("external calls made before validation: gen=%d embed=%d index=%d",
					h.gen.total(), h.embedder.calls(), h.index.calls())
			}
		})
	}
}

func TestRun_DefaultMaxIterations(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)}, func(c *Config) { c.DefaultMaxIterations = 3 })
	h.gen.replies["evaluate"] = []string{"0.0"}

	res, err := h.agent.Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations != 3 {
		t.Errorf("Iterations = %d, want default 3", res.Iterations)
	}
}

func TestRun_RephraseFallbacks(t *testing.T) {
	t.Parallel()
	const query = "What is Python?"
	cases := []struct {
		name  string
		setup func(*fakeGenerator)
	}{
		{"llm error", func(g *fakeGenerator) { g.errs["rephrase"] = errors.New("rate limited") }},
		{"empty reply", func(g *fakeGenerator) { g.replies["rephrase"] = []string{"   "} }},
		{"identical reply", func(g *fakeGenerator) { g.replies["rephrase"] = []string{" " + query + " "} }},
		{"too long", func(g *fakeGenerator) { g.replies["rephrase"] = []string{strings.Repeat("x", maxRephraseLen)} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)})
			tc.setup(h.gen)

			res, err := h.agent.Run(context.Background(), Request{Query: query, MaxIterations: 1})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.RephrasedQuery != query {
				t.Errorf("RephrasedQuery = %q, want original", res.RephrasedQuery)
			}
			if got := h.embedder.inputs; len(got) != 1 || got[0] != query {
				t.Errorf("embedder inputs = %q, want original query", got)
			}
		})
	}
}

func TestRun_ProviderFailuresAbort(t *testing.T) {
	t.Parallel()
	boom := errors.New("unavailable")
	cases := []struct {
		name  string
		setup func(*harness)
		phase Phase
	}{
		{"embedder", func(h *harness) { h.embedder.err = boom }, PhaseEmbedding},
		{"index", func(h *harness) { h.index.err = boom }, PhaseRetrieving},
		{"generator", func(h *harness) { h.gen.errs["generate"] = boom }, PhaseGenerating},
		{"evaluator", func(h *harness) { h.gen.errs["evaluate"] = boom }, PhaseEvaluating},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)})
			tc.setup(h)

			res, err := h.agent.Run(context.Background(), Request{Query: "q", MaxIterations: 2})
			if res != nil {
				t.Errorf("partial result returned: %+v", res)
			}
			if !errors.Is(err, ErrProvider) || !errors.Is(err, boom) {
				t.Fatalf("want ErrProvider wrapping cause, got %v", err)
			}
			var se *StepError
			if !errors.As(err, &se) || se.Phase != tc.phase {
				t.Errorf("want StepError at %s, got %v", tc.phase, err)
			}
		})
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.agent.Run(ctx, Request{Query: "q", MaxIterations: 2})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if h.gen.total() != 0 {
		t.Errorf("steps scheduled after cancellation: %d LLM calls", h.gen.total())
	}
}

func TestRun_HungCallsTimeOut(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   func(*Config)
		hang  func(*harness)
		phase Phase
	}{
		{
			"index",
			func(c *Config) { c.CallTimeout = 20 * time.Millisecond },
			func(h *harness) { h.index.block = true },
			PhaseRetrieving,
		},
		{
			"embedder",
			func(c *Config) { c.EmbedTimeout = 20 * time.Millisecond },
			func(h *harness) { h.embedder.block = true },
			PhaseEmbedding,
		},
		{
			"generator",
			func(c *Config) { c.CallTimeout = 20 * time.Millisecond },
			func(h *harness) { h.gen.blocked["generate"] = true },
			PhaseGenerating,
		},
		{
			"evaluator",
			func(c *Config) { c.CallTimeout = 20 * time.Millisecond },
			func(h *harness) { h.gen.blocked["evaluate"] = true },
			PhaseEvaluating,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)}, tc.cfg)
			tc.hang(h)

			res, err := h.agent.Run(context.Background(), Request{Query: "q", MaxIterations: 1})
			if res != nil {
				t.Errorf("partial result returned: %+v", res)
			}
			if !errors.Is(err, ErrProvider) || !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("want ErrProvider wrapping DeadlineExceeded, got %v", err)
			}
			var se *StepError
			if !errors.As(err, &se) || se.Phase != tc.phase {
				t.Errorf("want StepError at %s, got %v", tc.phase, err)
			}
		})
	}
}

func TestRun_RephraseTimeoutKeepsOriginalQuery(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)}, func(c *Config) { c.CallTimeout = 20 * time.Millisecond })
	h.gen.blocked["rephrase"] = true

	res, err := h.agent.Run(context.Background(), Request{Query: "What is Python?", MaxIterations: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RephrasedQuery != "What is Python?" {
		t.Errorf("RephrasedQuery = %q, want the original query", res.RephrasedQuery)
	}
	if got := h.embedder.inputs; len(got) != 1 || got[0] != "What is Python?" {
		t.Errorf("embedder inputs = %q, want the original query", got)
	}
	if res.Answer != "Python is a language." {
		t.Errorf("Answer = %q", res.Answer)
	}
}

func TestRun_CancelledMidRunStopsLaterSteps(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.embedder.onEmbed = cancel

	_, err := h.agent.Run(ctx, Request{Query: "q", MaxIterations: 2})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	var se *StepError
	if !errors.As(err, &se) || se.Phase != PhaseRetrieving {
		t.Errorf("want StepError at %s, got %v", PhaseRetrieving, err)
	}
	if h.index.calls() != 0 {
		t.Errorf("index calls = %d, want 0", h.index.calls())
	}
	if got := h.gen.count("generate") + h.gen.count("evaluate"); got != 0 {
		t.Errorf("LLM calls after cancellation = %d, want 0", got)
	}
}

func TestRun_FiltersAndK(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)}, func(c *Config) { c.RetrievalK = 7 })

	_, err := h.agent.Run(context.Background(), Request{Query: "q", FileID: "guide.pdf", SourceType: "pdf", MaxIterations: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	req := h.index.requests[0]
	if req.K != 7 {
		t.Errorf("K = %d, want 7", req.K)
	}
	if req.Filter.DocumentName != "guide.pdf" || req.Filter.SourceType != "pdf" {
		t.Errorf("Filter = %+v", req.Filter)
	}
	if req.WithVectors {
		t.Error("vectors requested without a reranker")
	}
}

func TestRun_ContextUsesTopNChunks(t *testing.T) {
	t.Parallel()
	var chunks []rag.Chunk
	for i := range 8 {
		chunks = append(chunks, chunk(fmt.Sprintf("c%d", i), 0.1*float64(i)))
	}
	h := newHarness(t, chunks)

	if _, err := h.agent.Run(context.Background(), Request{Query: "q", MaxIterations: 1}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	prompt := h.gen.last("generate").prompt
	if !strings.Contains(prompt, "Document 5 (from python-guide.pdf, page 1):") {
		t.Error("prompt missing fifth document")
	}
	if strings.Contains(prompt, "Document 6") {
		t.Error("prompt contains more than five documents")
	}
	if !strings.Contains(prompt, "(c0)") || strings.Contains(prompt, "(c5)") {
		t.Error("prompt does not hold the most relevant chunks")
	}
}

func TestRun_Temperatures(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)}, func(c *Config) { c.GenerateTemperature = 0.4 })

	if _, err := h.agent.Run(context.Background(), Request{Query: "q", MaxIterations: 1}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for kind, want := range map[string]float32{"rephrase": 0.3, "generate": 0.4, "evaluate": 0.1} {
		if got := h.gen.last(kind).temperature; got != want {
			t.Errorf("%s temperature = %v, want %v", kind, got, want)
		}
	}
}

func TestRun_Reranker(t *testing.T) {
	t.Parallel()

	t.Run("reorders", func(t *testing.T) {
		t.Parallel()
		rr := &fakeReranker{}
		h := newHarness(t, []rag.Chunk{chunk("a", 0.1), chunk("b", 0.2)}, func(c *Config) { c.Reranker = rr })

		res, err := h.agent.Run(context.Background(), Request{Query: "q", MaxIterations: 1})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !h.index.requests[0].WithVectors {
			t.Error("reranker configured but vectors not requested")
		}
		if res.Sources[0].ID != "b" || !res.Sources[0].Reranked {
			t.Errorf("sources not reranked: %+v", res.Sources)
		}
	})

	t.Run("failure keeps index order", func(t *testing.T) {
		t.Parallel()
		rr := &fakeReranker{err: errors.New("model not loaded")}
		h := newHarness(t, []rag.Chunk{chunk("a", 0.1), chunk("b", 0.2)}, func(c *Config) { c.Reranker = rr })

		res, err := h.agent.Run(context.Background(), Request{Query: "q", MaxIterations: 1})
		if err != nil {
			t.Fatalf("reranker failure must not fail the run: %v", err)
		}
		if rr.calls != 1 || res.Sources[0].ID != "a" {
			t.Errorf("want index order after rerank failure, got %+v", res.Sources)
		}
	})
}

func TestRun_HeuristicScorerMakesNoEvaluateCall(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)}, func(c *Config) { c.Scorer = HeuristicScorer{} })

	res, err := h.agent.Run(context.Background(), Request{Query: "q", MaxIterations: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.gen.count("evaluate") != 0 {
		t.Error("heuristic scorer called the LLM")
	}
	if res.Confidence <= 0 || res.Confidence > 1 {
		t.Errorf("Confidence = %v", res.Confidence)
	}
}

func TestRun_Journal(t *testing.T) {
	t.Parallel()

	t.Run("records run", func(t *testing.T) {
		t.Parallel()
		j := &fakeJournal{}
		h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)}, func(c *Config) { c.Journal = j })

		if _, err := h.agent.Run(context.Background(), Request{Query: "q", FileID: "f.pdf", MaxIterations: 1}); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(j.runs) != 1 {
			t.Fatalf("journal has %d runs, want 1", len(j.runs))
		}
		got := j.runs[0]
		if got.ID != "run-test" || got.FileID != "f.pdf" || got.Confidence != 0.9 || got.Iterations != 1 {
			t.Errorf("journalled run = %+v", got)
		}
	})

	t.Run("failure does not fail run", func(t *testing.T) {
		t.Parallel()
		j := &fakeJournal{err: errors.New("disk full")}
		h := newHarness(t, []rag.Chunk{chunk("c1", 0.1)}, func(c *Config) { c.Journal = j })

		if _, err := h.agent.Run(context.Background(), Request{Query: "q", MaxIterations: 1}); err != nil {
			t.Fatalf("Run: %v", err)
		}
	})
}

func TestRun_ConcurrentRunsShareNoState(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []rag.Chunk{chunk("c1", 0.2)})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := fmt.Sprintf("question %d", i)
			res, err := h.agent.Run(context.Background(), Request{Query: q, MaxIterations: 1})
			if err != nil {
				errs <- err
				return
			}
			if res.Query != q {
				errs <- fmt.Errorf("run for %q returned query %q", q, res.Query)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()
	h := newHarness(t, []rag.Chunk{chunk("a", 0.25), {ID: "nodist"}})

	got, err := h.agent.Search(context.Background(), SearchRequest{Query: "python", K: 5, SourceType: "pdf"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].Similarity != 0.75 || got[1].Similarity != 0 {
		t.Errorf("unexpected results: %+v", got)
	}
	if h.gen.total() != 0 {
		t.Error("search called the LLM")
	}
	if h.index.requests[0].Filter.SourceType != "pdf" {
		t.Errorf("filter = %+v", h.index.requests[0].Filter)
	}

	for _, bad := range []SearchRequest{{Query: " "}, {Query: "q", K: -1}, {Query: "q", K: MaxSearchK + 1}} {
		if _, err := h.agent.Search(context.Background(), bad); !errors.Is(err, ErrValidation) {
			t.Errorf("Search(%+v): want ErrValidation, got %v", bad, err)
		}
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()
	g, e, i := newFakeGenerator(), &fakeEmbedder{}, &fakeIndex{}
	cases := map[string]*Config{
		"generator": {Embedder: e, Index: i},
		"embedder":  {Generator: g, Index: i},
		"index":     {Generator: g, Embedder: e},
		"threshold": {Generator: g, Embedder: e, Index: i, ConfidenceThreshold: 1.5},
		"max iter":  {Generator: g, Embedder: e, Index: i, DefaultMaxIterations: 9},
	}
	for name, cfg := range cases {
		if _, err := New(cfg); err == nil {
			t.Errorf("%s: want error", name)
		}
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("AGENT_CONFIDENCE_THRESHOLD", "0.55")
	t.Setenv("AGENT_MAX_ITERATIONS", "4")
	t.Setenv("AGENT_RETRIEVAL_K", "")
	t.Setenv("AGENT_CALL_TIMEOUT", "5s")
	t.Setenv("AGENT_CONTEXT_TOP_N", "bogus")

	cfg := ConfigFromEnv()
	if cfg.ConfidenceThreshold != 0.55 || cfg.DefaultMaxIterations != 4 {
		t.Errorf("threshold/max = %v/%d", cfg.ConfidenceThreshold, cfg.DefaultMaxIterations)
	}
	if cfg.RetrievalK != DefaultRetrievalK || cfg.ContextTopN != DefaultContextTopN {
		t.Errorf("defaults not applied: k=%d topN=%d", cfg.RetrievalK, cfg.ContextTopN)
	}
	if cfg.CallTimeout.String() != "5s" {
		t.Errorf("CallTimeout = %v", cfg.CallTimeout)
	}
}
