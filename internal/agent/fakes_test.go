package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/54b3r/docarag-go/internal/rag"
	"github.com/54b3r/docarag-go/internal/store"
)

// promptKind classifies a prompt by its opening line.
func promptKind(prompt string) string {
	switch {
	case strings.HasPrefix(prompt, "You are a query optimization assistant"):
		return "rephrase"
	case strings.HasPrefix(prompt, "You are a helpful AI assistant"):
		return "generate"
	case strings.HasPrefix(prompt, "You are an answer quality evaluator"):
		return "evaluate"
	default:
		return "unknown"
	}
}

// genCall is one recorded Generate invocation.
type genCall struct {
	kind        string
	prompt      string
	temperature float32
}

// fakeGenerator answers each prompt kind from a queue; the last entry of a
// queue repeats. A non-nil error for a kind fails every call of that kind,
// and a blocked kind hangs until its context ends.
type fakeGenerator struct {
	mu      sync.Mutex
	replies map[string][]string
	errs    map[string]error
	blocked map[string]bool
	calls   []genCall
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		replies: map[string][]string{
			"rephrase": {"Python programming language overview"},
			"generate": {"Python is a language."},
			"evaluate": {"0.9"},
		},
		errs:    map[string]error{},
		blocked: map[string]bool{},
	}
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	f.mu.Lock()
	kind := promptKind(prompt)
	f.calls = append(f.calls, genCall{kind: kind, prompt: prompt, temperature: temperature})
	if f.blocked[kind] {
		f.mu.Unlock()
		<-ctx.Done()
		return "", ctx.Err()
	}
	defer f.mu.Unlock()

	if err := f.errs[kind]; err != nil {
		return "", err
	}
	q := f.replies[kind]
	if len(q) == 0 {
		return "", errors.New("fake: no reply configured for " + kind)
	}
	reply := q[0]
	if len(q) > 1 {
		f.replies[kind] = q[1:]
	}
	return reply, nil
}

func (f *fakeGenerator) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeGenerator) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGenerator) last(kind string) genCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].kind == kind {
			return f.calls[i]
		}
	}
	return genCall{}
}

// fakeEmbedder returns a fixed vector and records its inputs. When block is
// set it hangs until its context ends; onEmbed runs before it answers.
type fakeEmbedder struct {
	mu      sync.Mutex
	err     error
	block   bool
	onEmbed func()
	inputs  []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, texts...)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.onEmbed != nil {
		f.onEmbed()
	}
	if f.err != nil {
		return nil, f.err
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, rag.ErrEmptyInput
		}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func (f *fakeEmbedder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

// fakeIndex returns a copy of chunks for every search, or hangs until its
// context ends when block is set.
type fakeIndex struct {
	mu       sync.Mutex
	chunks   []rag.Chunk
	err      error
	block    bool
	requests []rag.SearchRequest
}

func (f *fakeIndex) Search(ctx context.Context, req rag.SearchRequest) ([]rag.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	n := min(len(f.chunks), req.K)
	out := make([]rag.Chunk, n)
	copy(out, f.chunks[:n])
	return out, nil
}

func (f *fakeIndex) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeReranker reverses the order, or fails.
type fakeReranker struct {
	err   error
	calls int
}

func (f *fakeReranker) Rerank(_ context.Context, _ []float32, chunks []rag.Chunk, limit int) ([]rag.Chunk, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]rag.Chunk, 0, len(chunks))
	for i := len(chunks) - 1; i >= 0 && len(out) < limit; i-- {
		c := chunks[i]
		c.RerankScore, c.Reranked = float64(len(out)+1)/10, true
		out = append(out, c)
	}
	return out, nil
}

// fakeJournal records saved runs.
type fakeJournal struct {
	mu   sync.Mutex
	runs []store.Run
	err  error
}

func (f *fakeJournal) SaveRun(_ context.Context, run store.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeJournal) RecentRuns(context.Context, int) ([]store.Run, error) { return f.runs, nil }

func (f *fakeJournal) Close() error { return nil }

// chunk builds a retrieved chunk at the given cosine distance.
func chunk(id string, distance float64) rag.Chunk {
	return rag.Chunk{
		ID:           id,
		Content:      "Python is a high-level programming language. (" + id + ")",
		DocumentName: "python-guide.pdf",
		Page:         1,
		Distance:     rag.Float64(distance),
	}
}

// harness bundles an agent with its fakes.
type harness struct {
	gen      *fakeGenerator
	embedder *fakeEmbedder
	index    *fakeIndex
	agent    *Agent
}

// newHarness builds an agent over fresh fakes. opts adjust the Config
// before the agent is constructed.
func newHarness(t testing.TB, chunks []rag.Chunk, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		gen:      newFakeGenerator(),
		embedder: &fakeEmbedder{},
		index:    &fakeIndex{chunks: chunks},
	}
	cfg := &Config{
		Generator: h.gen,
		Embedder:  h.embedder,
		Index:     h.index,
		NewRunID:  func() string { return "run-test" },
	}
	for _, o := range opts {
		o(cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.agent = a
	return h
}
