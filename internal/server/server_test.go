package server

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docarag-go/internal/agent"
	"github.com/54b3r/docarag-go/internal/rag"
	"github.com/54b3r/docarag-go/internal/store"
)

// fakeRunner is a test double for queryRunner.
type fakeRunner struct {
	mu sync.Mutex

	result  *agent.Result
	runErr  error
	chunks  []rag.Chunk
	findErr error

	// gotRun and gotSearch record the last request seen.
	gotRun    agent.Request
	gotSearch agent.SearchRequest
	runCalls  int
}

func (f *fakeRunner) Run(_ context.Context, req agent.Request) (*agent.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotRun = req
	f.runCalls++
	if f.runErr != nil {
		return nil, f.runErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &agent.Result{RunID: "run-1", Query: req.Query, Answer: "ok", Confidence: 0.9, Iterations: 1}, nil
}

func (f *fakeRunner) Search(_ context.Context, req agent.SearchRequest) ([]rag.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotSearch = req
	return f.chunks, f.findErr
}

// fakeRuns is a test double for runLister.
type fakeRuns struct {
	runs []store.Run
	err  error
	gotN int
}

func (f *fakeRuns) RecentRuns(_ context.Context, n int) ([]store.Run, error) {
	f.gotN = n
	if f.err != nil {
		return nil, f.err
	}
	if n < len(f.runs) {
		return f.runs[:n], nil
	}
	return f.runs, nil
}

// discardLogger keeps test output quiet.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServerWith builds a Server around the given fakes with an isolated
// metrics registry.
func newTestServerWith(t testing.TB, runner queryRunner, runs runLister, cfg *Config) (*Server, *prometheus.Registry) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	reg := prometheus.NewRegistry()
	cfg.Logger = discardLogger()
	cfg.MetricsRegistry = reg
	cfg.MetricsGatherer = reg
	s := newServer(runner, runs, cfg)
	t.Cleanup(s.stopRL)
	return s, reg
}

// newTestServer builds a Server with a default fakeRunner and no journal.
func newTestServer(t testing.TB) *Server {
	t.Helper()
	s, _ := newTestServerWith(t, &fakeRunner{}, nil, nil)
	return s
}

func TestNew_RequiresAgent(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil, &Config{}); err == nil {
		t.Fatal("New(nil agent) should fail")
	}
}
