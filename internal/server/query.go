package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/54b3r/docarag-go/internal/agent"
	"github.com/54b3r/docarag-go/internal/logging"
	"github.com/54b3r/docarag-go/internal/rag"
	"github.com/54b3r/docarag-go/internal/store"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// handleQuery handles POST /api/query: one full agent run.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := s.decode(w, r, &req); err != nil {
		s.metrics.queryRequestsTotal.WithLabelValues(outcome(err)).Inc()
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	s.metrics.queryInFlight.Inc()
	start := time.Now()
	res, err := s.runner.Run(ctx, agent.Request{
		Query:         req.Query,
		FileID:        req.FileID,
		SourceType:    req.SourceType,
		MaxIterations: req.MaxIterations,
	})
	s.metrics.queryInFlight.Dec()
	s.observeQuery(err, time.Since(start), res)

	if err != nil {
		writeError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("query answered",
		slog.String("run_id", res.RunID),
		slog.Float64("confidence", res.Confidence),
		slog.Int("iterations", res.Iterations),
	)
	writeJSON(w, r, http.StatusOK, queryResponse{
		RunID:          res.RunID,
		Query:          res.Query,
		Answer:         res.Answer,
		RephrasedQuery: res.RephrasedQuery,
		Confidence:     res.Confidence,
		Iterations:     res.Iterations,
		SourcesUsed:    res.SourcesUsed,
		Sources:        toSources(res.Sources),
		DurationMS:     res.Duration.Milliseconds(),
	})
}

// observeQuery records the metrics of one agent run.
func (s *Server) observeQuery(err error, elapsed time.Duration, res *agent.Result) {
	label := outcome(err)
	s.metrics.queryRequestsTotal.WithLabelValues(label).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(label).Observe(elapsed.Seconds())

	if err != nil {
		var se *agent.StepError
		if errors.As(err, &se) {
			s.metrics.stepErrorsTotal.WithLabelValues(se.Phase.String()).Inc()
		}
		return
	}
	s.metrics.queryIterations.Observe(float64(res.Iterations))
	s.metrics.queryConfidence.Observe(res.Confidence)
}

// handleSearch handles POST /api/search: embedding plus nearest-neighbour
// lookup, no LLM.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	chunks, err := s.runner.Search(ctx, agent.SearchRequest{
		Query:      req.Query,
		FileID:     req.FileID,
		SourceType: req.SourceType,
		K:          req.K,
	})
	if err != nil {
		var se *agent.StepError
		if errors.As(err, &se) {
			s.metrics.stepErrorsTotal.WithLabelValues(se.Phase.String()).Inc()
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, searchResponse{Count: len(chunks), Results: toSources(chunks)})
}

// handleRuns handles GET /api/runs?limit=N, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "run journal is disabled"})
		return
	}

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRunsLimit {
			writeJSON(w, r, http.StatusBadRequest, errorResponse{
				Error: "limit must be an integer between 1 and " + strconv.Itoa(maxRunsLimit),
			})
			return
		}
		limit = n
	}

	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, runsResponse{Runs: toRuns(runs)})
}

// toSources maps chunks onto the wire shape. Score is the rerank score when
// a reranker ran, otherwise the normalised similarity.
func toSources(chunks []rag.Chunk) []sourceResponse {
	out := make([]sourceResponse, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, sourceResponse{
			FileID:     c.DocumentName,
			Content:    c.Content,
			Score:      c.Relevance(),
			Page:       c.Page,
			ChunkIndex: c.ChunkIndex,
			SourceType: c.SourceType,
		})
	}
	return out
}

func toRuns(runs []store.Run) []runResponse {
	out := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, runResponse{
			RunID:          r.ID,
			Query:          r.Query,
			RephrasedQuery: r.RephrasedQuery,
			Answer:         r.Answer,
			Confidence:     r.Confidence,
			Iterations:     r.Iterations,
			SourcesUsed:    r.SourcesUsed,
			FileID:         r.FileID,
			SourceType:     r.SourceType,
			DurationMS:     r.Duration.Milliseconds(),
			CreatedAt:      r.CreatedAt,
		})
	}
	return out
}
