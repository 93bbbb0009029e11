package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docarag-go/internal/agent"
	"github.com/54b3r/docarag-go/internal/rag"
	"github.com/54b3r/docarag-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed QueryTimeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds a whole agent run (default: 5m). Exceeding it
	// answers 504.
	QueryTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// queryRunner is the slice of *agent.Agent the handlers call; tests inject
// a fake.
type queryRunner interface {
	Run(ctx context.Context, req agent.Request) (*agent.Result, error)
	Search(ctx context.Context, req agent.SearchRequest) ([]rag.Chunk, error)
}

// runLister lists journalled runs. Nil disables GET /api/runs.
type runLister interface {
	RecentRuns(ctx context.Context, n int) ([]store.Run, error)
}

// Server is the HTTP server that wraps the query agent.
type Server struct {
	// runner answers query and search requests.
	runner queryRunner
	// runs lists the run journal; nil when no journal is configured.
	runs runLister
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// metrics holds the Prometheus collectors.
	metrics *serverMetrics
	// validate checks request bodies against their struct tags.
	validate *validator.Validate
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Query is the user's question.
	Query string `json:"query" validate:"required,max=4000"`
	// FileID optionally restricts retrieval to one document.
	FileID string `json:"file_id,omitempty" validate:"omitempty,max=512"`
	// SourceType optionally restricts retrieval to one document kind.
	SourceType string `json:"source_type,omitempty" validate:"omitempty,oneof=pdf docx html txt md"`
	// MaxIterations caps the loop. Zero selects the server default.
	MaxIterations int `json:"max_iterations,omitempty" validate:"omitempty,min=1,max=5"`
}

// sourceResponse is one retrieved chunk in a response.
type sourceResponse struct {
	FileID     string  `json:"file_id"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunk_index"`
	SourceType string  `json:"source_type,omitempty"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	RunID          string           `json:"run_id"`
	Query          string           `json:"query"`
	Answer         string           `json:"answer"`
	RephrasedQuery string           `json:"rephrased_query"`
	Confidence     float64          `json:"confidence"`
	Iterations     int              `json:"iterations"`
	SourcesUsed    int              `json:"sources_used"`
	Sources        []sourceResponse `json:"sources"`
	DurationMS     int64            `json:"duration_ms"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	Query      string `json:"query" validate:"required,max=4000"`
	FileID     string `json:"file_id,omitempty" validate:"omitempty,max=512"`
	SourceType string `json:"source_type,omitempty" validate:"omitempty,oneof=pdf docx html txt md"`
	// K is the number of results. Zero selects the retrieval default.
	K int `json:"k,omitempty" validate:"omitempty,min=1,max=100"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	Count   int              `json:"count"`
	Results []sourceResponse `json:"results"`
}

// runResponse is one journalled run in GET /api/runs.
type runResponse struct {
	RunID          string    `json:"run_id"`
	Query          string    `json:"query"`
	RephrasedQuery string    `json:"rephrased_query"`
	Answer         string    `json:"answer"`
	Confidence     float64   `json:"confidence"`
	Iterations     int       `json:"iterations"`
	SourcesUsed    int       `json:"sources_used"`
	FileID         string    `json:"file_id,omitempty"`
	SourceType     string    `json:"source_type,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// runsResponse is the JSON response for GET /api/runs.
type runsResponse struct {
	Runs []runResponse `json:"runs"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}
