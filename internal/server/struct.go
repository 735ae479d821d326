package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/index"
	"github.com/54b3r/docqa-go/internal/query"
	"github.com/54b3r/docqa-go/internal/store"
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
	// exceed AskTimeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds one POST /api/ask, retrieval and generation included.
	AskTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency checks run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks.
	Pingers []Pinger
	// RateLimit is the sustained rate allowed per IP on POST /api/ask
	// (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on the /api/* data routes.
	// If empty, authentication is disabled.
	APIKey string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// asker is what the server needs from the query engine.
// *query.Engine satisfies it; tests inject a fake.
type asker interface {
	AskK(ctx context.Context, question string, k int) (*query.Response, error)
	Index() query.Index
}

// manifester is implemented by indexes that can describe themselves.
// *index.Index satisfies it.
type manifester interface {
	Manifest() index.Manifest
}

// Server exposes the query engine over HTTP.
type Server struct {
	// engine answers questions.
	engine asker
	// history is the query log; nil when history is disabled.
	history store.QueryLog
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency checks for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// validate checks decoded request bodies.
	validate *validator.Validate
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the natural language question.
	Question string `json:"question" validate:"required,max=4000"`
	// TopK overrides the configured fragment count for this question.
	TopK int `json:"top_k,omitempty" validate:"omitempty,min=1,max=50"`
}

// historyResponse is the JSON body for GET /api/history.
type historyResponse struct {
	// Entries are the most recent questions, newest first.
	Entries []historyEntry `json:"entries"`
}

// historyEntry is one query log record as served over HTTP.
type historyEntry struct {
	// ID is the query log row ID.
	ID int64 `json:"id"`
	// Question is the question as answered.
	Question string `json:"question"`
	// Answer is the generated answer.
	Answer string `json:"answer"`
	// Sources are the cited fragment IDs in rank order.
	Sources []string `json:"sources"`
	// Fingerprint identifies the index that answered.
	Fingerprint string `json:"fingerprint"`
	// ElapsedMS is the answer latency in milliseconds.
	ElapsedMS int64 `json:"elapsed_ms"`
	// CreatedAt is when the answer was logged.
	CreatedAt time.Time `json:"created_at"`
}

// errorResponse is the JSON body of every non-2xx response from a handler.
type errorResponse struct {
	// Error is a short, client-safe message.
	Error string `json:"error"`
}
