package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/finrag-go/internal/answer"
	"github.com/54b3r/finrag-go/internal/ingestion"
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
	// QueryTimeout bounds one /api/query request end to end (default: 90s).
	QueryTimeout time.Duration
	// MaxBodyBytes caps request bodies (default: 8 MiB).
	MaxBodyBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on
	// /api/query and /api/ingest (requests/second). Defaults to 5 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// asker answers a question. *answer.Orchestrator satisfies it; tests
// inject a fake.
type asker interface {
	Ask(ctx context.Context, query string, k int) (answer.Result, error)
}

// ingester ingests one source. *ingestion.Pipeline satisfies it.
type ingester interface {
	Ingest(ctx context.Context, src ingestion.Source) (int, error)
}

// Server is the HTTP front end of the question-answering pipeline.
type Server struct {
	// asker answers /api/query requests.
	asker asker
	// ingester handles /api/ingest requests.
	ingester ingester
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// handler is the fully wrapped mux, also used by tests.
	handler http.Handler
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's idle-bucket sweep on shutdown.
	stopRL func()
	// metrics holds the Prometheus metrics owned by this server.
	metrics *serverMetrics
	// validate checks decoded request bodies.
	validate *validator.Validate
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Query is the user's question.
	Query string `json:"query" validate:"required,max=4096"`
	// K is the number of passages per collection; 0 selects the default.
	K int `json:"k" validate:"gte=0,lte=50"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	// Answer is the generated answer or the generation failure message.
	Answer string `json:"answer"`
	// Passages is the number of passages in the assembled context.
	Passages int `json:"passages"`
	// Truncated reports that the context was cut to the character budget.
	Truncated bool `json:"truncated"`
}

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}
