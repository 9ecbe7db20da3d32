package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/estoque-rag/internal/answer"
	"github.com/54b3r/estoque-rag/internal/ingestion"
	"github.com/54b3r/estoque-rag/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full synchronization run. Defaults to 2m.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
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
	// APIKey is the Bearer token required on the mutating /api/v1 routes
	// (add-documents, sync-database). If empty, authentication is disabled.
	APIKey string
	// AllowedOrigin is the browser origin granted CORS access.
	// Defaults to http://localhost:3000; "*" allows any origin.
	AllowedOrigin string
	// MetricsRegistry receives the server's collectors.
	// Defaults to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served on GET /metrics.
	// Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Backend is the set of operations the HTTP handlers call.
// *service.Service satisfies it; tests inject a fake.
type Backend interface {
	// Ask answers a question with at most k retrieved documents.
	Ask(ctx context.Context, question string, k int) (answer.Answer, error)
	// AddDocuments indexes custom documents and returns their ids.
	AddDocuments(ctx context.Context, texts []string, metadatas []map[string]any) ([]string, error)
	// Resync runs or joins an index synchronization.
	Resync(ctx context.Context) (*ingestion.SyncReport, error)
	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)
	// History returns the n most recent questions, newest first.
	History(ctx context.Context, n int) ([]store.Entry, error)
}

// Server is the HTTP server that exposes a Backend.
type Server struct {
	// backend answers questions and maintains the index.
	backend Backend
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors for this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/v1/query.
type queryRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// TopK optionally overrides the number of retrieved documents.
	TopK int `json:"top_k,omitempty"`
}

// sourceDocument is one retrieved document in a query response.
type sourceDocument struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float32        `json:"score"`
	Rank     int            `json:"rank"`
}

// queryResponse is the JSON response for POST /api/v1/query.
type queryResponse struct {
	// Answer is the synthesized reply.
	Answer string `json:"answer"`
	// Sources are the retrieved documents the answer was built from.
	Sources []sourceDocument `json:"sources"`
	// Intent is the classified intent of the question.
	Intent string `json:"intent"`
	// Entity is the recognised product name, if any.
	Entity string `json:"entity,omitempty"`
	// Degraded is true when retrieval was unavailable.
	Degraded bool `json:"degraded"`
}

// addDocumentsRequest is the JSON body for POST /api/v1/add-documents.
type addDocumentsRequest struct {
	// Texts are the document contents.
	Texts []string `json:"texts"`
	// Metadatas is null or parallel to Texts.
	Metadatas []map[string]any `json:"metadatas"`
}

// addDocumentsResponse is the JSON response for POST /api/v1/add-documents.
type addDocumentsResponse struct {
	Message string   `json:"message"`
	Count   int      `json:"count"`
	IDs     []string `json:"ids"`
}

// syncResponse is the JSON response for POST /api/v1/sync-database.
type syncResponse struct {
	Message string                `json:"message"`
	Report  *ingestion.SyncReport `json:"report"`
}

// countResponse is the JSON response for GET /api/v1/documents/count.
type countResponse struct {
	Count int `json:"count"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Detail string `json:"detail"`
}
