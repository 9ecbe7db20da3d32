// Package server implements the HTTP API of the inventory question-answering
// service: questions, custom documents, index synchronization, document
// count and query history, plus health, readiness and metrics endpoints.
// The server is started by the `erag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/estoque-rag/internal/ingestion"
	"github.com/54b3r/estoque-rag/internal/logging"
	"github.com/54b3r/estoque-rag/internal/rag"
	"github.com/54b3r/estoque-rag/internal/service"
	"github.com/54b3r/estoque-rag/internal/source"
	"github.com/54b3r/estoque-rag/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// New constructs a Server from the provided backend and config.
func New(backend Backend, cfg *Config) (*Server, error) {
	if backend == nil {
		return nil, fmt.Errorf("server: backend must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "http://localhost:3000"
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := &Server{
		backend: backend,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		log.Warn("server: ERAG_API_KEY is not set, add-documents and sync-database are unauthenticated")
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the full handler chain: CORS and request logging around a
// mux whose API routes are instrumented, rate limited and, for mutating
// routes, authenticated.
func (s *Server) routes() http.Handler {
	rl, stop := newRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst, s.log)
	s.stopRL = stop

	limited := func(name string, h http.HandlerFunc) http.Handler {
		return s.metrics.instrument(name, rl.middleware(h))
	}
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return s.metrics.instrument(name, authMiddleware(s.cfg.APIKey, rl.middleware(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/query", limited("query", s.handleQuery))
	mux.Handle("POST /api/v1/add-documents", protected("add_documents", s.handleAddDocuments))
	mux.Handle("POST /api/v1/sync-database", protected("sync_database", s.handleSync))
	mux.Handle("GET /api/v1/documents/count", s.metrics.instrument("count", http.HandlerFunc(s.handleCount)))
	mux.Handle("GET /api/v1/queries", s.metrics.instrument("queries", http.HandlerFunc(s.handleQueries)))
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	return requestLogger(s.log, corsMiddleware(s.cfg.AllowedOrigin, mux))
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	defer func() {
		if s.stopRL != nil {
			s.stopRL()
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/v1/query. Retrieval failures still produce a
// 200 with a degraded answer; only malformed input is rejected.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	var req queryRequest
	if !s.decode(w, r, &req) {
		s.metrics.queryRequestsTotal.WithLabelValues("", outcomeInvalid).Inc()
		return
	}

	ans, err := s.backend.Ask(r.Context(), req.Question, req.TopK)
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			s.metrics.queryRequestsTotal.WithLabelValues("", outcomeInvalid).Inc()
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		s.metrics.queryRequestsTotal.WithLabelValues("", outcomeError).Inc()
		log.Error("query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	outcome := outcomeOK
	if ans.Degraded {
		outcome = outcomeDegraded
	}
	s.metrics.queryRequestsTotal.WithLabelValues(string(ans.Intent), outcome).Inc()
	s.metrics.queryDurationSeconds.Observe(time.Since(start).Seconds())

	resp := queryResponse{
		Answer:   ans.Text,
		Sources:  make([]sourceDocument, 0, len(ans.Sources)),
		Intent:   string(ans.Intent),
		Entity:   ans.Entity,
		Degraded: ans.Degraded,
	}
	for _, d := range ans.Sources {
		resp.Sources = append(resp.Sources, sourceDocument{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: d.Metadata,
			Score:    d.Score,
			Rank:     d.Rank,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAddDocuments handles POST /api/v1/add-documents.
func (s *Server) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	var req addDocumentsRequest
	if !s.decode(w, r, &req) {
		return
	}

	ids, err := s.backend.AddDocuments(r.Context(), req.Texts, req.Metadatas)
	if err != nil {
		s.writeBackendError(w, r, "add documents", err)
		return
	}
	writeJSON(w, http.StatusOK, addDocumentsResponse{
		Message: fmt.Sprintf("%d documento(s) adicionado(s) com sucesso", len(ids)),
		Count:   len(ids),
		IDs:     ids,
	})
}

// handleSync handles POST /api/v1/sync-database. Concurrent requests join a
// single synchronization run.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.backend.Resync(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, source.ErrSourceUnavailable):
			s.metrics.syncRunsTotal.WithLabelValues(outcomeSourceUnavailable).Inc()
		case errors.Is(err, ingestion.ErrSyncTimeout):
			s.metrics.syncRunsTotal.WithLabelValues(outcomeTimeout).Inc()
		default:
			s.metrics.syncRunsTotal.WithLabelValues(outcomeError).Inc()
		}
		s.writeBackendError(w, r, "sync", err)
		return
	}

	s.metrics.syncRunsTotal.WithLabelValues(outcomeOK).Inc()
	if !report.Shared {
		s.metrics.syncDurationSeconds.Observe(report.Duration.Seconds())
	}
	if n, err := s.backend.Count(r.Context()); err == nil {
		s.metrics.indexedDocuments.Set(float64(n))
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Message: "Banco de dados sincronizado com sucesso",
		Report:  report,
	})
}

// handleCount handles GET /api/v1/documents/count.
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.backend.Count(r.Context())
	if err != nil {
		s.writeBackendError(w, r, "count", err)
		return
	}
	s.metrics.indexedDocuments.Set(float64(n))
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// handleQueries handles GET /api/v1/queries and returns the most recent
// questions, newest first. A disabled history yields an empty list.
func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.backend.History(r.Context(), store.DefaultRecent)
	if errors.Is(err, service.ErrHistoryDisabled) {
		writeJSON(w, http.StatusOK, []store.Entry{})
		return
	}
	if err != nil {
		s.writeBackendError(w, r, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleIndex handles GET / with a short description of the API.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Sistema RAG - Consulta Inteligente",
		"status":  "ok",
		"endpoints": map[string]string{
			"query":    "/api/v1/query",
			"add_docs": "/api/v1/add-documents",
			"history":  "/api/v1/queries",
			"sync":     "/api/v1/sync-database",
			"count":    "/api/v1/documents/count",
		},
	})
}

// decode reads a JSON body into v. On failure it writes a 400 and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeBackendError maps a backend error to an HTTP status.
func (s *Server) writeBackendError(w http.ResponseWriter, r *http.Request, op string, err error) {
	log := logging.FromContext(r.Context())

	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
		return
	case errors.Is(err, ingestion.ErrSyncTimeout):
		writeError(w, http.StatusGatewayTimeout, "synchronization timed out")
	case errors.Is(err, source.ErrSourceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "source database unavailable")
	case errors.Is(err, rag.ErrRetrievalUnavailable):
		writeError(w, http.StatusServiceUnavailable, "document index unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
	log.Error(op+" failed", slog.Any("error", err))
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an errorResponse with the given status.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
