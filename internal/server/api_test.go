package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/estoque-rag/internal/answer"
	"github.com/54b3r/estoque-rag/internal/classify"
	"github.com/54b3r/estoque-rag/internal/ingestion"
	"github.com/54b3r/estoque-rag/internal/logging"
	"github.com/54b3r/estoque-rag/internal/rag"
	"github.com/54b3r/estoque-rag/internal/service"
	"github.com/54b3r/estoque-rag/internal/source"
	"github.com/54b3r/estoque-rag/internal/store"
)

// ---------------------------------------------------------------------------
// Fake backend
// ---------------------------------------------------------------------------

// fakeBackend implements Backend with canned results.
type fakeBackend struct {
	mu sync.Mutex

	// answer is returned by Ask.
	answer answer.Answer
	// askErr is returned by Ask.
	askErr error
	// gotQuestion and gotTopK record the last Ask call.
	gotQuestion string
	gotTopK     int

	// addErr is returned by AddDocuments.
	addErr error
	// gotTexts records the last AddDocuments call.
	gotTexts []string

	// syncErr is returned by Resync.
	syncErr error
	// syncCalls counts Resync calls.
	syncCalls int

	// count and countErr are returned by Count.
	count    int
	countErr error

	// history and historyErr are returned by History.
	history    []store.Entry
	historyErr error
}

func (f *fakeBackend) Ask(_ context.Context, q string, k int) (answer.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotQuestion, f.gotTopK = q, k
	if strings.TrimSpace(q) == "" {
		return answer.Answer{}, &service.ValidationError{Field: "question", Reason: "must not be empty"}
	}
	return f.answer, f.askErr
}

func (f *fakeBackend) AddDocuments(_ context.Context, texts []string, _ []map[string]any) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotTexts = texts
	if f.addErr != nil {
		return nil, f.addErr
	}
	ids := make([]string, len(texts))
	for i := range texts {
		ids[i] = fmt.Sprintf("custom_%d", i)
	}
	return ids, nil
}

func (f *fakeBackend) Resync(context.Context) (*ingestion.SyncReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return &ingestion.SyncReport{Inventory: 7, Sales: 3, Upserted: 24, Duration: time.Second}, nil
}

func (f *fakeBackend) Count(context.Context) (int, error) {
	return f.count, f.countErr
}

func (f *fakeBackend) History(context.Context, int) ([]store.Entry, error) {
	return f.history, f.historyErr
}

// newTestServer builds a *Server with a fake backend and an isolated
// metrics registry, without binding a listener.
func newTestServer() *Server {
	s, _ := newAPITestServer(&fakeBackend{}, "")
	return s
}

// newAPITestServer builds a fully wired *Server around b and returns it with
// its routed handler.
func newAPITestServer(b Backend, apiKey string) (*Server, http.Handler) {
	reg := prometheus.NewRegistry()
	s, err := New(b, &Config{
		Logger:          logging.Discard(),
		APIKey:          apiKey,
		RateLimit:       1000,
		RateBurst:       1000,
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		panic(err)
	}
	return s, s.httpServer.Handler
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// POST /api/v1/query
// ---------------------------------------------------------------------------

func TestHandleQuery_Success(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{answer: answer.Answer{
		Text:   "Temos 50 unidade de Alface no estoque, ao preço de R$ 2.50 por unidade.",
		Intent: classify.Quantity,
		Entity: "alface",
		Sources: []rag.RetrievedDocument{{Rank: 1, Document: rag.Document{
			ID: "estoque_1_1", Content: "Temos 50 unidade de Alface no estoque.", Score: 0.9,
			Metadata: map[string]any{rag.MetaSource: rag.SourceInventory},
		}}},
	}}
	_, h := newAPITestServer(b, "")

	w := do(t, h, http.MethodPost, "/api/v1/query", `{"question":"Quantos alface tem no estoque?","top_k":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}

	var resp queryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Answer, "50") || resp.Intent != "QUANTITY" || resp.Entity != "alface" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].ID != "estoque_1_1" || resp.Sources[0].Rank != 1 {
		t.Errorf("sources: %+v", resp.Sources)
	}
	if b.gotTopK != 5 {
		t.Errorf("top_k: expected 5, got %d", b.gotTopK)
	}
}

func TestHandleQuery_Degraded(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{answer: answer.Unavailable(classify.Result{Intent: classify.Sales})}
	_, h := newAPITestServer(b, "")

	w := do(t, h, http.MethodPost, "/api/v1/query", `{"question":"Quais foram as vendas?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("degraded answers must still be 200, got %d", w.Code)
	}
	var resp queryResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Degraded || resp.Sources == nil {
		t.Errorf("expected degraded answer with empty sources, got %+v", resp)
	}
}

func TestHandleQuery_BadInput(t *testing.T) {
	t.Parallel()

	_, h := newAPITestServer(&fakeBackend{}, "")
	cases := map[string]string{
		"invalid json":     `not-json`,
		"missing question": `{}`,
		"blank question":   `{"question":"   "}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/query", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
			var e errorResponse
			if err := json.NewDecoder(w.Body).Decode(&e); err != nil || e.Detail == "" {
				t.Errorf("expected JSON error detail, got %q", w.Body.String())
			}
		})
	}
}

func TestHandleQuery_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	_, h := newAPITestServer(&fakeBackend{}, "")
	if w := do(t, h, http.MethodGet, "/api/v1/query", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/v1/add-documents
// ---------------------------------------------------------------------------

func TestHandleAddDocuments(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{}
	_, h := newAPITestServer(b, "")

	w := do(t, h, http.MethodPost, "/api/v1/add-documents",
		`{"texts":["Teste de documento RAG","Outro"],"metadatas":null}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}
	var resp addDocumentsResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Count != 2 || len(resp.IDs) != 2 || resp.Message == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleAddDocuments_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &service.ValidationError{Field: "metadatas", Reason: "length mismatch"}, http.StatusBadRequest},
		{"index down", fmt.Errorf("%w: refused", rag.ErrRetrievalUnavailable), http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, h := newAPITestServer(&fakeBackend{addErr: tc.err}, "")
			w := do(t, h, http.MethodPost, "/api/v1/add-documents", `{"texts":["a"]}`)
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestHandleAddDocuments_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{}
	_, h := newAPITestServer(b, "secret")

	if w := do(t, h, http.MethodPost, "/api/v1/add-documents", `{"texts":["a"]}`); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if b.gotTexts != nil {
		t.Error("backend must not be called when unauthenticated")
	}
	w := do(t, h, http.MethodPost, "/api/v1/add-documents", `{"texts":["a"]}`, "Authorization", "Bearer secret")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", w.Code)
	}

	// Queries stay open.
	if w := do(t, h, http.MethodPost, "/api/v1/query", `{"question":"oi"}`); w.Code != http.StatusOK {
		t.Errorf("query should not require a token, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/v1/sync-database
// ---------------------------------------------------------------------------

func TestHandleSync(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{count: 31}
	s, h := newAPITestServer(b, "")

	w := do(t, h, http.MethodPost, "/api/v1/sync-database", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}
	var resp syncResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Message == "" || resp.Report == nil || resp.Report.Inventory != 7 {
		t.Errorf("unexpected response: %s", w.Body.String())
	}
	if got := gaugeValue(t, s, "erag_index_documents"); got != 31 {
		t.Errorf("index gauge: expected 31, got %v", got)
	}
}

func TestHandleSync_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"source unavailable", fmt.Errorf("ingestion: %w: dial tcp", source.ErrSourceUnavailable), http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("%w: deadline", ingestion.ErrSyncTimeout), http.StatusGatewayTimeout},
		{"index down", fmt.Errorf("%w: upsert", rag.ErrRetrievalUnavailable), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, h := newAPITestServer(&fakeBackend{syncErr: tc.err}, "")
			if w := do(t, h, http.MethodPost, "/api/v1/sync-database", ""); w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// GET /api/v1/documents/count, GET /api/v1/queries, GET /
// ---------------------------------------------------------------------------

func TestHandleCount(t *testing.T) {
	t.Parallel()

	_, h := newAPITestServer(&fakeBackend{count: 12}, "")
	w := do(t, h, http.MethodGet, "/api/v1/documents/count", "")
	var resp countResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if w.Code != http.StatusOK || resp.Count != 12 {
		t.Errorf("got %d %+v", w.Code, resp)
	}

	_, h = newAPITestServer(&fakeBackend{countErr: fmt.Errorf("%w: x", rag.ErrRetrievalUnavailable)}, "")
	if w := do(t, h, http.MethodGet, "/api/v1/documents/count", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestHandleQueries(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{history: []store.Entry{{ID: 2, Question: "segunda", Answer: "b"}, {ID: 1, Question: "primeira", Answer: "a"}}}
	_, h := newAPITestServer(b, "")
	w := do(t, h, http.MethodGet, "/api/v1/queries", "")
	var entries []store.Entry
	_ = json.NewDecoder(w.Body).Decode(&entries)
	if w.Code != http.StatusOK || len(entries) != 2 || entries[0].Question != "segunda" {
		t.Errorf("got %d %+v", w.Code, entries)
	}

	_, h = newAPITestServer(&fakeBackend{historyErr: service.ErrHistoryDisabled}, "")
	w = do(t, h, http.MethodGet, "/api/v1/queries", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("disabled history: got %d %q", w.Code, w.Body.String())
	}
}

func TestHandleIndex(t *testing.T) {
	t.Parallel()

	_, h := newAPITestServer(&fakeBackend{}, "")
	w := do(t, h, http.MethodGet, "/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/api/v1/sync-database") {
		t.Errorf("got %d %s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodGet, "/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown path: expected 404, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func TestCORS(t *testing.T) {
	t.Parallel()

	_, h := newAPITestServer(&fakeBackend{}, "")

	w := do(t, h, http.MethodOptions, "/api/v1/query", "",
		"Origin", "http://localhost:3000", "Access-Control-Request-Method", "POST")
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin: got %q", got)
	}

	w = do(t, h, http.MethodGet, "/health", "", "Origin", "http://evil.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin must not be allowed, got %q", got)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	_, h := newAPITestServer(&fakeBackend{}, "")
	if w := do(t, h, http.MethodGet, "/health", ""); w.Header().Get("X-Request-Id") == "" {
		t.Error("expected generated X-Request-Id")
	}
	if w := do(t, h, http.MethodGet, "/health", "", "X-Request-Id", "abc"); w.Header().Get("X-Request-Id") != "abc" {
		t.Error("expected caller X-Request-Id to be echoed")
	}
}

func TestNew_NilBackend(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for nil backend")
	}
}
