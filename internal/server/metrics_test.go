package server

import (
	"net/http"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/54b3r/estoque-rag/internal/answer"
	"github.com/54b3r/estoque-rag/internal/classify"
)

// gather returns the metric family called name from the server's registry,
// or nil when it has no samples yet.
func gather(t *testing.T, s *Server, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := s.cfg.MetricsGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// gaugeValue returns the value of the unlabelled gauge called name.
func gaugeValue(t *testing.T, s *Server, name string) float64 {
	t.Helper()
	mf := gather(t, s, name)
	if mf == nil {
		t.Fatalf("%s not found in gathered metrics", name)
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

// counterValue returns the counter in family name whose labels include all
// of want.
func counterValue(t *testing.T, s *Server, name string, want map[string]string) float64 {
	t.Helper()
	mf := gather(t, s, name)
	if mf == nil {
		return 0
	}
	for _, m := range mf.GetMetric() {
		matched := 0
		for _, lp := range m.GetLabel() {
			if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
				matched++
			}
		}
		if matched == len(want) {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, h := newAPITestServer(&fakeBackend{}, "")

	// Touch a handler so at least one family has samples.
	do(t, h, http.MethodGet, "/api/v1/documents/count", "")

	w := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("want 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "erag_http_requests_total") {
		t.Error("erag_http_requests_total missing from /metrics output")
	}
}

func Test_Metrics_QueryOutcomes(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{answer: answer.Answer{Text: "ok", Intent: classify.Price}}
	s, h := newAPITestServer(b, "")

	do(t, h, http.MethodPost, "/api/v1/query", `{"question":"Qual o preço do arroz?"}`)
	b.answer = answer.Unavailable(classify.Result{Intent: classify.Price})
	do(t, h, http.MethodPost, "/api/v1/query", `{"question":"Qual o preço do arroz?"}`)
	do(t, h, http.MethodPost, "/api/v1/query", `{"question":""}`)

	if v := counterValue(t, s, "erag_query_requests_total", map[string]string{"intent": "PRICE", "outcome": "ok"}); v != 1 {
		t.Errorf("ok counter: want 1, got %v", v)
	}
	if v := counterValue(t, s, "erag_query_requests_total", map[string]string{"intent": "PRICE", "outcome": "degraded"}); v != 1 {
		t.Errorf("degraded counter: want 1, got %v", v)
	}
	if v := counterValue(t, s, "erag_query_requests_total", map[string]string{"outcome": "invalid"}); v != 1 {
		t.Errorf("invalid counter: want 1, got %v", v)
	}
}

func Test_Metrics_HTTPCounterByHandler(t *testing.T) {
	t.Parallel()
	s, h := newAPITestServer(&fakeBackend{count: 3}, "")

	do(t, h, http.MethodGet, "/api/v1/documents/count", "")
	do(t, h, http.MethodGet, "/api/v1/documents/count", "")

	if v := counterValue(t, s, "erag_http_requests_total", map[string]string{"handler": "count", "code": "200"}); v != 2 {
		t.Errorf("want 2 count requests, got %v", v)
	}
	if v := gaugeValue(t, s, "erag_index_documents"); v != 3 {
		t.Errorf("want index gauge 3, got %v", v)
	}
}
