package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/estoque-rag/internal/rag"
)

// Default per-call timeouts of the model-backed embedders. EMBEDDING_TIMEOUT
// overrides both.
const (
	defaultOllamaTimeout = 60 * time.Second
	defaultOpenAITimeout = 30 * time.Second
)

// maxErrorBody caps how much of a failed reply is read for its message.
const maxErrorBody = 4 << 10

// httpClient returns a client bounded by timeout, or by fallback when timeout
// is not positive.
func httpClient(timeout, fallback time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = fallback
	}
	return &http.Client{Timeout: timeout}
}

// postJSON sends body as JSON to url and decodes a 2xx reply into out.
//
// An unreachable model server, an expired deadline and any non-2xx reply are
// all reported as rag.ErrRetrievalUnavailable, so callers map them to the
// same degraded path as a Qdrant outage. errMessage extracts the server's
// message from an error body; an empty result falls back to the status text.
func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, body, out any, errMessage func([]byte) string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %w", rag.ErrRetrievalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := ""
		if errMessage != nil {
			msg = errMessage(raw)
		}
		if msg == "" {
			msg = strings.TrimSpace(http.StatusText(resp.StatusCode))
		}
		return fmt.Errorf("%w: HTTP %d: %s", rag.ErrRetrievalUnavailable, resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
