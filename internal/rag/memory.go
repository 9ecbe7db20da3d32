package rag

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
)

// memoryEntry is a stored document and its normalised embedding.
type memoryEntry struct {
	doc    Document
	vector []float32
}

// MemoryStore implements VectorStore in process memory with brute-force
// cosine similarity. It is meant for local runs and tests; contents are lost
// when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	// dims is fixed by the first upsert; later vectors must match it.
	dims int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Upsert stores or replaces docs. The batch is validated before any write so
// a bad vector leaves the store unchanged.
func (s *MemoryStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("memory store: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dims := s.dims
	for i, vec := range embeddings {
		if docs[i].ID == "" {
			return fmt.Errorf("memory store: document %d has an empty id", i)
		}
		if len(vec) == 0 {
			return fmt.Errorf("memory store: empty embedding for %q", docs[i].ID)
		}
		if dims == 0 {
			dims = len(vec)
		}
		if len(vec) != dims {
			return fmt.Errorf("memory store: embedding for %q has %d dims, want %d", docs[i].ID, len(vec), dims)
		}
	}

	s.dims = dims
	for i, doc := range docs {
		stored := cloneDocument(doc)
		stored.Metadata = normalizeMetadata(doc.Metadata)
		stored.Score = 0
		s.entries[doc.ID] = memoryEntry{doc: stored, vector: unit(embeddings[i])}
	}
	return nil
}

// Search scores every entry against the query and returns the topK best,
// highest score first. Equal scores are ordered by id.
func (s *MemoryStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return []Document{}, nil
	}
	if len(queryEmbedding) != s.dims {
		return nil, fmt.Errorf("memory store: query has %d dims, want %d", len(queryEmbedding), s.dims)
	}

	q := unit(queryEmbedding)
	scored := make([]Document, 0, len(s.entries))
	for _, e := range s.entries {
		doc := cloneDocument(e.doc)
		doc.Score = dot(q, e.vector)
		scored = append(scored, doc)
	}
	SortByScore(scored)

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Delete removes the given ids.
func (s *MemoryStore) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

// All returns every stored document ordered by id.
func (s *MemoryStore) All(ctx context.Context) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]Document, 0, len(s.entries))
	for _, e := range s.entries {
		docs = append(docs, cloneDocument(e.doc))
	}
	slices.SortFunc(docs, func(a, b Document) int { return cmp.Compare(a.ID, b.ID) })
	return docs, nil
}

// Count returns the number of stored documents.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// SortByScore orders docs by descending score, breaking ties by ascending id
// so that every result list has a total order.
func SortByScore(docs []Document) {
	slices.SortStableFunc(docs, func(a, b Document) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// unit returns an L2-normalised copy of v. A zero vector is returned as-is.
func unit(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
