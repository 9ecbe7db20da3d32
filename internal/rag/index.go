package rag

import (
	"context"
	"fmt"
)

// embedBatchSize caps the number of texts sent to the embedder per call.
const embedBatchSize = 64

// Index is the text-level view of the vector index: callers hand it
// documents and query strings, and it embeds them before talking to the
// VectorStore.
type Index struct {
	// embedder converts document and query text to vectors.
	embedder Embedder

	// store persists the vectors.
	store VectorStore
}

// NewIndex combines an Embedder and a VectorStore.
func NewIndex(embedder Embedder, store VectorStore) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	return &Index{embedder: embedder, store: store}, nil
}

// Upsert embeds every document and then writes the whole batch. All
// embeddings are computed before the first write, so an embedding failure
// leaves the store unchanged.
func (x *Index) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	embeddings := make([][]float32, 0, len(docs))
	for start := 0; start < len(docs); start += embedBatchSize {
		end := min(start+embedBatchSize, len(docs))
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Content)
		}
		vecs, err := x.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("rag: embedding documents %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("rag: embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		embeddings = append(embeddings, vecs...)
	}

	if err := x.store.Upsert(ctx, docs, embeddings); err != nil {
		return fmt.Errorf("rag: upsert: %w", err)
	}
	return nil
}

// DeleteByIDs removes the given document ids.
func (x *Index) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("rag: delete: %w", err)
	}
	return nil
}

// All returns every indexed document.
func (x *Index) All(ctx context.Context) ([]Document, error) {
	docs, err := x.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: list documents: %w", err)
	}
	return docs, nil
}

// Search embeds queryText and returns up to k documents, most similar first.
func (x *Index) Search(ctx context.Context, queryText string, k int) ([]Document, error) {
	embeddings, err := x.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	docs, err := x.store.Search(ctx, embeddings[0], k)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return docs, nil
}

// Count returns the number of indexed documents.
func (x *Index) Count(ctx context.Context) (int, error) {
	n, err := x.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("rag: count: %w", err)
	}
	return n, nil
}

// Close releases the underlying store.
func (x *Index) Close() error {
	return x.store.Close()
}
