package rag

import (
	"context"
	"fmt"
	"time"
)

// DefaultTopK is the number of documents returned when callers pass k <= 0.
const DefaultTopK = 3

// DefaultRetrievalTimeout is the retrieval bound used by the CLI wiring.
const DefaultRetrievalTimeout = 10 * time.Second

// Searcher is the part of Index the retriever depends on.
type Searcher interface {
	Search(ctx context.Context, queryText string, k int) ([]Document, error)
}

// DefaultRetriever implements the Retriever interface on top of an Index.
// Every failure, including the configured timeout expiring, is reported as
// ErrRetrievalUnavailable.
type DefaultRetriever struct {
	// index embeds the query and performs the similarity search.
	index Searcher

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int

	// timeout bounds each retrieval; zero disables the bound.
	timeout time.Duration
}

// NewRetriever constructs a DefaultRetriever.
// defaultTopK sets the fallback result count when Retrieve is called with topK=0.
func NewRetriever(index Searcher, defaultTopK int, timeout time.Duration) (*DefaultRetriever, error) {
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &DefaultRetriever{
		index:       index,
		defaultTopK: defaultTopK,
		timeout:     timeout,
	}, nil
}

// Retrieve embeds the query and returns the top-k most relevant documents,
// ranked from 1. An empty index yields an empty, non-nil slice.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrievedDocument, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	docs, err := r.index.Search(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	SortByScore(docs)
	if len(docs) > topK {
		docs = docs[:topK]
	}

	out := make([]RetrievedDocument, 0, len(docs))
	for i, d := range docs {
		out = append(out, RetrievedDocument{Document: d, Rank: i + 1})
	}
	return out, nil
}
