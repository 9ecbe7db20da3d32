// Package rag defines the retrieval side of the engine: the indexed document
// model, the vector storage and embedding interfaces, the text-level Index
// that combines them, and the Retriever used to answer questions.
// Concrete backends (Qdrant, in-memory) satisfy VectorStore so the service
// layer never depends on a specific store.
package rag

import (
	"context"
	"errors"
)

// Metadata source values. Derived documents (inventory, sales) are owned by
// the index synchronizer; knowledge and custom documents are never touched by it.
const (
	// SourceInventory marks documents projected from inventory rows.
	SourceInventory = "estoque"
	// SourceSales marks documents projected from sale rows.
	SourceSales = "vendas"
	// SourceKnowledge marks the seeded general-knowledge catalog.
	SourceKnowledge = "knowledge"
	// SourceCustom marks documents added by operators through the API.
	SourceCustom = "custom"
)

// Metadata keys shared by the projector, the stores and the synthesizer.
const (
	MetaSource       = "source"
	MetaRecordID     = "record_id"
	MetaVariant      = "variant"
	MetaProductName  = "product_name"
	MetaQuantity     = "quantity"
	MetaUnit         = "unit"
	MetaUnitPrice    = "unit_price"
	MetaCategory     = "category"
	MetaCustomerName = "customer_name"
	MetaTotalValue   = "total_value"
	MetaSaleDate     = "sale_date"
)

// ErrRetrievalUnavailable is returned when the embedding model or the vector
// backend cannot serve a request, including timeouts.
var ErrRetrievalUnavailable = errors.New("rag: retrieval unavailable")

// Document represents a unit of indexed knowledge.
type Document struct {
	// ID is the unique identifier for this document. Derived documents use
	// the deterministic "{source}_{recordId}_{variant}" form.
	ID string

	// Content is the raw text that is embedded and shown to readers.
	Content string

	// Metadata holds typed structured fields. The "source" key is always set
	// on stored documents.
	Metadata map[string]any

	// Score is the similarity score assigned during search.
	// Zero value means the score was not computed.
	Score float32
}

// Source returns the document's metadata source, or "" when absent.
func (d Document) Source() string {
	return d.MetaString(MetaSource)
}

// RetrievedDocument is a Document returned by the Retriever together with its
// 1-based position in the result list.
type RetrievedDocument struct {
	Document

	// Rank is the position in the top-k result, starting at 1.
	Rank int
}

// VectorStore is the interface for persisting and searching document embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of documents with their pre-computed embeddings.
	// The embeddings slice must be parallel to docs: embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search returns up to topK documents ordered by descending similarity
	// to the query embedding.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Delete removes documents by their IDs. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// All returns every stored document without its embedding.
	All(ctx context.Context) ([]Document, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the service to fetch the
// documents relevant to a question.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns at most topK documents ordered by descending similarity.
	Retrieve(ctx context.Context, query string, topK int) ([]RetrievedDocument, error)
}
