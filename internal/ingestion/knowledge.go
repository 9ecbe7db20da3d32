package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/estoque-rag/internal/logging"
	"github.com/54b3r/estoque-rag/internal/rag"
)

// KnowledgeCatalog is the fixed set of general-knowledge texts seeded into
// an empty index. The texts stay clear of stock and sales wording so they do
// not outrank derived documents for inventory and sales questions.
var KnowledgeCatalog = []string{
	"Este assistente responde perguntas em português consultando documentos indexados em um banco vetorial.",
	"RAG (Retrieval-Augmented Generation) é uma técnica que combina busca de documentos relevantes com a geração de respostas em linguagem natural.",
	"Embeddings são vetores numéricos que representam o significado de um texto e permitem comparar textos por similaridade.",
	"O Qdrant é um banco de dados vetorial que armazena embeddings e executa buscas por similaridade de cosseno.",
	"O MySQL é um banco de dados relacional usado como fonte oficial dos registros da loja.",
	"A sincronização reconstrói os documentos derivados sempre que o banco relacional muda.",
	"Go é uma linguagem de programação compilada, com tipagem estática e suporte nativo a concorrência.",
}

// KnowledgeID returns the id of the n-th catalog document.
func KnowledgeID(n int) string {
	return fmt.Sprintf("%s_%d", rag.SourceKnowledge, n)
}

// KnowledgeDocuments returns the catalog as documents.
func KnowledgeDocuments() []rag.Document {
	docs := make([]rag.Document, 0, len(KnowledgeCatalog))
	for i, text := range KnowledgeCatalog {
		docs = append(docs, rag.Document{
			ID:       KnowledgeID(i),
			Content:  text,
			Metadata: map[string]any{rag.MetaSource: rag.SourceKnowledge},
		})
	}
	return docs
}

// SeedKnowledge inserts the catalog when the index holds fewer than
// threshold documents, and returns the number inserted. threshold <= 0 uses
// the catalog size. Ids are fixed, so a repeated seed never duplicates.
func SeedKnowledge(ctx context.Context, index Index, threshold int) (int, error) {
	if threshold <= 0 {
		threshold = len(KnowledgeCatalog)
	}
	n, err := index.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingestion: count before seeding: %w", err)
	}
	if n >= threshold {
		logging.FromContext(ctx).Debug("ingestion: knowledge seeding skipped",
			slog.Int("indexed", n), slog.Int("threshold", threshold))
		return 0, nil
	}

	docs := KnowledgeDocuments()
	if err := index.Upsert(ctx, docs); err != nil {
		return 0, fmt.Errorf("ingestion: seed knowledge: %w", err)
	}
	logging.FromContext(ctx).Info("ingestion: knowledge catalog seeded", slog.Int("documents", len(docs)))
	return len(docs), nil
}
