// Package answer turns retrieved documents and a classified question into a
// Portuguese reply. Synthesis is a pure function: it never fails and always
// returns an Answer with non-empty text.
package answer

import (
	"github.com/54b3r/estoque-rag/internal/classify"
	"github.com/54b3r/estoque-rag/internal/rag"
)

// Fixed replies.
const (
	// NoInformationText is returned when retrieval found nothing.
	NoInformationText = "Não encontrei informações relevantes para responder sua pergunta. " +
		"Tente adicionar mais documentos ao sistema ou reformule sua pergunta."

	// UnavailableText is returned when the question could not be processed
	// because the index or embedding backend failed.
	UnavailableText = "Desculpe, não foi possível processar sua pergunta agora. " +
		"Tente novamente em alguns instantes."
)

// Listing limits.
const (
	maxListed           = 5
	maxKnowledge        = 3
	maxCompositeStock   = 3
	maxCompositeSales   = 3
	maxCompositeGeneral = 2
)

// Answer is a synthesized reply and the documents it was built from.
type Answer struct {
	// Text is the reply shown to the user. Never empty.
	Text string

	// Sources are the retrieved documents in rank order.
	Sources []rag.RetrievedDocument

	// Intent is the classified intent of the question.
	Intent classify.Intent

	// Entity is the product named in the question, if any.
	Entity string

	// Degraded is true when the reply is a fallback for a backend failure.
	Degraded bool
}

// Unavailable returns the degraded reply used when retrieval fails.
func Unavailable(res classify.Result) Answer {
	return Answer{
		Text:     UnavailableText,
		Sources:  []rag.RetrievedDocument{},
		Intent:   res.Intent,
		Entity:   res.Entity,
		Degraded: true,
	}
}
