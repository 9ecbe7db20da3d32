package embedder

import (
	"context"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/54b3r/estoque-rag/internal/textnorm"
)

// defaultHashDimensions is the vector length of HashEmbedder when unset.
const defaultHashDimensions = 384

// trigramWeight scales character trigram features relative to whole words.
const trigramWeight = 0.5

// HashEmbedder implements rag.Embedder without any model server. Each text is
// folded and split into words. Stopwords are dropped, then every remaining
// word plus its character trigrams is hashed into a fixed-size signed feature
// vector, which is L2-normalised. Output is a pure function of the input text.
type HashEmbedder struct {
	// dims is the output vector length.
	dims int

	// stopwords are folded function words that carry no retrieval signal.
	stopwords map[string]struct{}
}

// NewHashEmbedder returns a HashEmbedder producing vectors of length dims.
// dims <= 0 selects the default of 384.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return &HashEmbedder{dims: dims, stopwords: defaultStopwords()}
}

// defaultStopwords returns the folded Portuguese articles, prepositions and
// question words ignored by the embedder. Intent keywords such as "quanto"
// and "tem" are deliberately absent.
func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "o", "as", "os", "e", "um", "uma", "uns", "umas",
		"de", "da", "do", "das", "dos", "em", "no", "na", "nos", "nas",
		"ao", "aos", "para", "por", "com", "que", "se", "me",
		"foi", "foram", "ser", "sao", "qual", "quais", "mostre", "liste",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Dimensions returns the output vector length.
func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

// Embed converts a batch of texts into their corresponding embeddings.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("hash embedder: %w", err)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	v := make([]float64, e.dims)
	for _, word := range e.contentWords(textnorm.Tokens(text)) {
		e.add(v, "w:"+word, 1)
		padded := []rune("^" + word + "$")
		for i := 0; i+3 <= len(padded); i++ {
			e.add(v, "t:"+string(padded[i:i+3]), trigramWeight)
		}
	}

	var sum float64
	for _, x := range v {
		sum += x * x
	}
	out := make([]float32, e.dims)
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

// contentWords drops stopwords. A text made only of stopwords keeps them all,
// so it still embeds to a non-zero vector.
func (e *HashEmbedder) contentWords(words []string) []string {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := e.stopwords[w]; !stop {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return words
	}
	return kept
}

// add hashes feature into a bucket; one hash bit picks the sign so that
// collisions tend to cancel rather than accumulate.
func (e *HashEmbedder) add(v []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	bucket := h % uint64(e.dims)
	if h>>63 == 1 {
		weight = -weight
	}
	v[bucket] += weight
}
