package embedding

import (
	"context"
	"math"

	"github.com/hyperjump/kotae/pkg/utils"
)

// DefaultDimensions is the output size used when an embedder is configured without one.
const DefaultDimensions = 384

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"do": {}, "does": {}, "for": {}, "from": {}, "has": {}, "have": {}, "he": {}, "her": {},
	"his": {}, "how": {}, "i": {}, "if": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {},
	"me": {}, "my": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "our": {}, "she": {},
	"so": {}, "that": {}, "the": {}, "their": {}, "them": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "to": {}, "was": {}, "we": {}, "were": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "who": {}, "why": {}, "will": {}, "with": {}, "you": {}, "your": {},
}

// HashingEmbedder is a dependency-free lexical embedder. Content words are hashed into a fixed
// number of signed buckets with sublinear term frequency, and the result is L2-normalized.
// Texts sharing content words land close together under cosine distance.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns a HashingEmbedder producing vectors of the given size.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed hashes the content words of text into a unit vector.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := Words(text)
	terms := make(map[string]int, len(words))
	for _, w := range words {
		if _, stop := stopwords[w]; !stop {
			terms[w]++
		}
	}
	if len(terms) == 0 {
		for _, w := range words {
			terms[w]++
		}
	}
	if len(terms) == 0 {
		terms[text]++
	}

	vec := make([]float32, e.dimensions)
	for term, tf := range terms {
		h := hashWord(term)
		idx := int(h % uint32(e.dimensions))
		sign := float32(1)
		if h&(1<<31) != 0 {
			sign = -1
		}
		vec[idx] += sign * float32(1+math.Log(float64(tf)))
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashingEmbedder) Close() error {
	return nil
}
