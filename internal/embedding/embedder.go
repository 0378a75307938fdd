// Package embedding provides text embedding capabilities and a bounded embedding cache.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Embedder produces vector embeddings for text. It is the injected capability the retrieval
// core calls; implementations declare a fixed output dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// embedEach calls embed for each text in order.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// checkVector rejects empty or non-finite vectors and, when dims is positive, vectors of the wrong length.
func checkVector(v []float32, dims int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", models.ErrEmbeddingFailure)
	}
	if dims > 0 && len(v) != dims {
		return fmt.Errorf("%w: got %d dimensions, embedder declares %d", models.ErrEmbeddingFailure, len(v), dims)
	}
	if !utils.IsFinite(v) {
		return fmt.Errorf("%w: vector contains NaN or Inf", models.ErrEmbeddingFailure)
	}
	return nil
}
