package retrieval

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/embedding"
)

// Stats describes the engine's current state.
type Stats struct {
	IndexType       string                `json:"index_type"`
	IndexedChunks   int                   `json:"indexed_chunks"`
	Dimensions      int                   `json:"dimensions"`
	StoredDocuments int64                 `json:"stored_documents"`
	StoredChunks    int64                 `json:"stored_chunks"`
	Cache           *embedding.CacheStats `json:"cache,omitempty"`
}

// Stats returns index, cache and storage counters.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{
		IndexType:     e.index.Type(),
		IndexedChunks: e.index.Size(),
		Dimensions:    e.index.Dimensions(),
	}
	if c, ok := e.encoder.(cacheStatser); ok {
		cs := c.Stats()
		s.Cache = &cs
	}
	if e.storage != nil {
		var err error
		if s.StoredDocuments, err = e.storage.CountDocuments(ctx); err != nil {
			return nil, fmt.Errorf("failed to count documents: %w", err)
		}
		if s.StoredChunks, err = e.storage.CountChunks(ctx); err != nil {
			return nil, fmt.Errorf("failed to count chunks: %w", err)
		}
	}
	return s, nil
}
