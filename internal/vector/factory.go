package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses exact brute-force search. Good for small corpora (<10k chunks).
	IndexTypeMemory IndexType = "memory"
	// IndexTypeHNSW uses an approximate HNSW graph. Good for large corpora.
	IndexTypeHNSW IndexType = "hnsw"
)

// NewIndex creates a vector index of the specified type. An empty type selects HNSW.
// cfg is ignored by the memory index.
func NewIndex(indexType string, dimensions int, cfg HNSWConfig) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeHNSW, "":
		return NewHNSWIndex(dimensions, cfg)
	case IndexTypeMemory:
		return NewMemoryIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, hnsw)", indexType)
	}
}
