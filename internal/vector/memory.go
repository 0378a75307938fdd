package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// MemoryIndex is an exact brute-force index. Suitable for small corpora and as the reference
// for approximate indexes.
type MemoryIndex struct {
	mu         sync.RWMutex
	dimensions int
	records    []*record
	nextSeq    uint64
}

// NewMemoryIndex creates an exact index. dimensions may be 0 to adopt it from the first insert.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("%w: dimensions must not be negative", models.ErrInvalidArgument)
	}
	return &MemoryIndex{dimensions: dimensions}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// InsertBatch appends entries atomically.
func (m *MemoryIndex) InsertBatch(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dims, err := checkBatch(m.dimensions, entries)
	if err != nil {
		return err
	}
	m.dimensions = dims
	for _, e := range entries {
		m.records = append(m.records, newRecord(e, m.nextSeq))
		m.nextSeq++
	}
	return nil
}

// Search scans every entry.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ready, err := checkQuery(m.dimensions, query, k)
	if err != nil {
		return nil, err
	}
	if !ready {
		return []Hit{}, nil
	}
	return exactSearch(m.records, unitQuery(query), k, filter), nil
}

// DeleteWhere removes matching entries.
func (m *MemoryIndex) DeleteWhere(ctx context.Context, filter Filter) (int, error) {
	if filter == nil {
		return 0, fmt.Errorf("%w: delete requires a filter", models.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	removed := 0
	for _, r := range m.records {
		if filter(r.metadata) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(m.records); i++ {
		m.records[i] = nil
	}
	m.records = kept
	return removed, nil
}

// Size returns the number of entries.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// ChunkCounts returns the number of entries per document.
func (m *MemoryIndex) ChunkCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return countByDocument(m.records)
}

// Dimensions returns the vector dimension, or 0 if not yet established.
func (m *MemoryIndex) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// Save writes a snapshot of the index to path.
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return writeSnapshot(path, m.dimensions, m.records)
}

// Load replaces the contents with the snapshot at path. A missing file leaves the index unchanged.
func (m *MemoryIndex) Load(path string) error {
	snap, err := readSnapshot(path)
	if err != nil || snap == nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimensions = snap.Dimensions
	m.records = make([]*record, 0, len(snap.Entries))
	m.nextSeq = 0
	for _, e := range snap.Entries {
		m.records = append(m.records, newRecord(e.entry(), m.nextSeq))
		m.nextSeq++
	}
	return nil
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
