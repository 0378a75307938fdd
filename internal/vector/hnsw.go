package vector

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/coder/hnsw"

	"github.com/hyperjump/kotae/internal/models"
)

const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 100
)

// HNSWConfig holds graph construction and query parameters.
type HNSWConfig struct {
	M              int   // neighbors per node
	EfConstruction int   // candidate list size while inserting
	EfSearch       int   // minimum candidate list size while searching
	Seed           int64 // level generator seed
}

// DefaultHNSWConfig returns the default parameters.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{M: DefaultM, EfConstruction: DefaultEfConstruction, EfSearch: DefaultEfSearch, Seed: 42}
}

func (c HNSWConfig) withDefaults() HNSWConfig {
	d := DefaultHNSWConfig()
	if c.M < 2 {
		c.M = d.M
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = d.EfConstruction
	}
	if c.EfSearch <= 0 {
		c.EfSearch = d.EfSearch
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	return c
}

// HNSWIndex is an approximate index backed by a coder/hnsw graph keyed by insertion sequence.
// Text and metadata live beside the graph; results are rescored so ties break by insertion order.
type HNSWIndex struct {
	mu         sync.RWMutex
	cfg        HNSWConfig
	dimensions int
	graph      *hnsw.Graph[uint64]
	records    []*record // insertion order
	bySeq      map[uint64]*record
	nextSeq    uint64
}

// NewHNSWIndex creates an HNSW index. dimensions may be 0 to adopt it from the first insert.
func NewHNSWIndex(dimensions int, cfg HNSWConfig) (*HNSWIndex, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("%w: dimensions must not be negative", models.ErrInvalidArgument)
	}
	h := &HNSWIndex{cfg: cfg.withDefaults(), dimensions: dimensions}
	h.reset()
	return h, nil
}

// Type returns the index type identifier.
func (h *HNSWIndex) Type() string {
	return string(IndexTypeHNSW)
}

// Config returns the effective parameters.
func (h *HNSWIndex) Config() HNSWConfig {
	return h.cfg
}

// InsertBatch validates the whole batch and then adds every entry to the graph.
func (h *HNSWIndex) InsertBatch(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	dims, err := checkBatch(h.dimensions, entries)
	if err != nil {
		return err
	}
	h.dimensions = dims
	recs := make([]*record, len(entries))
	for i, e := range entries {
		recs[i] = newRecord(e, h.nextSeq)
		h.nextSeq++
	}
	h.add(recs)
	return nil
}

// Search walks the graph and falls back to an exact scan when the filter is selective or the
// walk cannot produce enough qualifying hits.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	ready, err := checkQuery(h.dimensions, query, k)
	if err != nil {
		return nil, err
	}
	live := len(h.records)
	if !ready || live == 0 {
		return []Hit{}, nil
	}
	q := unitQuery(query)

	qualifying := live
	if filter != nil {
		qualifying = 0
		for _, r := range h.records {
			if filter(r.metadata) {
				qualifying++
			}
		}
		if qualifying == 0 {
			return []Hit{}, nil
		}
		if qualifying <= h.cfg.EfSearch || qualifying*10 < live {
			return exactSearch(h.records, q, k, filter), nil
		}
	}

	hits := h.graphSearch(q, k, qualifying, filter)
	if len(hits) < min(k, qualifying) {
		return exactSearch(h.records, q, k, filter), nil
	}
	return hits, nil
}

// DeleteWhere removes matching entries from the graph.
func (h *HNSWIndex) DeleteWhere(ctx context.Context, filter Filter) (int, error) {
	if filter == nil {
		return 0, fmt.Errorf("%w: delete requires a filter", models.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var kept, gone []*record
	for _, r := range h.records {
		if filter(r.metadata) {
			gone = append(gone, r)
		} else {
			kept = append(kept, r)
		}
	}
	removed := len(gone)
	if removed == 0 {
		return 0, nil
	}
	if len(kept) == 0 {
		h.reset()
		return removed, nil
	}
	for _, r := range gone {
		h.graph.Delete(r.seq)
		delete(h.bySeq, r.seq)
	}
	h.records = kept
	return removed, nil
}

// Size returns the number of live entries.
func (h *HNSWIndex) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// ChunkCounts returns the number of entries per document.
func (h *HNSWIndex) ChunkCounts() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return countByDocument(h.records)
}

// Dimensions returns the vector dimension, or 0 if not yet established.
func (h *HNSWIndex) Dimensions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dimensions
}

// Save writes live entries to path; the graph is rebuilt on Load.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return writeSnapshot(path, h.dimensions, h.records)
}

// Load replaces the contents with the snapshot at path. A missing file leaves the index unchanged.
func (h *HNSWIndex) Load(path string) error {
	snap, err := readSnapshot(path)
	if err != nil || snap == nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reset()
	h.dimensions = snap.Dimensions
	h.nextSeq = 0
	recs := make([]*record, len(snap.Entries))
	for i, e := range snap.Entries {
		recs[i] = newRecord(e.entry(), h.nextSeq)
		h.nextSeq++
	}
	h.add(recs)
	return nil
}

// Close releases the graph.
func (h *HNSWIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reset()
	return nil
}

func (h *HNSWIndex) reset() {
	g := hnsw.NewGraph[uint64]()
	g.M = h.cfg.M
	g.EfSearch = h.cfg.EfSearch
	g.Distance = hnsw.CosineDistance
	g.Rng = rand.New(rand.NewSource(h.cfg.Seed))
	h.graph = g
	h.records = nil
	h.bySeq = make(map[uint64]*record)
}

// add links recs into the graph. Callers hold the write lock.
func (h *HNSWIndex) add(recs []*record) {
	if len(recs) == 0 {
		return
	}
	nodes := make([]hnsw.Node[uint64], len(recs))
	for i, r := range recs {
		nodes[i] = hnsw.MakeNode(r.seq, r.unit)
		h.bySeq[r.seq] = r
	}
	h.graph.EfSearch = h.cfg.EfConstruction
	h.graph.Add(nodes...)
	h.graph.EfSearch = h.cfg.EfSearch
	h.records = append(h.records, recs...)
}

// graphSearch widens the candidate list in proportion to how many entries the filter rejects.
func (h *HNSWIndex) graphSearch(q []float32, k, qualifying int, filter Filter) []Hit {
	live := len(h.records)
	ef := max(h.cfg.EfSearch, k)
	if qualifying < live {
		ef = ef * live / qualifying
	}
	ef = min(ef, live)
	found := h.graph.Search(q, ef)
	hits := make([]scored, 0, len(found))
	for _, n := range found {
		r, ok := h.bySeq[n.Key]
		if !ok || (filter != nil && !filter(r.metadata)) {
			continue
		}
		hits = append(hits, scored{rec: r, dist: CosineDistance(q, r.unit)})
	}
	return topK(hits, k)
}
