// Package vector provides in-process vector indexes with metadata-filtered nearest-neighbor search.
package vector

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Index stores embedded chunks and answers top-k cosine-distance queries.
// Implementations are safe for concurrent use. A batch insert or a delete is observed
// by concurrent searches either completely or not at all.
type Index interface {
	// InsertBatch adds all entries or none. Every vector must match the index dimension;
	// an index created without one adopts the dimension of the first batch.
	InsertBatch(ctx context.Context, entries []Entry) error
	// Search returns up to k entries satisfying filter (nil matches everything), ordered by
	// ascending cosine distance and then by insertion order.
	Search(ctx context.Context, query []float32, k int, filter Filter) ([]Hit, error)
	// DeleteWhere removes every entry whose metadata satisfies filter and returns how many were removed.
	DeleteWhere(ctx context.Context, filter Filter) (int, error)
	Size() int
	// ChunkCounts maps each document id to its number of live entries.
	ChunkCounts() map[string]int
	Dimensions() int
	Type() string
	Save(path string) error
	Load(path string) error
	Close() error
}

// Key identifies a chunk within the index.
type Key struct {
	DocumentID string
	ChunkIndex int
}

// Entry is one embedded chunk.
type Entry struct {
	Key      Key
	Vector   []float32
	Text     string
	Metadata map[string]interface{}
}

// Hit is a search result.
type Hit struct {
	Key      Key
	Text     string
	Metadata map[string]interface{}
	Distance float64
}

// Filter reports whether an entry's metadata qualifies.
type Filter func(metadata map[string]interface{}) bool

// Eq matches entries whose metadata[key] equals value.
func Eq(key string, value interface{}) Filter {
	return func(metadata map[string]interface{}) bool {
		v, ok := metadata[key]
		return ok && reflect.DeepEqual(v, value)
	}
}

// record is an entry as held by an index: private copies plus the unit-length vector
// used for distance computations.
type record struct {
	key      Key
	text     string
	metadata map[string]interface{}
	vector   []float32
	unit     []float32
	seq      uint64
}

func newRecord(e Entry, seq uint64) *record {
	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	unit := make([]float32, len(vec))
	copy(unit, vec)
	utils.NormalizeL2(unit)
	return &record{
		key:      e.Key,
		text:     e.Text,
		metadata: copyMetadata(e.Metadata),
		vector:   vec,
		unit:     unit,
		seq:      seq,
	}
}

func (r *record) hit(distance float64) Hit {
	return Hit{Key: r.key, Text: r.text, Metadata: copyMetadata(r.metadata), Distance: distance}
}

func (r *record) entry() Entry {
	vec := make([]float32, len(r.vector))
	copy(vec, r.vector)
	return Entry{Key: r.key, Vector: vec, Text: r.text, Metadata: copyMetadata(r.metadata)}
}

func countByDocument(records []*record) map[string]int {
	out := make(map[string]int)
	for _, r := range records {
		out[r.key.DocumentID]++
	}
	return out
}

func copyMetadata(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// checkBatch validates entries against dims and returns the dimension the index will have
// after the insert.
func checkBatch(dims int, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return dims, nil
	}
	if dims == 0 {
		dims = len(entries[0].Vector)
		if dims == 0 {
			return 0, fmt.Errorf("%w: empty vector", models.ErrInvalidArgument)
		}
	}
	for i, e := range entries {
		if len(e.Vector) != dims {
			return 0, fmt.Errorf("%w: entry %d has %d dimensions, index has %d", models.ErrDimensionMismatch, i, len(e.Vector), dims)
		}
		if !utils.IsFinite(e.Vector) {
			return 0, fmt.Errorf("%w: entry %d contains NaN or Inf", models.ErrInvalidArgument, i)
		}
	}
	return dims, nil
}

// checkQuery validates search arguments. ready is false when the index has no dimension
// yet, in which case the result is empty.
func checkQuery(dims int, query []float32, k int) (ready bool, err error) {
	if k <= 0 {
		return false, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidArgument, k)
	}
	if dims == 0 {
		return false, nil
	}
	if len(query) != dims {
		return false, fmt.Errorf("%w: query has %d dimensions, index has %d", models.ErrDimensionMismatch, len(query), dims)
	}
	return true, nil
}

func unitQuery(query []float32) []float32 {
	q := make([]float32, len(query))
	copy(q, query)
	utils.NormalizeL2(q)
	return q
}
