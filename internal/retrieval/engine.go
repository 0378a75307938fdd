// Package retrieval ties chunking, embedding and the vector index into the document lifecycle:
// store, search and delete.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// ErrNoStorage is returned by document lookups when the engine runs without durable storage.
var ErrNoStorage = errors.New("document storage not configured")

// Encoder turns text into embeddings. embedding.CachedEmbedder is the standard implementation.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type cacheStatser interface {
	Stats() embedding.CacheStats
}

// SearchOptions scopes a search. A zero TopK selects the engine default, models.DefaultTopK
// unless configured otherwise.
type SearchOptions struct {
	DocumentID string
	TopK       int
}

// Engine is safe for concurrent use.
type Engine struct {
	chunker *chunker.Chunker
	encoder Encoder
	index   vector.Index
	storage storage.Storage
	topK    int
	maxTopK int
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithStorage persists documents, chunks and embeddings alongside the index.
func WithStorage(s storage.Storage) Option {
	return func(e *Engine) { e.storage = s }
}

// WithChunkSize sets the maximum chunk size in characters.
func WithChunkSize(n int) Option {
	return func(e *Engine) { e.chunker = chunker.New(n) }
}

// WithDefaultTopK sets the number of results returned when a search does not ask for a count.
func WithDefaultTopK(n int) Option {
	return func(e *Engine) { e.topK = n }
}

// WithMaxTopK caps the number of results a search may request.
func WithMaxTopK(n int) Option {
	return func(e *Engine) { e.maxTopK = n }
}

// NewEngine creates an engine over encoder and index.
func NewEngine(encoder Encoder, index vector.Index, opts ...Option) *Engine {
	e := &Engine{
		chunker: chunker.New(chunker.DefaultMaxChunkSize),
		encoder: encoder,
		index:   index,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.LoggerOrNop(e.logger)
	return e
}

// StoreDocument chunks and embeds the input and inserts every chunk in one batch.
// It returns a fresh document id once the chunks are searchable.
func (e *Engine) StoreDocument(ctx context.Context, in *models.DocumentInput) (string, error) {
	if in == nil {
		return "", fmt.Errorf("%w: nil document", models.ErrInvalidArgument)
	}
	texts := e.chunker.Chunk(in.Content)
	if len(texts) == 0 {
		return "", models.ErrEmptyDocument
	}
	vectors, err := e.encoder.EncodeBatch(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("failed to encode chunks: %w", err)
	}

	id := uuid.NewString()
	doc := &models.Document{
		ID:         id,
		FileName:   in.FileName,
		FileType:   in.FileType,
		Metadata:   documentMetadata(id, in),
		ChunkCount: len(texts),
		CreatedAt:  time.Now().UTC(),
	}
	chunks := make([]*models.Chunk, len(texts))
	entries := make([]vector.Entry, len(texts))
	for i, text := range texts {
		meta := chunkMetadata(doc.Metadata, i)
		chunks[i] = &models.Chunk{DocumentID: id, ChunkIndex: i, Content: text, Metadata: meta, Embedding: vectors[i]}
		entries[i] = vector.Entry{
			Key:      vector.Key{DocumentID: id, ChunkIndex: i},
			Vector:   vectors[i],
			Text:     text,
			Metadata: meta,
		}
	}

	if e.storage != nil {
		if err := e.storage.SaveDocument(ctx, doc, chunks); err != nil {
			return "", fmt.Errorf("failed to persist document: %w", err)
		}
	}
	if err := e.index.InsertBatch(ctx, entries); err != nil {
		if e.storage != nil {
			if _, derr := e.storage.DeleteDocument(context.WithoutCancel(ctx), id); derr != nil {
				e.logger.Warn("failed to remove persisted document after index failure",
					zap.String("document_id", id), zap.Error(derr))
			}
		}
		return "", fmt.Errorf("failed to index document: %w", err)
	}

	e.logger.Debug("stored document",
		zap.String("document_id", id),
		zap.String("file_name", in.FileName),
		zap.Int("chunks", len(texts)))
	return id, nil
}

// Search returns the chunks closest to query, nearest first.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]*models.SearchResult, error) {
	q := models.SearchQuery{Query: query, DocumentID: opts.DocumentID, TopK: opts.TopK}
	if q.TopK == 0 && e.topK > 0 {
		q.TopK = e.topK
	}
	if err := q.Validate(e.maxTopK); err != nil {
		return nil, err
	}
	vec, err := e.encoder.Encode(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}
	var filter vector.Filter
	if q.DocumentID != "" {
		filter = vector.Eq(models.MetaDocumentID, q.DocumentID)
	}
	hits, err := e.index.Search(ctx, vec, q.TopK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]*models.SearchResult, len(hits))
	for i, h := range hits {
		distance := h.Distance
		results[i] = &models.SearchResult{Content: h.Text, Metadata: h.Metadata, Distance: &distance}
	}
	return results, nil
}

// Query runs a search request and reports its latency.
func (e *Engine) Query(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	results, err := e.Search(ctx, q.Query, SearchOptions{DocumentID: q.DocumentID, TopK: q.TopK})
	if err != nil {
		return nil, err
	}
	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     q.Query,
	}, nil
}

// DeleteDocument removes every chunk of the document and reports whether any existed.
func (e *Engine) DeleteDocument(ctx context.Context, id string) (bool, error) {
	removed, err := e.index.DeleteWhere(ctx, vector.Eq(models.MetaDocumentID, id))
	if err != nil {
		return false, fmt.Errorf("failed to delete from index: %w", err)
	}
	if e.storage != nil {
		if _, err := e.storage.DeleteDocument(context.WithoutCancel(ctx), id); err != nil {
			e.logger.Warn("failed to delete persisted document", zap.String("document_id", id), zap.Error(err))
		}
	}
	if removed > 0 {
		e.logger.Debug("deleted document", zap.String("document_id", id), zap.Int("chunks", removed))
	}
	return removed > 0, nil
}

// Restore loads every persisted document into the index. An index that already holds the same
// documents with the same chunk counts as storage, for example from a snapshot, is left as is;
// otherwise it is cleared first. It returns the number of documents restored.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.storage == nil {
		return 0, nil
	}
	persisted, err := e.storage.ChunkCounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	if size := e.index.Size(); size > 0 {
		if sameChunkCounts(e.index.ChunkCounts(), persisted) {
			e.logger.Info("index snapshot matches storage", zap.Int("chunks", size))
			return 0, nil
		}
		e.logger.Info("index snapshot is stale, rebuilding from storage", zap.Int("chunks", size))
		if _, err := e.index.DeleteWhere(ctx, func(map[string]interface{}) bool { return true }); err != nil {
			return 0, fmt.Errorf("failed to clear index: %w", err)
		}
	}

	restored := 0
	err = e.storage.ForEachDocument(ctx, func(doc *models.Document, chunks []*models.Chunk) error {
		if len(chunks) == 0 {
			return nil
		}
		meta := restoredMetadata(doc)
		entries := make([]vector.Entry, len(chunks))
		for i, c := range chunks {
			entries[i] = vector.Entry{
				Key:      vector.Key{DocumentID: doc.ID, ChunkIndex: c.ChunkIndex},
				Vector:   c.Embedding,
				Text:     c.Content,
				Metadata: chunkMetadata(meta, c.ChunkIndex),
			}
		}
		if err := e.index.InsertBatch(ctx, entries); err != nil {
			return fmt.Errorf("document %s: %w", doc.ID, err)
		}
		restored++
		return nil
	})
	if err != nil {
		return restored, fmt.Errorf("failed to restore index: %w", err)
	}
	e.logger.Info("restored index from storage", zap.Int("documents", restored), zap.Int("chunks", e.index.Size()))
	return restored, nil
}

// GetDocument returns a stored document.
func (e *Engine) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	if e.storage == nil {
		return nil, ErrNoStorage
	}
	return e.storage.GetDocument(ctx, id)
}

// ListDocuments returns stored documents, newest first.
func (e *Engine) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	if e.storage == nil {
		return nil, ErrNoStorage
	}
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: offset must be >= 0 and limit > 0", models.ErrInvalidArgument)
	}
	return e.storage.ListDocuments(ctx, offset, limit)
}

// FindBySource returns the ids of stored documents ingested from sourcePath.
func (e *Engine) FindBySource(ctx context.Context, sourcePath string) ([]string, error) {
	if e.storage == nil {
		return nil, ErrNoStorage
	}
	return e.storage.FindBySource(ctx, sourcePath)
}

// SaveIndex writes an index snapshot to path.
func (e *Engine) SaveIndex(path string) error {
	return e.index.Save(path)
}

// Close releases the index. Storage and encoder are owned by the caller.
func (e *Engine) Close() error {
	return e.index.Close()
}

func sameChunkCounts(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for id, n := range a {
		if b[id] != n {
			return false
		}
	}
	return true
}
