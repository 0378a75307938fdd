// Package storage persists documents, their chunks and chunk embeddings.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage defines durable document persistence. A document and its chunks are written and
// removed together.
type Storage interface {
	// SaveDocument writes the document and all its chunks in one transaction.
	SaveDocument(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error
	// GetDocument returns models.ErrNotFound when id is unknown.
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	// GetChunks returns a document's chunks ordered by chunk index, embeddings included.
	GetChunks(ctx context.Context, docID string) ([]*models.Chunk, error)
	// DeleteDocument reports whether a document was removed.
	DeleteDocument(ctx context.Context, id string) (bool, error)
	// ForEachDocument calls fn for every document in creation order, stopping at the first error.
	ForEachDocument(ctx context.Context, fn func(doc *models.Document, chunks []*models.Chunk) error) error
	// FindBySource returns the ids of documents ingested from sourcePath.
	FindBySource(ctx context.Context, sourcePath string) ([]string, error)

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
	// ChunkCounts maps each document id to its number of stored chunks.
	ChunkCounts(ctx context.Context) (map[string]int, error)

	Close() error
}
