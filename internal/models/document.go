// Package models defines core data structures for documents, chunks, and search results.
package models

import "time"

// Reserved metadata keys written by the retrieval engine on every chunk.
const (
	MetaDocumentID = "document_id"
	MetaFileType   = "file_type"
	MetaFileName   = "file_name"
	MetaChunkIndex = "chunk_index"
)

// Document is a stored source document. It is immutable once stored and
// referenced only by ID afterwards.
type Document struct {
	ID         string                 `json:"id" db:"id"`
	FileName   string                 `json:"file_name" db:"file_name"`
	FileType   string                 `json:"file_type" db:"file_type"`
	Metadata   map[string]interface{} `json:"metadata" db:"metadata"`
	ChunkCount int                    `json:"chunk_count" db:"chunk_count"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}

// Chunk is a bounded-size unit of a document's text, the atomic retrieval granule.
type Chunk struct {
	DocumentID string                 `json:"document_id" db:"document_id"`
	ChunkIndex int                    `json:"chunk_index" db:"chunk_index"`
	Content    string                 `json:"content" db:"content"`
	Metadata   map[string]interface{} `json:"metadata" db:"-"`
	Embedding  []float32              `json:"-" db:"embedding"`
}

// DocumentInput is the input for storing a document: already-extracted text plus metadata.
type DocumentInput struct {
	Content  string                 `json:"content"`
	FileName string                 `json:"file_name,omitempty"`
	FileType string                 `json:"file_type,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
