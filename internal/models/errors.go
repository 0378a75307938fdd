package models

import "errors"

// Error kinds reported by the retrieval core. Callers distinguish them with errors.Is.
var (
	// ErrEmptyDocument indicates chunking produced no chunks.
	ErrEmptyDocument = errors.New("empty document")

	// ErrEmbeddingFailure indicates the embedding capability failed or returned malformed output.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrDimensionMismatch indicates a vector's dimensionality differs from the index's.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidArgument indicates a malformed request, e.g. a non-positive top_k.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates a stored document lookup found nothing.
	// Deleting a missing document is not an error.
	ErrNotFound = errors.New("not found")
)
