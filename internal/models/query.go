package models

import (
	"fmt"
	"strings"
)

// DefaultTopK is the number of passages returned when a query does not set one.
const DefaultTopK = 5

// SearchQuery is a search request, optionally scoped to one document.
type SearchQuery struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
}

// Validate checks the query and applies defaults. A zero TopK becomes DefaultTopK,
// a TopK above maxTopK (when maxTopK > 0) is capped.
func (q *SearchQuery) Validate(maxTopK int) error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidArgument)
	}
	if q.TopK < 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, q.TopK)
	}
	if q.TopK == 0 {
		q.TopK = DefaultTopK
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	return nil
}
