package models

import (
	"errors"
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *SearchQuery
		maxTopK int
		wantK   int
		wantErr error
	}{
		{"empty query", &SearchQuery{Query: ""}, 100, 0, ErrInvalidArgument},
		{"blank query", &SearchQuery{Query: "  \n"}, 100, 0, ErrInvalidArgument},
		{"negative top_k", &SearchQuery{Query: "x", TopK: -1}, 100, 0, ErrInvalidArgument},
		{"sets default top_k", &SearchQuery{Query: "x"}, 100, DefaultTopK, nil},
		{"keeps top_k", &SearchQuery{Query: "x", TopK: 3}, 100, 3, nil},
		{"caps top_k", &SearchQuery{Query: "x", TopK: 500}, 100, 100, nil},
		{"no cap when max unset", &SearchQuery{Query: "x", TopK: 500}, 0, 500, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(tt.maxTopK)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
			if tt.query.TopK != tt.wantK {
				t.Errorf("TopK = %d, want %d", tt.query.TopK, tt.wantK)
			}
		})
	}
}
