package models

// SearchResult is a single ranked passage returned by a search.
// Distance is the cosine distance to the query (smaller is more similar).
type SearchResult struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
	Distance *float64               `json:"distance"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
}
