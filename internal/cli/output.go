// Package cli formats kotae command output.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a -output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

const previewLen = 200

// WriteSearchResults writes search results to w in the given format.
// Unknown formats are written as text.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for i, r := range response.Results {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, distance(r), metaString(r.Metadata, models.MetaFileName),
				utils.Truncate(utils.OneLine(r.Content), 100))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", len(response.Results), response.QueryTime)
	for i, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Distance: %s\n", i+1, distance(result))
		if id := metaString(result.Metadata, models.MetaDocumentID); id != "" {
			fmt.Fprintf(w, "Document: %s (chunk %v)\n", id, result.Metadata[models.MetaChunkIndex])
		}
		if name := metaString(result.Metadata, models.MetaFileName); name != "" {
			fmt.Fprintf(w, "File: %s\n", name)
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(result.Content, previewLen))
	}
}

func distance(r *models.SearchResult) string {
	if r.Distance == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *r.Distance)
}

func metaString(meta map[string]interface{}, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

// StatusReport is the body of GET /api/v1/status.
type StatusReport struct {
	Index            *retrieval.Stats       `json:"index"`
	Config           map[string]interface{} `json:"config,omitempty"`
	DiskUsageBytes   *int64                 `json:"disk_usage_bytes,omitempty"`
	WatchDirectories []string               `json:"watch_directories,omitempty"`
}

// WriteStatus writes a status report as aligned key/value text or JSON.
func WriteStatus(w io.Writer, status *StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	if s := status.Index; s != nil {
		fmt.Fprintf(w, "documents:          %d   # stored documents\n", s.StoredDocuments)
		fmt.Fprintf(w, "chunks:             %d   # stored text chunks\n", s.StoredChunks)
		fmt.Fprintf(w, "indexed_chunks:     %d   # vectors in the %s index\n", s.IndexedChunks, s.IndexType)
		fmt.Fprintf(w, "dimensions:         %d\n", s.Dimensions)
		if c := s.Cache; c != nil {
			fmt.Fprintf(w, "embedding_cache:    %d/%d entries, %d hits, %d misses, %d model calls\n",
				c.Size, c.Capacity, c.Hits, c.Misses, c.Calls)
		}
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database, snapshot and uploads on disk\n", *status.DiskUsageBytes)
	}
	for _, d := range status.WatchDirectories {
		fmt.Fprintf(w, "watching:           %s\n", d)
	}
	if len(status.Config) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		keys := make([]string, 0, len(status.Config))
		for k := range status.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%-19s %v\n", k+":", status.Config[k])
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
