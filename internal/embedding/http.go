package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const (
	defaultHTTPEndpoint = "http://localhost:11434/v1"
	defaultHTTPTimeout  = 30 * time.Second
)

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint (OpenAI, Ollama, LM Studio).
// When created with zero dimensions it adopts the size of the first vector returned.
type HTTPEmbedder struct {
	endpoint   string
	model      string
	apiKey     string
	dimensions atomic.Int64
	client     *http.Client
}

// NewHTTPEmbedder returns an embedder for the given base URL and model.
func NewHTTPEmbedder(endpoint, model, apiKey string, dimensions int, timeout time.Duration) (*HTTPEmbedder, error) {
	if model == "" {
		return nil, fmt.Errorf("embedding model is required for the http provider")
	}
	if endpoint == "" {
		endpoint = defaultHTTPEndpoint
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	e := &HTTPEmbedder{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
	if dimensions > 0 {
		e.dimensions.Store(int64(dimensions))
	}
	return e, nil
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed returns the embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch sends all texts in one request and returns vectors in input order.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.do(ctx, embeddingRequest{Input: texts, Model: e.model, EncodingFormat: "float"})
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}
	e.dimensions.CompareAndSwap(0, int64(len(out[0])))
	return out, nil
}

// Dimensions returns the configured or learned embedding size, or 0 before the first call
// when none was configured.
func (e *HTTPEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func (e *HTTPEmbedder) do(ctx context.Context, body embeddingRequest) (*embeddingResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("embedding endpoint returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedding endpoint error: %s (type: %s)", parsed.Error.Message, parsed.Error.Type)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned status %d", resp.StatusCode)
	}
	return &parsed, nil
}
