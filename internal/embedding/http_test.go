package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newEmbeddingServer(t *testing.T, handler func(req embeddingRequest) (int, interface{})) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		status, body := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPEmbedder_EmbedBatchOrdersByIndex(t *testing.T) {
	srv := newEmbeddingServer(t, func(req embeddingRequest) (int, interface{}) {
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}
		// Reply out of order.
		return http.StatusOK, map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 1, "embedding": []float32{0, 1, 0}},
				{"index": 0, "embedding": []float32{1, 0, 0}},
			},
		}
	})
	e, err := NewHTTPEmbedder(srv.URL+"/", "nomic-embed-text", "", 0, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPEmbedder: %v", err)
	}
	defer e.Close()

	if e.Dimensions() != 0 {
		t.Errorf("Dimensions before first call = %d", e.Dimensions())
	}
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if out[0][0] != 1 || out[1][1] != 1 {
		t.Errorf("unexpected order %v", out)
	}
	if e.Dimensions() != 3 {
		t.Errorf("Dimensions = %d, want learned 3", e.Dimensions())
	}
}

func TestHTTPEmbedder_SendsAPIKey(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	e, _ := NewHTTPEmbedder(srv.URL, "m", "secret", 1, time.Second)
	if _, err := e.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestHTTPEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    interface{}
		wantErr string
	}{
		{"api error", http.StatusBadRequest, map[string]interface{}{"error": map[string]string{"message": "bad model", "type": "invalid_request"}}, "bad model"},
		{"status", http.StatusInternalServerError, map[string]interface{}{}, "status 500"},
		{"missing input", http.StatusOK, map[string]interface{}{"data": []interface{}{}}, "no embedding"},
		{"bad index", http.StatusOK, map[string]interface{}{"data": []map[string]interface{}{{"index": 5, "embedding": []float32{1}}}}, "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newEmbeddingServer(t, func(embeddingRequest) (int, interface{}) { return tt.status, tt.body })
			e, _ := NewHTTPEmbedder(srv.URL, "m", "", 0, time.Second)
			_, err := e.Embed(context.Background(), "x")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPEmbedder_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	e, _ := NewHTTPEmbedder(srv.URL, "m", "", 1, 20*time.Millisecond)
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Error("expected timeout error")
	}
}

func TestNewHTTPEmbedder_RequiresModel(t *testing.T) {
	if _, err := NewHTTPEmbedder("", "", "", 0, 0); err == nil {
		t.Error("expected error without model")
	}
}
