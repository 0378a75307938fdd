//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestNewONNXEmbedder_MissingModel(t *testing.T) {
	if _, err := NewONNXEmbedder("", 384, 0); err == nil {
		t.Error("expected error for empty model path")
	}
	_, err := NewONNXEmbedder(filepath.Join(t.TempDir(), "missing.onnx"), 384, 0)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

// Set KOTAE_ONNX_MODEL (and KOTAE_ONNX_DIMS when the model is not 384-dimensional) to run
// inference against a real model.
func TestONNXEmbedder_Model(t *testing.T) {
	path := os.Getenv("KOTAE_ONNX_MODEL")
	if path == "" {
		t.Skip("KOTAE_ONNX_MODEL not set")
	}
	dims := DefaultDimensions
	if s := os.Getenv("KOTAE_ONNX_DIMS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			t.Fatalf("KOTAE_ONNX_DIMS: %v", err)
		}
		dims = n
	}
	e, err := NewONNXEmbedder(path, dims, 0)
	if err != nil {
		t.Fatalf("NewONNXEmbedder: %v", err)
	}
	ctx := context.Background()

	out, err := e.EmbedBatch(ctx, []string{"invoice from microsoft", "quarterly revenue report"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	for i, v := range out {
		if len(v) != dims {
			t.Fatalf("vector %d has %d dimensions, want %d", i, len(v), dims)
		}
		if norm := math.Sqrt(float64(dot(v, v))); math.Abs(norm-1) > 1e-3 {
			t.Errorf("vector %d norm = %f, want 1", i, norm)
		}
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := e.Embed(ctx, "after close"); !errors.Is(err, errONNXClosed) {
		t.Errorf("Embed after Close err = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
