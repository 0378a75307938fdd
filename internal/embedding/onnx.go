//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/kotae/pkg/utils"
)

var (
	onnxInputs  = []string{"input_ids", "attention_mask", "token_type_ids"}
	onnxOutputs = []string{"output"}

	ortInit    sync.Once
	ortInitErr error
)

var errONNXClosed = errors.New("onnx embedder is closed")

// ONNXEmbedder runs a sentence-transformer model exported to ONNX. The model takes
// input_ids, attention_mask and token_type_ids of shape [1, maxTokens] and produces a pooled
// "output" tensor of shape [1, dimensions]. Calls are serialized because the session reuses
// one set of tensors.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	io         *onnxTensors
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
}

// onnxTensors are the bound input and output buffers of a session.
type onnxTensors struct {
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

func newONNXTensors(maxTokens, dimensions int) (*onnxTensors, error) {
	t := &onnxTensors{}
	in := ort.NewShape(1, int64(maxTokens))
	var err error
	if t.inputIDs, err = ort.NewEmptyTensor[int64](in); err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	if t.attentionMask, err = ort.NewEmptyTensor[int64](in); err != nil {
		t.destroy()
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	if t.tokenTypeIDs, err = ort.NewEmptyTensor[int64](in); err != nil {
		t.destroy()
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	if t.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions))); err != nil {
		t.destroy()
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	return t, nil
}

func (t *onnxTensors) inputs() []ort.ArbitraryTensor {
	return []ort.ArbitraryTensor{t.inputIDs, t.attentionMask, t.tokenTypeIDs}
}

func (t *onnxTensors) outputs() []ort.ArbitraryTensor {
	return []ort.ArbitraryTensor{t.output}
}

func (t *onnxTensors) load(inputIDs, attentionMask, tokenTypeIDs []int64) {
	copy(t.inputIDs.GetData(), inputIDs)
	copy(t.attentionMask.GetData(), attentionMask)
	copy(t.tokenTypeIDs.GetData(), tokenTypeIDs)
}

func (t *onnxTensors) destroy() {
	if t.inputIDs != nil {
		_ = t.inputIDs.Destroy()
	}
	if t.attentionMask != nil {
		_ = t.attentionMask.Destroy()
	}
	if t.tokenTypeIDs != nil {
		_ = t.tokenTypeIDs.Destroy()
	}
	if t.output != nil {
		_ = t.output.Destroy()
	}
}

// NewONNXEmbedder loads the model at modelPath. The ONNX runtime environment is initialized
// once per process; a missing model file is reported before touching the runtime.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if modelPath == "" {
		return nil, errors.New("onnx model path is required")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("onnx model: %w", err)
	}
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTk
	}
	ortInit.Do(func() { ortInitErr = ort.InitializeEnvironment() })
	if ortInitErr != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", ortInitErr)
	}

	io, err := newONNXTensors(maxTokens, dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate ONNX tensors: %w", err)
	}
	session, err := ort.NewAdvancedSession(modelPath, onnxInputs, onnxOutputs, io.inputs(), io.outputs(), nil)
	if err != nil {
		io.destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return &ONNXEmbedder{
		session:    session,
		io:         io,
		tokenizer:  &HashTokenizer{},
		dimensions: dimensions,
		maxTokens:  maxTokens,
	}, nil
}

// Embed runs inference for text and returns the L2-normalized output.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errONNXClosed
	}

	e.io.load(e.tokenizer.Tokenize(text, e.maxTokens))
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	v := make([]float32, e.dimensions)
	copy(v, e.io.output.GetData())
	if err := checkVector(v, e.dimensions); err != nil {
		return nil, err
	}
	utils.NormalizeL2(v)
	return v, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and its tensors. Embed fails afterwards.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	e.io.destroy()
	e.io = nil
	return err
}
