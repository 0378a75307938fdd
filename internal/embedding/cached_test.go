package embedding

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// countingEmbedder counts calls to the wrapped embedder and can inject failures.
type countingEmbedder struct {
	inner Embedder
	calls atomic.Int64
	delay time.Duration
	err   error
	out   []float32
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.err != nil {
		return nil, e.err
	}
	if e.out != nil {
		return e.out, nil
	}
	return e.inner.Embed(ctx, text)
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

func (e *countingEmbedder) Dimensions() int { return e.inner.Dimensions() }

func (e *countingEmbedder) Close() error { return nil }

func TestCachedEmbedder_HitSkipsEmbedder(t *testing.T) {
	inner := &countingEmbedder{inner: NewMockEmbedder(16)}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	a, err := c.Encode(ctx, "hello world")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := c.Encode(ctx, "hello world")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same text should produce identical vectors")
	}
	if inner.calls.Load() != 1 {
		t.Errorf("embedder calls = %d, want 1", inner.calls.Load())
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Calls != 1 || st.Size != 1 || st.Capacity != 10 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestCachedEmbedder_ReturnsCopies(t *testing.T) {
	c := NewCachedEmbedder(NewMockEmbedder(4), 10)
	ctx := context.Background()

	a, _ := c.Encode(ctx, "x")
	orig := a[0]
	a[0] = 42
	b, _ := c.Encode(ctx, "x")
	if b[0] != orig {
		t.Errorf("cached vector was mutated through a returned slice: %v", b[0])
	}
}

func TestCachedEmbedder_Eviction(t *testing.T) {
	inner := &countingEmbedder{inner: NewMockEmbedder(4)}
	c := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	for _, s := range []string{"a", "b", "c"} {
		if _, err := c.Encode(ctx, s); err != nil {
			t.Fatalf("Encode(%q): %v", s, err)
		}
	}
	if _, err := c.Encode(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 4 {
		t.Errorf("calls = %d, want 4 (a evicted)", inner.calls.Load())
	}
	if c.Stats().Size != 2 {
		t.Errorf("size = %d, want 2", c.Stats().Size)
	}
}

func TestCachedEmbedder_Failures(t *testing.T) {
	boom := errors.New("model offline")
	nan := float32(math.NaN())
	tests := []struct {
		name  string
		inner *countingEmbedder
	}{
		{"capability error", &countingEmbedder{inner: NewMockEmbedder(3), err: boom}},
		{"wrong length", &countingEmbedder{inner: NewMockEmbedder(3), out: []float32{1, 0}}},
		{"empty vector", &countingEmbedder{inner: NewMockEmbedder(3), out: []float32{}}},
		{"nan", &countingEmbedder{inner: NewMockEmbedder(3), out: []float32{1, nan, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCachedEmbedder(tt.inner, 10)
			_, err := c.Encode(context.Background(), "text")
			if !errors.Is(err, models.ErrEmbeddingFailure) {
				t.Fatalf("err = %v, want ErrEmbeddingFailure", err)
			}
			if c.Stats().Size != 0 {
				t.Error("failed result must not be cached")
			}
			_, _ = c.Encode(context.Background(), "text")
			if tt.inner.calls.Load() != 2 {
				t.Errorf("calls = %d, want 2 (no negative caching)", tt.inner.calls.Load())
			}
		})
	}
}

func TestCachedEmbedder_WrapsCause(t *testing.T) {
	boom := errors.New("model offline")
	c := NewCachedEmbedder(&countingEmbedder{inner: NewMockEmbedder(3), err: boom}, 10)
	_, err := c.Encode(context.Background(), "x")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want cause preserved", err)
	}
}

func TestCachedEmbedder_ConcurrentMissesCollapse(t *testing.T) {
	inner := &countingEmbedder{inner: NewMockEmbedder(8), delay: 50 * time.Millisecond}
	c := NewCachedEmbedder(inner, 10)
	want, _ := NewMockEmbedder(8).Embed(context.Background(), "same")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Encode(context.Background(), "same")
			if err != nil {
				t.Errorf("Encode: %v", err)
				return
			}
			if !reflect.DeepEqual(got, want) {
				t.Error("concurrent caller got a wrong vector")
			}
		}()
	}
	wg.Wait()
	if n := inner.calls.Load(); n != 1 {
		t.Errorf("embedder calls = %d, want 1", n)
	}
}

// gatedEmbedder blocks in Embed until release is closed or ctx is done.
type gatedEmbedder struct {
	inner   Embedder
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int64
}

func newGatedEmbedder(dims int) *gatedEmbedder {
	return &gatedEmbedder{
		inner:   NewMockEmbedder(dims),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (e *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	e.once.Do(func() { close(e.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.release:
	}
	return e.inner.Embed(ctx, text)
}

func (e *gatedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

func (e *gatedEmbedder) Dimensions() int { return e.inner.Dimensions() }

func (e *gatedEmbedder) Close() error { return nil }

func TestCachedEmbedder_CancelledLeaderDoesNotFailWaiters(t *testing.T) {
	inner := newGatedEmbedder(8)
	c := NewCachedEmbedder(inner, 10)
	want, _ := NewMockEmbedder(8).Embed(context.Background(), "shared")

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Encode(leaderCtx, "shared")
		leaderErr <- err
	}()
	<-inner.started
	cancel()

	err := <-leaderErr
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("leader err = %v, want context.Canceled", err)
	}
	if errors.Is(err, models.ErrEmbeddingFailure) {
		t.Errorf("cancellation reported as embedding failure: %v", err)
	}

	type result struct {
		v   []float32
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		v, err := c.Encode(context.Background(), "shared")
		waiter <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(inner.release)

	select {
	case r := <-waiter:
		if r.err != nil {
			t.Fatalf("waiter err = %v", r.err)
		}
		if !reflect.DeepEqual(r.v, want) {
			t.Error("waiter got a wrong vector")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not return")
	}
	if n := inner.calls.Load(); n != 1 {
		t.Errorf("embedder calls = %d, want 1", n)
	}
	if c.Stats().Size != 1 {
		t.Error("vector from the shared call should be cached")
	}
}

func TestCachedEmbedder_CancelledWaiterReturnsContextError(t *testing.T) {
	inner := newGatedEmbedder(8)
	c := NewCachedEmbedder(inner, 10)
	defer close(inner.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Encode(ctx, "slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if errors.Is(err, models.ErrEmbeddingFailure) {
		t.Errorf("deadline reported as embedding failure: %v", err)
	}

	if _, err := c.Encode(ctx, "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expired ctx: err = %v", err)
	}
}

func TestCachedEmbedder_EncodeBatch(t *testing.T) {
	inner := &countingEmbedder{inner: NewMockEmbedder(8)}
	c := NewCachedEmbedder(inner, 10, WithParallelism(2))
	ctx := context.Background()

	texts := []string{"one", "two", "one", "three"}
	out, err := c.EncodeBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	if len(out) != len(texts) {
		t.Fatalf("len = %d", len(out))
	}
	for i, text := range texts {
		want, _ := NewMockEmbedder(8).Embed(ctx, text)
		if !reflect.DeepEqual(out[i], want) {
			t.Errorf("out[%d] does not match %q", i, text)
		}
	}
	if n := inner.calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestCachedEmbedder_EncodeBatchFailure(t *testing.T) {
	c := NewCachedEmbedder(&countingEmbedder{inner: NewMockEmbedder(3), err: errors.New("down")}, 10)
	if _, err := c.EncodeBatch(context.Background(), []string{"a", "b"}); !errors.Is(err, models.ErrEmbeddingFailure) {
		t.Errorf("err = %v, want ErrEmbeddingFailure", err)
	}
}

func TestHashingEmbedder_LexicalSimilarity(t *testing.T) {
	e := NewHashingEmbedder(512)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "What is the capital of Germany?")
	berlin, _ := e.Embed(ctx, "Berlin is the capital of Germany.")
	paris, _ := e.Embed(ctx, "Paris is the capital of France.")

	if dot(q, berlin) <= dot(q, paris) {
		t.Errorf("query should be closer to Berlin: %f vs %f", dot(q, berlin), dot(q, paris))
	}
	if n := dot(q, q); math.Abs(float64(n)-1) > 1e-5 {
		t.Errorf("vector not unit length: %f", n)
	}
}

func TestHashingEmbedder_Deterministic(t *testing.T) {
	e := NewHashingEmbedder(0)
	if e.Dimensions() != DefaultDimensions {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
	a, _ := e.Embed(context.Background(), "the of")
	b, _ := e.Embed(context.Background(), "the of")
	if !reflect.DeepEqual(a, b) {
		t.Error("not deterministic")
	}
	if dot(a, a) == 0 {
		t.Error("stopword-only text should still produce a non-zero vector")
	}
}

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(32)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "alpha")
	b, _ := e.Embed(ctx, "alpha")
	c, _ := e.Embed(ctx, "beta")
	if !reflect.DeepEqual(a, b) {
		t.Error("same text should give same vector")
	}
	if reflect.DeepEqual(a, c) {
		t.Error("different text should give different vectors")
	}
	batch, err := e.EmbedBatch(ctx, []string{"alpha", "beta"})
	if err != nil || len(batch) != 2 || !reflect.DeepEqual(batch[1], c) {
		t.Errorf("EmbedBatch = %v, %v", batch, err)
	}
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
