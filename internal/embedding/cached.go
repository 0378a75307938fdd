package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const defaultParallelism = 4

// RemoteCache is an optional second-level embedding cache shared between processes.
// Failures are treated as misses.
type RemoteCache interface {
	Get(ctx context.Context, text string) ([]float32, bool, error)
	Set(ctx context.Context, text string, vector []float32) error
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Calls    int64 `json:"embedder_calls"`
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
}

// CachedEmbedder memoizes an Embedder with a bounded LRU keyed by exact text.
// Concurrent misses for the same text share one call to the embedder.
type CachedEmbedder struct {
	embedder    Embedder
	cache       *EmbeddingCache
	remote      RemoteCache
	group       singleflight.Group
	parallelism int
	logger      *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
	calls  atomic.Int64
}

// CachedOption configures a CachedEmbedder.
type CachedOption func(*CachedEmbedder)

// WithRemoteCache adds a second-level cache consulted on local misses.
func WithRemoteCache(r RemoteCache) CachedOption {
	return func(c *CachedEmbedder) { c.remote = r }
}

// WithParallelism bounds the number of concurrent embedder calls made by EncodeBatch.
func WithParallelism(n int) CachedOption {
	return func(c *CachedEmbedder) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithLogger sets a logger for cache diagnostics.
func WithLogger(l *zap.Logger) CachedOption {
	return func(c *CachedEmbedder) { c.logger = l }
}

// NewCachedEmbedder wraps embedder with a cache of the given capacity.
func NewCachedEmbedder(embedder Embedder, capacity int, opts ...CachedOption) *CachedEmbedder {
	c := &CachedEmbedder{
		embedder:    embedder,
		cache:       NewEmbeddingCache(capacity),
		parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.LoggerOrNop(c.logger)
	return c
}

// Encode returns the embedding for text. Failures of the underlying embedder are wrapped in
// models.ErrEmbeddingFailure and nothing is cached. The returned slice is owned by the caller.
//
// Concurrent misses for the same text share one embedder call. That call does not inherit the
// cancellation of whichever caller started it; each caller stops waiting when its own ctx is done
// and gets ctx.Err() back unwrapped.
func (c *CachedEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		c.hits.Add(1)
		return clone(v), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.misses.Add(1)
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(text, func() (interface{}, error) {
		return c.load(shared, text)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]float32)), nil
	}
}

// load resolves a local miss through the remote cache and then the embedder.
func (c *CachedEmbedder) load(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	if v, ok := c.remoteGet(ctx, text); ok {
		c.cache.Set(text, v)
		return v, nil
	}
	c.calls.Add(1)
	v, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingFailure, err)
	}
	if err := c.validate(v); err != nil {
		return nil, err
	}
	v = clone(v)
	c.cache.Set(text, v)
	c.remoteSet(ctx, text, v)
	return v, nil
}

// EncodeBatch encodes texts concurrently, preserving order. The first failure stops the batch;
// embedder calls shared with other callers keep running for them.
func (c *CachedEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			v, err := c.Encode(gctx, text)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the dimensionality of the wrapped embedder.
func (c *CachedEmbedder) Dimensions() int {
	return c.embedder.Dimensions()
}

// Stats returns hit/miss counters and the current cache size.
func (c *CachedEmbedder) Stats() CacheStats {
	return CacheStats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Calls:    c.calls.Load(),
		Size:     c.cache.Len(),
		Capacity: c.cache.Capacity(),
	}
}

// Close closes the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	return c.embedder.Close()
}

func (c *CachedEmbedder) validate(v []float32) error {
	return checkVector(v, c.embedder.Dimensions())
}

func (c *CachedEmbedder) remoteGet(ctx context.Context, text string) ([]float32, bool) {
	if c.remote == nil {
		return nil, false
	}
	v, ok, err := c.remote.Get(ctx, text)
	if err != nil {
		c.logger.Warn("remote embedding cache get failed", zap.Error(err))
		return nil, false
	}
	if !ok || c.validate(v) != nil {
		return nil, false
	}
	return v, true
}

func (c *CachedEmbedder) remoteSet(ctx context.Context, text string, v []float32) {
	if c.remote == nil {
		return
	}
	if err := c.remote.Set(ctx, text, v); err != nil {
		c.logger.Warn("remote embedding cache set failed", zap.Error(err))
	}
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
