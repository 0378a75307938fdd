package embedding

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedisStore(t *testing.T, model string, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "", model, ttl)
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return store, mr
}

func TestRedisStore_GetSet(t *testing.T) {
	store, _ := setupTestRedisStore(t, "hash-384", 0)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
	}
	vec := []float32{0.25, -0.5, 1}
	if err := store.Set(ctx, "hello", vec); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := store.Get(ctx, "hello")
	if err != nil || !ok {
		t.Fatalf("Get(hello) = ok %v, err %v", ok, err)
	}
	if !reflect.DeepEqual(got, vec) {
		t.Errorf("Get = %v, want %v", got, vec)
	}
}

func TestRedisStore_ModelNamespacing(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	a := NewRedisStore(client, "", "model-a", 0)
	b := NewRedisStore(client, "", "model-b", 0)
	if err := a.Set(ctx, "text", []float32{1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "text"); ok {
		t.Error("different models must not share entries")
	}
}

func TestRedisStore_TTL(t *testing.T) {
	store, mr := setupTestRedisStore(t, "m", time.Minute)
	ctx := context.Background()
	if err := store.Set(ctx, "x", []float32{1, 2}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := store.Get(ctx, "x"); ok {
		t.Error("entry should expire after ttl")
	}
}

func TestRedisStore_CorruptValue(t *testing.T) {
	store, mr := setupTestRedisStore(t, "m", 0)
	if err := mr.Set(store.key("bad"), "abc"); err != nil {
		t.Fatalf("miniredis Set: %v", err)
	}
	if _, ok, err := store.Get(context.Background(), "bad"); err == nil || ok {
		t.Errorf("corrupt value: ok %v, err %v; want error", ok, err)
	}
}

func TestCachedEmbedder_RemoteCacheSharedAcrossInstances(t *testing.T) {
	store, _ := setupTestRedisStore(t, "mock", 0)
	ctx := context.Background()

	first := &countingEmbedder{inner: NewMockEmbedder(8)}
	c1 := NewCachedEmbedder(first, 10, WithRemoteCache(store))
	v1, err := c1.Encode(ctx, "shared text")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	second := &countingEmbedder{inner: NewMockEmbedder(8)}
	c2 := NewCachedEmbedder(second, 10, WithRemoteCache(store))
	v2, err := c2.Encode(ctx, "shared text")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if second.calls.Load() != 0 {
		t.Errorf("second embedder called %d times, want 0", second.calls.Load())
	}
	if !reflect.DeepEqual(v1, v2) {
		t.Error("vectors from remote cache differ")
	}
}

func TestCachedEmbedder_RemoteCacheDownIsAMiss(t *testing.T) {
	store, mr := setupTestRedisStore(t, "mock", 0)
	mr.Close()

	inner := &countingEmbedder{inner: NewMockEmbedder(8)}
	c := NewCachedEmbedder(inner, 10, WithRemoteCache(store))
	if _, err := c.Encode(context.Background(), "text"); err != nil {
		t.Fatalf("Encode with redis down: %v", err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", inner.calls.Load())
	}
}
