package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces embedding keys in a shared Redis.
const DefaultRedisPrefix = "kotae:emb:"

// RedisStore is a RemoteCache backed by Redis. Keys hash the model name together with the
// text so different models never share vectors.
type RedisStore struct {
	client *redis.Client
	prefix string
	model  string
	ttl    time.Duration
}

// NewRedisStore returns a store using client. A zero ttl keeps entries until evicted by Redis.
func NewRedisStore(client *redis.Client, prefix, model string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, model: model, ttl: ttl}
}

// Get returns the cached vector for text. A missing key is (nil, false, nil).
func (s *RedisStore) Get(ctx context.Context, text string) ([]float32, bool, error) {
	data, err := s.client.Get(ctx, s.key(text)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding: %w", err)
	}
	v, err := utils.DecodeFloat32s(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode embedding: %w", err)
	}
	return v, true, nil
}

// Set stores vector for text.
func (s *RedisStore) Set(ctx context.Context, text string, vector []float32) error {
	if err := s.client.Set(ctx, s.key(text), utils.EncodeFloat32s(vector), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set embedding: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(text string) string {
	sum := sha256.Sum256([]byte(s.model + "\x00" + text))
	return s.prefix + hex.EncodeToString(sum[:])
}
