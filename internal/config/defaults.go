package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the base directory for default data paths: ~/.kotae, or ./.kotae
// when the home directory is unknown.
func DefaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".kotae")
	}
	return ".kotae"
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	dataDir := DefaultDataDir()
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(dataDir, "db", "documents.db")
	}
	if cfg.Storage.IndexSnapshotPath == "" {
		cfg.Storage.IndexSnapshotPath = filepath.Join(dataDir, "index", "vectors.gob")
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = filepath.Join(dataDir, "uploads")
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderHashing
	}
	if cfg.Embedding.Dimensions == 0 && cfg.Embedding.Provider != ProviderHTTP {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = 30
	}
	if cfg.Embedding.Parallelism == 0 {
		cfg.Embedding.Parallelism = 4
	}
	if cfg.Embedding.Provider == ProviderONNX && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = filepath.Join(dataDir, "models", "all-MiniLM-L6-v2.onnx")
	}
	if cfg.Cache.RedisPrefix == "" {
		cfg.Cache.RedisPrefix = "kotae:emb:"
	}
	if cfg.Cache.RedisTTLSecs == 0 {
		cfg.Cache.RedisTTLSecs = 7 * 24 * 3600
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "hnsw"
	}
	if cfg.Vector.M == 0 {
		cfg.Vector.M = 16
	}
	if cfg.Vector.EfConstruction == 0 {
		cfg.Vector.EfConstruction = 200
	}
	if cfg.Vector.EfSearch == 0 {
		cfg.Vector.EfSearch = 100
	}
	if cfg.Chunking.MaxChunkSize == 0 {
		cfg.Chunking.MaxChunkSize = 500
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
