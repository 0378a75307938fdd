package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "/tmp/kotae/test.db"
embedding:
  provider: http
  endpoint: "http://localhost:11434/v1"
  model: nomic-embed-text
vector:
  index_type: memory
chunking:
  max_chunk_size: 300
search:
  max_top_k: 20
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath != "/tmp/kotae/test.db" {
		t.Errorf("database_path = %s", cfg.Storage.DatabasePath)
	}
	if cfg.Embedding.Provider != ProviderHTTP || cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Embedding.Dimensions != 0 {
		t.Errorf("http provider dimensions should be learned, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Vector.IndexType != "memory" || cfg.Chunking.MaxChunkSize != 300 || cfg.Search.MaxTopK != 20 {
		t.Errorf("unexpected config: %+v %+v %+v", cfg.Vector, cfg.Chunking, cfg.Search)
	}
	if cfg.Search.DefaultTopK != 5 {
		t.Errorf("default_top_k = %d, want 5", cfg.Search.DefaultTopK)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_invalid(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := writeConfig(t, dir, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
storage:
  database_path: "./data/db/documents.db"
  index_snapshot_path: "./data/index/vectors.gob"
  upload_dir: "./uploads"
watch:
  directories: ["./dev/sample"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name, got, want string
	}{
		{"database_path", cfg.Storage.DatabasePath, filepath.Join(dir, "data", "db", "documents.db")},
		{"index_snapshot_path", cfg.Storage.IndexSnapshotPath, filepath.Join(dir, "data", "index", "vectors.gob")},
		{"upload_dir", cfg.Storage.UploadDir, filepath.Join(dir, "uploads")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %s, want %s", tt.name, tt.got, tt.want)
		}
	}
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != filepath.Join(dir, "dev", "sample") {
		t.Errorf("watch directories = %v", cfg.Watch.Directories)
	}
	if !cfg.Watch.RecursiveOrDefault() {
		t.Error("recursive should default to true")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/abs/path", "/abs/path"},
		{"./rel", "/cfg/rel"},
		{"~/docs", filepath.Join(home, "docs")},
		{"docs", filepath.Join(home, "docs")},
	}
	for _, tt := range tests {
		if got := expandPath(tt.in, "/cfg"); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_envOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
debug: false
embedding:
  api_key: from-file
`)
	t.Setenv(EnvDebug, "true")
	t.Setenv(EnvEmbeddingAPIKey, "from-env")
	t.Setenv(EnvRedisAddr, "localhost:6379")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug || cfg.Embedding.APIKey != "from-env" || cfg.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("env overrides not applied: debug=%v key=%q redis=%q", cfg.Debug, cfg.Embedding.APIKey, cfg.Cache.RedisAddr)
	}
}

func TestLoad_invalidDebugEnv(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "debug: false\n")
	t.Setenv(EnvDebug, "maybe")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid KOTAE_DEBUG")
	}
}

func TestLoad_dotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "embedding:\n  provider: http\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvEmbeddingAPIKey+"=sk-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	// Registered so t restores the variable; godotenv only sets unset variables.
	t.Setenv(EnvEmbeddingAPIKey, "")
	os.Unsetenv(EnvEmbeddingAPIKey)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.APIKey != "sk-dotenv" {
		t.Errorf("api key = %q, want value from .env", cfg.Embedding.APIKey)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: %+v", cfg.Server)
	}
	if cfg.Embedding.Provider != ProviderHashing || cfg.Embedding.Dimensions != 384 || cfg.Embedding.CacheSize != 1000 {
		t.Errorf("default embedding: %+v", cfg.Embedding)
	}
	if cfg.Vector.IndexType != "hnsw" || cfg.Vector.M != 16 || cfg.Vector.EfConstruction != 200 || cfg.Vector.EfSearch != 100 {
		t.Errorf("default vector: %+v", cfg.Vector)
	}
	if cfg.Chunking.MaxChunkSize != 500 {
		t.Errorf("default max_chunk_size: got %d", cfg.Chunking.MaxChunkSize)
	}
	if cfg.Cache.RedisAddr != "" || cfg.Cache.RedisPrefix != "kotae:emb:" {
		t.Errorf("default cache: %+v", cfg.Cache)
	}
	for _, p := range []string{cfg.Storage.DatabasePath, cfg.Storage.IndexSnapshotPath, cfg.Storage.UploadDir} {
		if p == "" {
			t.Errorf("storage paths should be set: %+v", cfg.Storage)
		}
	}
	if len(cfg.Watch.Extensions) != 6 || cfg.Watch.Extensions[0] != ".txt" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if cfg.Watch.Recursive != nil {
		t.Error("recursive should stay unset without directories")
	}
}

func TestApplyDefaults_onnxModelPath(t *testing.T) {
	cfg := &Config{Embedding: EmbeddingConfig{Provider: ProviderONNX}}
	ApplyDefaults(cfg)
	if filepath.Base(cfg.Embedding.ModelPath) != "all-MiniLM-L6-v2.onnx" {
		t.Errorf("model_path = %s", cfg.Embedding.ModelPath)
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
		Vector:  VectorConfig{IndexType: "memory"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 || loaded.Vector.IndexType != "memory" {
		t.Errorf("loaded: %+v %+v", loaded.Server, loaded.Vector)
	}
}
