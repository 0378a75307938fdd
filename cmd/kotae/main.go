// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

// loadConfig loads config from path. With an empty path it looks for config.yaml in the
// current directory, then in the data directory, and falls back to built-in defaults.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		candidates := []string{"config.yaml", filepath.Join(config.DefaultDataDir(), "config.yaml")}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}
	if path == "" {
		if err := config.LoadEnvFile(".env"); err != nil {
			return nil, "", err
		}
		cfg, err := config.Default()
		return cfg, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "index":
		runIndex()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and creates the logger. It exits the process on failure.
func setup(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if debugFlag {
		cfg.Debug = true
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolved, logger := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolved),
		zap.Bool("debug", cfg.Debug),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("index_type", cfg.Vector.IndexType),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var opts []server.Option
	var watch *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watch = watcher.NewWatcher(
			components.Indexer,
			cfg.Watch.Directories,
			cfg.Watch.RecursiveOrDefault(),
			watcher.WithMatcher(components.Indexer.Allowed),
			watcher.WithLogger(logger),
		)
		if err := watch.Start(ctx); err != nil {
			logger.Fatal("failed to start watcher", zap.Error(err))
		}
		go func() {
			n := watch.Sync(ctx)
			logger.Info("watch directories synced", zap.Int("files", n))
		}()
		opts = append(opts, server.WithWatchService(watch))
	}

	srv := server.NewServer(components.Engine, components.Indexer, cfg, logger, opts...)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	if watch != nil {
		watch.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kotae search quarterly revenue
  kotae search -top-k 10 "quarterly revenue"
  kotae search -doc 2f1c... -output json revenue    # search one document
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "kotae search \"query\" -top-k 3"
// would otherwise leave -top-k unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	serverURL := fs.String("server", "", "server URL; empty searches local storage directly")
	docID := fs.String("doc", "", "restrict results to one document id")
	topK := fs.Int("top-k", 0, "number of results (0 = configured default)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	searchQuery := &models.SearchQuery{Query: query, DocumentID: *docID, TopK: *topK}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, searchQuery)
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		ctx := context.Background()
		components, initErr := initializeComponents(ctx, cfg, logger)
		if initErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", initErr)
			os.Exit(1)
		}
		defer components.Close()
		response, err = components.Engine.Query(ctx, searchQuery)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimSuffix(serverURL, "/")+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	serverURL := fs.String("server", "", "server URL; empty reads local storage directly")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status *cli.StatusReport
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		ctx := context.Background()
		components, initErr := initializeComponents(ctx, cfg, logger)
		if initErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", initErr)
			os.Exit(1)
		}
		defer components.Close()
		status, err = localStatus(ctx, cfg, components)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// localStatus builds the same report the server returns from GET /api/v1/status.
func localStatus(ctx context.Context, cfg *config.Config, c *Components) (*cli.StatusReport, error) {
	stats, err := c.Engine.Stats(ctx)
	if err != nil {
		return nil, err
	}
	status := &cli.StatusReport{
		Index: stats,
		Config: map[string]interface{}{
			"embedding_provider": cfg.Embedding.Provider,
			"vector_index_type":  cfg.Vector.IndexType,
			"max_chunk_size":     cfg.Chunking.MaxChunkSize,
			"database_path":      cfg.Storage.DatabasePath,
			"upload_dir":         cfg.Storage.UploadDir,
		},
		WatchDirectories: cfg.Watch.Directories,
	}
	if n, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.IndexSnapshotPath, cfg.Storage.UploadDir); err == nil {
		status.DiskUsageBytes = &n
	}
	return status, nil
}

func statusViaHTTP(serverURL string) (*cli.StatusReport, error) {
	resp, err := http.Get(strings.TrimSuffix(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var s cli.StatusReport
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func serverError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae index [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		n, err := components.Indexer.IndexDirectory(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Indexing directory failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Indexed %d file(s) from %s\n", n, path)
		return
	}
	id, err := components.Indexer.IndexFile(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document indexed successfully: %s\n", id)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae delete [flags] <document-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	deleted, err := components.Engine.DeleteDocument(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
		os.Exit(1)
	}
	if !deleted {
		fmt.Fprintf(os.Stderr, "Document not found: %s\n", id)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", id)
}

// Components holds initialized services.
type Components struct {
	Storage  *storage.SQLiteStorage
	Embedder *embedding.CachedEmbedder
	Engine   *retrieval.Engine
	Indexer  *indexer.Indexer

	redis        *redis.Client
	snapshotPath string
	logger       *zap.Logger
}

// Close writes the index snapshot and releases every component.
func (c *Components) Close() {
	if c.Engine != nil {
		if err := c.Engine.SaveIndex(c.snapshotPath); err != nil {
			c.logger.Warn("index snapshot save failed", zap.String("path", c.snapshotPath), zap.Error(err))
		}
	}
	c.release()
}

// release closes every component without writing a snapshot.
func (c *Components) release() {
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// newEmbedder creates the embedding model selected by cfg.Provider.
func newEmbedder(cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderHashing, "":
		return embedding.NewHashingEmbedder(cfg.Dimensions), nil
	case config.ProviderMock:
		return embedding.NewMockEmbedder(cfg.Dimensions), nil
	case config.ProviderHTTP:
		return embedding.NewHTTPEmbedder(cfg.Endpoint, cfg.Model, cfg.APIKey, cfg.Dimensions,
			time.Duration(cfg.TimeoutSecs)*time.Second)
	case config.ProviderONNX:
		return embedding.NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: hashing, mock, http, onnx)", cfg.Provider)
	}
}

// modelKey names the embedding model in shared cache keys, so different models never share vectors.
func modelKey(cfg *config.EmbeddingConfig) string {
	name := cfg.Model
	if cfg.Provider == config.ProviderONNX {
		name = filepath.Base(cfg.ModelPath)
	}
	return fmt.Sprintf("%s:%s:%d", cfg.Provider, name, cfg.Dimensions)
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	logger = utils.LoggerOrNop(logger)
	c := &Components{snapshotPath: cfg.Storage.IndexSnapshotPath, logger: logger}
	if err := c.init(ctx, cfg); err != nil {
		c.release()
		return nil, err
	}
	return c, nil
}

func (c *Components) init(ctx context.Context, cfg *config.Config) error {
	model, err := newEmbedder(&cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	cacheOpts := []embedding.CachedOption{
		embedding.WithParallelism(cfg.Embedding.Parallelism),
		embedding.WithLogger(c.logger),
	}
	if cfg.Cache.RedisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := c.redis.Ping(pingCtx).Err(); err != nil {
			c.logger.Warn("redis embedding cache unreachable; continuing with local cache only",
				zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		}
		cancel()
		ttl := time.Duration(cfg.Cache.RedisTTLSecs) * time.Second
		cacheOpts = append(cacheOpts, embedding.WithRemoteCache(
			embedding.NewRedisStore(c.redis, cfg.Cache.RedisPrefix, modelKey(&cfg.Embedding), ttl)))
	}
	c.Embedder = embedding.NewCachedEmbedder(model, cfg.Embedding.CacheSize, cacheOpts...)

	index, err := vector.NewIndex(cfg.Vector.IndexType, c.Embedder.Dimensions(), vector.HNSWConfig{
		M:              cfg.Vector.M,
		EfConstruction: cfg.Vector.EfConstruction,
		EfSearch:       cfg.Vector.EfSearch,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if err := index.Load(cfg.Storage.IndexSnapshotPath); err != nil {
		c.logger.Warn("index snapshot not loaded; rebuilding from storage",
			zap.String("path", cfg.Storage.IndexSnapshotPath), zap.Error(err))
	}

	c.Storage, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		_ = index.Close()
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	c.Engine = retrieval.NewEngine(c.Embedder, index,
		retrieval.WithStorage(c.Storage),
		retrieval.WithChunkSize(cfg.Chunking.MaxChunkSize),
		retrieval.WithDefaultTopK(cfg.Search.DefaultTopK),
		retrieval.WithMaxTopK(cfg.Search.MaxTopK),
		retrieval.WithLogger(c.logger),
	)
	if _, err := c.Engine.Restore(ctx); err != nil {
		return err
	}

	c.Indexer = indexer.NewIndexer(c.Engine, extract.NewExtractor(),
		indexer.WithExtensions(cfg.Watch.Extensions),
		indexer.WithLogger(c.logger),
	)
	return nil
}

func printUsage() {
	fmt.Println(`kotae - local semantic document retrieval

Usage:
  kotae server [flags]                  Start the HTTP server (and directory watcher)
  kotae index [flags] <file|dir>        Index a file or every supported file under a directory
  kotae search [flags] <query>          Search indexed chunks
  kotae delete [flags] <document-id>    Delete a document and all of its chunks
  kotae status [flags]                  Show index, cache and storage status
  kotae version                         Show version
  kotae help                            Show this help

Common Flags:
  --config string    Config file path (default: ./config.yaml, then ~/.kotae/config.yaml)

Server Flags:
  --debug            Enable debug logging

Search Flags:
  --doc string       Restrict results to one document id
  --top-k int        Number of results (default from config)
  --output string    Output format: text, compact, or json (default: text)
  --server string    Query a running server instead of local storage

Status Flags:
  --output string    Output format: text or json (default: text)
  --server string    Query a running server instead of local storage

Examples:
  kotae server
  kotae index ~/Documents/reports
  kotae search "quarterly revenue"
  kotae search --output json --top-k 10 revenue
  kotae delete 0b7c6f2e-8d0a-4c57-9a43-1b2f7d6e5a10
  kotae status --output json`)
}
