// Package indexer ingests files into the retrieval engine: extract text, build file metadata, store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
)

// File metadata keys written on every ingested document.
const (
	MetaSize     = "size"
	MetaCreated  = "created"
	MetaModified = "modified"

	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// Store is the part of retrieval.Engine the indexer needs.
type Store interface {
	StoreDocument(ctx context.Context, in *models.DocumentInput) (string, error)
	DeleteDocument(ctx context.Context, id string) (bool, error)
	FindBySource(ctx context.Context, sourcePath string) ([]string, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
}

type sourceState struct {
	ids   []string
	mtime int64
	size  int64
}

// Indexer turns files into stored documents. Re-indexing a path replaces its previous document.
// Calls are serialized.
type Indexer struct {
	store      Store
	extractor  *extract.Extractor
	extensions []string
	logger     *zap.Logger

	mu sync.Mutex
	// sources tracks ingested paths; consulted only when the store has no durable storage.
	sources map[string]sourceState
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, document deleted, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// WithExtensions restricts ingestion to the given extensions (leading dot optional, any case).
// Only extensions the extractor supports are ever indexed.
func WithExtensions(exts []string) Option {
	return func(idx *Indexer) { idx.extensions = exts }
}

// NewIndexer creates an indexer storing into store.
func NewIndexer(store Store, extractor *extract.Extractor, opts ...Option) *Indexer {
	idx := &Indexer{
		store:     store,
		extractor: extractor,
		sources:   make(map[string]sourceState),
	}
	if idx.extractor == nil {
		idx.extractor = extract.NewExtractor()
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.LoggerOrNop(idx.logger)
	return idx
}

// Allowed reports whether files with this extension are indexed.
func (idx *Indexer) Allowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !extract.Supported(ext) {
		return false
	}
	return len(idx.extensions) == 0 || extensionAllowed(ext, idx.extensions)
}

// IndexFile extracts the file at path and stores it, returning the document id. A file already
// stored with the same mtime and size is skipped and its current id returned.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	if !idx.Allowed(absPath) {
		return "", fmt.Errorf("%w: %q", extract.ErrUnsupportedFormat, filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file: %s", absPath)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	prev, err := idx.previous(ctx, absPath)
	if err != nil {
		return "", err
	}
	if len(prev.ids) > 0 && prev.mtime == info.ModTime().UnixNano() && prev.size == info.Size() {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return prev.ids[0], nil
	}

	text, err := idx.extractor.Extract(absPath)
	if err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}
	id, err := idx.store.StoreDocument(ctx, fileInput(absPath, info, text))
	if err != nil {
		return "", err
	}
	// The new document is searchable before the old one goes away.
	idx.deleteAll(ctx, prev.ids)
	idx.sources[absPath] = sourceState{ids: []string{id}, mtime: info.ModTime().UnixNano(), size: info.Size()}

	idx.logger.Debug("indexer file indexed", zap.String("path", absPath), zap.String("document_id", id))
	return id, nil
}

// RemoveFile deletes every document ingested from path and reports whether any existed.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("absolute path: %w", err)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	prev, err := idx.previous(ctx, absPath)
	if err != nil {
		return false, err
	}
	removed := false
	for _, id := range prev.ids {
		ok, err := idx.store.DeleteDocument(ctx, id)
		if err != nil {
			return removed, err
		}
		removed = removed || ok
	}
	delete(idx.sources, absPath)
	if removed {
		idx.logger.Debug("indexer file removed", zap.String("path", absPath))
	}
	return removed, nil
}

// IndexDirectory walks dir recursively and indexes every allowed regular file. Files that fail
// or hold no text are logged and skipped. It returns the number of files indexed.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	n := 0
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !idx.Allowed(path) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, err := idx.IndexFile(ctx, path); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			idx.logger.Warn("indexer skipping file", zap.String("path", path), zap.Error(err))
			return nil
		}
		n++
		return nil
	})
	return n, err
}

// previous returns the documents currently stored for absPath.
func (idx *Indexer) previous(ctx context.Context, absPath string) (sourceState, error) {
	ids, err := idx.store.FindBySource(ctx, absPath)
	if errors.Is(err, retrieval.ErrNoStorage) {
		return idx.sources[absPath], nil
	}
	if err != nil {
		return sourceState{}, fmt.Errorf("find documents for %s: %w", absPath, err)
	}
	s := sourceState{ids: ids}
	if len(ids) > 0 {
		doc, err := idx.store.GetDocument(ctx, ids[0])
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return sourceState{}, fmt.Errorf("get document %s: %w", ids[0], err)
		}
		if doc != nil {
			s.mtime = metadataInt64(doc.Metadata, metaKeySourceMtime)
			s.size = metadataInt64(doc.Metadata, metaKeySourceSize)
		}
	}
	return s, nil
}

func (idx *Indexer) deleteAll(ctx context.Context, ids []string) {
	for _, id := range ids {
		if _, err := idx.store.DeleteDocument(ctx, id); err != nil {
			idx.logger.Warn("failed to delete replaced document", zap.String("document_id", id), zap.Error(err))
		}
	}
}

// fileInput builds the store input for a file: size, created and modified (ISO-8601), file type
// (lowercase extension with dot), file name and source path.
func fileInput(absPath string, info os.FileInfo, text string) *models.DocumentInput {
	ext := strings.ToLower(filepath.Ext(absPath))
	modified := info.ModTime().Format(time.RFC3339)
	return &models.DocumentInput{
		Content:  text,
		FileName: filepath.Base(absPath),
		FileType: ext,
		Metadata: map[string]interface{}{
			MetaSize:     info.Size(),
			MetaCreated:  modified,
			MetaModified: modified,
			// Values are stored as strings to avoid JSON float64 precision loss (UnixNano exceeds 53 bits).
			metaKeySourceMtime:     strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:      strconv.FormatInt(info.Size(), 10),
			storage.MetaSourcePath: absPath,
		},
	}
}

func metadataInt64(m map[string]interface{}, key string) int64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
