// Package watcher keeps the index in sync with directories on disk using fsnotify.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// Handler receives debounced file changes. indexer.Indexer implements it.
type Handler interface {
	IndexFile(ctx context.Context, path string) (string, error)
	RemoveFile(ctx context.Context, path string) (bool, error)
}

// Watcher indexes files created or written under its roots and removes files deleted or
// renamed away.
type Watcher struct {
	handler   Handler
	roots     []string
	recursive bool
	match     func(path string) bool
	debounce  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	fsw     *fsnotify.Watcher
	pending map[string]*time.Timer
	done    chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output (directory changes, file events, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is indexed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithExtensions only reports files with one of the given extensions.
func WithExtensions(exts []string) Option {
	return func(w *Watcher) {
		w.match = func(path string) bool { return matchExtension(path, exts) }
	}
}

// WithMatcher only reports files for which match returns true.
func WithMatcher(match func(path string) bool) Option {
	return func(w *Watcher) { w.match = match }
}

// NewWatcher creates a watcher over roots. Missing roots are created on Start.
func NewWatcher(handler Handler, roots []string, recursive bool, opts ...Option) *Watcher {
	w := &Watcher{
		handler:   handler,
		recursive: recursive,
		debounce:  defaultDebounce,
		match:     func(string) bool { return true },
		pending:   make(map[string]*time.Timer),
	}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			w.roots = append(w.roots, abs)
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.LoggerOrNop(w.logger)
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, root := range w.roots {
		if err := os.MkdirAll(root, 0755); err != nil {
			_ = fsw.Close()
			return err
		}
		if err := w.addTree(fsw, root); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.logger.Debug("watcher starting", zap.Strings("roots", w.roots), zap.Bool("recursive", w.recursive))
	w.ctx = ctx
	w.fsw = fsw
	w.done = make(chan struct{})
	w.wg.Add(1)
	go w.run(ctx, fsw, w.done)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			go w.Stop()
			return
		case <-done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	path := ev.Name
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
		if w.match(path) {
			w.remove(path)
		}
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) && w.recursive {
				w.handleNewDirectory(fsw, path)
			}
			return
		}
		if w.match(path) {
			w.schedule(path)
		}
	}
}

// handleNewDirectory watches a directory created (or moved) under a root and indexes its files.
func (w *Watcher) handleNewDirectory(fsw *fsnotify.Watcher, dir string) {
	if err := w.addTree(fsw, dir); err != nil {
		w.logger.Warn("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	w.walk(dir, w.schedule)
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	if !w.recursive {
		return fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) walk(root string, fn func(path string)) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if w.match(path) {
			fn(path)
		}
		return nil
	})
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	ctx := w.ctx
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.index(ctx, path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) index(ctx context.Context, path string) {
	id, err := w.handler.IndexFile(ctx, path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("watcher failed to index file", zap.String("path", path), zap.Error(err))
		}
		return
	}
	w.logger.Debug("watcher indexed file", zap.String("path", path), zap.String("document_id", id))
}

func (w *Watcher) remove(path string) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		return
	}
	if _, err := w.handler.RemoveFile(ctx, path); err != nil {
		w.logger.Warn("watcher failed to remove file", zap.String("path", path), zap.Error(err))
	}
}

// Sync indexes every matching file already present under the roots and returns how many
// were handed to the handler without error.
func (w *Watcher) Sync(ctx context.Context) int {
	n := 0
	for _, root := range w.roots {
		w.walk(root, func(path string) {
			if ctx.Err() != nil {
				return
			}
			if _, err := w.handler.IndexFile(ctx, path); err != nil {
				w.logger.Warn("watcher failed to index file", zap.String("path", path), zap.Error(err))
				return
			}
			n++
		})
	}
	return n
}

// Directories returns the watched roots.
func (w *Watcher) Directories() []string {
	return append([]string(nil), w.roots...)
}

// Stop stops watching and drops pending changes.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	fsw := w.fsw
	w.fsw = nil
	close(w.done)
	w.mu.Unlock()

	w.wg.Wait()
	_ = fsw.Close()
	w.logger.Debug("watcher stopped")
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
