// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/pkg/utils"
)

// WatchService reports the directories kept in sync by the watcher.
type WatchService interface {
	Directories() []string
}

// Server is the HTTP server for the kotae API.
type Server struct {
	engine  *retrieval.Engine
	indexer *indexer.Indexer
	config  *config.Config
	watch   WatchService
	logger  *zap.Logger
	server  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithWatchService exposes the watched directories on the status endpoints.
func WithWatchService(w WatchService) Option {
	return func(s *Server) { s.watch = w }
}

// NewServer creates a server with the given dependencies.
func NewServer(engine *retrieval.Engine, idx *indexer.Indexer, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		indexer: idx,
		config:  cfg,
		logger:  utils.LoggerOrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the API handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/documents", s.handleStoreDocument)
		r.Post("/documents/upload", s.handleUploadDocument)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Get("/status", s.handleStatus)
		r.Get("/watch/directories", s.handleWatchDirectories)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
// It returns nil after a graceful Stop.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
