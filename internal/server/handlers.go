package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
)

const (
	defaultListLimit = 20
	maxListLimit     = 1000
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query),
		zap.String("document_id", query.DocumentID), zap.Int("top_k", query.TopK))
	response, err := s.engine.Query(r.Context(), &query)
	if err != nil {
		s.respondFailure(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleStoreDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("store document request", zap.String("file_name", input.FileName), zap.Int("bytes", len(input.Content)))
	id, err := s.engine.StoreDocument(r.Context(), &input)
	if err != nil {
		s.respondFailure(w, "store failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"document_id": id})
}

// handleUploadDocument saves a multipart "file" into the upload directory and indexes it.
// Uploading a file name again replaces the earlier document.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.config.Server.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) {
		s.respondError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	if !s.indexer.Allowed(name) {
		s.respondError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported file type %q", filepath.Ext(name)))
		return
	}
	path, err := s.saveUpload(name, file)
	if err != nil {
		s.logger.Error("saving upload failed", zap.String("file_name", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to save upload")
		return
	}
	s.logger.Debug("upload saved", zap.String("path", path), zap.Int64("bytes", header.Size))

	id, err := s.indexer.IndexFile(r.Context(), path)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Warn("failed to remove rejected upload", zap.String("path", path), zap.Error(rmErr))
		}
		s.respondFailure(w, "indexing upload failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"document_id": id, "file_name": name})
}

func (s *Server) saveUpload(name string, src io.Reader) (string, error) {
	dir := s.config.Storage.UploadDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit = min(limit, maxListLimit)
	docs, err := s.engine.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.respondFailure(w, "list documents failed", err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"offset":    offset,
		"limit":     limit,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.engine.GetDocument(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "get document failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("document_id", id))
	deleted, err := s.engine.DeleteDocument(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "deletion failed", err)
		return
	}
	if !deleted {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "document_id": id})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.respondFailure(w, "status failed", err)
		return
	}
	resp := map[string]interface{}{"index": stats}
	resp["config"] = map[string]interface{}{
		"embedding_provider": s.config.Embedding.Provider,
		"vector_index_type":  s.config.Vector.IndexType,
		"max_chunk_size":     s.config.Chunking.MaxChunkSize,
		"database_path":      s.config.Storage.DatabasePath,
		"upload_dir":         s.config.Storage.UploadDir,
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.IndexSnapshotPath,
		s.config.Storage.UploadDir,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectories(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, models.ErrEmptyDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrEmbeddingFailure):
		return http.StatusBadGateway
	case errors.Is(err, retrieval.ErrNoStorage):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure writes err with its mapped status. Server-side failures are logged at Error.
func (s *Server) respondFailure(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
