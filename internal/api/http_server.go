package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/KyPython/offline-media-sync/internal/config"
	"github.com/KyPython/offline-media-sync/internal/database"
	"github.com/KyPython/offline-media-sync/internal/export"
	"github.com/KyPython/offline-media-sync/internal/models"
	"github.com/KyPython/offline-media-sync/internal/queue"
	"github.com/KyPython/offline-media-sync/internal/syncer"

	"github.com/rs/zerolog"
)

// maxSubmissionBytes caps one multipart submission request.
const maxSubmissionBytes = 256 * 1024 * 1024

// HTTPServer exposes the queue and coordinator over HTTP for local UI
// and administrative callers.
type HTTPServer struct {
	cfg         config.APIConfig
	manager     *queue.Manager
	coordinator *syncer.Coordinator
	exporter    *export.Exporter
	server      *http.Server
	logger      *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, manager *queue.Manager, coordinator *syncer.Coordinator, exporter *export.Exporter, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:         cfg,
		manager:     manager,
		coordinator: coordinator,
		exporter:    exporter,
		logger:      logger,
	}

	mux.HandleFunc("/api/v1/submissions", srv.handleSubmissions)
	mux.HandleFunc("/api/v1/sync", srv.handleSync)
	mux.HandleFunc("/api/v1/retry", srv.handleRetry)
	mux.HandleFunc("/api/v1/stats", srv.handleStats)
	mux.HandleFunc("/api/v1/items", srv.handleItems)
	mux.HandleFunc("/api/v1/records", srv.handleRecords)
	mux.HandleFunc("/api/v1/records/", srv.handleRecordItems)
	mux.HandleFunc("/api/v1/export", srv.handleExport)

	auth := NewHTTPAuth(cfg)
	handler := srv.loggingMiddleware(auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleSubmissions accepts a multipart form: title, description and one
// or more file parts.
func (s *HTTPServer) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart body expected")
		return
	}

	var title, description string
	var files []queue.FileInput
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed multipart body")
			return
		}

		if part.FileName() == "" {
			value, err := io.ReadAll(part)
			if err != nil {
				writeError(w, http.StatusBadRequest, "malformed multipart field")
				return
			}
			switch part.FormName() {
			case "title":
				title = string(value)
			case "description":
				description = string(value)
			}
			continue
		}

		data, err := io.ReadAll(part)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read file part")
			return
		}
		files = append(files, queue.FileInput{
			Name:     part.FileName(),
			MimeType: part.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	recordID, err := s.manager.Enqueue(r.Context(), title, description, files)
	if err != nil {
		var validationErr *queue.ValidationError
		var storageErr *queue.StorageExhaustedError
		switch {
		case errors.As(err, &validationErr):
			writeError(w, http.StatusBadRequest, validationErr.Error())
		case errors.As(err, &storageErr):
			writeJSON(w, http.StatusInsufficientStorage, map[string]any{
				"error":     storageErr.Error(),
				"available": storageErr.Available,
				"needed":    storageErr.Needed,
			})
		default:
			writeError(w, http.StatusInternalServerError, "failed to enqueue submission")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"record_id": recordID})
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := s.coordinator.SyncQueue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sync pass failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := s.coordinator.RetryFailed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "retry failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := s.manager.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":  stats,
		"status": s.coordinator.Status(),
	})
}

func (s *HTTPServer) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var items []*models.QueueItem
	var err error
	switch status := strings.TrimSpace(r.URL.Query().Get("status")); status {
	case "":
		items, err = s.manager.ListAll(r.Context())
	case models.StatusPending, models.StatusUploading, models.StatusSynced, models.StatusFailed:
		items, err = s.manager.ListByStatus(r.Context(), status)
	default:
		writeError(w, http.StatusBadRequest, "unknown status: "+status)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records, err := s.manager.ListRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// handleRecordItems serves /api/v1/records/{id}/items.
func (s *HTTPServer) handleRecordItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/records/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	recordID, suffix, found := strings.Cut(rest, "/")
	if !found || suffix != "items" || recordID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if _, err := s.manager.GetRecord(r.Context(), recordID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}

	items, err := s.manager.ListByRecord(r.Context(), recordID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list record items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export disabled")
		return
	}

	path, err := s.exporter.ExportQueue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
