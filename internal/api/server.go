// Package api exposes ingestion, retrieval, question generation and grading
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-quizzer/internal/ai"
	"github.com/p-n-ai/pai-quizzer/internal/blobstore"
	"github.com/p-n-ai/pai-quizzer/internal/ingest"
	"github.com/p-n-ai/pai-quizzer/internal/quiz"
	"github.com/p-n-ai/pai-quizzer/internal/rag"
	"github.com/p-n-ai/pai-quizzer/internal/vectorstore"
	"github.com/p-n-ai/pai-quizzer/internal/vision"
)

const (
	defaultMaxUpload = 100 << 20
	readyTimeout     = 2 * time.Second
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Deps are the components the handlers call.
type Deps struct {
	Pipeline  *ingest.Pipeline
	Indexer   *rag.Indexer
	Retriever *rag.Retriever
	Questions quiz.QuestionSource
	Batch     *quiz.BatchGenerator
	Grader    *quiz.Grader
	Attempts  *quiz.AttemptPolicy
	Describer *vision.Describer
	Blobs     blobstore.Store
	Usage     *ai.Budget

	// Checks are run by /readyz, keyed by dependency name.
	Checks map[string]Check
	// MaxUploadBytes caps uploaded decks and images (default 100 MiB).
	MaxUploadBytes int64
}

// Server holds the HTTP handlers.
type Server struct {
	Deps
}

// New creates a server.
func New(d Deps) *Server {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = defaultMaxUpload
	}
	return &Server{Deps: d}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /v1/presentations", s.handleIngest)
	mux.HandleFunc("DELETE /v1/collections/{id}", s.handleDeleteCollection)
	mux.HandleFunc("POST /v1/collections/{id}/query", s.handleQuery)
	mux.HandleFunc("GET /v1/collections/{id}/slides/{n}", s.handleSlide)
	mux.HandleFunc("POST /v1/collections/{id}/questions", s.handleQuestion)
	mux.HandleFunc("POST /v1/collections/{id}/questions/batch", s.handleBatch)
	mux.HandleFunc("GET /v1/collections/{id}/questions/stream", s.handleStream)

	mux.HandleFunc("POST /v1/grade", s.handleGrade)
	mux.HandleFunc("POST /v1/attempts", s.handleAttempt)

	mux.HandleFunc("POST /v1/images/describe", s.handleDescribe)
	mux.HandleFunc("GET /v1/images/stats", s.handleDescriberStats)
	mux.HandleFunc("DELETE /v1/images/cache", s.handleClearCache)
	mux.HandleFunc("GET /v1/images/{id}", s.handleImage)

	mux.HandleFunc("GET /v1/usage", s.handleUsage)
	mux.HandleFunc("DELETE /v1/usage", s.handleResetUsage)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for name, check := range s.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
		cancel()
	}
	if len(failed) > 0 {
		slog.Warn("readiness check failed", "failed", failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.Usage == nil {
		writeError(w, http.StatusNotFound, "usage metering is disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.Usage.Usage())
}

func (s *Server) handleResetUsage(w http.ResponseWriter, r *http.Request) {
	if s.Usage == nil {
		writeError(w, http.StatusNotFound, "usage metering is disabled")
		return
	}
	s.Usage.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vectorstore.ErrCollectionNotFound),
		errors.Is(err, rag.ErrSlideNotFound),
		errors.Is(err, blobstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrEmptyContent),
		errors.Is(err, rag.ErrNoImageChunk),
		errors.Is(err, quiz.ErrNoQuestion),
		errors.Is(err, quiz.ErrImageUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, quiz.ErrAttemptsExhausted),
		errors.Is(err, quiz.ErrAttemptConflict):
		return http.StatusConflict
	case errors.Is(err, ai.ErrQuotaExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, ai.ErrNoVisionProvider):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)).Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return false
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
