package api

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/p-n-ai/pai-quizzer/internal/presentation"
	"github.com/p-n-ai/pai-quizzer/internal/rag"
)

const defaultQueryK = 3

type ingestResponse struct {
	CollectionID string `json:"collection_id"`
	Name         string `json:"name"`
	Slides       int    `json:"slides"`
	Images       int    `json:"images"`
	Described    int    `json:"described"`
	Failures     any    `json:"failures,omitempty"`
}

// handleIngest accepts a raw .pptx body; ?name= sets the deck name.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.MaxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "presentation"
	}

	p, err := presentation.ParsePPTX(bytes.NewReader(body), int64(len(body)), name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.Pipeline.Ingest(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}

	resp := ingestResponse{
		CollectionID: res.CollectionID,
		Name:         p.Name,
		Slides:       len(p.Slides),
		Images:       len(p.Images()),
		Described:    res.Report.Described,
	}
	if len(res.Report.Failures) > 0 {
		resp.Failures = res.Report.Failures
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.Indexer.RemoveCollection(r.Context(), r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type queryRequest struct {
	Text string `json:"text"`
	K    int    `json:"k"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.K <= 0 {
		req.K = defaultQueryK
	}
	chunks, err := s.Retriever.Query(r.Context(), r.PathValue("id"), req.Text, req.K)
	if err != nil {
		fail(w, r, err)
		return
	}
	if chunks == nil {
		chunks = []rag.Chunk{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (s *Server) handleSlide(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "slide number must be a positive integer")
		return
	}
	chunk, err := s.Retriever.ContextBySlideNumber(r.Context(), r.PathValue("id"), n)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}
