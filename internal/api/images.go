package api

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-quizzer/internal/vision"
)

// handleDescribe describes a raw image body. ?ext=, ?slide= and
// ?collection_id= add context.
func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.MaxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return
	}
	q := r.URL.Query()
	slide, _ := strconv.Atoi(q.Get("slide"))

	desc, err := s.Describer.Describe(r.Context(), vision.Request{
		Image:        data,
		Extension:    q.Get("ext"),
		SlideNumber:  slide,
		CollectionID: q.Get("collection_id"),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"description": desc})
}

func (s *Server) handleDescriberStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Describer.Stats())
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.Describer.ClearCache(r.Context()); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	blob, err := s.Blobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ct := mime.TypeByExtension("." + blob.Extension)
	if ct == "" {
		ct = http.DetectContentType(blob.Data)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}
