package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-quizzer/internal/quiz"
)

type questionRequest struct {
	Type quiz.Type `json:"type"`
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")

	var (
		q   *quiz.Question
		err error
	)
	switch req.Type {
	case quiz.TypeText, "":
		q, err = s.Questions.GenerateText(r.Context(), id)
	case quiz.TypeImage:
		q, err = s.Questions.GenerateImage(r.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, `type must be "text" or "image"`)
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req quiz.BatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	qs, err := s.Batch.Generate(r.Context(), r.PathValue("id"), req, nil)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
}

// streamEvent is one websocket message of a streamed batch.
type streamEvent struct {
	Type     string         `json:"type"` // question, done or error
	Index    int            `json:"index,omitempty"`
	Question *quiz.Question `json:"question,omitempty"`
	Count    int            `json:"count,omitempty"`
	Error    string         `json:"error,omitempty"`
}

const streamWriteTimeout = 10 * time.Second

// handleStream generates a batch over a websocket, sending each question as
// it is produced. ?text= and ?image= set the counts.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req := quiz.BatchRequest{
		Text:  queryInt(r, "text"),
		Image: queryInt(r, "image"),
	}
	collectionID := r.PathValue("id")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	send := func(ev streamEvent) error {
		wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
		defer cancel()
		return wsjson.Write(wctx, conn, ev)
	}

	qs, err := s.Batch.Generate(ctx, collectionID, req, func(i int, q quiz.Question) {
		if err := send(streamEvent{Type: "question", Index: i, Question: &q}); err != nil {
			slog.Warn("stream write failed", "collection_id", collectionID, "error", err)
		}
	})
	if err != nil {
		_ = send(streamEvent{Type: "error", Error: err.Error()})
		conn.Close(websocket.StatusInternalError, "generation stopped")
		return
	}
	if err := send(streamEvent{Type: "done", Count: len(qs)}); err != nil {
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

type gradeRequest struct {
	Question quiz.Question `json:"question"`
	Answer   string        `json:"answer"`
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Question.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	grade, err := s.Grader.Grade(r.Context(), &req.Question, req.Answer)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grade)
}

type attemptRequest struct {
	StudentID string        `json:"student_id"`
	Question  quiz.Question `json:"question"`
	Answer    string        `json:"answer"`
}

type attemptResponse struct {
	Attempt   quiz.Attempt `json:"attempt"`
	Remaining int          `json:"remaining"`
}

func (s *Server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.StudentID == "" || req.Question.ID == "" {
		writeError(w, http.StatusBadRequest, "student_id and question.id are required")
		return
	}
	a, err := s.Attempts.Submit(r.Context(), req.StudentID, &req.Question, req.Answer)
	if err != nil {
		fail(w, r, err)
		return
	}
	remaining, err := s.Attempts.Remaining(r.Context(), req.StudentID, req.Question.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attemptResponse{Attempt: a, Remaining: remaining})
}
