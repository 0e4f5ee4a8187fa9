package quiz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAttempts is how many graded attempts a student gets per question.
const DefaultMaxAttempts = 2

// Attempt is one graded answer. Attempts are never updated; a retry is a new
// record with the next number.
type Attempt struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	QuestionID string    `json:"question_id"`
	Number     int       `json:"number"`
	Answer     string    `json:"answer"`
	Grade      int       `json:"grade"`
	Feedback   string    `json:"feedback"`
	CreatedAt  time.Time `json:"created_at"`
}

// AttemptStore persists attempts.
type AttemptStore interface {
	// RecordAttempt stores a; a.Number must be one more than the latest
	// recorded number for the pair, else ErrAttemptConflict.
	RecordAttempt(ctx context.Context, a Attempt) (Attempt, error)
	// ListAttempts returns a student's attempts at a question, oldest first.
	ListAttempts(ctx context.Context, studentID, questionID string) ([]Attempt, error)
}

type attemptKey struct{ student, question string }

// MemoryAttemptStore is an in-memory AttemptStore.
type MemoryAttemptStore struct {
	attempts map[attemptKey][]Attempt
	mu       sync.RWMutex
}

// NewMemoryAttemptStore creates an empty store.
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{attempts: make(map[attemptKey][]Attempt)}
}

func (s *MemoryAttemptStore) RecordAttempt(_ context.Context, a Attempt) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := attemptKey{a.StudentID, a.QuestionID}
	if a.Number != len(s.attempts[key])+1 {
		return Attempt{}, fmt.Errorf("attempt %d for %s: %w", a.Number, a.QuestionID, ErrAttemptConflict)
	}
	a.ID = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.attempts[key] = append(s.attempts[key], a)
	return a, nil
}

func (s *MemoryAttemptStore) ListAttempts(_ context.Context, studentID, questionID string) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Attempt(nil), s.attempts[attemptKey{studentID, questionID}]...), nil
}

// AnswerGrader grades a single answer.
type AnswerGrader interface {
	Grade(ctx context.Context, q *Question, answer string) (Grade, error)
}

// AttemptPolicy limits how often a student may be graded on one question:
// at most MaxAttempts times, and never again after full marks.
type AttemptPolicy struct {
	grader      AnswerGrader
	store       AttemptStore
	maxAttempts int
	mu          sync.Mutex
}

// PolicyOption configures an AttemptPolicy.
type PolicyOption func(*AttemptPolicy)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) PolicyOption {
	return func(p *AttemptPolicy) { p.maxAttempts = n }
}

// NewAttemptPolicy wraps a grader with attempt counting backed by store.
func NewAttemptPolicy(grader AnswerGrader, store AttemptStore, opts ...PolicyOption) *AttemptPolicy {
	p := &AttemptPolicy{grader: grader, store: store, maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Remaining reports how many graded attempts the student has left.
func (p *AttemptPolicy) Remaining(ctx context.Context, studentID, questionID string) (int, error) {
	attempts, err := p.store.ListAttempts(ctx, studentID, questionID)
	if err != nil {
		return 0, fmt.Errorf("list attempts: %w", err)
	}
	return p.remaining(attempts), nil
}

func (p *AttemptPolicy) remaining(attempts []Attempt) int {
	if n := len(attempts); n > 0 && attempts[n-1].Grade == MaxGrade {
		return 0
	}
	return max(p.maxAttempts-len(attempts), 0)
}

// Submit grades answer and records it as the student's next attempt. A model
// failure does not use up an attempt.
func (p *AttemptPolicy) Submit(ctx context.Context, studentID string, q *Question, answer string) (Attempt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	attempts, err := p.store.ListAttempts(ctx, studentID, q.ID)
	if err != nil {
		return Attempt{}, fmt.Errorf("list attempts: %w", err)
	}
	if p.remaining(attempts) == 0 {
		return Attempt{}, fmt.Errorf("question %s: %w", q.ID, ErrAttemptsExhausted)
	}

	grade, err := p.grader.Grade(ctx, q, answer)
	if err != nil {
		return Attempt{}, err
	}

	a, err := p.store.RecordAttempt(ctx, Attempt{
		StudentID:  studentID,
		QuestionID: q.ID,
		Number:     len(attempts) + 1,
		Answer:     answer,
		Grade:      grade.Score,
		Feedback:   grade.Feedback,
	})
	if err != nil {
		return Attempt{}, fmt.Errorf("record attempt: %w", err)
	}
	return a, nil
}

// FinalScore totals the latest grade of every question; unanswered questions
// count as 0.
func FinalScore(ctx context.Context, store AttemptStore, studentID, title string, questions []Question) (ScoreReport, error) {
	points := 0
	for _, q := range questions {
		attempts, err := store.ListAttempts(ctx, studentID, q.ID)
		if err != nil {
			return ScoreReport{}, fmt.Errorf("list attempts for %s: %w", q.ID, err)
		}
		if n := len(attempts); n > 0 {
			points += attempts[n-1].Grade
		}
	}
	return newScoreReport(title, len(questions), points), nil
}
