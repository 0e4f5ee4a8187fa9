package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/p-n-ai/pai-quizzer/internal/rag"
)

const (
	defaultBatchInterval = 2 * time.Second
	defaultBatchCount    = 25
)

// QuestionSource generates single questions.
type QuestionSource interface {
	GenerateText(ctx context.Context, collectionID string) (*Question, error)
	GenerateImage(ctx context.Context, collectionID string) (*Question, error)
}

// BatchRequest says how many questions of each type to generate. A zero
// request means DefaultBatchRequest.
type BatchRequest struct {
	Text  int `json:"text"`
	Image int `json:"image"`
}

// DefaultBatchRequest is 25 image questions followed by 25 text questions.
var DefaultBatchRequest = BatchRequest{Text: defaultBatchCount, Image: defaultBatchCount}

// BatchGenerator runs question generation in a paced sequential loop.
type BatchGenerator struct {
	source  QuestionSource
	limiter *rate.Limiter
}

// BatchOption configures a BatchGenerator.
type BatchOption func(*BatchGenerator)

// WithInterval sets the minimum spacing between generation calls; zero
// disables pacing.
func WithInterval(d time.Duration) BatchOption {
	return func(b *BatchGenerator) {
		if d <= 0 {
			b.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		b.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewBatchGenerator creates a batch generator pacing calls every 2s.
func NewBatchGenerator(source QuestionSource, opts ...BatchOption) *BatchGenerator {
	b := &BatchGenerator{source: source, limiter: rate.NewLimiter(rate.Every(defaultBatchInterval), 1)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Progress is called after each question is added to the batch.
type Progress func(index int, q Question)

// Generate produces image questions then text questions. A generation that
// yields nothing usable is skipped; a failed model call becomes a
// placeholder so earlier progress is kept. If nothing at all was produced a
// single fallback placeholder is returned. Only context cancellation returns
// an error, together with the questions generated so far.
func (b *BatchGenerator) Generate(ctx context.Context, collectionID string, req BatchRequest, progress Progress) ([]Question, error) {
	if req.Text <= 0 && req.Image <= 0 {
		req = DefaultBatchRequest
	}

	var out []Question
	emit := func(q Question) {
		out = append(out, q)
		if progress != nil {
			progress(len(out)-1, q)
		}
	}

	run := func(t Type, n int, gen func(context.Context, string) (*Question, error)) error {
		for range n {
			if err := b.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("wait for rate limit: %w", err)
			}
			q, err := gen(ctx, collectionID)
			switch {
			case err == nil:
				emit(*q)
			case ctx.Err() != nil:
				return ctx.Err()
			case noResult(err):
				slog.Warn("question skipped", "type", t, "collection_id", collectionID, "error", err)
			default:
				slog.Warn("question generation failed", "type", t, "collection_id", collectionID, "error", err)
				emit(Placeholder(t))
			}
		}
		return nil
	}

	if err := run(TypeImage, req.Image, b.source.GenerateImage); err != nil {
		return out, err
	}
	if err := run(TypeText, req.Text, b.source.GenerateText); err != nil {
		return out, err
	}

	if len(out) == 0 {
		emit(fallback())
	}
	return out, nil
}

func noResult(err error) bool {
	return errors.Is(err, ErrNoQuestion) ||
		errors.Is(err, ErrImageUnavailable) ||
		errors.Is(err, rag.ErrNoImageChunk) ||
		errors.Is(err, rag.ErrEmptyContent)
}
