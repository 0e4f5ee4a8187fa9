package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds retries of a model call.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	QuotaDelay  time.Duration // wait after ErrQuotaExhausted
	Backoff     time.Duration // wait after any other error
}

// DefaultRetryPolicy is three attempts, 60s after quota errors and 1s otherwise.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, QuotaDelay: 60 * time.Second, Backoff: time.Second}
}

// Retrier wraps a Completer with a RetryPolicy.
type Retrier struct {
	next   Completer
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// RetryOption configures a Retrier.
type RetryOption func(*Retrier)

// WithRetryPolicy overrides the default policy.
func WithRetryPolicy(p RetryPolicy) RetryOption {
	return func(r *Retrier) { r.policy = p }
}

// WithSleep replaces the wait between attempts (tests use a recorder).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(r *Retrier) { r.sleep = fn }
}

// NewRetrier wraps next with the default policy.
func NewRetrier(next Completer, opts ...RetryOption) *Retrier {
	r := &Retrier{next: next, policy: DefaultRetryPolicy(), sleep: sleepContext}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrier) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	attempts := max(r.policy.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := r.next.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == attempts {
			break
		}

		delay := r.policy.Backoff
		if errors.Is(err, ErrQuotaExhausted) {
			delay = r.policy.QuotaDelay
		}
		slog.Warn("AI call failed, retrying",
			"task", req.Task.String(),
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return CompletionResponse{}, fmt.Errorf("retry wait: %w", err)
		}
	}
	return CompletionResponse{}, fmt.Errorf("%s failed after %d attempts: %w", req.Task, attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
