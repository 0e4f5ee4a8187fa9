package ai_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/p-n-ai/pai-quizzer/internal/ai"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func TestRetrier(t *testing.T) {
	quota := fmt.Errorf("status 429: %w", ai.ErrQuotaExhausted)
	other := errors.New("connection reset")

	tests := []struct {
		name       string
		errs       []error
		wantErr    bool
		wantCalls  int
		wantDelays []time.Duration
	}{
		{"first try", nil, false, 1, nil},
		{"quota then success", []error{quota}, false, 2, []time.Duration{60 * time.Second}},
		{"other then success", []error{other}, false, 2, []time.Duration{time.Second}},
		{"mixed then success", []error{other, quota}, false, 3, []time.Duration{time.Second, 60 * time.Second}},
		{"exhausted", []error{other, other, quota}, true, 3, []time.Duration{time.Second, time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := ai.NewMockProvider("done")
			mock.Errs = tt.errs
			rec := &sleepRecorder{}

			r := ai.NewRetrier(mock, ai.WithSleep(rec.sleep))
			resp, err := r.Complete(context.Background(), ai.CompletionRequest{Task: ai.TaskDescribe})

			if (err != nil) != tt.wantErr {
				t.Fatalf("Complete() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && resp.Content != "done" {
				t.Errorf("Content = %q", resp.Content)
			}
			if mock.Calls() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", mock.Calls(), tt.wantCalls)
			}
			if !reflect.DeepEqual(rec.delays, tt.wantDelays) {
				t.Errorf("delays = %v, want %v", rec.delays, tt.wantDelays)
			}
		})
	}
}

func TestRetrier_ExhaustedKeepsCause(t *testing.T) {
	mock := &ai.MockProvider{Err: fmt.Errorf("429: %w", ai.ErrQuotaExhausted)}
	r := ai.NewRetrier(mock,
		ai.WithRetryPolicy(ai.RetryPolicy{MaxAttempts: 2}),
		ai.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)

	_, err := r.Complete(context.Background(), ai.CompletionRequest{})
	if !errors.Is(err, ai.ErrQuotaExhausted) {
		t.Errorf("error = %v, want wrapped ErrQuotaExhausted", err)
	}
	if mock.Calls() != 2 {
		t.Errorf("calls = %d, want 2", mock.Calls())
	}
}

func TestRetrier_ContextCancelledDuringWait(t *testing.T) {
	mock := &ai.MockProvider{Err: errors.New("flaky")}
	r := ai.NewRetrier(mock, ai.WithRetryPolicy(ai.RetryPolicy{MaxAttempts: 3, Backoff: time.Hour}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Complete(ctx, ai.CompletionRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("wait did not honour context cancellation")
	}
	if mock.Calls() != 1 {
		t.Errorf("calls = %d, want 1", mock.Calls())
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := ai.DefaultRetryPolicy()
	if p.MaxAttempts != 3 || p.QuotaDelay != time.Minute || p.Backoff != time.Second {
		t.Errorf("DefaultRetryPolicy() = %+v", p)
	}
}
