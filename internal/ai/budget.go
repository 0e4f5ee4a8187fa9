package ai

import (
	"context"
	"fmt"
	"sync"
)

// Budget meters the tokens spent through a Completer and, when a limit is
// set, refuses further calls once it is reached.
type Budget struct {
	next Completer

	mu     sync.RWMutex
	limit  int64 // 0 means unlimited
	used   int64
	byTask map[string]int64
	calls  map[string]int64
}

// Usage is a snapshot of a Budget.
type Usage struct {
	Limit  int64            `json:"limit"`
	Used   int64            `json:"used"`
	ByTask map[string]int64 `json:"by_task"`
	Calls  map[string]int64 `json:"calls"`
}

// NewBudget wraps next with a token budget. A limit of zero or less is
// unlimited.
func NewBudget(next Completer, limit int64) *Budget {
	return &Budget{
		next:   next,
		limit:  max(limit, 0),
		byTask: make(map[string]int64),
		calls:  make(map[string]int64),
	}
}

// Complete forwards req unless the budget is spent. Spent budgets report
// ErrQuotaExhausted so callers treat them like provider quota errors.
func (b *Budget) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if ok, used := b.check(); !ok {
		return CompletionResponse{}, fmt.Errorf("token budget spent (%d of %d): %w", used, b.limit, ErrQuotaExhausted)
	}
	resp, err := b.next.Complete(ctx, req)
	if err != nil {
		return resp, err
	}
	b.record(req.Task.String(), resp.TotalTokens())
	return resp, nil
}

func (b *Budget) check() (bool, int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.limit == 0 || b.used < b.limit, b.used
}

func (b *Budget) record(task string, tokens int) {
	if tokens < 0 {
		tokens = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used += int64(tokens)
	b.byTask[task] += int64(tokens)
	b.calls[task]++
}

// SetLimit changes the limit. Zero or less removes it.
func (b *Budget) SetLimit(tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = max(tokens, 0)
}

// Usage returns the current counters.
func (b *Budget) Usage() Usage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	u := Usage{
		Limit:  b.limit,
		Used:   b.used,
		ByTask: make(map[string]int64, len(b.byTask)),
		Calls:  make(map[string]int64, len(b.calls)),
	}
	for k, v := range b.byTask {
		u.ByTask[k] = v
	}
	for k, v := range b.calls {
		u.Calls[k] = v
	}
	return u
}

// Reset zeroes the counters and keeps the limit.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = 0
	clear(b.byTask)
	clear(b.calls)
}
