package vision

import "sync"

// History is a bounded FIFO of recent descriptions. The oldest entry is
// evicted once Size is exceeded.
type History struct {
	items []string
	size  int
	mu    sync.Mutex
}

// NewHistory creates a history holding at most size entries.
func NewHistory(size int) *History {
	return &History{size: max(size, 0)}
}

// Add appends an entry, evicting the oldest if full.
func (h *History) Add(entry string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, entry)
	h.trim()
}

// Last returns up to n most recent entries, oldest first.
func (h *History) Last(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > len(h.items) {
		n = len(h.items)
	}
	if n <= 0 {
		return nil
	}
	return append([]string(nil), h.items[len(h.items)-n:]...)
}

// All returns a copy of every entry, oldest first.
func (h *History) All() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.items...)
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

// Size returns the bound.
func (h *History) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// SetSize changes the bound, evicting the oldest entries if needed.
func (h *History) SetSize(size int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.size = max(size, 0)
	h.trim()
}

// Clear drops every entry.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = nil
}

func (h *History) trim() {
	if over := len(h.items) - h.size; over > 0 {
		h.items = append([]string(nil), h.items[over:]...)
	}
}
