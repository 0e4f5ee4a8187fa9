package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultSettle = 500 * time.Millisecond

// IngestFunc ingests one file.
type IngestFunc func(ctx context.Context, path string) (Result, error)

// Watcher ingests presentation files dropped into or rewritten in a directory.
type Watcher struct {
	watcher    *fsnotify.Watcher
	ingest     IngestFunc
	extensions []string
	settle     time.Duration
	onResult   func(path string, res Result, err error)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithExtensions limits which files are ingested (default .pptx).
func WithExtensions(exts ...string) WatcherOption {
	return func(w *Watcher) {
		w.extensions = w.extensions[:0]
		for _, e := range exts {
			w.extensions = append(w.extensions, strings.ToLower(e))
		}
	}
}

// WithSettle sets how long a file must stay unchanged before it is ingested.
func WithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.settle = d }
}

// WithResultHandler is called after every ingestion attempt.
func WithResultHandler(fn func(path string, res Result, err error)) WatcherOption {
	return func(w *Watcher) { w.onResult = fn }
}

// NewWatcher creates a directory watcher calling ingest for each settled file.
func NewWatcher(ingest IngestFunc, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	w := &Watcher{
		watcher:    fw,
		ingest:     ingest,
		extensions: []string{".pptx"},
		settle:     defaultSettle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches dir until ctx is done. Files are ingested one at a time.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	defer w.watcher.Close()
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	slog.Info("watching for presentations", "dir", dir, "extensions", w.extensions)

	ready := make(chan string, 16)
	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok {
			t.Reset(w.settle)
			return
		}
		pending[path] = time.AfterFunc(w.settle, func() {
			mu.Lock()
			delete(pending, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.watched(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				schedule(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", "dir", dir, "error", err)
		case path := <-ready:
			res, err := w.ingest(ctx, path)
			if err != nil {
				slog.Error("ingest failed", "path", path, "error", err)
			}
			if w.onResult != nil {
				w.onResult(path, res, err)
			}
		}
	}
}

func (w *Watcher) watched(path string) bool {
	if strings.HasPrefix(filepath.Base(path), "~$") {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(path)))
}
