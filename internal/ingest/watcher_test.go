package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/p-n-ai/pai-quizzer/internal/ingest"
)

func TestWatcher_IngestsSettledFiles(t *testing.T) {
	dir := t.TempDir()
	got := make(chan string, 4)

	w, err := ingest.NewWatcher(func(_ context.Context, path string) (ingest.Result, error) {
		got <- filepath.Base(path)
		return ingest.Result{CollectionID: "c"}, nil
	}, ingest.WithSettle(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, dir) }()
	defer func() {
		cancel()
		<-done
	}()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	for _, name := range []string{"notes.txt", "~$lecture.pptx", "lecture.pptx"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case name := <-got:
		if name != "lecture.pptx" {
			t.Errorf("ingested %q, want lecture.pptx", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not ingest lecture.pptx")
	}

	select {
	case name := <-got:
		t.Errorf("unexpected second ingestion of %q", name)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w, err := ingest.NewWatcher(func(context.Context, string) (ingest.Result, error) {
		return ingest.Result{}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Run(t.Context(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Run() on a missing directory should fail")
	}
}
