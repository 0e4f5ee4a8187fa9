package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-quizzer/internal/api"
	"github.com/p-n-ai/pai-quizzer/internal/platform/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		debugLogs bool
		wantJSON  bool
	}{
		{"json info", config.LogConfig{Level: "info", Format: "json"}, false, true},
		{"json debug", config.LogConfig{Level: "DEBUG", Format: "json"}, true, true},
		{"text warn", config.LogConfig{Level: "warn", Format: "text"}, false, false},
		{"unknown level", config.LogConfig{Level: "loud"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.cfg)

			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.debugLogs {
				t.Errorf("debug enabled = %v, want %v", got, tt.debugLogs)
			}
			logger.Error("boom", "k", "v")
			if got := strings.HasPrefix(buf.String(), "{"); got != tt.wantJSON {
				t.Errorf("output %q, JSON = %v, want %v", buf.String(), got, tt.wantJSON)
			}
		})
	}
}

func TestNewRouter(t *testing.T) {
	if _, err := newRouter(config.AIConfig{}); err == nil {
		t.Fatal("newRouter() with no providers should fail")
	}

	r, err := newRouter(config.AIConfig{
		OpenAI: config.ProviderConfig{APIKey: "sk-test"},
		Ollama: config.OllamaConfig{Enabled: true, URL: "http://localhost:11434"},
	})
	if err != nil {
		t.Fatalf("newRouter() error = %v", err)
	}
	if !r.HasProvider() || !r.HasVisionProvider() {
		t.Error("router should hold vision-capable providers")
	}

	r, err = newRouter(config.AIConfig{DeepSeek: config.ProviderConfig{APIKey: "sk-ds"}})
	if err != nil {
		t.Fatalf("newRouter() error = %v", err)
	}
	if r.HasVisionProvider() {
		t.Error("DeepSeek should be registered text-only")
	}
}

func inMemoryConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{MaxUploadBytes: 1 << 20},
		AI: config.AIConfig{
			Ollama: config.OllamaConfig{Enabled: true, URL: "http://127.0.0.1:1"},
		},
		Embedding:   config.EmbeddingConfig{Backend: "hashing"},
		VectorStore: config.VectorStoreConfig{Backend: "memory"},
		BlobStore:   config.BlobStoreConfig{Backend: "memory"},
		OCR:         config.OCRConfig{Backend: "none"},
		Vision: config.VisionConfig{
			CacheBackend: "memory",
			CacheTTL:     time.Hour,
			HistorySize:  10,
			TopK:         3,
			MaxTokens:    200,
		},
		Quiz: config.QuizConfig{MaxAttempts: 2, CorrectFeedback: true, AttemptStore: "memory"},
	}
}

func TestBuild_InMemory(t *testing.T) {
	a, err := build(t.Context(), inMemoryConfig())
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	defer a.Close()

	if a.pipeline == nil || a.deps.Describer == nil || a.deps.Attempts == nil {
		t.Fatalf("build() left components unset: %+v", a.deps)
	}
	if _, ok := a.deps.Checks["database"]; ok {
		t.Error("database check registered without a database backend")
	}

	ts := httptest.NewServer(api.New(a.deps).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("GET /healthz = %d %v", resp.StatusCode, body)
	}

	// Nothing listens on the configured Ollama port.
	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("GET /readyz = %d, want 503", resp.StatusCode)
	}
}

func TestBuild_SQLite(t *testing.T) {
	cfg := inMemoryConfig()
	cfg.VectorStore = config.VectorStoreConfig{Backend: "sqlite", Path: t.TempDir() + "/vectors.db"}

	a, err := build(t.Context(), cfg)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	a.Close()
}

func TestBuild_NoProvider(t *testing.T) {
	cfg := inMemoryConfig()
	cfg.AI = config.AIConfig{}
	if _, err := build(t.Context(), cfg); err == nil {
		t.Fatal("build() without providers should fail")
	}
}
