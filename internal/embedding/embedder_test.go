package embedding_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/p-n-ai/pai-quizzer/internal/embedding"
)

func TestHashing_Deterministic(t *testing.T) {
	h := embedding.NewHashing(64)
	a, _ := h.Embed(context.Background(), "Whisk the eggs gently")
	b, _ := h.Embed(context.Background(), "Whisk the eggs gently")

	if len(a) != 64 {
		t.Fatalf("dim = %d, want 64", len(a))
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same text should embed identically")
	}

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", norm)
	}
}

func TestHashing_SimilarityOrdering(t *testing.T) {
	h := embedding.NewHashing(0)
	ctx := context.Background()
	query, _ := h.Embed(ctx, "capital of France")
	near, _ := h.Embed(ctx, "The capital of France is Paris.")
	far, _ := h.Embed(ctx, "Photosynthesis happens in chloroplasts.")

	if embedding.Cosine(query, near) <= embedding.Cosine(query, far) {
		t.Error("related text should score higher than unrelated text")
	}
}

func TestHashing_EmptyText(t *testing.T) {
	h := embedding.NewHashing(16)
	v, err := h.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatal("empty text should produce a zero vector")
		}
	}
}

func TestTokenize(t *testing.T) {
	got := embedding.Tokenize("The Eggs, and a PAN!")
	want := []string{"eggs", "pan"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %v, want %v", got, want)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"zero", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := embedding.Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestOllama_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	o := embedding.NewOllama(server.URL, "")
	vecs, err := o.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 3 {
		t.Errorf("unexpected vectors: %v", vecs)
	}
	if o.Name() != "ollama:nomic-embed-text" {
		t.Errorf("Name() = %q", o.Name())
	}
}

func TestOllama_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"empty embedding", http.StatusOK, `{"embedding":[]}`},
		{"bad json", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			if _, err := embedding.NewOllama(server.URL, "m").Embed(context.Background(), "x"); err == nil {
				t.Error("Embed() should fail")
			}
		})
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := embedding.NewGemini(context.Background(), "", ""); err == nil {
		t.Fatal("NewGemini() should require an API key")
	}
}
