package ai_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/p-n-ai/pai-quizzer/internal/ai"
)

var textRequest = ai.CompletionRequest{
	Task:     ai.TaskQuestion,
	Messages: []ai.Message{{Role: "user", Content: "Write a question about photosynthesis."}},
}

var imageRequest = ai.CompletionRequest{
	Task: ai.TaskDescribe,
	Messages: []ai.Message{{
		Role:    "user",
		Content: "Describe this slide image.",
		Images:  []ai.Image{ai.NewImage([]byte("\x89PNG\r\n\x1a\n"))},
	}},
}

func TestRouter_Routing(t *testing.T) {
	type provider struct {
		name     string
		mock     *ai.MockProvider
		textOnly bool
	}
	tests := []struct {
		name      string
		providers []provider
		req       ai.CompletionRequest
		want      string
		wantErr   error
	}{
		{
			name:      "single provider",
			providers: []provider{{"openai", ai.NewMockProvider("What is chlorophyll?"), false}},
			req:       textRequest,
			want:      "What is chlorophyll?",
		},
		{
			name: "registration order",
			providers: []provider{
				{"first", ai.NewMockProvider("first"), false},
				{"second", ai.NewMockProvider("second"), false},
			},
			req:  textRequest,
			want: "first",
		},
		{
			name: "falls back after failure",
			providers: []provider{
				{"openai", &ai.MockProvider{Err: errors.New("rate limited")}, false},
				{"ollama", ai.NewMockProvider("fallback"), false},
			},
			req:  textRequest,
			want: "fallback",
		},
		{
			name: "text-only provider serves text",
			providers: []provider{
				{"deepseek", ai.NewMockProvider("deepseek"), true},
				{"google", ai.NewMockProvider("google"), false},
			},
			req:  textRequest,
			want: "deepseek",
		},
		{
			name: "image request skips text-only provider",
			providers: []provider{
				{"deepseek", ai.NewMockProvider("deepseek"), true},
				{"google", ai.NewMockProvider("A bar chart."), false},
			},
			req:  imageRequest,
			want: "A bar chart.",
		},
		{
			name:      "image request with only text providers",
			providers: []provider{{"deepseek", ai.NewMockProvider("deepseek"), true}},
			req:       imageRequest,
			wantErr:   ai.ErrNoVisionProvider,
		},
		{
			name: "all fail wraps last error",
			providers: []provider{
				{"openai", &ai.MockProvider{Err: errors.New("fail 1")}, false},
				{"google", &ai.MockProvider{Err: fmt.Errorf("status 429: %w", ai.ErrQuotaExhausted)}, false},
			},
			req:     textRequest,
			wantErr: ai.ErrQuotaExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := ai.NewRouter()
			for _, p := range tt.providers {
				var opts []ai.RegisterOption
				if p.textOnly {
					opts = append(opts, ai.TextOnly())
				}
				router.Register(p.name, p.mock, opts...)
			}

			resp, err := router.Complete(context.Background(), tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Complete() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if resp.Content != tt.want {
				t.Errorf("Content = %q, want %q", resp.Content, tt.want)
			}
		})
	}
}

func TestRouter_SkippedProviderNotCalled(t *testing.T) {
	textOnly := ai.NewMockProvider("deepseek")
	router := ai.NewRouter()
	router.Register("deepseek", textOnly, ai.TextOnly())
	router.Register("google", ai.NewMockProvider("ok"))

	if _, err := router.Complete(context.Background(), imageRequest); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if textOnly.Calls() != 0 {
		t.Errorf("text-only provider called %d times for an image request", textOnly.Calls())
	}
}

func TestRouter_RegisterReplaces(t *testing.T) {
	router := ai.NewRouter()
	router.Register("a", ai.NewMockProvider("old"))
	router.Register("b", ai.NewMockProvider("b"))
	router.Register("a", ai.NewMockProvider("new"))

	resp, err := router.Complete(context.Background(), textRequest)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "new" {
		t.Errorf("Content = %q, want replaced provider to keep first position", resp.Content)
	}
}

func TestRouter_NoProviders(t *testing.T) {
	router := ai.NewRouter()

	if _, err := router.Complete(context.Background(), textRequest); err == nil {
		t.Fatal("Complete() should return error with no providers")
	}
	if router.HealthCheck(context.Background()) == nil {
		t.Error("HealthCheck() should fail with no providers")
	}
	if router.HasProvider() || router.HasVisionProvider() {
		t.Error("empty router reports providers")
	}
}

func TestRouter_HasVisionProvider(t *testing.T) {
	router := ai.NewRouter()
	router.Register("deepseek", ai.NewMockProvider("ok"), ai.TextOnly())
	if !router.HasProvider() || router.HasVisionProvider() {
		t.Error("text-only router should have a provider but no vision provider")
	}
	router.Register("ollama", ai.NewMockProvider("ok"))
	if !router.HasVisionProvider() {
		t.Error("HasVisionProvider() = false after registering a vision provider")
	}
}

func TestRouter_HealthCheck(t *testing.T) {
	router := ai.NewRouter()
	router.Register("down", &ai.MockProvider{Err: errors.New("down")})
	router.Register("up", ai.NewMockProvider("ok"))

	if err := router.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil when one provider is up", err)
	}
}
