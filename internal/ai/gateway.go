// Package ai provides a provider-agnostic language-model gateway with
// fallback routing, image inputs and a retry policy.
package ai

import (
	"context"
	"encoding/base64"
	"net/http"
)

// TaskType labels a request for logging and routing.
type TaskType int

const (
	TaskDescribe TaskType = iota
	TaskQuestion
	TaskGrading
	TaskSummary
)

func (t TaskType) String() string {
	switch t {
	case TaskDescribe:
		return "describe"
	case TaskQuestion:
		return "question"
	case TaskGrading:
		return "grading"
	case TaskSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// Image is an inline image attached to a message.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// NewImage sniffs the MIME type from the bytes.
func NewImage(data []byte) Image {
	return Image{MIMEType: http.DetectContentType(data), Data: data}
}

// Base64 returns the standard base64 encoding of the image bytes.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as a data: URL.
func (i Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64()
}

// Message represents a chat message.
type Message struct {
	Role    string  `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"images,omitempty"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Completer produces a completion. Providers, the Router and the Retrier
// all satisfy it, so they can be stacked.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Completer
	HealthCheck(ctx context.Context) error
}

// Generate sends a single user prompt with optional images and returns the text.
func Generate(ctx context.Context, c Completer, task TaskType, prompt string, images []Image, maxTokens int) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		Messages:  []Message{{Role: "user", Content: prompt, Images: images}},
		MaxTokens: maxTokens,
		Task:      task,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
