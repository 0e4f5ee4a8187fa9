package quiz_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/p-n-ai/pai-quizzer/internal/quiz"
	"github.com/p-n-ai/pai-quizzer/internal/rag"
)

type result struct {
	q   *quiz.Question
	err error
}

type fakeSource struct {
	text, image []result
	calls       []quiz.Type
}

func (f *fakeSource) next(t quiz.Type, results *[]result) (*quiz.Question, error) {
	f.calls = append(f.calls, t)
	if len(*results) == 0 {
		return &quiz.Question{Type: t, Question: fmt.Sprintf("%s %d", t, len(f.calls))}, nil
	}
	r := (*results)[0]
	*results = (*results)[1:]
	return r.q, r.err
}

func (f *fakeSource) GenerateText(context.Context, string) (*quiz.Question, error) {
	return f.next(quiz.TypeText, &f.text)
}

func (f *fakeSource) GenerateImage(context.Context, string) (*quiz.Question, error) {
	return f.next(quiz.TypeImage, &f.image)
}

func TestBatchGenerate_OrderAndPlaceholders(t *testing.T) {
	src := &fakeSource{
		image: []result{{err: rag.ErrNoImageChunk}, {err: errors.New("quota")}},
		text:  []result{{err: quiz.ErrNoQuestion}},
	}
	var seen []int
	b := quiz.NewBatchGenerator(src, quiz.WithInterval(0))

	got, err := b.Generate(t.Context(), "deck", quiz.BatchRequest{Image: 3, Text: 2}, func(i int, _ quiz.Question) {
		seen = append(seen, i)
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(src.calls) != 5 || src.calls[0] != quiz.TypeImage || src.calls[3] != quiz.TypeText {
		t.Errorf("calls = %v, want 3 image then 2 text", src.calls)
	}
	// skipped: no image chunk, unparseable text; placeholder: quota
	if len(got) != 3 {
		t.Fatalf("Generate() returned %d questions: %+v", len(got), got)
	}
	if !got[0].Placeholder || got[0].Question != "Error generating question" || got[0].Answer != "Please try again later" || got[0].Type != quiz.TypeImage {
		t.Errorf("placeholder = %+v", got[0])
	}
	if got[1].Type != quiz.TypeImage || got[2].Type != quiz.TypeText || got[2].Placeholder {
		t.Errorf("questions = %+v", got)
	}
	if len(seen) != 3 || seen[2] != 2 {
		t.Errorf("progress indexes = %v", seen)
	}
}

func TestBatchGenerate_Fallback(t *testing.T) {
	src := &fakeSource{
		image: []result{{err: quiz.ErrImageUnavailable}},
		text:  []result{{err: quiz.ErrNoQuestion}},
	}
	got, err := quiz.NewBatchGenerator(src, quiz.WithInterval(0)).Generate(t.Context(), "deck", quiz.BatchRequest{Image: 1, Text: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Question != "No questions could be generated due to API errors" || got[0].Answer != "Please try again later" {
		t.Errorf("Generate() = %+v, want single fallback", got)
	}
}

func TestBatchGenerate_Default(t *testing.T) {
	src := &fakeSource{}
	got, err := quiz.NewBatchGenerator(src, quiz.WithInterval(0)).Generate(t.Context(), "deck", quiz.BatchRequest{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 50 || got[0].Type != quiz.TypeImage || got[49].Type != quiz.TypeText {
		t.Errorf("default batch = %d questions", len(got))
	}
}

func TestBatchGenerate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	src := &fakeSource{}
	n := 0
	got, err := quiz.NewBatchGenerator(src, quiz.WithInterval(0)).Generate(ctx, "deck", quiz.BatchRequest{Text: 10}, func(int, quiz.Question) {
		n++
		if n == 3 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Generate() error = %v, want context.Canceled", err)
	}
	if len(got) != 3 {
		t.Errorf("partial batch = %d questions, want 3", len(got))
	}
}

func TestBatchGenerate_Paced(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing test in short mode")
	}
	src := &fakeSource{}
	b := quiz.NewBatchGenerator(src, quiz.WithInterval(50 * time.Millisecond))

	start := time.Now()
	if _, err := b.Generate(t.Context(), "deck", quiz.BatchRequest{Text: 3}, nil); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 paced calls took %v, want at least ~100ms", elapsed)
	}
}
