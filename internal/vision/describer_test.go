package vision_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-quizzer/internal/ai"
	"github.com/p-n-ai/pai-quizzer/internal/presentation"
	"github.com/p-n-ai/pai-quizzer/internal/rag"
	"github.com/p-n-ai/pai-quizzer/internal/vectorstore"
	"github.com/p-n-ai/pai-quizzer/internal/vision"
)

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type stubOCR struct {
	text string
	err  error
}

func (s stubOCR) ExtractText(context.Context, []byte) (string, error) { return s.text, s.err }

type stubRetriever struct {
	chunks   []rag.Chunk
	queryErr error
	slide    rag.Chunk
	slideErr error
	queries  []string
}

func (s *stubRetriever) Query(_ context.Context, _, text string, _ int) ([]rag.Chunk, error) {
	s.queries = append(s.queries, text)
	return s.chunks, s.queryErr
}

func (s *stubRetriever) ContextBySlideNumber(context.Context, string, int) (rag.Chunk, error) {
	return s.slide, s.slideErr
}

func TestDescribe_BlankImageNoContext(t *testing.T) {
	model := ai.NewScriptedProvider("Description: A plain white square.", "Description: A blank white image.")
	d := vision.NewDescriber(model, nil, vision.WithOCR(stubOCR{}))

	got, err := d.Describe(t.Context(), vision.Request{Image: solidPNG(t, color.White), Extension: "png"})
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if got != "A blank white image." {
		t.Errorf("Describe() = %q", got)
	}
	if model.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", model.Calls())
	}
	req := model.LastRequest()
	if req.Task != ai.TaskDescribe || req.MaxTokens != 200 {
		t.Errorf("request task=%v max_tokens=%d", req.Task, req.MaxTokens)
	}
	if len(req.Messages[0].Images) != 1 || req.Messages[0].Images[0].MIMEType != "image/png" {
		t.Errorf("image not attached as png: %+v", req.Messages[0].Images)
	}
}

func TestDescribe_OCRFailureDegrades(t *testing.T) {
	model := ai.NewMockProvider("Description: A chart.")
	d := vision.NewDescriber(model, nil, vision.WithOCR(stubOCR{err: errors.New("tesseract missing")}))

	if _, err := d.Describe(t.Context(), vision.Request{Image: []byte("img")}); err != nil {
		t.Fatalf("Describe() error = %v, want OCR failure swallowed", err)
	}
}

func TestDescribe_PromptsCarryContext(t *testing.T) {
	model := ai.NewScriptedProvider("Description: Mitochondria diagram.", "Description: A labelled mitochondria diagram.")
	ret := &stubRetriever{
		slide: rag.Chunk{Document: "Cell organelles"},
		chunks: []rag.Chunk{{
			Document: "Mitochondria",
			Metadata: vectorstore.Metadata{SlideNumber: 2, Items: []presentation.ItemMetadata{
				{Type: presentation.ItemText, SlideNumber: 2},
				{Type: presentation.ItemImage, SlideNumber: 2, ImageID: "a"},
				{Type: presentation.ItemImage, SlideNumber: 2, ImageID: "b"},
			}},
		}},
	}
	d := vision.NewDescriber(model, ret, vision.WithOCR(stubOCR{text: "ATP"}))

	_, err := d.Describe(t.Context(), vision.Request{Image: []byte("img"), SlideNumber: 2, CollectionID: "deck"})
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}

	reqs := model.Requests()
	first := reqs[0].Messages[0].Content
	if !strings.Contains(first, "ATP") || !strings.Contains(first, "Cell organelles") {
		t.Errorf("enhanced prompt missing OCR or slide text:\n%s", first)
	}
	if len(ret.queries) != 1 || !strings.Contains(ret.queries[0], "Mitochondria diagram.") {
		t.Errorf("retrieval query = %v", ret.queries)
	}
	if second := reqs[1].Messages[0].Content; !strings.Contains(second, "Related content from the presentation:\nMitochondria") {
		t.Errorf("final prompt missing related content:\n%s", second)
	}
}

func TestDescribe_RetrievalFailureDegrades(t *testing.T) {
	model := ai.NewMockProvider("Description: A map.")
	ret := &stubRetriever{queryErr: vectorstore.ErrCollectionNotFound, slideErr: rag.ErrSlideNotFound}
	d := vision.NewDescriber(model, ret)

	got, err := d.Describe(t.Context(), vision.Request{Image: []byte("img"), SlideNumber: 1, CollectionID: "gone"})
	if err != nil || got != "A map." {
		t.Fatalf("Describe() = %q, %v", got, err)
	}
}

func TestDescribe_ModelFailureIsFatal(t *testing.T) {
	model := &ai.MockProvider{Responses: []string{"Description: ok"}, Errs: []error{nil, errors.New("boom")}}
	d := vision.NewDescriber(model, nil)

	if _, err := d.Describe(t.Context(), vision.Request{Image: []byte("img")}); err == nil {
		t.Fatal("Describe() should fail when the final pass fails")
	}
	if len(d.History()) != 0 {
		t.Error("failed description must not enter history")
	}
}

func TestDescribe_EmptyEnhancedReplyContinues(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"blank", ""},
		{"whitespace", "   "},
		{"empty json", `{"Description": ""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := ai.NewScriptedProvider(tt.reply, "Description: A blank grey square.")
			d := vision.NewDescriber(model, nil)

			got, err := d.Describe(t.Context(), vision.Request{Image: []byte("img")})
			if err != nil {
				t.Fatalf("Describe() error = %v", err)
			}
			if got != "A blank grey square." {
				t.Errorf("Describe() = %q", got)
			}
			if model.Calls() != 2 {
				t.Errorf("model calls = %d, want 2", model.Calls())
			}
			if strings.Contains(model.LastRequest().Messages[0].Content, "Current description") {
				t.Error("final prompt should omit an empty current description")
			}
		})
	}
}

func TestDescribe_EmptyFinalReply(t *testing.T) {
	model := ai.NewScriptedProvider("Description: A chart.", "   ")
	d := vision.NewDescriber(model, nil)
	if _, err := d.Describe(t.Context(), vision.Request{Image: []byte("img")}); !errors.Is(err, vision.ErrNoDescription) {
		t.Errorf("Describe() error = %v, want ErrNoDescription", err)
	}
	if len(d.History()) != 0 {
		t.Error("empty description must not enter history")
	}
}

func TestDescribe_CacheWithinTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	cache := vision.NewMemoryCacheWithClock(func() time.Time { return now })
	model := ai.NewMockProvider("Description: A volcano cross-section.")
	d := vision.NewDescriber(model, nil, vision.WithCache(cache))
	req := vision.Request{Image: []byte("volcano"), SlideNumber: 4, CollectionID: "geo"}

	first, err := d.Describe(t.Context(), req)
	if err != nil {
		t.Fatalf("first Describe() error = %v", err)
	}
	second, err := d.Describe(t.Context(), req)
	if err != nil {
		t.Fatalf("second Describe() error = %v", err)
	}
	if first != second {
		t.Errorf("cached description %q != %q", second, first)
	}
	if model.Calls() != 2 {
		t.Errorf("model calls = %d, want 2 (second call served from cache)", model.Calls())
	}

	other := req
	other.SlideNumber = 5
	if _, err := d.Describe(t.Context(), other); err != nil {
		t.Fatal(err)
	}
	if model.Calls() != 4 {
		t.Errorf("different slide should miss the cache; calls = %d", model.Calls())
	}

	now = now.Add(time.Hour + time.Second)
	if _, err := d.Describe(t.Context(), req); err != nil {
		t.Fatal(err)
	}
	if model.Calls() != 6 {
		t.Errorf("expired entry should re-run the pipeline; calls = %d", model.Calls())
	}

	st := d.Stats()
	if st.CacheHits != 1 || st.CacheMisses != 3 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestDescribe_SetCacheTTLAndClear(t *testing.T) {
	model := ai.NewMockProvider("Description: x")
	d := vision.NewDescriber(model, nil)
	d.SetCacheTTL(time.Minute)
	if d.Stats().CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v", d.Stats().CacheTTL)
	}

	req := vision.Request{Image: []byte("a")}
	_, _ = d.Describe(t.Context(), req)
	if err := d.ClearCache(t.Context()); err != nil {
		t.Fatal(err)
	}
	_, _ = d.Describe(t.Context(), req)
	if model.Calls() != 4 {
		t.Errorf("calls = %d, want 4 after clearing cache", model.Calls())
	}
	if st := d.Stats(); st.CacheHits != 0 || st.CacheMisses != 1 {
		t.Errorf("Stats() after clear = %+v", st)
	}
}

func TestDescribe_HistoryBound(t *testing.T) {
	model := ai.NewMockProvider("Description: same")
	d := vision.NewDescriber(model, nil, vision.WithHistory(vision.NewHistory(2)))

	for i := range 4 {
		_, err := d.Describe(t.Context(), vision.Request{Image: []byte{byte(i)}})
		if err != nil {
			t.Fatal(err)
		}
	}
	if got := len(d.History()); got != 2 {
		t.Errorf("history length = %d, want 2", got)
	}
	last := model.LastRequest().Messages[0].Content
	if strings.Count(last, "- same") != 2 {
		t.Errorf("final prompt should carry the history:\n%s", last)
	}

	d.SetHistorySize(1)
	if d.Stats().HistorySize != 1 || d.Stats().HistoryMax != 1 {
		t.Errorf("Stats() = %+v", d.Stats())
	}
	d.ClearHistory()
	if len(d.History()) != 0 {
		t.Error("ClearHistory() left entries")
	}
}

func TestDescribePresentation(t *testing.T) {
	p := presentation.New("deck")
	s1 := p.AddSlide()
	s1.AddText("Plate tectonics")
	fresh := s1.AddImage([]byte("plates"), "png")
	s2 := p.AddSlide()
	done := s2.AddImage([]byte("old"), "jpg")
	done.Describe("Already described.")
	broken := s2.AddImage([]byte("broken"), "png")

	model := &ai.MockProvider{
		Responses: []string{"Description: Tectonic plates.", "Description: Tectonic plate boundaries."},
		Errs:      []error{nil, nil, errors.New("down")},
		Err:       errors.New("down"),
	}
	d := vision.NewDescriber(model, nil)

	rep, err := d.DescribePresentation(t.Context(), p, "deck")
	if err != nil {
		t.Fatalf("DescribePresentation() error = %v", err)
	}
	if rep.Described != 1 || rep.Skipped != 1 || len(rep.Failures) != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if !fresh.IsDescribed() || fresh.Description != "Tectonic plate boundaries." {
		t.Errorf("fresh image = %v %q", fresh.State, fresh.Description)
	}
	if broken.IsDescribed() || rep.Failures[0].ItemID != broken.ID {
		t.Errorf("broken image should stay undescribed and be reported")
	}
	if !strings.Contains(model.Requests()[0].Messages[0].Content, "Plate tectonics") {
		t.Error("slide text not passed to the enhanced prompt")
	}
}
