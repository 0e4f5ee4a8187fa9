package presentation_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-quizzer/internal/presentation"
)

func TestSlide_ItemOrdering(t *testing.T) {
	p := presentation.New("deck")
	s := p.AddSlide()
	s.AddText("notes")
	s.AddText("   ")
	img := s.AddImage([]byte{1, 2, 3}, ".PNG")
	s.AddText("body")

	if len(s.Items) != 3 {
		t.Fatalf("items = %d, want 3 (blank text skipped)", len(s.Items))
	}
	for i, it := range s.Items {
		md := it.Metadata()
		if md.OrderNumber != i {
			t.Errorf("item %d order = %d", i, md.OrderNumber)
		}
		if md.SlideNumber != 1 {
			t.Errorf("item %d slide = %d, want 1", i, md.SlideNumber)
		}
	}
	if img.Extension != "png" {
		t.Errorf("extension = %q, want png", img.Extension)
	}
}

func TestImageItem_DescriptionState(t *testing.T) {
	p := presentation.New("deck")
	img := p.AddSlide().AddImage([]byte{0}, "jpg")

	if img.IsDescribed() {
		t.Fatal("new image should be undescribed")
	}
	if img.State != presentation.Undescribed {
		t.Errorf("State = %v, want Undescribed", img.State)
	}
	if img.Content() != "" {
		t.Errorf("Content() = %q, want empty before description", img.Content())
	}

	img.Describe("  A frying pan on a stove.  ")
	if !img.IsDescribed() {
		t.Fatal("image should be described")
	}
	if img.Content() != "A frying pan on a stove." {
		t.Errorf("Content() = %q", img.Content())
	}
}

func TestItem_Metadata(t *testing.T) {
	p := presentation.New("deck")
	p.AddSlide()
	s := p.AddSlide()
	s.AddText("hello")
	img := s.AddImage([]byte{9}, "gif")
	img.BlobID = "blob-1"

	tests := []struct {
		name string
		item presentation.Item
		want presentation.ItemMetadata
	}{
		{"text", s.Items[0], presentation.ItemMetadata{Type: presentation.ItemText, SlideNumber: 2, OrderNumber: 0}},
		{"image", s.Items[1], presentation.ItemMetadata{Type: presentation.ItemImage, SlideNumber: 2, OrderNumber: 1, Extension: "gif", ImageID: "blob-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Metadata(); got != tt.want {
				t.Errorf("Metadata() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPresentation_ImagesAndSlide(t *testing.T) {
	p := presentation.New("deck")
	p.AddSlide().AddImage([]byte{1}, "png")
	s2 := p.AddSlide()
	s2.AddText("x")
	s2.AddImage([]byte{2}, "png")

	if got := len(p.Images()); got != 2 {
		t.Errorf("Images() = %d, want 2", got)
	}
	if _, err := p.Slide(3); err == nil {
		t.Error("Slide(3) should fail on a 2-slide deck")
	}
	s, err := p.Slide(2)
	if err != nil {
		t.Fatalf("Slide(2) error = %v", err)
	}
	if s.Number != 2 {
		t.Errorf("Number = %d, want 2", s.Number)
	}
}

func TestSlide_MarshalJSON(t *testing.T) {
	p := presentation.New("deck")
	s := p.AddSlide()
	s.AddText("Eggs")
	s.AddImage([]byte{1}, "png")

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, want := range []string{`"type":"text"`, `"type":"image"`, `"state":"undescribed"`, `"content":"Eggs"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("json missing %s: %s", want, data)
		}
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello   world  ", "hello world"},
		{"line one\r\n\n  line two ", "line one\nline two"},
		{"ﬁne", "fine"},
		{"bell\x07char", "bellchar"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := presentation.CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
