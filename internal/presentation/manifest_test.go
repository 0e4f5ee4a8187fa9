package presentation_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-quizzer/internal/presentation"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "img", "pan.png"), "png-bytes")
	writeFile(t, filepath.Join(dir, "eggs.yaml"), `
name: Scrambled Eggs
slides:
  - notes: "Start with a cold pan."
    items:
      - text: "Ingredients"
      - image: img/pan.png
  - items:
      - image: img/pan.png
        description: "A non-stick pan."
`)

	p, err := presentation.LoadManifest(filepath.Join(dir, "eggs.yaml"))
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if p.Name != "Scrambled Eggs" {
		t.Errorf("Name = %q", p.Name)
	}
	if len(p.Slides) != 2 {
		t.Fatalf("slides = %d, want 2", len(p.Slides))
	}
	if got := len(p.Slides[0].Items); got != 3 {
		t.Fatalf("slide 1 items = %d, want 3", got)
	}
	if p.Slides[0].Items[0].Content() != "Start with a cold pan." {
		t.Errorf("notes should come first, got %q", p.Slides[0].Items[0].Content())
	}

	imgs := p.Images()
	if len(imgs) != 2 {
		t.Fatalf("images = %d, want 2", len(imgs))
	}
	if imgs[0].IsDescribed() {
		t.Error("image without description should stay undescribed")
	}
	if !imgs[1].IsDescribed() || imgs[1].Content() != "A non-stick pan." {
		t.Errorf("second image = %v %q", imgs[1].State, imgs[1].Content())
	}
	if string(imgs[0].Data) != "png-bytes" || imgs[0].Extension != "png" {
		t.Errorf("image data = %q ext = %q", imgs[0].Data, imgs[0].Extension)
	}
}

func TestLoadManifest_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.yaml"), "slides: [unclosed")
	writeFile(t, filepath.Join(dir, "missing.yaml"), "slides:\n  - items:\n      - image: nope.png\n")

	tests := []struct {
		name string
		path string
	}{
		{"no file", filepath.Join(dir, "absent.yaml")},
		{"invalid yaml", filepath.Join(dir, "bad.yaml")},
		{"missing image", filepath.Join(dir, "missing.yaml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := presentation.LoadManifest(tt.path); err == nil {
				t.Error("LoadManifest() should fail")
			}
		})
	}
}
