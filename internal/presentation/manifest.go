package presentation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is a YAML description of a deck, used for fixtures and for decks
// assembled outside PowerPoint.
type Manifest struct {
	Name   string          `yaml:"name"`
	Slides []ManifestSlide `yaml:"slides"`
}

// ManifestSlide lists one slide's notes and items in reading order.
type ManifestSlide struct {
	Notes string         `yaml:"notes"`
	Items []ManifestItem `yaml:"items"`
}

// ManifestItem is either a text entry or an image file reference.
type ManifestItem struct {
	Text        string `yaml:"text,omitempty"`
	Image       string `yaml:"image,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// LoadManifest reads a YAML manifest; image paths are resolved relative to
// the manifest's directory.
func LoadManifest(path string) (*Presentation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	p, err := m.Build(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	slog.Info("manifest loaded", "path", path, "slides", len(p.Slides))
	return p, nil
}

// Build turns the manifest into a Presentation, reading image files from baseDir.
func (m Manifest) Build(baseDir string) (*Presentation, error) {
	p := New(m.Name)
	for i, ms := range m.Slides {
		slide := p.AddSlide()
		slide.AddText(CleanText(ms.Notes))
		for _, it := range ms.Items {
			switch {
			case it.Image != "":
				imgPath := it.Image
				if !filepath.IsAbs(imgPath) {
					imgPath = filepath.Join(baseDir, imgPath)
				}
				data, err := os.ReadFile(imgPath)
				if err != nil {
					return nil, fmt.Errorf("slide %d: read image: %w", i+1, err)
				}
				img := slide.AddImage(data, filepath.Ext(imgPath))
				if it.Description != "" {
					img.Describe(it.Description)
				}
			case it.Text != "":
				slide.AddText(CleanText(it.Text))
			}
		}
	}
	return p, nil
}
