// Package presentation holds the parsed slide-deck model and the parsers that produce it.
package presentation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ItemType discriminates slide items.
type ItemType string

const (
	ItemText  ItemType = "text"
	ItemImage ItemType = "image"
)

// DescriptionState tracks whether an image has been given a description yet.
type DescriptionState int

const (
	Undescribed DescriptionState = iota
	Described
)

func (s DescriptionState) String() string {
	switch s {
	case Undescribed:
		return "undescribed"
	case Described:
		return "described"
	default:
		return "unknown"
	}
}

// ItemMetadata is the per-item record stored alongside a slide chunk.
// Extension and ImageID are only set for image items.
type ItemMetadata struct {
	Type        ItemType `json:"type" yaml:"type"`
	SlideNumber int      `json:"slide_number" yaml:"slide_number"`
	OrderNumber int      `json:"order_number" yaml:"order_number"`
	Extension   string   `json:"extension,omitempty" yaml:"extension,omitempty"`
	ImageID     string   `json:"image_id,omitempty" yaml:"image_id,omitempty"`
}

// Item is a single text or image unit on a slide. The set of implementations
// is closed: *TextItem and *ImageItem.
type Item interface {
	ItemID() string
	Type() ItemType
	Content() string
	Metadata() ItemMetadata
	isItem()
}

// TextItem is extracted slide text or speaker notes.
type TextItem struct {
	ID          string `json:"id"`
	SlideNumber int    `json:"slide_number"`
	OrderNumber int    `json:"order_number"`
	Text        string `json:"text"`
}

func (t *TextItem) ItemID() string  { return t.ID }
func (t *TextItem) Type() ItemType  { return ItemText }
func (t *TextItem) Content() string { return t.Text }
func (t *TextItem) isItem()         {}

func (t *TextItem) Metadata() ItemMetadata {
	return ItemMetadata{
		Type:        ItemText,
		SlideNumber: t.SlideNumber,
		OrderNumber: t.OrderNumber,
	}
}

// ImageItem is a picture on a slide. Its description starts empty and is
// written once by the description pipeline (or a reviewer).
type ImageItem struct {
	ID          string           `json:"id"`
	SlideNumber int              `json:"slide_number"`
	OrderNumber int              `json:"order_number"`
	Extension   string           `json:"extension"`
	Data        []byte           `json:"-"`
	BlobID      string           `json:"blob_id,omitempty"`
	Description string           `json:"description,omitempty"`
	State       DescriptionState `json:"state"`
}

func (i *ImageItem) ItemID() string { return i.ID }
func (i *ImageItem) Type() ItemType { return ItemImage }
func (i *ImageItem) isItem()        {}

// Content returns the description, or "" while the image is undescribed.
func (i *ImageItem) Content() string {
	if i.State != Described {
		return ""
	}
	return i.Description
}

func (i *ImageItem) Metadata() ItemMetadata {
	return ItemMetadata{
		Type:        ItemImage,
		SlideNumber: i.SlideNumber,
		OrderNumber: i.OrderNumber,
		Extension:   i.Extension,
		ImageID:     i.BlobID,
	}
}

// Describe records a description and moves the item to Described.
func (i *ImageItem) Describe(description string) {
	i.Description = strings.TrimSpace(description)
	i.State = Described
}

// IsDescribed reports whether the description has been set.
func (i *ImageItem) IsDescribed() bool {
	return i.State == Described
}

// Slide is one slide; Items are in reading order.
type Slide struct {
	Number int    `json:"number"`
	Items  []Item `json:"-"`
}

// Presentation is an ordered deck of slides.
type Presentation struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Slides []Slide `json:"slides"`
}

// New creates an empty presentation with a fresh ID.
func New(name string) *Presentation {
	return &Presentation{ID: uuid.NewString(), Name: name}
}

// AddSlide appends a slide numbered after the last one.
func (p *Presentation) AddSlide() *Slide {
	p.Slides = append(p.Slides, Slide{Number: len(p.Slides) + 1})
	return &p.Slides[len(p.Slides)-1]
}

// AddText appends a text item; empty text is ignored.
func (s *Slide) AddText(text string) *TextItem {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	item := &TextItem{
		ID:          uuid.NewString(),
		SlideNumber: s.Number,
		OrderNumber: len(s.Items),
		Text:        text,
	}
	s.Items = append(s.Items, item)
	return item
}

// AddImage appends an undescribed image item.
func (s *Slide) AddImage(data []byte, extension string) *ImageItem {
	item := &ImageItem{
		ID:          uuid.NewString(),
		SlideNumber: s.Number,
		OrderNumber: len(s.Items),
		Extension:   strings.ToLower(strings.TrimPrefix(extension, ".")),
		Data:        data,
	}
	s.Items = append(s.Items, item)
	return item
}

// Images returns every image item in deck order.
func (p *Presentation) Images() []*ImageItem {
	var out []*ImageItem
	for _, s := range p.Slides {
		for _, it := range s.Items {
			if img, ok := it.(*ImageItem); ok {
				out = append(out, img)
			}
		}
	}
	return out
}

// Slide returns the slide with the given 1-based number.
func (p *Presentation) Slide(n int) (*Slide, error) {
	if n < 1 || n > len(p.Slides) {
		return nil, fmt.Errorf("slide %d out of range (1-%d)", n, len(p.Slides))
	}
	return &p.Slides[n-1], nil
}
