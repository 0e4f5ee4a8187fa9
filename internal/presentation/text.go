package presentation

import (
	"encoding/json"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanText applies NFKC normalisation, drops control characters and
// collapses runs of spaces. Line breaks are kept.
func CleanText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\v' || r == '\r':
			return '\n'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

type itemJSON struct {
	ID          string   `json:"id"`
	Type        ItemType `json:"type"`
	OrderNumber int      `json:"order_number"`
	Content     string   `json:"content"`
	Extension   string   `json:"extension,omitempty"`
	ImageID     string   `json:"image_id,omitempty"`
	State       string   `json:"state,omitempty"`
}

// MarshalJSON flattens the item union with an explicit type field.
func (s Slide) MarshalJSON() ([]byte, error) {
	items := make([]itemJSON, 0, len(s.Items))
	for _, it := range s.Items {
		md := it.Metadata()
		j := itemJSON{
			ID:          it.ItemID(),
			Type:        it.Type(),
			OrderNumber: md.OrderNumber,
			Content:     it.Content(),
		}
		switch v := it.(type) {
		case *TextItem:
		case *ImageItem:
			j.Extension = v.Extension
			j.ImageID = v.BlobID
			j.State = v.State.String()
		}
		items = append(items, j)
	}
	return json.Marshal(struct {
		Number int        `json:"number"`
		Items  []itemJSON `json:"items"`
	}{s.Number, items})
}
