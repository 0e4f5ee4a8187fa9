package vision

import (
	"bytes"
	"encoding/json"
	"image"
	_ "image/gif" // decoders for PrepareImage
	_ "image/jpeg"
	"image/png"
	"mime"
	"net/http"
	"strings"

	"github.com/p-n-ai/pai-quizzer/internal/ai"
)

// NormalizeOutput turns a model reply into a plain description. JSON replies
// yield their Description field (top level or under "output"); a leading
// "Description:" label is dropped.
func NormalizeOutput(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "{") {
		if d, ok := jsonDescription(text); ok {
			text = strings.TrimSpace(d)
		}
	}

	const label = "description:"
	if len(text) >= len(label) && strings.EqualFold(text[:len(label)], label) {
		if rest := strings.TrimSpace(text[len(label):]); rest != "" {
			text = rest
		}
	}
	return text
}

func jsonDescription(text string) (string, bool) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return "", false
	}
	if out, ok := parsed["output"].(map[string]any); ok {
		if d, ok := out["Description"].(string); ok {
			return d, true
		}
	}
	if d, ok := parsed["Description"].(string); ok {
		return d, true
	}
	return "", false
}

// PrepareImage re-encodes decodable images as PNG; anything else is sent as
// is with a MIME type from the extension or the bytes.
func PrepareImage(data []byte, extension string) ai.Image {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err == nil {
			return ai.Image{MIMEType: "image/png", Data: buf.Bytes()}
		}
	}

	mt := mime.TypeByExtension("." + strings.TrimPrefix(strings.ToLower(extension), "."))
	if mt == "" {
		mt = http.DetectContentType(data)
	}
	return ai.Image{MIMEType: mt, Data: data}
}
