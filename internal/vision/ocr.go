package vision

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// OCR extracts visible text from image bytes.
type OCR interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// NopOCR never finds text.
type NopOCR struct{}

func (NopOCR) ExtractText(context.Context, []byte) (string, error) { return "", nil }

// TesseractOCR runs the tesseract CLI, piping the image through stdin.
type TesseractOCR struct {
	Binary   string // defaults to "tesseract"
	Language string // defaults to "eng"
}

func (t TesseractOCR) ExtractText(ctx context.Context, image []byte) (string, error) {
	bin := t.Binary
	if bin == "" {
		bin = "tesseract"
	}
	lang := t.Language
	if lang == "" {
		lang = "eng"
	}

	cmd := exec.CommandContext(ctx, bin, "stdin", "stdout", "-l", lang)
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run %s: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
