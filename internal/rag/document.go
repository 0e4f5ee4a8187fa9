package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DocumentString flattens whatever a vector store returned as a document
// into one string. Lists of single characters are concatenated; other lists
// are joined with spaces.
func DocumentString(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	case []byte:
		return string(d)
	case []rune:
		return string(d)
	case []string:
		return joinParts(d)
	case []any:
		parts := make([]string, len(d))
		for i, p := range d {
			parts[i] = DocumentString(p)
		}
		return joinParts(parts)
	case fmt.Stringer:
		return d.String()
	default:
		return fmt.Sprint(d)
	}
}

func joinParts(parts []string) string {
	chars := len(parts) > 0
	for _, p := range parts {
		if utf8.RuneCountInString(p) != 1 {
			chars = false
			break
		}
	}
	if chars {
		return strings.Join(parts, "")
	}
	return strings.Join(parts, " ")
}
