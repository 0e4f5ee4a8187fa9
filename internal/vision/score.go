package vision

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/pai-quizzer/internal/presentation"
	"github.com/p-n-ai/pai-quizzer/internal/rag"
	"github.com/p-n-ai/pai-quizzer/internal/vectorstore"
)

const (
	relevanceThreshold = 0.3
	maxKeyTerms        = 10
)

var keyTermStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true, "with": true, "by": true,
}

// ImageHash is the hex BLAKE2b-256 digest of the image bytes.
func ImageHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// KeyTerms returns up to ten lowercase words longer than three characters
// that are not stop words, in order of appearance.
func KeyTerms(text string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if keyTermStopWords[w] || utf8.RuneCountInString(w) <= 3 {
			continue
		}
		terms = append(terms, w)
		if len(terms) == maxKeyTerms {
			break
		}
	}
	return terms
}

// SyntheticQuery builds the retrieval query for an image description.
func SyntheticQuery(description, imageHash string) string {
	return fmt.Sprintf("Image analysis query\nDescription: %s\nKey terms: %s\nImage hash: %s\nContext type: visual_analysis",
		description, strings.Join(KeyTerms(description), ", "), imageHash)
}

func termSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

// RelevanceScore rates how well a retrieved chunk supports a description:
// 0.1 per shared term, plus 0.3 for every image item and 0.1 for every item
// carrying a slide number, divided by the chunk's word count plus one and
// capped at 1.
func RelevanceScore(description, document string, md vectorstore.Metadata) float64 {
	desc := termSet(description)
	overlap := 0
	for w := range termSet(document) {
		if _, ok := desc[w]; ok {
			overlap++
		}
	}

	score := float64(overlap) * 0.1
	for _, it := range md.Items {
		if it.Type == presentation.ItemImage {
			score += 0.3
		}
		if it.SlideNumber > 0 {
			score += 0.1
		}
	}
	score /= float64(len(strings.Fields(document)) + 1)
	return min(score, 1.0)
}

// RankContext keeps the chunks scoring above the relevance threshold, best
// first, joined by blank lines.
func RankContext(description string, chunks []rag.Chunk) string {
	type scored struct {
		score float64
		doc   string
	}
	var kept []scored
	for _, c := range chunks {
		if c.Document == "" {
			continue
		}
		if s := RelevanceScore(description, c.Document, c.Metadata); s > relevanceThreshold {
			kept = append(kept, scored{s, c.Document})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })

	docs := make([]string, len(kept))
	for i, k := range kept {
		docs[i] = k.doc
	}
	return strings.Join(docs, "\n\n")
}
