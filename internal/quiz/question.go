// Package quiz generates short-answer questions from an indexed deck and
// grades free-text answers against their reference answers.
package quiz

import (
	"errors"
	"regexp"
	"strconv"
)

var (
	// ErrNoQuestion means the model reply held no usable question and answer.
	ErrNoQuestion = errors.New("no question produced")
	// ErrImageUnavailable means the sampled chunk's image could not be resolved.
	ErrImageUnavailable = errors.New("image unavailable")
	// ErrAttemptsExhausted means no further graded attempts are allowed.
	ErrAttemptsExhausted = errors.New("attempts exhausted")
	// ErrAttemptConflict means an attempt with the same number was already recorded.
	ErrAttemptConflict = errors.New("attempt already recorded")
)

// Type distinguishes text questions from image questions.
type Type string

const (
	TypeText  Type = "text"
	TypeImage Type = "image"
)

// Question is an immutable generated question. Image is base64-encoded when
// serialised to JSON.
type Question struct {
	ID             string   `json:"id"`
	CollectionID   string   `json:"collection_id,omitempty"`
	Type           Type     `json:"type"`
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	Context        []string `json:"context"`
	SlideNumber    int      `json:"slide_number,omitempty"`
	Image          []byte   `json:"image,omitempty"`
	ImageExtension string   `json:"image_extension,omitempty"`
	Placeholder    bool     `json:"placeholder,omitempty"`
}

const (
	placeholderQuestion = "Error generating question"
	placeholderAnswer   = "Please try again later"
	fallbackQuestion    = "No questions could be generated due to API errors"
)

// Placeholder returns the stand-in used when one generation in a batch fails.
func Placeholder(t Type) Question {
	return Question{Type: t, Question: placeholderQuestion, Answer: placeholderAnswer, Context: []string{}, Placeholder: true}
}

func fallback() Question {
	return Question{Type: TypeText, Question: fallbackQuestion, Answer: placeholderAnswer, Context: []string{}, Placeholder: true}
}

var (
	questionField = regexp.MustCompile(`"question"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	answerField   = regexp.MustCompile(`"answer"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// ParseQuestion pulls the question and answer fields out of a JSON-ish model
// reply, ignoring any prose around them. Both must be non-empty.
func ParseQuestion(raw string) (question, answer string, ok bool) {
	question = stringField(questionField, raw)
	answer = stringField(answerField, raw)
	if question == "" || answer == "" {
		return "", "", false
	}
	return question, answer, true
}

// stringField returns the unescaped value of the first match of re.
func stringField(re *regexp.Regexp, raw string) string {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	if s, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
		return s
	}
	return m[1]
}
