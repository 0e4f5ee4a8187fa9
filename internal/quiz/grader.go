package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-quizzer/internal/ai"
)

const (
	// MaxGrade is the grade of a fully correct answer.
	MaxGrade = 2

	CorrectFeedback  = "Good job."
	UngradedFeedback = "Unable to grade answer. Please try again."
	noSummary        = "Summary unavailable."
)

// Grade is the result of grading one answer.
type Grade struct {
	Score    int    `json:"grade"`
	Feedback string `json:"feedback"`
}

const gradeSchemaJSON = `{
	"type": "object",
	"required": ["grade", "feedback"],
	"properties": {
		"grade": {"type": "integer", "enum": [0, 1, 2]},
		"feedback": {"type": "string"}
	}
}`

var (
	gradeSchema = mustSchema(gradeSchemaJSON)

	gradeField    = regexp.MustCompile(`"grade"\s*:\s*"?([0-2])(?:\.0+)?"?\s*(?:[,}\n]|$)`)
	feedbackField = regexp.MustCompile(`"feedback"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("compile grade schema: %v", err))
	}
	return schema
}

// Grader scores student answers against reference answers with a language
// model. Image questions are graded from text only.
type Grader struct {
	model        ai.Completer
	forceCorrect bool
	maxTokens    int
}

// GraderOption configures a Grader.
type GraderOption func(*Grader)

// WithCorrectFeedback controls whether full marks always carry
// CorrectFeedback instead of the model's own words. Enabled by default.
func WithCorrectFeedback(force bool) GraderOption {
	return func(g *Grader) { g.forceCorrect = force }
}

// WithGradeTokens caps the grading reply length.
func WithGradeTokens(n int) GraderOption {
	return func(g *Grader) { g.maxTokens = n }
}

// NewGrader creates a grader.
func NewGrader(model ai.Completer, opts ...GraderOption) *Grader {
	g := &Grader{model: model, forceCorrect: true, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

const gradePrompt = `You are grading a student's short answer.

Question: %s
Reference answer: %s
Supporting content: %s
Student answer: %s

Grade the student answer against the reference answer:
0 = incorrect
1 = partially correct or on the right track
2 = fully correct

Respond in this exact JSON format:
{"grade": 0, "feedback": "One or two sentences of feedback for the student."}`

// Grade scores answer for q. The returned grade is always 0, 1 or 2; an
// unparseable reply yields 0 with UngradedFeedback. A non-nil error means
// the model could not be reached.
func (g *Grader) Grade(ctx context.Context, q *Question, answer string) (Grade, error) {
	prompt := fmt.Sprintf(gradePrompt, q.Question, q.Answer, strings.Join(q.Context, "\n"), answer)
	raw, err := ai.Generate(ctx, g.model, ai.TaskGrading, prompt, nil, g.maxTokens)
	if err != nil {
		return Grade{Score: 0, Feedback: UngradedFeedback}, fmt.Errorf("grade answer: %w", err)
	}

	grade, ok := ParseGrade(raw)
	if !ok {
		slog.Warn("unparseable grade reply", "question_id", q.ID, "reply", raw)
		return Grade{Score: 0, Feedback: UngradedFeedback}, nil
	}
	if grade.Score == MaxGrade && g.forceCorrect {
		grade.Feedback = CorrectFeedback
	}
	return grade, nil
}

// ParseGrade reads a grade reply. A schema-valid JSON object is preferred;
// otherwise the grade and feedback fields are matched in the raw text.
func ParseGrade(raw string) (Grade, bool) {
	if obj := jsonObject(raw); obj != "" {
		res, err := gradeSchema.Validate(gojsonschema.NewStringLoader(obj))
		if err == nil && res.Valid() {
			var v struct {
				Grade    float64 `json:"grade"`
				Feedback string  `json:"feedback"`
			}
			if err := json.Unmarshal([]byte(obj), &v); err == nil {
				return Grade{Score: int(v.Grade), Feedback: strings.TrimSpace(v.Feedback)}, true
			}
		}
	}

	m := gradeField.FindStringSubmatch(raw)
	if m == nil {
		return Grade{}, false
	}
	score, _ := strconv.Atoi(m[1])
	var feedback string
	if f := feedbackField.FindStringSubmatch(raw); f != nil {
		if s, err := strconv.Unquote(`"` + f[1] + `"`); err == nil {
			feedback = s
		} else {
			feedback = f[1]
		}
	}
	return Grade{Score: score, Feedback: strings.TrimSpace(feedback)}, true
}

func jsonObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return ""
	}
	return raw[start : end+1]
}

// ScoreReport is a student's result over a question set.
type ScoreReport struct {
	Title     string  `json:"title,omitempty"`
	Questions int     `json:"questions"`
	Points    int     `json:"points"`
	MaxPoints int     `json:"max_points"`
	Percent   float64 `json:"percent"`
}

func newScoreReport(title string, questions, points int) ScoreReport {
	n := max(questions, 1)
	maxPoints := n * MaxGrade
	return ScoreReport{
		Title:     title,
		Questions: questions,
		Points:    points,
		MaxPoints: maxPoints,
		Percent:   math.Round(float64(points)/float64(maxPoints)*1000) / 10,
	}
}

const summaryPrompt = `Generate a concise summary of the student's performance in one short paragraph, including strengths and weaknesses.
Use this context:
- Assignment name: %s
- Questions: %d
- Total raw points: %d (out of %d)
Format as plain text.`

// Summarize writes a short performance paragraph for a report. Failures are
// logged and replaced by a fixed message.
func (g *Grader) Summarize(ctx context.Context, r ScoreReport) string {
	prompt := fmt.Sprintf(summaryPrompt, r.Title, r.Questions, r.Points, r.MaxPoints)
	out, err := ai.Generate(ctx, g.model, ai.TaskSummary, prompt, nil, g.maxTokens)
	if err != nil || strings.TrimSpace(out) == "" {
		slog.Warn("summary generation failed", "error", err)
		return noSummary
	}
	return strings.TrimSpace(out)
}
