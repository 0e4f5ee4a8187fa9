package quiz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-quizzer/internal/ai"
	"github.com/p-n-ai/pai-quizzer/internal/blobstore"
	"github.com/p-n-ai/pai-quizzer/internal/rag"
	"github.com/p-n-ai/pai-quizzer/internal/vision"
)

const defaultMaxTokens = 200

// Sampler draws chunks to build questions from.
type Sampler interface {
	RandomSlideContext(ctx context.Context, collectionID string) (rag.Chunk, error)
	RandomSlideWithImage(ctx context.Context, collectionID string) (rag.Chunk, error)
}

// Generator produces one question per call from a random chunk.
type Generator struct {
	model     ai.Completer
	sampler   Sampler
	blobs     blobstore.Store
	maxTokens int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithQuestionTokens caps the question reply length.
func WithQuestionTokens(n int) GeneratorOption {
	return func(g *Generator) { g.maxTokens = n }
}

// NewGenerator creates a question generator.
func NewGenerator(model ai.Completer, sampler Sampler, blobs blobstore.Store, opts ...GeneratorOption) *Generator {
	g := &Generator{model: model, sampler: sampler, blobs: blobs, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

const textQuestionPrompt = `Based on this content: "%s"

Write ONE open-ended, short answer question that tests understanding of a key concept in the text.
Also provide the correct answer (1-2 sentences) based only on the text.
Do not refer to any image, illustration or picture, even if the text mentions one.
Respond in this exact JSON format:
{
    "question": "Your short answer question here",
    "answer": "The correct answer here."
}`

const imageQuestionPrompt = `Based on this image, write ONE open-ended, short answer question that tests understanding of a key concept shown in it.
Also provide the correct answer (1-2 sentences) based only on the image.

You may use the following slide content if it directly clarifies what the image shows; ignore it otherwise:
%s

Respond in this exact JSON format:
{
    "question": "Your short answer question here",
    "answer": "The correct answer here."
}`

// GenerateText builds a question from a random chunk's text.
func (g *Generator) GenerateText(ctx context.Context, collectionID string) (*Question, error) {
	chunk, err := g.sampler.RandomSlideContext(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("sample slide: %w", err)
	}

	raw, err := ai.Generate(ctx, g.model, ai.TaskQuestion, fmt.Sprintf(textQuestionPrompt, chunk.Document), nil, g.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("generate text question: %w", err)
	}
	q, a, ok := ParseQuestion(raw)
	if !ok {
		slog.Warn("unparseable question reply", "collection_id", collectionID, "reply", raw)
		return nil, ErrNoQuestion
	}

	return &Question{
		ID:           uuid.NewString(),
		CollectionID: collectionID,
		Type:         TypeText,
		Question:     q,
		Answer:       a,
		Context:      []string{chunk.Document},
		SlideNumber:  chunk.Metadata.SlideNumber,
	}, nil
}

// GenerateImage builds a question from a random chunk that holds an image,
// attaching the image bytes from the blob store.
func (g *Generator) GenerateImage(ctx context.Context, collectionID string) (*Question, error) {
	chunk, err := g.sampler.RandomSlideWithImage(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("sample image slide: %w", err)
	}

	item, ok := chunk.Metadata.FirstImage()
	if !ok || item.ImageID == "" {
		return nil, fmt.Errorf("slide %d: %w: no image id", chunk.Metadata.SlideNumber, ErrImageUnavailable)
	}
	blob, err := g.blobs.Get(ctx, item.ImageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnavailable, err)
	}
	if len(blob.Data) == 0 {
		return nil, fmt.Errorf("image %s: %w: empty blob", item.ImageID, ErrImageUnavailable)
	}
	ext := item.Extension
	if ext == "" {
		ext = blob.Extension
	}

	img := vision.PrepareImage(blob.Data, ext)
	raw, err := ai.Generate(ctx, g.model, ai.TaskQuestion, fmt.Sprintf(imageQuestionPrompt, chunk.Document), []ai.Image{img}, g.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("generate image question: %w", err)
	}
	q, a, ok := ParseQuestion(raw)
	if !ok {
		slog.Warn("unparseable question reply", "collection_id", collectionID, "reply", raw)
		return nil, ErrNoQuestion
	}

	return &Question{
		ID:             uuid.NewString(),
		CollectionID:   collectionID,
		Type:           TypeImage,
		Question:       q,
		Answer:         a,
		Context:        []string{chunk.Document},
		SlideNumber:    chunk.Metadata.SlideNumber,
		Image:          blob.Data,
		ImageExtension: ext,
	}, nil
}
