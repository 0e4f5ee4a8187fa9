// Package vision turns slide images into short natural-language descriptions
// through OCR, two vision-model passes and retrieval over the deck.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/pai-quizzer/internal/ai"
	"github.com/p-n-ai/pai-quizzer/internal/presentation"
	"github.com/p-n-ai/pai-quizzer/internal/rag"
)

// ErrNoDescription is returned when the final model pass produced no usable text.
var ErrNoDescription = errors.New("model returned no description")

const (
	defaultTopK        = 3
	defaultMaxTokens   = 200
	defaultCacheTTL    = time.Hour
	defaultHistorySize = 10

	enhancedHistory = 3
	finalHistory    = 5
)

// Retriever is the part of the retrieval layer the pipeline reads from.
type Retriever interface {
	Query(ctx context.Context, collectionID, text string, n int) ([]rag.Chunk, error)
	ContextBySlideNumber(ctx context.Context, collectionID string, n int) (rag.Chunk, error)
}

// Request describes one image to describe.
type Request struct {
	Image        []byte
	Extension    string
	SlideNumber  int
	CollectionID string
	// SlideText overrides the slide lookup in the collection when set.
	SlideText string
}

// Stats reports cache effectiveness and history size.
type Stats struct {
	CacheHits   int           `json:"cache_hits"`
	CacheMisses int           `json:"cache_misses"`
	HistorySize int           `json:"history_size"`
	HistoryMax  int           `json:"history_max"`
	CacheTTL    time.Duration `json:"cache_ttl"`
}

// Describer runs the four-stage description pipeline. It is safe for
// concurrent use; cache and history are shared by all callers.
type Describer struct {
	model     ai.Completer
	retriever Retriever
	ocr       OCR
	cache     Cache
	history   *History
	topK      int
	maxTokens int

	mu     sync.Mutex
	ttl    time.Duration
	hits   int
	misses int
}

// Option configures a Describer.
type Option func(*Describer)

// WithOCR sets the OCR engine (default NopOCR).
func WithOCR(o OCR) Option { return func(d *Describer) { d.ocr = o } }

// WithCache sets the description cache (default an in-process MemoryCache).
func WithCache(c Cache) Option { return func(d *Describer) { d.cache = c } }

// WithHistory sets the rolling description history.
func WithHistory(h *History) Option { return func(d *Describer) { d.history = h } }

// WithCacheTTL sets how long descriptions stay cached.
func WithCacheTTL(ttl time.Duration) Option { return func(d *Describer) { d.ttl = ttl } }

// WithTopK sets how many chunks stage 3 retrieves.
func WithTopK(k int) Option { return func(d *Describer) { d.topK = k } }

// WithMaxTokens caps each model reply.
func WithMaxTokens(n int) Option { return func(d *Describer) { d.maxTokens = n } }

// NewDescriber creates a pipeline. retriever may be nil, in which case no
// slide text or related context is used.
func NewDescriber(model ai.Completer, retriever Retriever, opts ...Option) *Describer {
	d := &Describer{
		model:     model,
		retriever: retriever,
		ocr:       NopOCR{},
		cache:     NewMemoryCache(),
		history:   NewHistory(defaultHistorySize),
		topK:      defaultTopK,
		maxTokens: defaultMaxTokens,
		ttl:       defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Describe returns a 1-3 sentence description of req.Image. Only failures of
// the two model passes are returned as errors.
func (d *Describer) Describe(ctx context.Context, req Request) (string, error) {
	hash := ImageHash(req.Image)
	key := CacheKey(hash, req.SlideNumber, req.CollectionID)
	log := slog.With("slide", req.SlideNumber, "collection_id", req.CollectionID)

	if cached, ok, err := d.cache.Get(ctx, key); err != nil {
		log.Warn("description cache read failed", "error", err)
	} else if ok {
		d.count(true)
		log.Debug("description cache hit")
		return cached, nil
	}
	d.count(false)

	img := PrepareImage(req.Image, req.Extension)

	ocrText, err := d.ocr.ExtractText(ctx, req.Image)
	if err != nil {
		log.Warn("ocr failed", "error", err)
		ocrText = ""
	}

	slideText := d.slideText(ctx, req, log)

	enhanced, err := d.ask(ctx, enhancedPrompt(ocrText, slideText, d.history.Last(enhancedHistory)), img)
	if err != nil {
		return "", fmt.Errorf("enhanced description: %w", err)
	}
	if enhanced == "" {
		log.Warn("enhanced description empty, refining without it")
	}

	related := d.relatedContext(ctx, req.CollectionID, enhanced, hash, log)

	final, err := d.ask(ctx, finalPrompt(enhanced, related, d.history.Last(finalHistory)), img)
	if err != nil {
		return "", fmt.Errorf("final description: %w", err)
	}
	if final == "" {
		return "", fmt.Errorf("final description: %w", ErrNoDescription)
	}

	d.history.Add(final)
	if err := d.cache.Set(ctx, key, final, d.CacheTTL()); err != nil {
		log.Warn("description cache write failed", "error", err)
	}
	log.Info("image described", "length", len(final))
	return final, nil
}

func (d *Describer) ask(ctx context.Context, prompt string, img ai.Image) (string, error) {
	raw, err := ai.Generate(ctx, d.model, ai.TaskDescribe, prompt, []ai.Image{img}, d.maxTokens)
	if err != nil {
		return "", err
	}
	return NormalizeOutput(raw), nil
}

func (d *Describer) slideText(ctx context.Context, req Request, log *slog.Logger) string {
	if req.SlideText != "" {
		return req.SlideText
	}
	if d.retriever == nil || req.CollectionID == "" || req.SlideNumber < 1 {
		return ""
	}
	chunk, err := d.retriever.ContextBySlideNumber(ctx, req.CollectionID, req.SlideNumber)
	if err != nil {
		log.Warn("slide context unavailable", "error", err)
		return ""
	}
	return chunk.Document
}

func (d *Describer) relatedContext(ctx context.Context, collectionID, description, hash string, log *slog.Logger) string {
	if d.retriever == nil || collectionID == "" || description == "" {
		return ""
	}
	chunks, err := d.retriever.Query(ctx, collectionID, SyntheticQuery(description, hash), d.topK)
	if err != nil {
		log.Warn("context retrieval failed", "error", err)
		return ""
	}
	return RankContext(description, chunks)
}

func enhancedPrompt(ocrText, slideText string, history []string) string {
	var b strings.Builder
	b.WriteString("Describe this image from a presentation slide in 1-3 sentences for a student studying the deck.\n")
	b.WriteString("Use the extracted text and slide text only where they add information the image itself does not show.\n")
	b.WriteString("Reply with plain text that starts with \"Description: \".\n")
	if ocrText != "" {
		fmt.Fprintf(&b, "\nText found in the image:\n%s\n", ocrText)
	}
	if slideText != "" {
		fmt.Fprintf(&b, "\nSlide text:\n%s\n", slideText)
	}
	writeHistory(&b, history)
	return b.String()
}

func finalPrompt(enhanced, related string, history []string) string {
	var b strings.Builder
	b.WriteString("Refine the description of this image into 1-3 clear sentences.\n")
	b.WriteString("Only use the related content if it makes the description clearer.\n")
	b.WriteString("Reply with plain text that starts with \"Description: \".\n")
	if enhanced != "" {
		fmt.Fprintf(&b, "\nCurrent description:\n%s\n", enhanced)
	}
	if related != "" {
		fmt.Fprintf(&b, "\nRelated content from the presentation:\n%s\n", related)
	}
	writeHistory(&b, history)
	return b.String()
}

func writeHistory(b *strings.Builder, history []string) {
	if len(history) == 0 {
		return
	}
	b.WriteString("\nEarlier descriptions in this deck, for consistent wording:\n")
	for _, h := range history {
		b.WriteString("- ")
		b.WriteString(h)
		b.WriteByte('\n')
	}
}

func (d *Describer) count(hit bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if hit {
		d.hits++
	} else {
		d.misses++
	}
}

// CacheTTL returns the current cache expiry.
func (d *Describer) CacheTTL() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ttl
}

// SetCacheTTL changes the expiry used for new cache entries.
func (d *Describer) SetCacheTTL(ttl time.Duration) {
	d.mu.Lock()
	d.ttl = ttl
	d.mu.Unlock()
}

// ClearCache drops every cached description and resets the hit counters.
func (d *Describer) ClearCache(ctx context.Context) error {
	if err := d.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear description cache: %w", err)
	}
	d.mu.Lock()
	d.hits, d.misses = 0, 0
	d.mu.Unlock()
	return nil
}

// SetHistorySize changes the rolling history bound, evicting oldest entries.
func (d *Describer) SetHistorySize(n int) { d.history.SetSize(n) }

// ClearHistory empties the rolling history.
func (d *Describer) ClearHistory() { d.history.Clear() }

// History returns the rolling history, oldest first.
func (d *Describer) History() []string { return d.history.All() }

// Stats returns a snapshot of cache and history counters.
func (d *Describer) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		CacheHits:   d.hits,
		CacheMisses: d.misses,
		HistorySize: d.history.Len(),
		HistoryMax:  d.history.Size(),
		CacheTTL:    d.ttl,
	}
}

// ItemFailure records an image that could not be described.
type ItemFailure struct {
	ItemID      string `json:"item_id"`
	SlideNumber int    `json:"slide_number"`
	Error       string `json:"error"`
}

// Report summarises a DescribePresentation run.
type Report struct {
	Described int           `json:"described"`
	Skipped   int           `json:"skipped"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// DescribePresentation describes every undescribed image in p, moving each
// to Described. Failed items stay Undescribed and are listed in the report;
// only context cancellation stops the walk.
func (d *Describer) DescribePresentation(ctx context.Context, p *presentation.Presentation, collectionID string) (Report, error) {
	var rep Report
	for _, s := range p.Slides {
		slideText := slideTextOf(s)
		for _, it := range s.Items {
			img, ok := it.(*presentation.ImageItem)
			if !ok {
				continue
			}
			if img.IsDescribed() {
				rep.Skipped++
				continue
			}
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			desc, err := d.Describe(ctx, Request{
				Image:        img.Data,
				Extension:    img.Extension,
				SlideNumber:  s.Number,
				CollectionID: collectionID,
				SlideText:    slideText,
			})
			if err != nil {
				slog.Warn("image description failed", "item_id", img.ID, "slide", s.Number, "error", err)
				rep.Failures = append(rep.Failures, ItemFailure{ItemID: img.ID, SlideNumber: s.Number, Error: err.Error()})
				continue
			}
			img.Describe(desc)
			rep.Described++
		}
	}
	return rep, nil
}

func slideTextOf(s presentation.Slide) string {
	var parts []string
	for _, it := range s.Items {
		if t, ok := it.(*presentation.TextItem); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}
