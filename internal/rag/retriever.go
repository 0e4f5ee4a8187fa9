package rag

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/p-n-ai/pai-quizzer/internal/vectorstore"
)

// maxImageDraws bounds rejection sampling in RandomSlideWithImage.
const maxImageDraws = 10

// Retriever reads chunks back out of a collection.
type Retriever struct {
	store vectorstore.Store

	mu  sync.Mutex
	rng *rand.Rand
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithRand makes sampling deterministic for tests.
func WithRand(r *rand.Rand) RetrieverOption {
	return func(rt *Retriever) { rt.rng = r }
}

// NewRetriever creates a retriever over store.
func NewRetriever(store vectorstore.Store, opts ...RetrieverOption) *Retriever {
	r := &Retriever{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retriever) intN(n int) int {
	if r.rng == nil {
		return rand.IntN(n)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

func toChunk(rec vectorstore.Record) Chunk {
	return Chunk{
		ID:       rec.ID,
		Document: DocumentString(rec.Document),
		Metadata: rec.Metadata,
		Distance: rec.Distance,
	}
}

// Query returns up to n chunks nearest to text, best first.
func (r *Retriever) Query(ctx context.Context, collectionID, text string, n int) ([]Chunk, error) {
	recs, err := r.store.Query(ctx, collectionID, text, n)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	out := make([]Chunk, len(recs))
	for i, rec := range recs {
		out[i] = toChunk(rec)
	}
	return out, nil
}

func (r *Retriever) all(ctx context.Context, collectionID string) ([]vectorstore.Record, error) {
	recs, err := r.store.Get(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("collection %s: %w", collectionID, ErrEmptyContent)
	}
	return recs, nil
}

// RandomSlideContext returns one chunk chosen uniformly at random.
func (r *Retriever) RandomSlideContext(ctx context.Context, collectionID string) (Chunk, error) {
	recs, err := r.all(ctx, collectionID)
	if err != nil {
		return Chunk{}, err
	}
	return toChunk(recs[r.intN(len(recs))]), nil
}

// RandomSlideWithImage samples uniformly until it draws a chunk containing an
// image, giving up after a fixed number of draws.
func (r *Retriever) RandomSlideWithImage(ctx context.Context, collectionID string) (Chunk, error) {
	recs, err := r.all(ctx, collectionID)
	if err != nil {
		return Chunk{}, err
	}
	for range maxImageDraws {
		rec := recs[r.intN(len(recs))]
		if rec.Metadata.HasImage() {
			return toChunk(rec), nil
		}
	}
	return Chunk{}, fmt.Errorf("collection %s after %d draws: %w", collectionID, maxImageDraws, ErrNoImageChunk)
}

// ContextBySlideNumber returns the chunk for slide n.
func (r *Retriever) ContextBySlideNumber(ctx context.Context, collectionID string, n int) (Chunk, error) {
	recs, err := r.store.Get(ctx, collectionID)
	if err != nil {
		return Chunk{}, fmt.Errorf("get collection: %w", err)
	}
	for _, rec := range recs {
		if rec.Metadata.SlideNumber == n {
			return toChunk(rec), nil
		}
	}
	return Chunk{}, fmt.Errorf("slide %d: %w", n, ErrSlideNotFound)
}

// Count returns the number of chunks in the collection.
func (r *Retriever) Count(ctx context.Context, collectionID string) (int, error) {
	n, err := r.store.Count(ctx, collectionID)
	if err != nil {
		return 0, fmt.Errorf("count collection: %w", err)
	}
	return n, nil
}
