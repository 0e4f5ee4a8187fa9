// Package rag builds per-slide vector collections and retrieves chunks from them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-quizzer/internal/blobstore"
	"github.com/p-n-ai/pai-quizzer/internal/presentation"
	"github.com/p-n-ai/pai-quizzer/internal/vectorstore"
)

var (
	// ErrEmptyContent means no slide produced any indexable content.
	ErrEmptyContent = errors.New("presentation has no indexable content")
	// ErrNoImageChunk means sampling found no chunk containing an image.
	ErrNoImageChunk = errors.New("no chunk with an image found")
	// ErrSlideNotFound means no chunk carries the requested slide number.
	ErrSlideNotFound = errors.New("slide not found in collection")
)

// Chunk is one slide's document and metadata.
type Chunk struct {
	ID       string               `json:"id"`
	Document string               `json:"document"`
	Metadata vectorstore.Metadata `json:"metadata"`
	// Distance is only set for query results.
	Distance float64 `json:"distance,omitempty"`
}

// BuildChunks aggregates each slide into one chunk. Slides whose joined
// content is empty are skipped.
func BuildChunks(p *presentation.Presentation) []Chunk {
	var chunks []Chunk
	for _, s := range p.Slides {
		var parts []string
		md := vectorstore.Metadata{SlideNumber: s.Number}
		for _, it := range s.Items {
			if c := strings.TrimSpace(it.Content()); c != "" {
				parts = append(parts, c)
			}
			md.Items = append(md.Items, it.Metadata())
		}
		if len(parts) == 0 {
			continue
		}
		chunks = append(chunks, Chunk{Document: strings.Join(parts, "\n"), Metadata: md})
	}
	return chunks
}

// Indexer turns presentations into vector collections.
type Indexer struct {
	store vectorstore.Store
	blobs blobstore.Store
}

// NewIndexer creates an indexer writing vectors to store and image bytes to blobs.
func NewIndexer(store vectorstore.Store, blobs blobstore.Store) *Indexer {
	return &Indexer{store: store, blobs: blobs}
}

// CreateCollection indexes p under a fresh collection ID. Images without a
// blob ID are uploaded first and get their BlobID set.
func (ix *Indexer) CreateCollection(ctx context.Context, p *presentation.Presentation) (string, error) {
	if len(BuildChunks(p)) == 0 {
		return "", ErrEmptyContent
	}
	if err := ix.UploadImages(ctx, p); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if err := ix.store.CreateCollection(ctx, id); err != nil {
		return "", fmt.Errorf("create collection: %w", err)
	}
	n, err := ix.add(ctx, id, p)
	if err != nil {
		_ = ix.store.DeleteCollection(ctx, id)
		return "", err
	}

	slog.Info("collection created",
		"collection_id", id,
		"presentation", p.Name,
		"chunks", n,
	)
	return id, nil
}

// Reindex replaces the chunks of a collection with p's current content, e.g.
// after its images were described. If indexing fails the collection keeps
// its previous chunks. A missing collection is created.
func (ix *Indexer) Reindex(ctx context.Context, collectionID string, p *presentation.Presentation) error {
	if len(BuildChunks(p)) == 0 {
		return ErrEmptyContent
	}
	if err := ix.UploadImages(ctx, p); err != nil {
		return err
	}
	ok, err := ix.store.HasCollection(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("lookup collection: %w", err)
	}
	if !ok {
		if err := ix.store.CreateCollection(ctx, collectionID); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		n, err := ix.add(ctx, collectionID, p)
		if err != nil {
			_ = ix.store.DeleteCollection(ctx, collectionID)
			return err
		}
		slog.Info("collection reindexed", "collection_id", collectionID, "chunks", n)
		return nil
	}

	ids, docs, mds := chunkColumns(BuildChunks(p))
	if err := ix.store.Replace(ctx, collectionID, ids, docs, mds); err != nil {
		return fmt.Errorf("replace chunks: %w", err)
	}
	slog.Info("collection reindexed", "collection_id", collectionID, "chunks", len(ids))
	return nil
}

// RemoveCollection deletes the collection. A second delete returns an error
// wrapping vectorstore.ErrCollectionNotFound.
func (ix *Indexer) RemoveCollection(ctx context.Context, collectionID string) error {
	if err := ix.store.DeleteCollection(ctx, collectionID); err != nil {
		return fmt.Errorf("remove collection: %w", err)
	}
	return nil
}

// UploadImages stores the bytes of every image that has no blob ID yet.
func (ix *Indexer) UploadImages(ctx context.Context, p *presentation.Presentation) error {
	for _, img := range p.Images() {
		if img.BlobID != "" {
			continue
		}
		id, err := ix.blobs.Put(ctx, img.Data, img.Extension)
		if err != nil {
			return fmt.Errorf("upload image on slide %d: %w", img.SlideNumber, err)
		}
		img.BlobID = id
	}
	return nil
}

func (ix *Indexer) add(ctx context.Context, collectionID string, p *presentation.Presentation) (int, error) {
	ids, docs, mds := chunkColumns(BuildChunks(p))
	if err := ix.store.Add(ctx, collectionID, ids, docs, mds); err != nil {
		return 0, fmt.Errorf("add chunks: %w", err)
	}
	return len(ids), nil
}

// chunkColumns splits chunks into the parallel slices stores take, with
// fresh chunk IDs.
func chunkColumns(chunks []Chunk) ([]string, []string, []vectorstore.Metadata) {
	ids := make([]string, len(chunks))
	docs := make([]string, len(chunks))
	mds := make([]vectorstore.Metadata, len(chunks))
	for i, c := range chunks {
		ids[i] = uuid.NewString()
		docs[i] = c.Document
		mds[i] = c.Metadata
	}
	return ids, docs, mds
}
