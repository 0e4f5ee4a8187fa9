// Package vectorstore provides vector-searchable collections of slide chunks.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/p-n-ai/pai-quizzer/internal/presentation"
)

var (
	// ErrCollectionNotFound is returned for unknown or already deleted collections.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrCollectionExists is returned when creating a collection twice.
	ErrCollectionExists = errors.New("collection already exists")
)

// Metadata is the record stored next to each chunk document.
type Metadata struct {
	SlideNumber int                         `json:"slide_number"`
	Items       []presentation.ItemMetadata `json:"items"`
}

// HasImage reports whether any item in the chunk is an image.
func (m Metadata) HasImage() bool {
	_, ok := m.FirstImage()
	return ok
}

// FirstImage returns the first image item in reading order.
func (m Metadata) FirstImage() (presentation.ItemMetadata, bool) {
	for _, it := range m.Items {
		if it.Type == presentation.ItemImage {
			return it, true
		}
	}
	return presentation.ItemMetadata{}, false
}

// Record is one chunk as returned by a store.
type Record struct {
	ID string
	// Document is the chunk text as the backend returns it: a string for the
	// bundled stores, possibly a list of fragments for others.
	Document any
	Metadata Metadata
	// Distance is set by Query; lower is closer.
	Distance float64
}

// Store is a set of named collections.
type Store interface {
	CreateCollection(ctx context.Context, name string) error
	HasCollection(ctx context.Context, name string) (bool, error)
	DeleteCollection(ctx context.Context, name string) error
	Add(ctx context.Context, name string, ids, documents []string, metadatas []Metadata) error
	// Replace swaps every chunk of an existing collection for the given ones.
	// On error the previous chunks are left in place.
	Replace(ctx context.Context, name string, ids, documents []string, metadatas []Metadata) error
	Query(ctx context.Context, name, text string, k int) ([]Record, error)
	Get(ctx context.Context, name string) ([]Record, error)
	Count(ctx context.Context, name string) (int, error)
}

func checkAdd(ids, documents []string, metadatas []Metadata) error {
	if len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("mismatched add: %d ids, %d documents, %d metadatas", len(ids), len(documents), len(metadatas))
	}
	return nil
}
