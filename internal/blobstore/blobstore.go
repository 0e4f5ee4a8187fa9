// Package blobstore stores raw image bytes and hands out opaque IDs for them.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a blob ID is unknown.
var ErrNotFound = errors.New("blob not found")

// Blob is a stored image.
type Blob struct {
	ID        string
	Extension string
	Data      []byte
}

// Store persists blobs.
type Store interface {
	Put(ctx context.Context, data []byte, extension string) (string, error)
	Get(ctx context.Context, id string) (*Blob, error)
	Delete(ctx context.Context, id string) error
}

func newID() string { return uuid.NewString() }

func normalizeExtension(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		return "", fmt.Errorf("extension is required")
	}
	return ext, nil
}

// Memory is an in-process Store.
type Memory struct {
	blobs map[string]Blob
	mu    sync.RWMutex
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]Blob)}
}

func (m *Memory) Put(_ context.Context, data []byte, extension string) (string, error) {
	ext, err := normalizeExtension(extension)
	if err != nil {
		return "", err
	}
	id := newID()
	m.mu.Lock()
	m.blobs[id] = Blob{ID: id, Extension: ext, Data: append([]byte(nil), data...)}
	m.mu.Unlock()
	return id, nil
}

func (m *Memory) Get(_ context.Context, id string) (*Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	b.Data = append([]byte(nil), b.Data...)
	return &b, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	delete(m.blobs, id)
	return nil
}
