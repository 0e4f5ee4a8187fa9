package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/p-n-ai/pai-quizzer/internal/embedding"
)

type memRecord struct {
	id       string
	document string
	metadata Metadata
	vector   []float32
}

// Memory is an in-process Store with brute-force cosine search.
type Memory struct {
	embedder    embedding.Embedder
	collections map[string][]memRecord
	mu          sync.RWMutex
}

// NewMemory creates an empty in-memory store.
func NewMemory(embedder embedding.Embedder) *Memory {
	return &Memory{
		embedder:    embedder,
		collections: make(map[string][]memRecord),
	}
}

func (m *Memory) CreateCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrCollectionExists)
	}
	m.collections[name] = []memRecord{}
	return nil
}

func (m *Memory) HasCollection(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *Memory) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	delete(m.collections, name)
	return nil
}

func (m *Memory) Add(ctx context.Context, name string, ids, documents []string, metadatas []Metadata) error {
	return m.write(ctx, name, ids, documents, metadatas, false)
}

func (m *Memory) Replace(ctx context.Context, name string, ids, documents []string, metadatas []Metadata) error {
	return m.write(ctx, name, ids, documents, metadatas, true)
}

func (m *Memory) write(ctx context.Context, name string, ids, documents []string, metadatas []Metadata, replace bool) error {
	if err := checkAdd(ids, documents, metadatas); err != nil {
		return err
	}
	vectors, err := m.embedder.EmbedBatch(ctx, documents)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	recs, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	if replace {
		recs = make([]memRecord, 0, len(ids))
	}
	for i := range ids {
		recs = append(recs, memRecord{id: ids[i], document: documents[i], metadata: metadatas[i], vector: vectors[i]})
	}
	m.collections[name] = recs
	return nil
}

func (m *Memory) Query(ctx context.Context, name, text string, k int) ([]Record, error) {
	qv, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	m.mu.RLock()
	recs, ok := m.collections[name]
	if !ok {
		m.mu.RUnlock()
		return nil, fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = Record{ID: r.id, Document: r.document, Metadata: r.metadata, Distance: 1 - embedding.Cosine(qv, r.vector)}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, name string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = Record{ID: r.id, Document: r.document, Metadata: r.metadata}
	}
	return out, nil
}

func (m *Memory) Count(_ context.Context, name string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs, ok := m.collections[name]
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	return len(recs), nil
}
