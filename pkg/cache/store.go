package cache

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// Metadata describes the last successful load of a collection.
type Metadata struct {
	Title   string    `json:"title"`
	ETag    string    `json:"etag,omitempty"`
	Created time.Time `json:"created"`
}

// Store persists collections between runs. Replace must swap the documents
// and metadata of a collection atomically.
type Store interface {
	// Load returns the persisted documents of a collection. The metadata
	// is nil when the collection was never stored.
	Load(ctx context.Context, collection string) ([]map[string]any, *Metadata, error)

	Replace(ctx context.Context, collection string, meta Metadata, docs []map[string]any) error

	Delete(ctx context.Context, collection string) error
}

// MemoryStore keeps collections in process memory.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]memoryCollection
}

type memoryCollection struct {
	meta Metadata
	docs []map[string]any
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: map[string]memoryCollection{}}
}

func (s *MemoryStore) Load(_ context.Context, collection string) ([]map[string]any, *Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, nil, nil
	}
	meta := c.meta
	return cloneDocs(c.docs), &meta, nil
}

func (s *MemoryStore) Replace(_ context.Context, collection string, meta Metadata, docs []map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[collection] = memoryCollection{meta: meta, docs: cloneDocs(docs)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, collection)
	return nil
}

// Collections lists the stored collection names.
func (s *MemoryStore) Collections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.collections))
}

// cloneDocs copies the top level of each document. Nested values are
// shared; nothing in this package writes into a document.
func cloneDocs(docs []map[string]any) []map[string]any {
	if docs == nil {
		return nil
	}
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		out[i] = maps.Clone(d)
	}
	return out
}
