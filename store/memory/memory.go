package memory

import (
	"context"
	"net/url"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/smallnest/milestonedb/store"
)

func init() {
	store.Register("memory", open)
}

var (
	namedMu sync.Mutex
	named   = make(map[string]*MemoryBackend)
)

// open returns the backend named by the URI host, creating it on first use.
// "memory://" without a host always yields a fresh backend.
func open(ctx context.Context, uri *url.URL, _ map[string]any) (store.Backend, error) {
	if uri.Host == "" {
		return NewMemoryBackend(), nil
	}

	namedMu.Lock()
	defer namedMu.Unlock()
	b, ok := named[uri.Host]
	if !ok {
		b = NewMemoryBackend()
		named[uri.Host] = b
	}

	b.mu.Lock()
	b.closed = false
	b.mu.Unlock()
	return b, nil
}

// MemoryBackend is an in-process store.Backend. Documents get a random
// storage-internal _id, which FindLatest projects away.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]map[store.Key]store.Document
	indexes     map[string][]store.Index
	closed      bool
}

var _ store.Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		collections: make(map[string]map[store.Key]store.Document),
		indexes:     make(map[string][]store.Index),
	}
}

// CreateIndex records the index; requesting an existing index is a no-op.
func (b *MemoryBackend) CreateIndex(ctx context.Context, collection string, index store.Index) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.indexes[collection] {
		if existing.Name == index.Name {
			return nil
		}
	}
	b.indexes[collection] = append(b.indexes[collection], index)
	return nil
}

// Upsert replaces the document stored under key, keeping its _id, or
// inserts a new one.
func (b *MemoryBackend) Upsert(ctx context.Context, collection string, key store.Key, doc store.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	docs, ok := b.collections[collection]
	if !ok {
		docs = make(map[store.Key]store.Document)
		b.collections[collection] = docs
	}

	stored := doc.Clone()
	if existing, ok := docs[key]; ok {
		stored[store.FieldInternalID] = existing[store.FieldInternalID]
	} else {
		stored[store.FieldInternalID] = uuid.NewString()
	}
	docs[key] = stored
	return nil
}

// FindLatest scans the versions of q.ID.
func (b *MemoryBackend) FindLatest(ctx context.Context, collection string, q store.Query) (store.Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var versions []int64
	for key := range b.collections[collection] {
		if key.ID != q.ID {
			continue
		}
		if q.MaxVersion != nil && key.V > *q.MaxVersion {
			continue
		}
		versions = append(versions, key.V)
	}
	if len(versions) == 0 {
		return nil, nil
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

	doc := b.collections[collection][store.Key{ID: q.ID, V: versions[0]}].Clone()
	delete(doc, store.FieldInternalID)
	return doc, nil
}

// Close marks the backend closed. Named backends keep their data.
func (b *MemoryBackend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Indexes returns the indexes created on collection.
func (b *MemoryBackend) Indexes(collection string) []store.Index {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]store.Index(nil), b.indexes[collection]...)
}

// Len returns the number of documents in collection.
func (b *MemoryBackend) Len(collection string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.collections[collection])
}

// Closed reports whether Close has been called.
func (b *MemoryBackend) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
