package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// stubBackend is an in-memory Backend that counts calls.
type stubBackend struct {
	mu           sync.Mutex
	docs         map[string]map[Key]Document
	indexCalls   map[string]int
	upserts      int
	finds        int
	closes       int
	indexErr     error
	upsertErr    error
	findErr      error
	closeErr     error
	lastQuery    Query
	lastIndex    Index
	withInternal bool
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		docs:       make(map[string]map[Key]Document),
		indexCalls: make(map[string]int),
	}
}

func (b *stubBackend) connector() Connector {
	return func(ctx context.Context) (Backend, error) { return b, nil }
}

func (b *stubBackend) CreateIndex(ctx context.Context, collection string, index Index) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.indexCalls[collection]++
	b.lastIndex = index
	return b.indexErr
}

func (b *stubBackend) Upsert(ctx context.Context, collection string, key Key, doc Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upserts++
	if b.upsertErr != nil {
		return b.upsertErr
	}
	if b.docs[collection] == nil {
		b.docs[collection] = make(map[Key]Document)
	}
	stored := doc.Clone()
	if b.withInternal {
		stored[FieldInternalID] = "internal"
	}
	b.docs[collection][key] = stored
	return nil
}

func (b *stubBackend) FindLatest(ctx context.Context, collection string, q Query) (Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finds++
	b.lastQuery = q
	if b.findErr != nil {
		return nil, b.findErr
	}

	var keys []Key
	for k := range b.docs[collection] {
		if k.ID != q.ID {
			continue
		}
		if q.MaxVersion != nil && k.V > *q.MaxVersion {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].V > keys[j].V })
	return b.docs[collection][keys[0]].Clone(), nil
}

func (b *stubBackend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return b.closeErr
}

// rawPut stores a document bypassing the store, e.g. one without metadata.
func (b *stubBackend) rawPut(collection string, doc Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.docs[collection] == nil {
		b.docs[collection] = make(map[Key]Document)
	}
	v, _ := VersionOf(doc[FieldVersion])
	b.docs[collection][Key{ID: doc[FieldID].(string), V: v}] = doc
}

func (b *stubBackend) indexCount(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.indexCalls[collection]
}

func (b *stubBackend) counts() (upserts, finds int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.upserts, b.finds
}

var errStub = errors.New("stub failure")
