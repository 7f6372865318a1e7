package store

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Backend is the document store milestones are persisted to.
type Backend interface {
	// CreateIndex requests creation of index on collection. It must be
	// idempotent at the storage layer.
	CreateIndex(ctx context.Context, collection string, index Index) error

	// Upsert replaces the document matching key, or inserts doc when none
	// matches.
	Upsert(ctx context.Context, collection string, key Key, doc Document) error

	// FindLatest returns the document with the greatest version matching q,
	// without the storage-internal identity field. It returns nil, nil when
	// nothing matches.
	FindLatest(ctx context.Context, collection string, q Query) (Document, error)

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// Key identifies a single milestone within a physical collection.
type Key struct {
	ID string
	V  int64
}

// Query selects milestones of one document. A nil MaxVersion means no
// upper bound.
type Query struct {
	ID         string
	MaxVersion *int64
}

// SortOrder of an index key.
type SortOrder int

const (
	Ascending  SortOrder = 1
	Descending SortOrder = -1
)

// IndexKey is one field of a composite index.
type IndexKey struct {
	Field string
	Order SortOrder
}

// Index describes a storage-layer index.
type Index struct {
	Name string
	Keys []IndexKey
	// Unique enforces uniqueness over the combination of Keys.
	Unique bool
	// Background asks the backend not to block concurrent readers and
	// writers while the index is built.
	Background bool
}

// MilestoneIndex is the unique (id, v) index that makes version lookups
// efficient.
var MilestoneIndex = Index{
	Name: "id_1_v_1",
	Keys: []IndexKey{
		{Field: FieldID, Order: Ascending},
		{Field: FieldVersion, Order: Ascending},
	},
	Unique:     true,
	Background: true,
}

// Connector resolves a live Backend. It is the caller-supplied alternative to
// a connection descriptor.
type Connector func(ctx context.Context) (Backend, error)

// OpenFunc opens a Backend for a connection descriptor. options are the
// pass-through connection options from Options.ConnectOptions.
type OpenFunc func(ctx context.Context, uri *url.URL, options map[string]any) (Backend, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]OpenFunc)
)

// Register makes a backend available under a URI scheme. It panics if open
// is nil or the scheme is already registered.
func Register(scheme string, open OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if open == nil {
		panic("store: Register open func is nil")
	}
	scheme = strings.ToLower(scheme)
	if _, dup := drivers[scheme]; dup {
		panic("store: Register called twice for scheme " + scheme)
	}
	drivers[scheme] = open
}

// Drivers returns the sorted list of registered schemes.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	list := make([]string, 0, len(drivers))
	for scheme := range drivers {
		list = append(list, scheme)
	}
	sort.Strings(list)
	return list
}

// connectorFor turns a connection descriptor into a Connector using the
// registered drivers.
func connectorFor(uri string, options map[string]any) (Connector, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, &ConfigurationError{Field: "URI", Reason: fmt.Sprintf("cannot parse connection descriptor: %v", err)}
	}
	if u.Scheme == "" {
		return nil, &ConfigurationError{Field: "URI", Reason: fmt.Sprintf("connection descriptor %q has no scheme", uri)}
	}

	driversMu.RLock()
	open, ok := drivers[strings.ToLower(u.Scheme)]
	driversMu.RUnlock()
	if !ok {
		return nil, &ConfigurationError{Field: "URI", Reason: fmt.Sprintf("no backend registered for scheme %q", u.Scheme)}
	}

	return func(ctx context.Context) (Backend, error) {
		return open(ctx, u, options)
	}, nil
}
