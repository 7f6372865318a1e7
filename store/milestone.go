package store

import (
	"context"
	"sync"
	"time"

	"github.com/smallnest/milestonedb/log"
)

// MilestoneDB is the capability a collaborative-editing server needs from a
// milestone store.
type MilestoneDB interface {
	Save(ctx context.Context, collection string, snapshot *Snapshot) (bool, error)
	Get(ctx context.Context, collection, id string, version *int64) (*Snapshot, error)
	Close(ctx context.Context) error
}

var _ MilestoneDB = (*MilestoneStore)(nil)

// MilestoneStore persists milestone snapshots to a Backend.
type MilestoneStore struct {
	conn     *connection
	indexes  *indexProvisioner
	logger   log.Logger
	recorder Recorder

	listenersMu sync.RWMutex
	listeners   []Listener
}

// New validates opts and starts connecting in the background. Operations
// issued before the connection is established wait for it. ctx governs the
// connect attempt.
func New(ctx context.Context, opts Options) (*MilestoneStore, error) {
	connector, err := resolveConnector(opts)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &MilestoneStore{
		conn:     openConnection(ctx, connector, logger),
		indexes:  newIndexProvisioner(opts.DisableIndexCreation, logger, recorder),
		logger:   logger,
		recorder: recorder,
	}, nil
}

func resolveConnector(opts Options) (Connector, error) {
	switch {
	case opts.URI != "" && opts.Connector != nil:
		return nil, &ConfigurationError{Reason: "URI and Connector are mutually exclusive"}
	case opts.Connector != nil:
		return opts.Connector, nil
	case opts.URI != "":
		return connectorFor(opts.URI, opts.ConnectOptions)
	default:
		return nil, &ConfigurationError{Field: "URI", Reason: "a connection descriptor or Connector is required"}
	}
}

// Ready waits for the connect attempt started by New and returns its error,
// if any.
func (s *MilestoneStore) Ready(ctx context.Context) error {
	_, err := s.conn.resolve(ctx)
	return err
}

// AddListener registers a listener for SaveAsync outcomes.
func (s *MilestoneStore) AddListener(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// collection resolves the backend and provisions the index of the physical
// collection behind a logical name.
func (s *MilestoneStore) collection(ctx context.Context, collection string) (Backend, string, error) {
	backend, err := s.conn.resolve(ctx)
	if err != nil {
		return nil, "", err
	}

	name := CollectionName(collection)
	if err := s.indexes.ensure(ctx, backend, name); err != nil {
		return nil, "", err
	}
	return backend, name, nil
}

// Save upserts snapshot under its (id, v). It reports false without touching
// storage when snapshot is empty.
func (s *MilestoneStore) Save(ctx context.Context, collection string, snapshot *Snapshot) (bool, error) {
	if snapshot.IsEmpty() {
		return false, nil
	}

	start := time.Now()
	err := s.save(ctx, collection, snapshot)
	s.recorder.ObserveOperation(OperationSave, collection, time.Since(start), err)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MilestoneStore) save(ctx context.Context, collection string, snapshot *Snapshot) error {
	backend, name, err := s.collection(ctx, collection)
	if err != nil {
		return err
	}
	return backend.Upsert(ctx, name, Key{ID: snapshot.ID, V: snapshot.V}, snapshot.Document())
}

// SaveAsync saves in the background and publishes the outcome to the
// registered listeners instead of returning it.
func (s *MilestoneStore) SaveAsync(ctx context.Context, collection string, snapshot *Snapshot) {
	go func() {
		saved, err := s.Save(ctx, collection, snapshot)

		event := Event{
			Type:       EventSave,
			Timestamp:  time.Now(),
			Collection: collection,
			Snapshot:   snapshot,
			Saved:      saved,
		}
		if err != nil {
			event.Type = EventError
			event.Err = err
		}
		s.publish(ctx, event)
	}()
}

func (s *MilestoneStore) publish(ctx context.Context, event Event) {
	s.listenersMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	if len(listeners) == 0 && event.Err != nil {
		s.logger.Error("unobserved save error on %s: %v", event.Collection, event.Err)
	}
	for _, l := range listeners {
		l.OnMilestoneEvent(ctx, event)
	}
}

// Get returns the snapshot of id with the greatest version not exceeding
// version, or the latest snapshot when version is nil. It returns nil, nil
// when no snapshot qualifies.
func (s *MilestoneStore) Get(ctx context.Context, collection, id string, version *int64) (*Snapshot, error) {
	start := time.Now()
	snap, err := s.get(ctx, collection, id, version)
	s.recorder.ObserveOperation(OperationGet, collection, time.Since(start), err)
	return snap, err
}

func (s *MilestoneStore) get(ctx context.Context, collection, id string, version *int64) (*Snapshot, error) {
	backend, name, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}

	q := Query{ID: id}
	if version != nil {
		v := *version
		q.MaxVersion = &v
	}

	doc, err := backend.FindLatest(ctx, name, q)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return SnapshotFromDocument(doc)
}

// GetLatest returns the most recent snapshot of id.
func (s *MilestoneStore) GetLatest(ctx context.Context, collection, id string) (*Snapshot, error) {
	return s.Get(ctx, collection, id, nil)
}

// GetAt returns the snapshot of id with the greatest version <= version.
func (s *MilestoneStore) GetAt(ctx context.Context, collection, id string, version int64) (*Snapshot, error) {
	return s.Get(ctx, collection, id, &version)
}

// EnsureIndex issues the index request for collection even when automatic
// creation is disabled.
func (s *MilestoneStore) EnsureIndex(ctx context.Context, collection string) error {
	backend, err := s.conn.resolve(ctx)
	if err != nil {
		return err
	}
	return s.indexes.create(ctx, backend, CollectionName(collection))
}

// Indexed reports whether the index of collection has been provisioned by
// this process.
func (s *MilestoneStore) Indexed(collection string) bool {
	return s.indexes.has(CollectionName(collection))
}

// Close releases the connection. Subsequent operations fail with ErrClosed.
// In-flight operations are not cancelled. The store is closed even when an
// error is returned.
func (s *MilestoneStore) Close(ctx context.Context) error {
	return s.conn.close(ctx)
}
