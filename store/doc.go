// Package store persists milestone snapshots and answers "latest snapshot at
// or below version v" queries.
//
// # Core Concepts
//
// A Snapshot is identified by (id, v) within a logical collection. Its
// milestones are kept in the physical collection CollectionName(c), which is
// c with the "m_" prefix. Saving the same (id, v) twice replaces the first
// snapshot.
//
// The first operation on a physical collection requests the unique
// MilestoneIndex on (id, v) from the backend. Successful requests are
// remembered for the life of the store, failed ones are retried by the next
// operation. Set Options.DisableIndexCreation to manage indexes out of band,
// optionally through EnsureIndex.
//
// # Backends
//
// A Backend is opened from a connection descriptor whose scheme selects a
// driver registered with Register, in the manner of database/sql:
//
//	import _ "github.com/smallnest/milestonedb/store/postgres"
//
//	db, err := store.New(ctx, store.Options{URI: "postgres://localhost/milestones"})
//
// Alternatively, Options.Connector supplies a live backend directly.
//
// # Lifecycle
//
// New returns immediately and connects in the background. Operations wait for
// the attempt to finish. If it fails, or after Close, every operation
// returns a *ClosedError matching ErrClosed; when the store never opened,
// the error also wraps the connect failure.
//
// # Asynchronous saves
//
// SaveAsync reports its outcome as an Event to listeners registered with
// AddListener instead of returning it.
//
//	db.AddListener(store.ListenerFunc(func(ctx context.Context, e store.Event) {
//		if e.Type == store.EventError {
//			log.Error("milestone %s@%d not saved: %v", e.Snapshot.ID, e.Snapshot.V, e.Err)
//		}
//	}))
//
// # Typed data
//
// Snapshot data read back from JSON-based backends arrives as generic maps.
// A TypeRegistry decodes it into the Go type registered for the snapshot's
// OT type name, see TypeRegistry.Decode. DecodeData decodes into a
// type chosen by the caller.
package store
