// Package milestonedb stores milestone snapshots of versioned documents.
//
// A milestone is a full-state checkpoint of a document at a given version,
// recorded occasionally so that a collaborative-editing server can rebuild a
// past version by loading the nearest milestone at or below it and replaying
// operations forward, instead of replaying the whole history.
//
// # Packages
//
//   - store: the milestone store, its backend contract and driver registry
//   - store/mongo, store/postgres, store/redis, store/sqlite, store/memory:
//     backends, registered by URI scheme on import
//   - config: koanf-based configuration from YAML and MILESTONEDB_* env vars
//   - metrics: Prometheus recorder for store operations
//   - log: leveled logging with a kataras/golog adapter
//   - cmd/milestonedb: command-line tool
//
// # Quick Start
//
//	import (
//		"github.com/smallnest/milestonedb/store"
//		_ "github.com/smallnest/milestonedb/store/mongo"
//	)
//
//	db, err := store.New(ctx, store.Options{URI: "mongodb://localhost:27017/sharedb"})
//	if err != nil {
//		return err
//	}
//	defer db.Close(ctx)
//
//	if _, err := db.Save(ctx, "docs", &store.Snapshot{
//		ID:   "doc-1",
//		V:    20,
//		Type: "json0",
//		Data: map[string]any{"title": "hello"},
//	}); err != nil {
//		return err
//	}
//
//	// Greatest version <= 25, here v20.
//	snap, err := db.GetAt(ctx, "docs", "doc-1", 25)
//
// Milestones of collection "docs" live in the physical collection "m_docs",
// under a unique index on (id, v) that the store creates on first use.
package milestonedb
