// Package sqlite provides a SQLite backend for milestone snapshots, built on
// github.com/mattn/go-sqlite3.
//
// Tables are created per physical collection on first use with the snapshot
// stored as JSON text next to its id and v columns. The unique (id, v) index
// is created when the store requests it.
//
// # Basic Usage
//
//	import (
//		"github.com/smallnest/milestonedb/store"
//		_ "github.com/smallnest/milestonedb/store/sqlite"
//	)
//
//	db, err := store.New(ctx, store.Options{URI: "sqlite:///var/lib/milestones.db"})
//
// Use "sqlite::memory:" for a private in-memory database. A query string is
// handed to the driver, for example "sqlite:///tmp/m.db?_journal_mode=WAL".
package sqlite
