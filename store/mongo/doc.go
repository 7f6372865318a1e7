// Package mongo provides the MongoDB backend for milestone snapshots, using
// the official go.mongodb.org/mongo-driver.
//
// Snapshots are stored as documents of the shape
//
//	{ id, v, type, data, m }
//
// in the m_-prefixed collection, under a unique, background-built index
// {id: 1, v: 1}. Reads sort by v descending, limit to one document and
// project away _id.
//
// # Basic Usage
//
//	import (
//		"github.com/smallnest/milestonedb/store"
//		_ "github.com/smallnest/milestonedb/store/mongo"
//	)
//
//	db, err := store.New(ctx, store.Options{
//		URI:            "mongodb://localhost:27017/sharedb",
//		ConnectOptions: map[string]any{"appName": "editor", "maxPoolSize": 20},
//	})
//
// The database is taken from the URI path, the "database" option, or
// defaults to "milestones".
package mongo
