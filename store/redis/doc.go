// Package redis provides a Redis backend for milestone snapshots.
//
// Each document keeps a hash of version to snapshot JSON and a sorted set of
// its versions scored by v. The sorted set answers "latest at or below v"
// with a single ZREVRANGEBYSCORE, so the hash and the set together play the
// role of the unique (id, v) index. Index definitions requested by the store
// are recorded under {prefix}indexes.
//
// # Basic Usage
//
//	import (
//		"github.com/smallnest/milestonedb/store"
//		_ "github.com/smallnest/milestonedb/store/redis"
//	)
//
//	db, err := store.New(ctx, store.Options{
//		URI:            "redis://localhost:6379/0",
//		ConnectOptions: map[string]any{"prefix": "milestones:"},
//	})
//
// The "rediss" scheme enables TLS. The default key prefix is "milestonedb:".
package redis
