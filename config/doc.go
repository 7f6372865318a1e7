// Package config loads milestonedb settings.
//
// Sources are applied in order, later ones overriding earlier ones:
//  1. Defaults
//  2. YAML configuration file
//  3. MILESTONEDB_* environment variables
//  4. Explicit overrides via LoadMap, typically command-line flags
//
// Environment keys map to dotted paths: MILESTONEDB_INDEX_DISABLE=true sets
// index.disable, MILESTONEDB_CONNECT_TIMEOUT=5s sets connect.timeout.
//
// Example file:
//
//	uri: mongodb://localhost:27017/sharedb
//	options:
//	  appName: editor
//	index:
//	  disable: false
//	connect:
//	  timeout: 10s
//	log:
//	  level: info
package config
