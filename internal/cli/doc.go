// Package cli defines the milestonedb command-line application.
//
// It uses urfave/cli/v2 for command parsing. Connection settings come from
// the config package, with global flags taking precedence over the
// configuration file and MILESTONEDB_* environment variables.
package cli
