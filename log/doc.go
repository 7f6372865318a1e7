// Package log provides the leveled logging interface used by milestonedb.
//
// The store logs connection state changes at Info, index provisioning at
// Debug and failed connects, index requests and closes at Error. Callers pick
// the sink by passing a Logger in store.Options or by replacing the
// package-level default.
//
// # Log Levels
//
// In order of increasing severity:
//
//   - LogLevelDebug: index requests and per-operation detail
//   - LogLevelInfo: connection opened and closed
//   - LogLevelWarn: recoverable problems
//   - LogLevelError: failed connects, index requests and closes
//   - LogLevelNone: disables all output
//
// # Usage
//
//	logger := log.NewDefaultLogger(log.LogLevelDebug)
//
//	s, err := store.New(ctx, store.Options{
//		URI:    "mongodb://localhost:27017/app",
//		Logger: logger,
//	})
//
// # golog Integration
//
// GologLogger forwards to a github.com/kataras/golog logger:
//
//	glogger := golog.New()
//	glogger.SetPrefix("[milestonedb] ")
//
//	logger := log.NewGologLogger(glogger)
//	logger.SetLevel(log.LogLevelDebug)
//
// Levels given as strings (configuration files, flags) are parsed with
// ParseLevel.
package log
