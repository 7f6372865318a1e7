package config

import (
	"time"

	"github.com/smallnest/milestonedb/log"
	"github.com/smallnest/milestonedb/store"
)

// Config is the full milestonedb configuration.
type Config struct {
	// URI is the connection descriptor, e.g. mongodb://host/db.
	URI string `koanf:"uri"`
	// Options are passed through to the backend.
	Options map[string]any `koanf:"options"`
	Index   IndexConfig    `koanf:"index"`
	Connect ConnectConfig  `koanf:"connect"`
	Log     LogConfig      `koanf:"log"`
}

type IndexConfig struct {
	// Disable skips automatic index provisioning.
	Disable bool `koanf:"disable"`
}

type ConnectConfig struct {
	// Timeout bounds the initial connect attempt. Zero means no bound.
	Timeout time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// Default returns the configuration used when no source sets a value.
func Default() *Config {
	return &Config{
		Connect: ConnectConfig{Timeout: 10 * time.Second},
		Log:     LogConfig{Level: "info"},
	}
}

func (c *Config) toMap() map[string]any {
	return map[string]any{
		"uri":             c.URI,
		"index.disable":   c.Index.Disable,
		"connect.timeout": c.Connect.Timeout.String(),
		"log.level":       c.Log.Level,
	}
}

// Validate reports the first invalid setting as a *store.ConfigurationError.
func (c *Config) Validate() error {
	if c.URI == "" {
		return &store.ConfigurationError{Field: "uri", Reason: "a connection descriptor is required"}
	}
	if c.Connect.Timeout < 0 {
		return &store.ConfigurationError{Field: "connect.timeout", Reason: "must not be negative"}
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return &store.ConfigurationError{Field: "log.level", Reason: err.Error()}
	}
	return nil
}

// LogLevel returns the parsed log level, defaulting to info.
func (c *Config) LogLevel() log.LogLevel {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.LogLevelInfo
	}
	return level
}

// StoreOptions builds the options for store.New.
func (c *Config) StoreOptions(logger log.Logger, recorder store.Recorder) store.Options {
	return store.Options{
		URI:                  c.URI,
		ConnectOptions:       c.Options,
		DisableIndexCreation: c.Index.Disable,
		Logger:               logger,
		Recorder:             recorder,
	}
}
