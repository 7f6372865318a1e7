package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/smallnest/milestonedb/config"
	"github.com/smallnest/milestonedb/log"
	"github.com/smallnest/milestonedb/store"

	// Backends available to connection descriptors.
	_ "github.com/smallnest/milestonedb/store/memory"
	_ "github.com/smallnest/milestonedb/store/mongo"
	_ "github.com/smallnest/milestonedb/store/postgres"
	_ "github.com/smallnest/milestonedb/store/redis"
	_ "github.com/smallnest/milestonedb/store/sqlite"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "milestonedb",
		Usage:   "save and inspect milestone snapshots",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SaveCommand(),
			GetCommand(),
			IndexCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"MILESTONEDB_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "uri",
			Usage: "connection descriptor, one of " + strings.Join(store.Drivers(), ", ") + " (overrides config)",
		},
		&cli.BoolFlag{
			Name:  "disable-index-creation",
			Usage: "do not provision the (id, v) index on first use",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn, error or none",
		},
	}
}

// loadConfig merges the config file, environment and global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	overrides := map[string]any{}
	if c.IsSet("uri") {
		overrides["uri"] = c.String("uri")
	}
	if c.IsSet("disable-index-creation") {
		overrides["index.disable"] = c.Bool("disable-index-creation")
	}
	if c.IsSet("log-level") {
		overrides["log.level"] = c.String("log-level")
	}

	return config.NewLoader(
		config.WithConfigFile(c.String("config")),
		config.WithOverrides(overrides),
	).Load()
}

// openStore connects using the merged configuration. The returned store is
// ready; callers must close it.
func openStore(c *cli.Context) (*store.MilestoneStore, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	logger := log.NewGologLoggerWithLevel(cfg.LogLevel())

	ctx := c.Context
	if cfg.Connect.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Connect.Timeout)
		defer cancel()
	}

	s, err := store.New(ctx, cfg.StoreOptions(logger, nil))
	if err != nil {
		return nil, err
	}
	if err := s.Ready(ctx); err != nil {
		_ = s.Close(c.Context)
		return nil, err
	}
	return s, nil
}
