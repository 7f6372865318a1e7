package cli

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/smallnest/milestonedb/store"
)

// SaveCommand returns the save command.
func SaveCommand() *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "Save a milestone snapshot",
		ArgsUsage: "<collection>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "id",
				Usage: "document id (random when omitted)",
			},
			&cli.Int64Flag{
				Name:     "v",
				Usage:    "document version",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "OT type name",
			},
			&cli.StringFlag{
				Name:  "data",
				Usage: "snapshot data as JSON",
				Value: "null",
			},
			&cli.StringFlag{
				Name:  "meta",
				Usage: "snapshot metadata as JSON",
			},
		},
		Action: runSave,
	}
}

func runSave(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: milestonedb save <collection> --v N", 2)
	}
	collection := c.Args().First()

	snap := &store.Snapshot{
		ID:   c.String("id"),
		V:    c.Int64("v"),
		Type: c.String("type"),
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.V < 0 {
		return cli.Exit("version must not be negative", 2)
	}
	if err := json.Unmarshal([]byte(c.String("data")), &snap.Data); err != nil {
		return fmt.Errorf("invalid --data: %w", err)
	}
	if meta := c.String("meta"); meta != "" {
		if err := json.Unmarshal([]byte(meta), &snap.M); err != nil {
			return fmt.Errorf("invalid --meta: %w", err)
		}
	}

	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close(c.Context)

	if _, err := s.Save(c.Context, collection, snap); err != nil {
		return fmt.Errorf("save failed: %w", err)
	}
	return printJSON(c, snap)
}

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print the latest snapshot at or below a version",
		ArgsUsage: "<collection> <id>",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "v",
				Usage: "upper version bound (latest when omitted)",
			},
		},
		Action: runGet,
	}
}

func runGet(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: milestonedb get <collection> <id> [--v N]", 2)
	}
	collection, id := c.Args().Get(0), c.Args().Get(1)

	var version *int64
	if c.IsSet("v") {
		v := c.Int64("v")
		version = &v
	}

	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close(c.Context)

	snap, err := s.Get(c.Context, collection, id, version)
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}
	if snap == nil {
		return cli.Exit("not found", 1)
	}
	return printJSON(c, snap)
}

// IndexCommand returns the index command.
func IndexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "Provision the milestone index of a collection",
		ArgsUsage: "<collection>",
		Action:    runIndex,
	}
}

func runIndex(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: milestonedb index <collection>", 2)
	}
	collection := c.Args().First()

	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close(c.Context)

	if err := s.EnsureIndex(c.Context, collection); err != nil {
		return fmt.Errorf("index failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "index %s on %s ready\n", store.MilestoneIndex.Name, store.CollectionName(collection))
	return nil
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
