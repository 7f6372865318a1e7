// Package main provides the entry point for milestonedb, a command-line tool
// for saving and inspecting milestone snapshots.
package main

import (
	"fmt"
	"os"

	"github.com/smallnest/milestonedb/internal/cli"
)

func main() {
	if err := cli.App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
