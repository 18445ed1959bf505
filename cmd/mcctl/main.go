// mcctl is the command-line client for managing modelcached servers.
package main

import (
	"fmt"
	"os"

	"github.com/modelcached/modelcached/cmd/mcctl/commands"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
