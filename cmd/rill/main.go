// Command rill validates, runs, tests and serves rill programs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rill/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
