// Package main runs the storekit CLI.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/storekit/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "storekit: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
