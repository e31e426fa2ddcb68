// Package main provides the entry point for the pleiades CLI.
package main

import (
	"fmt"
	"os"

	"github.com/pleiades-agents/pleiades/cmd/pleiades/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(commands.ExitCode(err))
	}
}
