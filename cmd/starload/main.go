// Package main provides the starload command.
package main

import (
	"errors"
	"os"

	"github.com/leapstack-labs/starload/internal/cli"
	"github.com/leapstack-labs/starload/internal/cli/commands"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := cli.Execute(); err != nil {
		var exitErr *commands.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 1
	}
	return 0
}
