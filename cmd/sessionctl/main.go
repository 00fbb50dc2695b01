// Package main provides the entry point for sessionctl.
package main

import (
	"fmt"
	"os"

	"github.com/jrsteele09/go-session-client/internal/cli"
)

func main() {
	app := cli.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
