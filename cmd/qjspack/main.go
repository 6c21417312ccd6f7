package main

import (
	"context"
	"os"

	"qjspack/internal/cli"
)

// main is a thin boundary: arguments are canonicalized into an Invocation
// before any build logic runs, and the semantic exit code is the only thing
// decided here.
func main() {
	os.Exit(cli.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
