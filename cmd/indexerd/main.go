// Package main provides the entry point for the indexerd CLI.
package main

import (
	"os"

	"github.com/fsgraph/indexer/cmd/indexerd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
