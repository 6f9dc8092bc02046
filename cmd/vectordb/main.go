// Package main provides the entry point for the vectordb CLI.
package main

import (
	"os"

	"github.com/iwinterknight/vectordb/cmd/vectordb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
