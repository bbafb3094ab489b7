// Package main is the entry point for the mcpvisio CLI tool.
package main

import (
	"os"

	"github.com/mcp-visio/mcpvisio/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
