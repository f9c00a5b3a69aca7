// Package main is the entry point for the ddl-cache CLI binary.
package main

import (
	"os"

	cli "ddl-cache/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
