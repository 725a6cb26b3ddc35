// Package main is the entry point for the isi CLI binary.
package main

import (
	"os"

	cli "isi-import/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
