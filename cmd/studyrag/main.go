// Command studyrag is the entry point for the study assistant backend.
// It provides a CLI interface (via Cobra) for ingesting course material and
// asking questions, and an HTTP server exposing the same operations.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/studyrag-go/cmd/studyrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
