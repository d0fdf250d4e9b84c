// The main package for the ingest executable.
package main

import (
	"github.com/recourt/ingest/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
