// Command jmo drives the scan orchestrator, normalization pipeline,
// historical store, and diff/trend engine from a single CLI surface.
package main

import (
	"fmt"
	"os"

	"github.com/jmo-security/jmo/cmd/jmo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cmd.ExitCodeFor(err))
	}
}
