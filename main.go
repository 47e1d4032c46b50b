package main

import (
	"fmt"
	"os"

	"github.com/forgeflow/forgeflow/internal/cmd"
	"github.com/forgeflow/forgeflow/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "forgeflow: %s: %v\n", errors.GetSeverity(err), err)
		// Hard stops (corrupt state, divergence, failed decomposition,
		// unsupported schema) get a distinct exit code so wrappers can
		// tell "fix your state" from an ordinary failed invocation.
		if errors.IsHardStop(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
