// Command labloop lets a code-modification agent iterate on an experiment
// folder: it runs the experiment, feeds results or errors back, and finally
// asks for plots and notes.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errIncomplete) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
