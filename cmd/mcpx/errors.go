package mcpx

import (
	"fmt"
	"os"

	"github.com/cs50victor/mcpx/internal/errs"
)

// exitWith prints err to the diagnostic stream and returns it so cobra's
// RunE propagates a non-zero process exit; the actual exit code (spec.md
// §6: 0/1/2/3) is applied by main() after Execute returns, since cobra
// itself only distinguishes zero from non-zero.
func exitWith(err error) error {
	if ce, ok := errs.AsError(err); ok {
		fmt.Fprintf(os.Stderr, "error: %s", ce.Message)
		if ce.Cause != nil {
			fmt.Fprintf(os.Stderr, ": %v", ce.Cause)
		}
		fmt.Fprintln(os.Stderr)
		if ce.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", ce.Suggestion)
		}
		lastExitCode = ce.Kind.ExitCode()
		return err
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	lastExitCode = 1
	return err
}

// lastExitCode carries the exit code exitWith computed, for main() to
// apply after cobra's Execute returns — cobra's own RunE contract only
// surfaces success/failure, not a specific code.
var lastExitCode int
