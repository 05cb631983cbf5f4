// Command deckcheck analyzes a presentation for cross-slide inconsistencies.
//
// Usage:
//
//	deckcheck analyze deck.pptx --output-dir reports --format json --format html
//
// Exit codes: 0 clean, 1 findings, 2 critical findings, 3 analysis failure,
// 130 interrupted.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/deckcheck/internal/report"
)

// exitError carries a process exit code out of a command. A nil err exits
// silently.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "deckcheck",
		Short:         "Find contradictions across the slides of a presentation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newAnalyzeCmd())
	return root
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return report.ExitClean
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "Error:", ee.err)
		}
		return ee.code
	}
	// Usage and flag errors.
	fmt.Fprintln(stderr, "Error:", err)
	return report.ExitFailure
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
