// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/invowk/userpack/internal/issue"

	"github.com/spf13/cobra"
)

// issueStyle is the glamour style used for catalog entries.
const issueStyle = "dark"

// formatErrorForDisplay uses the ActionableError layout when err carries one.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

// renderError prints err and, when it names a catalog entry, the entry's
// rendered help.
func renderError(w io.Writer, err error, verbose bool) {
	fmt.Fprintf(w, "%s %s\n", errorIcon, formatErrorForDisplay(err, verbose))

	var ae *issue.ActionableError
	if !errors.As(err, &ae) || ae.Issue == 0 {
		return
	}
	entry := issue.Get(ae.Issue)
	if entry == nil {
		return
	}
	rendered, renderErr := entry.Render(issueStyle)
	if renderErr != nil {
		return
	}
	fmt.Fprint(w, rendered)
}

// fail renders err and returns it as an ExitError so cobra and fang stay quiet.
func (a *App) fail(cmd *cobra.Command, err error) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	renderError(a.stderr, err, a.verbose)
	return &ExitError{Code: exitCodeFor(err), Err: err}
}
