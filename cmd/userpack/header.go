// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/invowk/userpack/internal/issue"
	"github.com/invowk/userpack/pkg/metadata"
	"github.com/invowk/userpack/pkg/types"

	"github.com/spf13/cobra"
)

func newHeaderCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "header <file>",
		Short: "Show and check the header of a userscript",
		Long: `Print the ==UserScript== block of a file, one directive per line.

Lines inside the block that are not "// @key value" directives are flagged
and make the command fail.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return app.fail(cmd, issue.WrapWithContext(err, "read userscript", args[0]))
			}

			res := metadata.Parse(string(data))
			if err := res.Err(); err != nil {
				return app.fail(cmd, issue.NewErrorContext().
					WithOperation("read userscript header").
					WithResource(args[0]).
					WithSuggestion("Start the file with a // ==UserScript== block, or let build generate one").
					Wrap(err).
					BuildError())
			}

			invalid := 0
			for _, line := range res.Header() {
				switch {
				case line.Start, line.End:
					fmt.Fprintln(app.stdout, SubtitleStyle.Render(line.Raw))
				case line.Entry != nil:
					fmt.Fprintf(app.stdout, "%s %s\n", KeyStyle.Render("@"+line.Entry.Key), line.Entry.Value)
				case line.Invalid:
					invalid++
					fmt.Fprintf(app.stdout, "%s %s %s\n", warningIcon, VerboseStyle.Render(fmt.Sprintf("line %d:", line.Number)), line.Raw)
				}
			}

			if invalid > 0 {
				cmd.SilenceUsage = true
				cmd.SilenceErrors = true
				fmt.Fprintf(app.stderr, "%s %d invalid header line(s)\n", errorIcon, invalid)
				return &ExitError{Code: types.ExitFailure}
			}
			fmt.Fprintf(app.stdout, "%s %d directive(s)\n", successIcon, len(res.Entries()))
			return nil
		},
	}
}
