// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/invowk/userpack/internal/manifest"
	"github.com/invowk/userpack/pkg/types"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newResolveCommand(app *App, flags *rootFlagValues) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "resolve <name> [version]",
		Short: "Print the CDN link of a package",
		Long: `Print the URL a @require line would use for a package.

Without a version, the one pinned in package.json is used, else "latest".`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			m := types.Mode(mode)
			if err := m.Validate(); err != nil {
				return app.fail(cmd, err)
			}
			p, err := app.loadProject(ctx, flags)
			if err != nil {
				return app.fail(cmd, err)
			}

			name, version := args[0], ""
			if len(args) == 2 {
				version = args[1]
			}
			pins, err := manifest.Load(afero.NewOsFs(), p.cfg.Manifest)
			if err != nil {
				return app.fail(cmd, err)
			}
			version = pins.VersionFor(name, version)

			link, err := app.NewResolver(p.cfg, app.logger).ResolveLink(ctx, name, version, m)
			if err != nil {
				return app.fail(cmd, err)
			}
			fmt.Fprintln(app.stdout, link)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", types.ModeProduction.String(), "build mode (development or production)")

	return cmd
}
