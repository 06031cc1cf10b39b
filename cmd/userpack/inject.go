// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/invowk/userpack/internal/host/metafilehost"
	"github.com/invowk/userpack/internal/session"
	"github.com/invowk/userpack/pkg/types"

	"github.com/spf13/cobra"
)

type injectFlagValues struct {
	metafile string
	dist     string
	mode     string
}

func newInjectCommand(app *App, flags *rootFlagValues) *cobra.Command {
	inf := &injectFlagValues{}

	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Write headers into bundles another tool already built",
		Long: `Post-process bundles written by esbuild or a compatible bundler.

The metafile lists the bundles, their entry points and the imports the
bundler left external. Headers are written into every bundle under the
dist directory and each one is renamed to end in .user.js.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInject(cmd, app, flags, inf)
		},
	}

	cmd.Flags().StringVar(&inf.metafile, "metafile", "", "esbuild metafile describing the build (required)")
	cmd.Flags().StringVar(&inf.dist, "dist", "", "directory holding the bundles (default from config)")
	cmd.Flags().StringVarP(&inf.mode, "mode", "m", types.ModeProduction.String(), "build mode (development or production)")
	_ = cmd.MarkFlagRequired("metafile")

	return cmd
}

func runInject(cmd *cobra.Command, app *App, flags *rootFlagValues, inf *injectFlagValues) error {
	ctx := cmd.Context()

	mode := types.Mode(inf.mode)
	if err := mode.Validate(); err != nil {
		return app.fail(cmd, err)
	}
	p, err := app.loadProject(ctx, flags)
	if err != nil {
		return app.fail(cmd, err)
	}
	dist := inf.dist
	if dist == "" {
		dist = p.cfg.Output.Dir
	}

	s, err := session.New(ctx, p.cfg, mode, session.Deps{
		Resolver: app.NewResolver(p.cfg, app.logger),
		Logger:   app.logger,
	})
	if err != nil {
		return app.fail(cmd, err)
	}
	h := metafilehost.New(metafilehost.Options{
		Metafile: inRoot(p.root, inf.metafile),
		Root:     p.root,
		DistDir:  inRoot(p.root, dist),
		Logger:   app.logger,
	})
	s.Register(h)

	written, err := h.Run(ctx)
	if err != nil {
		return app.fail(cmd, err)
	}
	fmt.Fprintf(app.stdout, "%s Wrote headers into %d file(s)\n", successIcon, len(written))
	for _, f := range written {
		if rel, relErr := filepath.Rel(p.root, f); relErr == nil {
			f = rel
		}
		fmt.Fprintf(app.stdout, "  %s\n", KeyStyle.Render(filepath.ToSlash(f)))
	}
	return nil
}
