// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/invowk/userpack/internal/host/esbuildhost"
	"github.com/invowk/userpack/internal/session"
	"github.com/invowk/userpack/internal/watch"
	"github.com/invowk/userpack/pkg/metadata"
	"github.com/invowk/userpack/pkg/pipeline"
	"github.com/invowk/userpack/pkg/types"

	"github.com/spf13/cobra"
)

// defaultEntries are tried in order when build is given no entry.
var defaultEntries = []string{"src/index.ts", "src/index.tsx", "src/index.js", "src/index.jsx", "index.js"}

type buildFlagValues struct {
	mode   string
	outDir string
	watch  bool
}

func newBuildCommand(app *App, flags *rootFlagValues) *cobra.Command {
	bf := &buildFlagValues{}

	cmd := &cobra.Command{
		Use:   "build [entry...]",
		Short: "Bundle userscripts and write their headers",
		Long: `Bundle one or more entry files with esbuild.

Entry paths are relative to the project directory. The header is read from
the first entry that has one; externals declared in the configuration are
left out of the bundle and loaded through @require lines instead.

Without entries, the first of ` + strings.Join(defaultEntries, ", ") + ` that exists is built.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, app, flags, bf, args)
		},
	}

	cmd.Flags().StringVarP(&bf.mode, "mode", "m", types.ModeProduction.String(), "build mode (development or production)")
	cmd.Flags().StringVarP(&bf.outDir, "outdir", "o", "", "output directory (default from config)")
	cmd.Flags().BoolVarP(&bf.watch, "watch", "w", false, "rebuild when sources change")

	return cmd
}

func runBuild(cmd *cobra.Command, app *App, flags *rootFlagValues, bf *buildFlagValues, args []string) error {
	ctx := cmd.Context()

	mode := types.Mode(bf.mode)
	if err := mode.Validate(); err != nil {
		return app.fail(cmd, err)
	}
	p, err := app.loadProject(ctx, flags)
	if err != nil {
		return app.fail(cmd, err)
	}
	entries, err := buildEntries(p.root, args)
	if err != nil {
		return app.fail(cmd, err)
	}
	outDir := bf.outDir
	if outDir == "" {
		outDir = p.cfg.Output.Dir
	}
	outDir = inRoot(p.root, outDir)

	b := &builder{
		app:     app,
		project: p,
		mode:    mode,
		entries: entries,
		outDir:  outDir,
		links:   app.NewResolver(p.cfg, app.logger),
	}

	if err := b.build(ctx); err != nil {
		if !bf.watch {
			return app.fail(cmd, err)
		}
		renderError(app.stderr, err, app.verbose)
	}
	if !bf.watch {
		return nil
	}

	var ignore []string
	if rel, relErr := filepath.Rel(p.root, outDir); relErr == nil && !strings.HasPrefix(rel, "..") {
		ignore = append(ignore, filepath.ToSlash(rel)+"/**")
	}
	w, err := watch.New(watch.Config{
		BaseDir: p.root,
		Ignore:  ignore,
		Logger:  app.logger,
		OnChange: func(ctx context.Context, changed []string) error {
			fmt.Fprintf(app.stdout, "%s %s\n", warningIcon, VerboseStyle.Render("changed: "+strings.Join(changed, ", ")))
			if err := b.build(ctx); err != nil {
				renderError(app.stderr, err, app.verbose)
			}
			return nil
		},
	})
	if err != nil {
		return app.fail(cmd, err)
	}
	fmt.Fprintf(app.stdout, "%s\n", SubtitleStyle.Render("Watching "+p.root+" for changes (Ctrl+C to stop)"))
	if err := w.Run(ctx); err != nil {
		return app.fail(cmd, err)
	}
	return nil
}

// builder runs one build per call, each with a fresh session.
type builder struct {
	app     *App
	project *project
	mode    types.Mode
	entries []pipeline.Entry
	outDir  string
	links   metadata.LinkResolver
}

func (b *builder) build(ctx context.Context) error {
	start := time.Now()

	s, err := session.New(ctx, b.project.cfg, b.mode, session.Deps{Resolver: b.links, Logger: b.app.logger})
	if err != nil {
		return err
	}
	h := esbuildhost.New(esbuildhost.Options{
		Root:     b.project.root,
		Entries:  b.entries,
		OutDir:   b.outDir,
		Filename: b.project.cfg.Output.Filename,
		Mode:     b.mode,
		Logger:   b.app.logger,
	})
	s.Register(h)

	res, err := h.Build(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(b.app.stdout, "%s Built %d file(s) in %s %s\n",
		successIcon,
		len(res.Files),
		time.Since(start).Round(time.Millisecond),
		VerboseStyle.Render("(build "+s.ID().String()[:8]+")"),
	)
	for _, f := range res.Files {
		if rel, relErr := filepath.Rel(b.project.root, f); relErr == nil {
			f = rel
		}
		fmt.Fprintf(b.app.stdout, "  %s\n", KeyStyle.Render(filepath.ToSlash(f)))
	}
	return nil
}

// buildEntries names each entry after its file. Without args the first
// default entry that exists under root is used.
func buildEntries(root string, args []string) ([]pipeline.Entry, error) {
	paths := args
	if len(paths) == 0 {
		for _, candidate := range defaultEntries {
			if info, err := os.Stat(filepath.Join(root, filepath.FromSlash(candidate))); err == nil && !info.IsDir() {
				paths = []string{candidate}
				break
			}
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no entry file given and none of %s exists in %s", strings.Join(defaultEntries, ", "), root)
	}

	entries := make([]pipeline.Entry, len(paths))
	for i, p := range paths {
		base := filepath.Base(p)
		entries[i] = pipeline.Entry{
			Name: strings.TrimSuffix(base, filepath.Ext(base)),
			Path: p,
		}
	}
	return entries, nil
}
