// SPDX-License-Identifier: MPL-2.0

// Package esbuildhost runs esbuild as the build pipeline and exposes its
// lifecycle through pipeline.Hooks.
package esbuildhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/invowk/userpack/internal/host"
	"github.com/invowk/userpack/internal/inject"
	"github.com/invowk/userpack/pkg/pipeline"
	"github.com/invowk/userpack/pkg/types"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"
)

const (
	pluginName = "userpack"

	// globalNamespace holds the virtual modules that read an external from
	// the page's globals.
	globalNamespace = "userpack-global"

	// bareSpecifier matches package imports, not relative or absolute paths.
	bareSpecifier = `^[^./]`
)

// ErrBuildFailed is wrapped by errors reported by esbuild itself.
var ErrBuildFailed = errors.New("esbuild reported errors")

type (
	// Options configures a Host.
	Options struct {
		// Root is the absolute project directory. Entry and output paths
		// are relative to it.
		Root string
		// Entries are the files to bundle.
		Entries []pipeline.Entry
		// OutDir receives the bundles.
		OutDir string
		// Filename is the output name template, e.g. "[name].js". It is
		// normalized to the .user.js suffix.
		Filename string
		Mode     types.Mode
		// FS receives the written artifacts. Defaults to the OS filesystem.
		FS     afero.Fs
		Logger *slog.Logger
	}

	// Result describes a finished build.
	Result struct {
		// Files are the written artifact paths.
		Files []string
		// Metafile is esbuild's JSON build metadata.
		Metafile string
	}

	// Host bundles with esbuild. Subscribe through the embedded Hub before
	// calling Build.
	Host struct {
		pipeline.Hub

		opts   Options
		logger *slog.Logger
	}

	// failure keeps the first typed error a plugin callback returned, since
	// esbuild only hands back its text.
	failure struct {
		mu  sync.Mutex
		err error
	}
)

// New creates a Host.
func New(opts Options) *Host {
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.Filename == "" {
		opts.Filename = "[name].js"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{opts: opts, logger: logger}
}

// Build bundles the entries, emits the three lifecycle phases and writes the
// artifacts. Nothing is written if any phase fails.
func (h *Host) Build(ctx context.Context) (*Result, error) {
	if !filepath.IsAbs(h.opts.Root) {
		return nil, fmt.Errorf("build root must be absolute, got %q", h.opts.Root)
	}
	if len(h.opts.Entries) == 0 {
		return nil, errors.New("no entry files to build")
	}

	outDir := h.opts.OutDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(h.opts.Root, outDir)
	}

	fail := &failure{}
	bctx, ctxErr := api.Context(h.buildOptions(ctx, outDir, fail))
	if ctxErr != nil {
		return nil, messagesError(ctxErr.Errors)
	}
	defer bctx.Dispose()

	stop := context.AfterFunc(ctx, bctx.Cancel)
	defer stop()

	result := bctx.Rebuild()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := fail.get(); err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, messagesError(result.Errors)
	}
	for _, w := range api.FormatMessages(result.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage}) {
		h.logger.Warn(strings.TrimSpace(w))
	}

	files := make(map[string][]byte, len(result.OutputFiles))
	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(outDir, f.Path)
		if err != nil {
			return nil, fmt.Errorf("output %s is outside %s: %w", f.Path, outDir, err)
		}
		files[filepath.ToSlash(rel)] = f.Contents
	}
	artifacts := pipeline.NewMemoryArtifacts(files)

	if err := h.EmitOptimizeAssetsComplete(ctx, artifacts); err != nil {
		return nil, err
	}

	written, err := host.WriteArtifacts(h.opts.FS, outDir, artifacts, nil)
	if err != nil {
		return nil, err
	}
	h.logger.Info("bundle written", "dir", outDir, "files", len(written))
	return &Result{Files: written, Metafile: result.Metafile}, nil
}

func (h *Host) buildOptions(ctx context.Context, outDir string, fail *failure) api.BuildOptions {
	entryNames, outExt := splitFilename(inject.NormalizeFilename(h.opts.Filename))

	entryPoints := make([]string, len(h.opts.Entries))
	for i, e := range h.opts.Entries {
		entryPoints[i] = e.Path
	}

	prod := !h.opts.Mode.IsDev()
	opts := api.BuildOptions{
		AbsWorkingDir:     h.opts.Root,
		EntryPoints:       entryPoints,
		Outdir:            outDir,
		EntryNames:        entryNames,
		OutExtension:      map[string]string{".js": outExt},
		Bundle:            true,
		Write:             false,
		Metafile:          true,
		Format:            api.FormatIIFE,
		Platform:          api.PlatformBrowser,
		LogLevel:          api.LogLevelSilent,
		MinifyWhitespace:  prod,
		MinifyIdentifiers: prod,
		MinifySyntax:      prod,
		Define: map[string]string{
			"process.env.NODE_ENV": fmt.Sprintf("%q", h.opts.Mode.String()),
		},
		Plugins: []api.Plugin{h.plugin(ctx, fail)},
	}
	if !prod {
		opts.Sourcemap = api.SourceMapLinked
	}
	return opts
}

// plugin routes esbuild's start and resolve callbacks through the hub.
func (h *Host) plugin(ctx context.Context, fail *failure) api.Plugin {
	return api.Plugin{
		Name: pluginName,
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				if err := h.EmitEntryResolved(ctx, h.opts.Root, h.opts.Entries); err != nil {
					fail.set(err)
					return api.OnStartResult{}, err
				}
				return api.OnStartResult{}, nil
			})

			build.OnResolve(api.OnResolveOptions{Filter: bareSpecifier}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				// "src/index.js" looks bare too.
				if args.Kind == api.ResolveEntryPoint {
					return api.OnResolveResult{}, nil
				}
				d, err := h.EmitModuleRequest(ctx, pipeline.ModuleRequest{Request: args.Path, Importer: args.Importer})
				if err != nil {
					fail.set(err)
					return api.OnResolveResult{}, err
				}
				if !d.External {
					return api.OnResolveResult{}, nil
				}
				return api.OnResolveResult{
					Path:       args.Path,
					Namespace:  globalNamespace,
					PluginData: d.Global,
				}, nil
			})

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: globalNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				global, _ := args.PluginData.(string)
				contents := globalShim(global)
				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}
}

// globalShim is the module body standing in for an external.
func globalShim(global string) string {
	return fmt.Sprintf("module.exports = globalThis[%q];", global)
}

// splitFilename turns "[name].user.js" into esbuild's entry-name template and
// output extension.
func splitFilename(filename string) (entryNames, ext string) {
	for _, suffix := range []string{".user.js", ".js"} {
		if base, ok := strings.CutSuffix(filename, suffix); ok {
			return base, suffix
		}
	}
	return filename, ".js"
}

func messagesError(msgs []api.Message) error {
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	for i := range formatted {
		formatted[i] = strings.TrimSpace(formatted[i])
	}
	return fmt.Errorf("%w:\n%s", ErrBuildFailed, strings.Join(formatted, "\n"))
}

func (f *failure) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *failure) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
