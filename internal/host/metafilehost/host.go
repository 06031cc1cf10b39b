// SPDX-License-Identifier: MPL-2.0

// Package metafilehost post-processes bundles another tool already wrote,
// replaying their build through pipeline.Hooks from an esbuild metafile.
package metafilehost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/invowk/userpack/internal/host"
	"github.com/invowk/userpack/internal/inject"
	"github.com/invowk/userpack/internal/issue"
	"github.com/invowk/userpack/pkg/pipeline"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
)

var (
	// ErrInvalidMetafile is wrapped when the metafile is not esbuild metadata.
	ErrInvalidMetafile = errors.New("invalid metafile")

	// ErrNoOutputs is returned when the metafile lists no output under the dist dir.
	ErrNoOutputs = errors.New("metafile lists no outputs in the dist directory")
)

type (
	// Options configures a Host.
	Options struct {
		// Metafile is the path to the esbuild metafile.
		Metafile string
		// Root is the directory the metafile paths are relative to.
		Root string
		// DistDir holds the written bundles. Relative paths are resolved
		// against Root.
		DistDir string
		// FS defaults to the OS filesystem.
		FS     afero.Fs
		Logger *slog.Logger
	}

	// Host replays a finished build.
	Host struct {
		pipeline.Hub

		opts   Options
		logger *slog.Logger
	}

	// output is one bundle listed in the metafile.
	output struct {
		path       string
		entryPoint string
		externals  []string
	}
)

// New creates a Host.
func New(opts Options) *Host {
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{opts: opts, logger: logger}
}

// Run reads the metafile, emits the build phases in order and rewrites the
// artifacts under their .user.js names. It returns the written paths.
func (h *Host) Run(ctx context.Context) ([]string, error) {
	outputs, err := h.readMetafile()
	if err != nil {
		return nil, err
	}

	distDir := h.opts.DistDir
	if !filepath.IsAbs(distDir) {
		distDir = filepath.Join(h.opts.Root, distDir)
	}

	var (
		entries []pipeline.Entry
		files   = make(map[string][]byte)
	)
	for _, out := range outputs {
		abs := filepath.Join(h.opts.Root, filepath.FromSlash(out.path))
		rel, err := filepath.Rel(distDir, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			h.logger.Debug("skipping output outside the dist dir", "output", out.path)
			continue
		}
		content, err := afero.ReadFile(h.opts.FS, abs)
		if err != nil {
			return nil, issue.WrapWithContext(err, "read bundle", abs)
		}
		files[filepath.ToSlash(rel)] = content

		if out.entryPoint != "" {
			entries = append(entries, pipeline.Entry{
				Name: strings.TrimSuffix(path.Base(out.entryPoint), path.Ext(out.entryPoint)),
				Path: out.entryPoint,
			})
		}
	}
	if len(files) == 0 {
		return nil, issue.NewErrorContext().
			WithOperation("read metafile").
			WithResource(h.opts.Metafile).
			WithIssue(issue.MetafileInvalidId).
			WithSuggestion("Pass the dist directory the metafile's outputs were written to").
			Wrap(ErrNoOutputs).
			BuildError()
	}

	if err := h.EmitEntryResolved(ctx, h.opts.Root, entries); err != nil {
		return nil, err
	}

	for _, out := range outputs {
		for _, specifier := range out.externals {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			d, err := h.EmitModuleRequest(ctx, pipeline.ModuleRequest{Request: specifier, Importer: out.entryPoint})
			if err != nil {
				return nil, err
			}
			if d.IsZero() {
				h.logger.Warn("external import has no global binding", "module", specifier)
			}
		}
	}

	artifacts := pipeline.NewMemoryArtifacts(files)
	if err := h.EmitOptimizeAssetsComplete(ctx, artifacts); err != nil {
		return nil, err
	}

	written, err := host.WriteArtifacts(h.opts.FS, distDir, artifacts, inject.NormalizeFilename)
	if err != nil {
		return written, err
	}
	for _, name := range artifacts.Names() {
		if inject.NormalizeFilename(name) == name {
			continue
		}
		stale := filepath.Join(distDir, filepath.FromSlash(name))
		if err := h.opts.FS.Remove(stale); err != nil {
			return written, issue.WrapWithContext(err, "remove renamed bundle", stale)
		}
	}
	h.logger.Info("bundle post-processed", "dir", distDir, "files", len(written))
	return written, nil
}

// readMetafile lists the outputs in metafile order, with each output's
// external imports de-duplicated.
func (h *Host) readMetafile() ([]output, error) {
	data, err := afero.ReadFile(h.opts.FS, h.opts.Metafile)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("read metafile").
			WithResource(h.opts.Metafile).
			WithIssue(issue.MetafileInvalidId).
			WithSuggestion("Build with esbuild's metafile option enabled").
			Wrap(err).
			BuildError()
	}

	outputs := gjson.GetBytes(data, "outputs")
	if !gjson.ValidBytes(data) || !outputs.IsObject() {
		return nil, issue.NewErrorContext().
			WithOperation("read metafile").
			WithResource(h.opts.Metafile).
			WithIssue(issue.MetafileInvalidId).
			Wrap(fmt.Errorf("%w: missing outputs object", ErrInvalidMetafile)).
			BuildError()
	}

	var out []output
	outputs.ForEach(func(key, value gjson.Result) bool {
		o := output{path: key.String(), entryPoint: value.Get("entryPoint").String()}
		seen := make(map[string]bool)
		for _, imp := range value.Get("imports").Array() {
			specifier := imp.Get("path").String()
			if !imp.Get("external").Bool() || specifier == "" || seen[specifier] {
				continue
			}
			seen[specifier] = true
			o.externals = append(o.externals, specifier)
		}
		out = append(out, o)
		return true
	})
	return out, nil
}
