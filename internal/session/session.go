// SPDX-License-Identifier: MPL-2.0

// Package session holds the state of a single userscript build and wires it
// to a pipeline's lifecycle hooks.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/invowk/userpack/internal/config"
	"github.com/invowk/userpack/internal/external"
	"github.com/invowk/userpack/internal/inject"
	"github.com/invowk/userpack/internal/issue"
	"github.com/invowk/userpack/internal/manifest"
	"github.com/invowk/userpack/internal/resolver"
	"github.com/invowk/userpack/pkg/metadata"
	"github.com/invowk/userpack/pkg/pipeline"
	"github.com/invowk/userpack/pkg/types"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var (
	// ErrNoEntries is returned when the entry phase reports no entries.
	ErrNoEntries = errors.New("build has no entries")

	// ErrHeaderNotLoaded is returned when assets complete before any entry was read.
	ErrHeaderNotLoaded = errors.New("assets completed before the entry header was read")
)

type (
	// Deps are the collaborators a Session needs.
	Deps struct {
		// FS reads entry files and the manifest. Defaults to the OS filesystem.
		FS afero.Fs
		// Resolver turns dependency names into URLs.
		Resolver metadata.LinkResolver
		// Logger is the parent logger; the session adds its build ID.
		Logger *slog.Logger
	}

	// Session is the state of one build, from entry resolution to header
	// injection. Create a new Session for every build.
	Session struct {
		id       uuid.UUID
		mode     types.Mode
		fs       afero.Fs
		logger   *slog.Logger
		acc      *metadata.Accumulator
		coord    *external.Coordinator
		injector *inject.Injector

		entry  string
		header string
	}
)

// New creates a Session for a build in the given mode. ctx bounds every
// dependency lookup the session starts.
func New(ctx context.Context, cfg *config.Config, mode types.Mode, deps Deps) (*Session, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if deps.Resolver == nil {
		return nil, errors.New("session requires a link resolver")
	}
	fsys := deps.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	id := uuid.New()
	parent := deps.Logger
	if parent == nil {
		parent = slog.Default()
	}
	logger := parent.With("build", id.String(), "mode", mode.String())

	m, err := manifest.Load(fsys, cfg.Manifest)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}

	acc := metadata.NewAccumulator(metadata.Options{
		UseRemoteAssets: cfg.UseRemoteAssets,
		Frameworks: metadata.DefaultFrameworks(
			frameworkVersion(m, "react", cfg.UIFrameworkVersion),
			frameworkVersion(m, "react-dom", cfg.UIFrameworkAltVersion),
		),
		UpdateURL: cfg.UpdateURL,
		Defaults:  headerDefaults(cfg.Header),
		Resolver:  deps.Resolver,
		FS:        fsys,
		Logger:    logger,
	})

	coord := external.New(ctx, external.Options{
		UseRemoteAssets: cfg.UseRemoteAssets,
		Externals:       cfg.Externals,
		Resolver:        deps.Resolver,
		Versions:        m,
		Mode:            mode,
		Concurrency:     cfg.Registry.Concurrency,
		Logger:          logger,
	})

	return &Session{
		id:       id,
		mode:     mode,
		fs:       fsys,
		logger:   logger,
		acc:      acc,
		coord:    coord,
		injector: inject.New(acc, logger),
	}, nil
}

// ID returns the build ID attached to every log record of the session.
func (s *Session) ID() uuid.UUID { return s.id }

// Entry returns the entry file the header was read from.
func (s *Session) Entry() string { return s.entry }

// Header returns the header written into the artifacts, or "" before injection.
func (s *Session) Header() string { return s.header }

// Register subscribes the session to the three build phases.
func (s *Session) Register(h pipeline.Hooks) {
	h.OnEntryResolved(s.handleEntries)
	h.OnModuleRequest(s.coord.HandleModuleRequest)
	h.OnOptimizeAssetsComplete(s.handleAssets)
}

// handleEntries reads the header of the first entry that has one. When none
// does, a fresh header is started for the first entry.
func (s *Session) handleEntries(ctx context.Context, root string, entries []pipeline.Entry) error {
	if len(entries) == 0 {
		return issue.NewErrorContext().
			WithOperation("read userscript header").
			WithIssue(issue.EntryNotFoundId).
			WithSuggestion("Pass at least one entry file to the build").
			Wrap(ErrNoEntries).
			BuildError()
	}

	chosen := ""
	for _, e := range entries {
		p := e.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		data, err := afero.ReadFile(s.fs, p)
		if err != nil {
			return issue.WrapWithContext(err, "read entry file", p)
		}
		if chosen == "" {
			chosen = p
		}
		if metadata.Parse(string(data)).Err() == nil {
			chosen = p
			break
		}
	}

	header, err := s.acc.ReadMetadata(ctx, chosen, s.mode)
	if err != nil {
		return resolutionFailure(err, chosen)
	}
	s.coord.UseFrameworks(s.acc.Frameworks())
	s.entry = chosen
	s.logger.Info("userscript header loaded", "entry", chosen, "entries", len(s.acc.Entries()), "frameworks", s.acc.Frameworks())
	s.logger.Debug("header", "text", header)
	return nil
}

// handleAssets settles every external, then writes the header into the artifacts.
func (s *Session) handleAssets(ctx context.Context, artifacts pipeline.Artifacts) error {
	if s.entry == "" {
		return ErrHeaderNotLoaded
	}

	s.coord.Reconcile()
	if err := s.coord.Settle(ctx); err != nil {
		return resolutionFailure(err, "")
	}

	links := s.coord.Links()
	header, err := s.injector.Inject(ctx, links, artifacts)
	if err != nil {
		return err
	}
	s.header = header
	s.logger.Info("userscript header injected", "externals", len(links), "artifacts", len(artifacts.Names()))
	return nil
}

// resolutionFailure attaches the catalog entry matching the failure kind.
func resolutionFailure(err error, resource string) error {
	var (
		resErr *resolver.ResolutionError
		netErr *resolver.NetworkError
		fsErr  *resolver.FilesystemError
	)
	ec := issue.NewErrorContext().WithOperation("resolve dependency link").Wrap(err)
	switch {
	case errors.As(err, &resErr):
		ec.WithResource(resErr.Name + "@" + resErr.Version).WithIssue(issue.ResolutionFailedId)
	case errors.As(err, &netErr):
		ec.WithResource(netErr.URL).WithIssue(issue.RegistryUnreachableId)
	case errors.As(err, &fsErr):
		ec.WithResource(fsErr.Path).WithIssue(issue.CacheUnreadableId)
	case errors.Is(err, context.Canceled):
		return err
	default:
		ec.WithResource(resource)
	}
	return ec.BuildError()
}

// frameworkVersion is the configured version, else the manifest pin, else ""
// so the framework is left to the bundle.
func frameworkVersion(m *manifest.Manifest, name, configured string) string {
	if configured != "" {
		return configured
	}
	v, _ := m.Pinned(name)
	return v
}

func headerDefaults(h config.HeaderConfig) []metadata.Entry {
	var out []metadata.Entry
	for _, e := range []metadata.Entry{
		{Key: "name", Value: h.Name},
		{Key: "namespace", Value: h.Namespace},
		{Key: "version", Value: h.Version},
		{Key: "description", Value: h.Description},
		{Key: "match", Value: h.Match},
	} {
		if e.Value != "" {
			out = append(out, e)
		}
	}
	return out
}
