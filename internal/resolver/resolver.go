// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/invowk/userpack/pkg/types"

	"golang.org/x/mod/semver"
)

// remoteDir is the package directory listed on the CDN when the local cache has nothing.
const remoteDir = "umd"

// Resolver resolves dependency links, local cache first, CDN second.
type Resolver struct {
	local    *LocalProber
	registry *RegistryClient
	logger   *slog.Logger
}

// New creates a Resolver. A nil local prober skips the local cache; a nil
// logger uses slog.Default().
func New(local *LocalProber, registry *RegistryClient, logger *slog.Logger) *Resolver {
	if registry == nil {
		registry = NewRegistryClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{local: local, registry: registry, logger: logger}
}

// ResolveLink returns the CDN URL of the bundle of name@version for mode.
func (r *Resolver) ResolveLink(ctx context.Context, name, version string, mode types.Mode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !isExactVersion(version) {
		r.logger.Debug("version is not an exact semver, the CDN will pick a match", "dependency", name, "version", version)
	}

	if r.local != nil {
		m, ok, err := r.local.Probe(name, mode)
		if err != nil {
			return "", err
		}
		if ok {
			link := r.registry.FileURL(name, version, m.relPath())
			r.logger.Debug("resolved from local cache", "dependency", name, "layout", m.layout, "url", link)
			return link, nil
		}
	}

	r.logger.Info("UMD bundle not found locally, asking the CDN", "dependency", name, "version", version)
	return r.resolveRemote(ctx, name, version, mode)
}

func (r *Resolver) resolveRemote(ctx context.Context, name, version string, mode types.Mode) (string, error) {
	files, err := r.registry.ListDir(ctx, name, version, remoteDir)
	switch {
	case err == nil:
	case errors.Is(err, ErrListingNotFound):
		return "", &ResolutionError{Name: name, Version: version}
	case ctx.Err() != nil:
		return "", err
	case errors.Is(err, context.DeadlineExceeded):
		return "", &ResolutionError{Name: name, Version: version, Cause: err}
	default:
		return "", err
	}

	file := classify(files).pick(name, mode)
	if file == "" {
		return "", &ResolutionError{Name: name, Version: version}
	}
	link := r.registry.FileURL(name, version, file)
	r.logger.Debug("resolved from CDN listing", "dependency", name, "url", link)
	return link, nil
}

// isExactVersion reports whether v pins a single release (e.g. "18.2.0").
func isExactVersion(v string) bool {
	sv := "v" + strings.TrimPrefix(v, "v")
	return semver.IsValid(sv) && semver.Canonical(sv) == sv
}
