// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/invowk/userpack/internal/resolver"
	"github.com/invowk/userpack/pkg/types"
)

// Resolver links name@version to BaseURL/name@version/mode.js and records
// every call. Names in Fail resolve to a *resolver.ResolutionError.
type Resolver struct {
	BaseURL string
	Fail    map[string]bool

	mu    sync.Mutex
	calls []string
}

// DefaultBaseURL is used when Resolver.BaseURL is empty.
const DefaultBaseURL = "https://cdn.test"

// ResolveLink implements metadata.LinkResolver.
func (r *Resolver) ResolveLink(ctx context.Context, name, version string, mode types.Mode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	r.calls = append(r.calls, name+"@"+version)
	r.mu.Unlock()

	if r.Fail[name] {
		return "", &resolver.ResolutionError{Name: name, Version: version}
	}
	return r.Link(name, version, mode), nil
}

// Link is the URL ResolveLink returns for a successful lookup.
func (r *Resolver) Link(name, version string, mode types.Mode) string {
	base := r.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return base + "/" + name + "@" + version + "/" + mode.String() + ".js"
}

// Calls returns the name@version pairs requested so far, in call order.
func (r *Resolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}
