// SPDX-License-Identifier: MPL-2.0

package external

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/invowk/userpack/internal/config"
	"github.com/invowk/userpack/internal/manifest"
	"github.com/invowk/userpack/pkg/metadata"
	"github.com/invowk/userpack/pkg/pipeline"
	"github.com/invowk/userpack/pkg/types"

	"golang.org/x/sync/errgroup"
)

const (
	// Unresolved means no lookup was started for the name.
	Unresolved State = iota
	// Resolving means a lookup is in flight.
	Resolving
	// Resolved means a URL is known.
	Resolved
	// Failed means the lookup returned an error.
	Failed
)

// frameworkImports are the framework entry points bound without a lookup.
// Their @require lines come from the metadata accumulator, so an entry point
// is only bound once its package is reported through UseFrameworks.
var frameworkImports = map[string]frameworkImport{
	"react":             {pkg: "react", global: "React"},
	"react/jsx-runtime": {pkg: "react", global: "React"},
	"react-dom":         {pkg: "react-dom", global: "ReactDOM"},
	"react-dom/client":  {pkg: "react-dom", global: "ReactDOM"},
}

type (
	// State is the lifecycle of one external's resolution.
	State int

	frameworkImport struct {
		pkg    string
		global string
	}

	// Link is a resolved external ready to become an @require line.
	Link struct {
		Name string
		URL  string
	}

	// VersionSource supplies the version to resolve when an external does not
	// declare one. *manifest.Manifest satisfies it.
	VersionSource interface {
		VersionFor(name, declared string) string
	}

	// Options configures a Coordinator.
	Options struct {
		// UseRemoteAssets enables externals. When false every request gets
		// no opinion.
		UseRemoteAssets bool
		// Externals are the declared externals, in declaration order.
		Externals []config.External
		// Resolver looks up URLs for externals without an inline URL.
		Resolver metadata.LinkResolver
		// Versions fills in undeclared versions. Optional.
		Versions VersionSource
		// Frameworks are the framework packages the header already requires.
		// Their entry points are bound to the framework globals.
		Frameworks []string
		Mode     types.Mode
		// Concurrency bounds in-flight lookups. Zero or less means unbounded.
		Concurrency int
		Logger      *slog.Logger
	}

	// Coordinator binds module requests to externals and tracks their
	// resolutions. It is safe for concurrent use.
	Coordinator struct {
		opts   Options
		logger *slog.Logger
		group  *errgroup.Group
		gctx   context.Context

		mu         sync.Mutex
		order      []string
		states     map[string]State
		urls       map[string]string
		frameworks map[string]bool
	}
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// New creates a Coordinator for one build. Lookups run under ctx; the first
// failed lookup cancels the rest.
func New(ctx context.Context, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	group, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		group.SetLimit(opts.Concurrency)
	}
	c := &Coordinator{
		opts:   opts,
		logger: logger,
		group:  group,
		gctx:   gctx,
		states: make(map[string]State),
		urls:   make(map[string]string),
	}
	c.UseFrameworks(opts.Frameworks)
	return c
}

// UseFrameworks replaces the set of framework packages whose entry points are
// bound to globals. Entry points of any other framework get no opinion and
// are bundled.
func (c *Coordinator) UseFrameworks(pkgs []string) {
	set := make(map[string]bool, len(pkgs))
	for _, p := range pkgs {
		set[p] = true
	}
	c.mu.Lock()
	c.frameworks = set
	c.mu.Unlock()
}

// Decide answers a module request. Entry points of a required framework are
// bound to their fixed globals; otherwise the first declared external whose
// name occurs in the request wins and its resolution is started.
func (c *Coordinator) Decide(request string) pipeline.Decision {
	if !c.opts.UseRemoteAssets {
		return pipeline.NoOpinion
	}
	if fw, ok := frameworkImports[request]; ok {
		c.mu.Lock()
		required := c.frameworks[fw.pkg]
		c.mu.Unlock()
		if required {
			return pipeline.Decision{External: true, Global: fw.global}
		}
		c.logger.Debug("framework has no @require", "request", request)
	}

	ext, ok := c.match(request)
	if !ok {
		return pipeline.NoOpinion
	}
	c.logger.Debug("module bound to external", "request", request, "external", ext.Name, "global", ext.Global())
	c.bind(ext)
	return pipeline.Decision{External: true, Global: ext.Global()}
}

// HandleModuleRequest adapts Decide to pipeline.ModuleRequestHandler.
func (c *Coordinator) HandleModuleRequest(_ context.Context, req pipeline.ModuleRequest) (pipeline.Decision, error) {
	return c.Decide(req.Request), nil
}

// Reconcile starts a resolution for every declared, non-lazy external that no
// module request has touched yet.
func (c *Coordinator) Reconcile() {
	if !c.opts.UseRemoteAssets {
		return
	}
	for _, ext := range c.opts.Externals {
		if ext.Lazy || c.State(ext.Name) != Unresolved {
			continue
		}
		c.logger.Debug("reconciling unrequested external", "external", ext.Name)
		c.bind(ext)
	}
}

// Settle waits for every started resolution and returns the first failure.
// It returns ctx's error if ctx is done first.
func (c *Coordinator) Settle(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- c.group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Links returns the resolved externals ordered by first registration.
func (c *Coordinator) Links() []Link {
	c.mu.Lock()
	defer c.mu.Unlock()

	links := make([]Link, 0, len(c.order))
	for _, name := range c.order {
		if c.states[name] == Resolved {
			links = append(links, Link{Name: name, URL: c.urls[name]})
		}
	}
	return links
}

// State reports the resolution state of an external by name.
func (c *Coordinator) State(name string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[name]
}

func (c *Coordinator) match(request string) (config.External, bool) {
	for _, ext := range c.opts.Externals {
		if strings.Contains(request, ext.Name) {
			return ext, true
		}
	}
	return config.External{}, false
}

// bind records an inline URL or launches a lookup. A name that is already
// resolving, resolved or failed is left alone.
func (c *Coordinator) bind(ext config.External) {
	c.mu.Lock()
	state, seen := c.states[ext.Name]
	if seen && state != Unresolved {
		c.mu.Unlock()
		return
	}
	if !seen {
		c.order = append(c.order, ext.Name)
	}
	if !ext.URL.IsZero() {
		c.urls[ext.Name] = ext.URL.For(c.opts.Mode)
		c.states[ext.Name] = Resolved
		c.mu.Unlock()
		return
	}
	c.states[ext.Name] = Resolving
	c.mu.Unlock()

	// Go may block on the concurrency limit, so it runs outside the lock.
	c.group.Go(func() error {
		return c.resolve(ext)
	})
}

func (c *Coordinator) resolve(ext config.External) error {
	version := ext.Version
	if c.opts.Versions != nil {
		version = c.opts.Versions.VersionFor(ext.Name, ext.Version)
	} else if version == "" {
		version = manifest.LatestTag
	}

	url, err := c.opts.Resolver.ResolveLink(c.gctx, ext.Name, version, c.opts.Mode)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.states[ext.Name] = Failed
		c.logger.Debug("external lookup failed", "external", ext.Name, "version", version, "error", err)
		return err
	}
	c.urls[ext.Name] = url
	c.states[ext.Name] = Resolved
	c.logger.Debug("external resolved", "external", ext.Name, "url", url)
	return nil
}
