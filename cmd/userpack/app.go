// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/invowk/userpack/internal/config"
	"github.com/invowk/userpack/internal/resolver"
	"github.com/invowk/userpack/pkg/metadata"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

type (
	// App wires CLI services and shared dependencies. Command handlers
	// receive an App and go through its providers.
	App struct {
		Config      ConfigProvider
		NewResolver ResolverFactory

		stdout  io.Writer
		stderr  io.Writer
		log     *log.Logger
		logger  *slog.Logger
		verbose bool
	}

	// Dependencies are the injection points for NewApp. Nil fields get
	// production defaults.
	Dependencies struct {
		Config   ConfigProvider
		Resolver ResolverFactory
		Stdout   io.Writer
		Stderr   io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// ResolverFactory builds the link resolver for a loaded project. A
	// resolver is created once per command so watch rebuilds share its cache.
	ResolverFactory func(cfg *config.Config, logger *slog.Logger) metadata.LinkResolver

	// project is a loaded configuration and the directory it applies to.
	project struct {
		root       string
		cfg        *config.Config
		configPath string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Resolver == nil {
		deps.Resolver = newDefaultResolver
	}

	a := &App{
		Config:      deps.Config,
		NewResolver: deps.Resolver,
		stdout:      deps.Stdout,
		stderr:      deps.Stderr,
	}
	a.setVerbose(false)
	return a
}

// setVerbose rebuilds the loggers at the matching level.
func (a *App) setVerbose(verbose bool) {
	a.verbose = verbose
	a.log = newLogger(a.stderr, verbose)
	a.logger = slog.New(a.log)
}

// loadProject loads the configuration for the directory selected by flags.
// Relative cache and manifest paths are resolved against that directory.
func (a *App) loadProject(ctx context.Context, flags *rootFlagValues) (*project, error) {
	root := flags.cwd
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project directory: %w", err)
	}

	opts := config.LoadOptions{ConfigFilePath: flags.configPath, BaseDir: root}
	cfg, err := a.Config.Load(ctx, opts)
	if err != nil {
		return nil, err
	}
	if cfg.UI.Verbose && !a.verbose {
		a.setVerbose(true)
	}

	cfg.CacheRoot = inRoot(root, cfg.CacheRoot)
	cfg.Manifest = inRoot(root, cfg.Manifest)
	return &project{root: root, cfg: cfg, configPath: config.Path(opts)}, nil
}

func inRoot(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// newDefaultResolver probes the package cache on disk before asking the registry.
func newDefaultResolver(cfg *config.Config, logger *slog.Logger) metadata.LinkResolver {
	registry := resolver.NewRegistryClient(
		resolver.WithBaseURL(cfg.Registry.BaseURL),
		resolver.WithTimeout(cfg.Registry.Timeout),
		resolver.WithCacheSize(cfg.Registry.CacheSize),
		resolver.WithUserAgent(config.AppName+"/"+Version),
	)
	local := resolver.NewLocalProber(afero.NewOsFs(), cfg.CacheRoot)
	logger.Debug("resolver configured", "cache_root", cfg.CacheRoot, "registry", registry.BaseURL())
	return resolver.New(local, registry, logger)
}
