// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invowk/userpack/internal/resolver"
	"github.com/invowk/userpack/pkg/types"
)

const (
	// DefaultCacheRoot is the package cache directory probed before the CDN.
	DefaultCacheRoot = "node_modules"
	// DefaultManifest is the project manifest consulted for pinned versions.
	DefaultManifest = "package.json"
	// DefaultOutputFilename is the output name template handed to the bundler.
	DefaultOutputFilename = "[name].js"
	// DefaultOutputDir is the directory artifacts are written to.
	DefaultOutputDir = "dist"
	// DefaultConcurrency bounds in-flight external resolutions per build.
	DefaultConcurrency = 4
)

var (
	// ErrInvalidExternal is the sentinel error wrapped by InvalidExternalError.
	ErrInvalidExternal = errors.New("invalid external")

	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// AliasURL is an explicit per-mode download location for an external.
	// In the config file it is written either as a single string (used for
	// both modes) or as {dev: "...", prod: "..."}.
	AliasURL struct {
		Dev  string `json:"dev" mapstructure:"dev"`
		Prod string `json:"prod" mapstructure:"prod"`
	}

	// External declares a module that is kept out of the bundle and loaded
	// through an @require line instead.
	External struct {
		// Name is matched as a substring of the module request.
		Name string `json:"name" mapstructure:"name"`
		// Version pins the package version; empty falls back to the manifest.
		Version string `json:"version" mapstructure:"version"`
		// As is the global the bundle reads the module from. Defaults to Name.
		As string `json:"as" mapstructure:"as"`
		// URL skips resolution when set.
		URL AliasURL `json:"url" mapstructure:"url"`
		// Lazy externals are never turned into @require lines.
		Lazy bool `json:"lazy" mapstructure:"lazy"`
	}

	// RegistryConfig configures the CDN listing client.
	RegistryConfig struct {
		BaseURL     string        `json:"base_url" mapstructure:"base_url"`
		Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
		CacheSize   int           `json:"cache_size" mapstructure:"cache_size"`
		Concurrency int           `json:"concurrency" mapstructure:"concurrency"`
	}

	// OutputConfig configures where and how artifacts are written.
	OutputConfig struct {
		Filename string `json:"filename" mapstructure:"filename"`
		Dir      string `json:"dir" mapstructure:"dir"`
	}

	// HeaderConfig holds the entries written into a header that the entry
	// file does not provide.
	HeaderConfig struct {
		Name        string `json:"name" mapstructure:"name"`
		Version     string `json:"version" mapstructure:"version"`
		Description string `json:"description" mapstructure:"description"`
		Namespace   string `json:"namespace" mapstructure:"namespace"`
		Match       string `json:"match" mapstructure:"match"`
	}

	// UIConfig configures terminal output.
	UIConfig struct {
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// Config is the resolved userpack configuration.
	Config struct {
		UseRemoteAssets       bool           `json:"use_remote_assets" mapstructure:"use_remote_assets"`
		UIFrameworkVersion    string         `json:"ui_framework_version" mapstructure:"ui_framework_version"`
		UIFrameworkAltVersion string         `json:"ui_framework_alt_version" mapstructure:"ui_framework_alt_version"`
		Externals             []External     `json:"externals" mapstructure:"externals"`
		CacheRoot             string         `json:"cache_root" mapstructure:"cache_root"`
		Manifest              string         `json:"manifest" mapstructure:"manifest"`
		UpdateURL             string         `json:"update_url" mapstructure:"update_url"`
		Registry              RegistryConfig `json:"registry" mapstructure:"registry"`
		Output                OutputConfig   `json:"output" mapstructure:"output"`
		Header                HeaderConfig   `json:"header" mapstructure:"header"`
		UI                    UIConfig       `json:"ui" mapstructure:"ui"`
	}

	// InvalidExternalError is returned when an externals entry cannot be used.
	InvalidExternalError struct {
		Index  int
		Name   string
		Reason string
	}

	// InvalidConfigError collects every field-level problem found by Validate.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// IsZero reports whether no URL was configured.
func (u AliasURL) IsZero() bool {
	return u.Dev == "" && u.Prod == ""
}

// For returns the URL for the given build mode.
func (u AliasURL) For(mode types.Mode) string {
	if mode.IsDev() {
		return u.Dev
	}
	return u.Prod
}

// Global returns the name the bundle reads the external from.
func (e External) Global() string {
	if e.As != "" {
		return e.As
	}
	return e.Name
}

// Validate checks the entry on its own. Duplicate names are allowed; the
// first matching entry wins at build time.
func (e External) Validate(index int) error {
	switch {
	case strings.TrimSpace(e.Name) == "":
		return &InvalidExternalError{Index: index, Name: e.Name, Reason: "name must not be empty"}
	case !e.URL.IsZero() && (e.URL.Dev == "" || e.URL.Prod == ""):
		return &InvalidExternalError{Index: index, Name: e.Name, Reason: "url must set both dev and prod"}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidExternalError) Error() string {
	return fmt.Sprintf("externals[%d] %q: %s", e.Index, e.Name, e.Reason)
}

// Unwrap returns ErrInvalidExternal for errors.Is() compatibility.
func (e *InvalidExternalError) Unwrap() error { return ErrInvalidExternal }

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %d field error(s): %s", len(e.FieldErrors), strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	for i, ext := range c.Externals {
		if err := ext.Validate(i); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Registry.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("registry.timeout must be positive, got %s", c.Registry.Timeout))
	}
	if c.Registry.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("registry.cache_size must be positive, got %d", c.Registry.CacheSize))
	}
	if c.Registry.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("registry.concurrency must be positive, got %d", c.Registry.Concurrency))
	}
	if strings.TrimSpace(c.Output.Filename) == "" {
		errs = append(errs, errors.New("output.filename must not be empty"))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		UseRemoteAssets: true,
		CacheRoot:       DefaultCacheRoot,
		Manifest:        DefaultManifest,
		Registry: RegistryConfig{
			BaseURL:     resolver.DefaultBaseURL,
			Timeout:     resolver.DefaultTimeout,
			CacheSize:   resolver.DefaultCacheSize,
			Concurrency: DefaultConcurrency,
		},
		Output: OutputConfig{
			Filename: DefaultOutputFilename,
			Dir:      DefaultOutputDir,
		},
		Header: HeaderConfig{
			Name:        "New Userscript",
			Version:     "0.1.0",
			Description: "try to take over the world!",
			Namespace:   "http://tampermonkey.net/",
			Match:       "*://*/*",
		},
	}
}
