// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/invowk/userpack/internal/issue"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "userpack"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "userpack"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvFileName is the dotenv file read from the project directory.
	EnvFileName = ".env"
	// EnvUpdateURL overrides update_url; it is also read from EnvFileName.
	EnvUpdateURL = "USERSCRIPT_UPDATE_URL"

	maxConfigFileSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

// Path returns the config file that Load would read for opts, or "" when
// the defaults would be used.
func Path(opts LoadOptions) string {
	if opts.ConfigFilePath != "" {
		return opts.ConfigFilePath
	}
	candidate := filepath.Join(opts.BaseDir, ConfigFileName+"."+ConfigFileExt)
	if fileExists(candidate) {
		return candidate
	}
	return ""
}

// DefaultPath is where `config init` writes a new file.
func DefaultPath(baseDir string) string {
	return filepath.Join(baseDir, ConfigFileName+"."+ConfigFileExt)
}

// loadWithOptions performs option-driven config loading. The returned path is
// empty when no config file was found.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("use_remote_assets", defaults.UseRemoteAssets)
	v.SetDefault("cache_root", defaults.CacheRoot)
	v.SetDefault("manifest", defaults.Manifest)
	v.SetDefault("registry.base_url", defaults.Registry.BaseURL)
	v.SetDefault("registry.timeout", defaults.Registry.Timeout)
	v.SetDefault("registry.cache_size", defaults.Registry.CacheSize)
	v.SetDefault("registry.concurrency", defaults.Registry.Concurrency)
	v.SetDefault("output.filename", defaults.Output.Filename)
	v.SetDefault("output.dir", defaults.Output.Dir)
	v.SetDefault("header.name", defaults.Header.Name)
	v.SetDefault("header.version", defaults.Header.Version)
	v.SetDefault("header.description", defaults.Header.Description)
	v.SetDefault("header.namespace", defaults.Header.Namespace)
	v.SetDefault("header.match", defaults.Header.Match)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)

	if err := v.BindEnv("update_url", EnvUpdateURL); err != nil {
		return nil, "", fmt.Errorf("failed to bind %s: %w", EnvUpdateURL, err)
	}

	if opts.ConfigFilePath != "" && !fileExists(opts.ConfigFilePath) {
		return nil, "", issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(opts.ConfigFilePath).
			WithSuggestion("Verify the file path is correct").
			WithSuggestion("Use 'userpack config init' to create a config file").
			Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
			BuildError()
	}

	resolvedPath := Path(opts)
	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Run 'userpack config show' to see the effective configuration").
				Wrap(err).
				BuildError()
		}
	}

	if err := applyDotenv(v, filepath.Join(opts.BaseDir, EnvFileName)); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("load environment file").
			WithResource(filepath.Join(opts.BaseDir, EnvFileName)).
			WithSuggestion("Each line must be KEY=value").
			Wrap(err).
			BuildError()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Give every externals entry a non-empty name").
			WithSuggestion("An object url needs both dev and prod").
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// applyDotenv reads the project .env file without touching the process
// environment. A real environment variable still wins over the file.
func applyDotenv(v *viper.Viper, path string) error {
	if !fileExists(path) {
		return nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		return err
	}
	if _, set := os.LookupEnv(EnvUpdateURL); set {
		return nil
	}
	if u, ok := vals[EnvUpdateURL]; ok {
		v.Set("update_url", u)
	}
	return nil
}

// decodeHook keeps viper's default hooks and adds the AliasURL shorthand.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		stringToAliasURLHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// stringToAliasURLHook decodes `url: "..."` into an AliasURL used for both modes.
func stringToAliasURLHook() mapstructure.DecodeHookFuncType {
	aliasType := reflect.TypeFor[AliasURL]()
	return func(from, to reflect.Type, data any) (any, error) {
		if to != aliasType || from.Kind() != reflect.String {
			return data, nil
		}
		s, _ := data.(string)
		return AliasURL{Dev: s, Prod: s}, nil
	}
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("%s: file exceeds %d bytes", path, maxConfigFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// formatCUEError flattens a CUE error list into "<file>: <path>: <message>" lines.
func formatCUEError(err error, filePath string) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	lines := make([]string, 0, len(list))
	for _, e := range list {
		msg := e.Error()
		if p := strings.Join(cueerrors.Path(e), "."); p != "" {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, p), ":"))
			msg = p + ": " + msg
		}
		lines = append(lines, msg)
	}
	return fmt.Errorf("%s: %w", filePath, errors.New(strings.Join(lines, "\n")))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Save writes cfg as CUE to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE generates a CUE representation of the configuration.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// userpack configuration\n\n")

	fmt.Fprintf(&sb, "use_remote_assets: %v\n", cfg.UseRemoteAssets)
	if cfg.UIFrameworkVersion != "" {
		fmt.Fprintf(&sb, "ui_framework_version: %q\n", cfg.UIFrameworkVersion)
	}
	if cfg.UIFrameworkAltVersion != "" {
		fmt.Fprintf(&sb, "ui_framework_alt_version: %q\n", cfg.UIFrameworkAltVersion)
	}
	fmt.Fprintf(&sb, "cache_root: %q\n", cfg.CacheRoot)
	fmt.Fprintf(&sb, "manifest: %q\n", cfg.Manifest)
	if cfg.UpdateURL != "" {
		fmt.Fprintf(&sb, "update_url: %q\n", cfg.UpdateURL)
	}

	if len(cfg.Externals) > 0 {
		sb.WriteString("\nexternals: [\n")
		for _, ext := range cfg.Externals {
			fields := []string{fmt.Sprintf("name: %q", ext.Name)}
			if ext.Version != "" {
				fields = append(fields, fmt.Sprintf("version: %q", ext.Version))
			}
			if ext.As != "" {
				fields = append(fields, fmt.Sprintf("as: %q", ext.As))
			}
			switch {
			case ext.URL.IsZero():
			case ext.URL.Dev == ext.URL.Prod:
				fields = append(fields, fmt.Sprintf("url: %q", ext.URL.Dev))
			default:
				fields = append(fields, fmt.Sprintf("url: {dev: %q, prod: %q}", ext.URL.Dev, ext.URL.Prod))
			}
			if ext.Lazy {
				fields = append(fields, "lazy: true")
			}
			fmt.Fprintf(&sb, "\t{%s},\n", strings.Join(fields, ", "))
		}
		sb.WriteString("]\n")
	}

	sb.WriteString("\nregistry: {\n")
	fmt.Fprintf(&sb, "\tbase_url: %q\n", cfg.Registry.BaseURL)
	fmt.Fprintf(&sb, "\ttimeout: %q\n", cfg.Registry.Timeout.String())
	fmt.Fprintf(&sb, "\tcache_size: %d\n", cfg.Registry.CacheSize)
	fmt.Fprintf(&sb, "\tconcurrency: %d\n", cfg.Registry.Concurrency)
	sb.WriteString("}\n")

	sb.WriteString("\noutput: {\n")
	fmt.Fprintf(&sb, "\tfilename: %q\n", cfg.Output.Filename)
	fmt.Fprintf(&sb, "\tdir: %q\n", cfg.Output.Dir)
	sb.WriteString("}\n")

	sb.WriteString("\nheader: {\n")
	fmt.Fprintf(&sb, "\tname: %q\n", cfg.Header.Name)
	fmt.Fprintf(&sb, "\tversion: %q\n", cfg.Header.Version)
	fmt.Fprintf(&sb, "\tdescription: %q\n", cfg.Header.Description)
	fmt.Fprintf(&sb, "\tnamespace: %q\n", cfg.Header.Namespace)
	fmt.Fprintf(&sb, "\tmatch: %q\n", cfg.Header.Match)
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}
