// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/invowk/userpack/internal/config"

	"github.com/spf13/cobra"
)

// ErrConfigExists is returned by `config init` when the file is already there.
var ErrConfigExists = errors.New("config file already exists")

// newConfigCommand creates the `userpack config` command tree.
func newConfigCommand(app *App, flags *rootFlagValues) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage userpack configuration",
		Long: `Manage userpack configuration.

Configuration is read from userpack.cue in the project directory, or from the
file given with --config. USERSCRIPT_UPDATE_URL, from the environment or a
.env file next to it, overrides update_url.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := app.loadProject(cmd.Context(), flags)
			if err != nil {
				return app.fail(cmd, err)
			}
			showConfig(app.stdout, p)
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default userpack.cue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root := flags.cwd
			if root == "" {
				wd, err := os.Getwd()
				if err != nil {
					return app.fail(cmd, err)
				}
				root = wd
			}
			path := flags.configPath
			if path == "" {
				path = config.DefaultPath(root)
			}
			if _, err := os.Stat(path); err == nil && !force {
				return app.fail(cmd, fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, path))
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return app.fail(cmd, err)
			}
			fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", successIcon, path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := app.loadProject(cmd.Context(), flags)
			if err != nil {
				return app.fail(cmd, err)
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(p.cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := app.loadProject(cmd.Context(), flags)
			if err != nil {
				return app.fail(cmd, err)
			}
			if p.configPath == "" {
				fmt.Fprintf(app.stdout, "%s %s\n", config.DefaultPath(p.root), SubtitleStyle.Render("(not created, using defaults)"))
				return nil
			}
			fmt.Fprintln(app.stdout, p.configPath)
			return nil
		},
	})

	return cfgCmd
}

func showConfig(w io.Writer, p *project) {
	cfg := p.cfg
	kv := func(indent, key string, value any) {
		fmt.Fprintf(w, "%s%s: %s\n", indent, KeyStyle.Render(key), SuccessStyle.Render(fmt.Sprint(value)))
	}
	orNone := func(s string) string {
		if s == "" {
			return SubtitleStyle.Render("(none)")
		}
		return s
	}

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	if p.configPath != "" {
		fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("Config file"), p.configPath)
	} else {
		fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(w)

	kv("", "use_remote_assets", cfg.UseRemoteAssets)
	kv("", "ui_framework_version", orNone(cfg.UIFrameworkVersion))
	kv("", "ui_framework_alt_version", orNone(cfg.UIFrameworkAltVersion))
	kv("", "cache_root", cfg.CacheRoot)
	kv("", "manifest", cfg.Manifest)
	kv("", "update_url", orNone(cfg.UpdateURL))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", KeyStyle.Render("externals"))
	if len(cfg.Externals) == 0 {
		fmt.Fprintf(w, "  %s\n", SubtitleStyle.Render("(none configured)"))
	}
	for _, ext := range cfg.Externals {
		line := ext.Name
		if ext.Version != "" {
			line += "@" + ext.Version
		}
		line += " as " + ext.Global()
		if ext.Lazy {
			line += " (lazy)"
		}
		fmt.Fprintf(w, "  - %s\n", SuccessStyle.Render(line))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", KeyStyle.Render("registry"))
	kv("  ", "base_url", cfg.Registry.BaseURL)
	kv("  ", "timeout", cfg.Registry.Timeout)
	kv("  ", "cache_size", cfg.Registry.CacheSize)
	kv("  ", "concurrency", cfg.Registry.Concurrency)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", KeyStyle.Render("output"))
	kv("  ", "filename", cfg.Output.Filename)
	kv("  ", "dir", cfg.Output.Dir)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", KeyStyle.Render("header"))
	kv("  ", "name", cfg.Header.Name)
	kv("  ", "version", cfg.Header.Version)
	kv("  ", "namespace", cfg.Header.Namespace)
	kv("  ", "match", cfg.Header.Match)
}
