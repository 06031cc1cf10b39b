// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlagValues holds the persistent flags shared by every command.
type rootFlagValues struct {
	configPath string
	verbose    bool
	cwd        string
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlagValues{}

	rootCmd := &cobra.Command{
		Use:   "userpack",
		Short: "Bundle userscripts with a managed metadata header",
		Long: TitleStyle.Render("userpack") + SubtitleStyle.Render(" - Bundle userscripts with a managed metadata header") + `

userpack bundles a userscript, keeps its ==UserScript== header, and turns
configured externals into @require lines that load them from a CDN. Packages
installed locally are matched first; the registry is only asked when the
local cache has no bundle.

` + SubtitleStyle.Render("Examples:") + `
  userpack build src/index.js          Bundle for production
  userpack build --mode development -w Rebuild on every change
  userpack inject --metafile meta.json Post-process another bundler's output
  userpack resolve react 18.2.0        Print the CDN link of a package
  userpack header src/index.js         Check a script's header`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			app.setVerbose(flags.verbose)
			slog.SetDefault(app.logger)
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is ./userpack.cue)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&flags.cwd, "cwd", "C", "", "project directory (default is the working directory)")

	rootCmd.AddCommand(newBuildCommand(app, flags))
	rootCmd.AddCommand(newInjectCommand(app, flags))
	rootCmd.AddCommand(newResolveCommand(app, flags))
	rootCmd.AddCommand(newHeaderCommand(app))
	rootCmd.AddCommand(newConfigCommand(app, flags))

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the code of the failing command.
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(int(exitCodeFor(err)))
	}
}
