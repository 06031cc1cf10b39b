// SPDX-License-Identifier: MPL-2.0

package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/invowk/userpack/pkg/types"

	"github.com/spf13/afero"
)

const (
	// KeyRequire is the directive that loads an external script before the userscript runs.
	KeyRequire = "require"
	// KeyUpdateURL is the directive the host polls for new versions.
	KeyUpdateURL = "updateURL"
	// KeyDownloadURL is the directive the host downloads updates from.
	KeyDownloadURL = "downloadURL"

	// keyWidth is the column the value starts at for short keys.
	keyWidth = 12
	// minPad is the minimum number of spaces between key and value.
	minPad = 2
)

type (
	// LinkResolver turns a dependency name, version and mode into a loadable URL.
	LinkResolver interface {
		ResolveLink(ctx context.Context, name, version string, mode types.Mode) (string, error)
	}

	// Framework describes a UI framework dependency that is loaded from a CDN
	// instead of being bundled.
	Framework struct {
		// Name is the package name, e.g. "react".
		Name string
		// Version is the version to request. Frameworks without a version are skipped.
		Version string
		// Pattern matches an existing require value that already loads this framework.
		Pattern *regexp.Regexp
	}

	// Options configures an Accumulator.
	Options struct {
		// UseRemoteAssets enables framework require synthesis.
		UseRemoteAssets bool
		// Frameworks are synthesized in order when UseRemoteAssets is set.
		Frameworks []Framework
		// UpdateURL, when non-empty, is emitted as both updateURL and downloadURL.
		UpdateURL string
		// Defaults are added when the entry file has no header of its own.
		Defaults []Entry
		// Resolver produces framework URLs. Required when UseRemoteAssets is set.
		Resolver LinkResolver
		// FS is used to read entry files. Defaults to the OS filesystem.
		FS afero.Fs
		// Logger receives parse diagnostics. Defaults to slog.Default().
		Logger *slog.Logger
	}

	// Accumulator is the ordered header of a single build.
	// It is not safe for concurrent use.
	Accumulator struct {
		opts    Options
		lines   []string
		entries []Entry
		// covered lists the frameworks the header loads, in Frameworks order.
		covered []string
	}
)

// DefaultFrameworks returns the React framework pair at the given versions.
func DefaultFrameworks(reactVersion, reactDOMVersion string) []Framework {
	return []Framework{
		{Name: "react", Version: reactVersion, Pattern: regexp.MustCompile(`react@.*\.js`)},
		{Name: "react-dom", Version: reactDOMVersion, Pattern: regexp.MustCompile(`react-dom@.*\.js`)},
	}
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator(opts Options) *Accumulator {
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Accumulator{opts: opts}
}

// AddMetadata appends an entry and its rendered line.
//
// The line is inserted at the index equal to the new entry count, so entries
// stay in the order they were added relative to the lines carried over from
// the source. The index never passes the closing marker.
func (a *Accumulator) AddMetadata(key, value string) {
	a.entries = append(a.entries, Entry{Key: key, Value: value})

	pos := min(len(a.entries), len(a.lines))
	if end := a.endIndex(); end >= 0 && pos > end {
		pos = end
	}
	a.lines = slices.Insert(a.lines, pos, formatEntry(key, value))
}

// ReadMetadata loads the header of the file at path and applies synthesis rules.
// It returns the rendered header text.
func (a *Accumulator) ReadMetadata(ctx context.Context, path string, mode types.Mode) (string, error) {
	data, err := afero.ReadFile(a.opts.FS, path)
	if err != nil {
		return "", fmt.Errorf("reading entry file %s: %w", path, err)
	}
	return a.Load(ctx, string(data), mode)
}

// Load is ReadMetadata for source text that is already in memory.
//
// The accumulator is reset first, so loading the same source twice with the
// same options renders the same text.
func (a *Accumulator) Load(ctx context.Context, src string, mode types.Mode) (string, error) {
	a.lines = a.lines[:0]
	a.entries = a.entries[:0]
	a.covered = a.covered[:0]

	res := Parse(src)
	fresh := false
	if err := res.Err(); err != nil {
		a.opts.Logger.Warn("entry has no usable userscript header, starting a new one", "error", err)
		a.lines = append(a.lines, StartMarker, EndMarker)
		fresh = true
	} else {
		for _, l := range res.Header() {
			a.lines = append(a.lines, l.Raw)
			if l.Entry != nil {
				a.entries = append(a.entries, *l.Entry)
			}
		}
	}

	if fresh {
		for _, e := range a.opts.Defaults {
			a.AddMetadata(e.Key, e.Value)
		}
	}

	if a.opts.UseRemoteAssets {
		if err := a.synthesizeFrameworks(ctx, mode); err != nil {
			return "", err
		}
	}

	if a.opts.UpdateURL != "" {
		a.AddMetadata(KeyUpdateURL, a.opts.UpdateURL)
		a.AddMetadata(KeyDownloadURL, a.opts.UpdateURL)
	}

	return a.Render(), nil
}

func (a *Accumulator) synthesizeFrameworks(ctx context.Context, mode types.Mode) error {
	for _, fw := range a.opts.Frameworks {
		if fw.Pattern != nil && a.HasMatch(KeyRequire, fw.Pattern) {
			a.covered = append(a.covered, fw.Name)
			continue
		}
		if fw.Version == "" {
			a.opts.Logger.Debug("no version for framework, leaving it to the bundle", "framework", fw.Name)
			continue
		}
		if a.opts.Resolver == nil {
			return fmt.Errorf("no link resolver configured for framework %s", fw.Name)
		}
		link, err := a.opts.Resolver.ResolveLink(ctx, fw.Name, fw.Version, mode)
		if err != nil {
			return err
		}
		a.AddMetadata(KeyRequire, link)
		a.covered = append(a.covered, fw.Name)
	}
	return nil
}

// Frameworks returns the names of the frameworks the last loaded header
// requires, whether the source already carried the require or it was
// synthesized. Frameworks skipped for lack of a version are not listed.
func (a *Accumulator) Frameworks() []string {
	return slices.Clone(a.covered)
}

// Has reports whether an entry with exactly this key and value exists.
func (a *Accumulator) Has(key, value string) bool {
	return slices.Contains(a.entries, Entry{Key: key, Value: value})
}

// HasMatch reports whether an entry with this key has a value matching re.
func (a *Accumulator) HasMatch(key string, re *regexp.Regexp) bool {
	return slices.ContainsFunc(a.entries, func(e Entry) bool {
		return e.Key == key && re.MatchString(e.Value)
	})
}

// Entries returns a copy of the entries in insertion order.
func (a *Accumulator) Entries() []Entry {
	return slices.Clone(a.entries)
}

// Render returns the header text, lines joined with "\n".
func (a *Accumulator) Render() string {
	return strings.Join(a.lines, "\n")
}

func (a *Accumulator) endIndex() int {
	for i := len(a.lines) - 1; i >= 0; i-- {
		if endRe.MatchString(a.lines[i]) {
			return i
		}
	}
	return -1
}

func formatEntry(key, value string) string {
	pad := max(keyWidth-len(key), minPad)
	return "// @" + key + strings.Repeat(" ", pad) + value
}
