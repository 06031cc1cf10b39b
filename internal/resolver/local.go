// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/invowk/userpack/pkg/types"

	"github.com/spf13/afero"
)

// Layouts is the ranked list of directories, relative to an installed package,
// that may hold its UMD bundles. The empty layout is the package root.
var Layouts = []string{"umd", "dist", "lib/umd", ""}

type (
	// LocalProber finds bundles inside a local dependency cache such as node_modules.
	LocalProber struct {
		fs      afero.Fs
		root    string
		layouts []string
	}

	// localMatch is a bundle found in the cache.
	localMatch struct {
		layout string
		file   string
	}
)

// NewLocalProber probes packages installed under root on fsys.
func NewLocalProber(fsys afero.Fs, root string) *LocalProber {
	return &LocalProber{fs: fsys, root: root, layouts: Layouts}
}

// Probe walks the layouts in rank order and returns the first bundle for mode.
// ok is false when every layout was exhausted without a match. An error is
// returned only when the cache exists but cannot be read.
func (p *LocalProber) Probe(name string, mode types.Mode) (localMatch, bool, error) {
	for _, layout := range p.layouts {
		dir := filepath.Join(p.root, filepath.FromSlash(name), filepath.FromSlash(layout))

		names, err := p.list(dir)
		if err != nil {
			return localMatch{}, false, err
		}
		if !hasMinified(names) {
			continue
		}
		if file := classify(names).pick(name, mode); file != "" {
			return localMatch{layout: layout, file: file}, true, nil
		}
	}
	return localMatch{}, false, nil
}

// list returns the file names in dir, or nil when dir does not exist.
func (p *LocalProber) list(dir string) ([]string, error) {
	info, err := p.fs.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &FilesystemError{Path: dir, Cause: err}
	}
	if !info.IsDir() {
		return nil, nil
	}

	entries, err := afero.ReadDir(p.fs, dir)
	if err != nil {
		return nil, &FilesystemError{Path: dir, Cause: err}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// relPath joins a layout and file into the URL path below name@version.
func (m localMatch) relPath() string {
	return strings.TrimPrefix(path.Join(m.layout, m.file), "/")
}
