// SPDX-License-Identifier: MPL-2.0

// Package manifest reads pinned dependency versions from a project's
// package.json.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
)

// LatestTag is the version used when nothing pins a dependency.
const LatestTag = "latest"

// Manifest is a parsed package.json. The zero value has no dependencies.
type Manifest struct {
	doc gjson.Result
}

// Load reads the manifest at path. A missing file yields an empty Manifest.
func Load(fsys afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("manifest %s is not valid JSON", path)
	}
	return &Manifest{doc: gjson.ParseBytes(data)}, nil
}

// Parse builds a Manifest from raw JSON.
func Parse(data []byte) (*Manifest, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("manifest is not valid JSON")
	}
	return &Manifest{doc: gjson.ParseBytes(data)}, nil
}

// Pinned returns the version declared for name, checking devDependencies
// before dependencies.
func (m *Manifest) Pinned(name string) (string, bool) {
	if m == nil || !m.doc.Exists() {
		return "", false
	}
	key := gjson.Escape(name)
	for _, section := range []string{"devDependencies", "dependencies"} {
		if v := m.doc.Get(section + "." + key); v.Exists() && v.String() != "" {
			return v.String(), true
		}
	}
	return "", false
}

// VersionFor returns declared when set, else the pinned version, else LatestTag.
func (m *Manifest) VersionFor(name, declared string) string {
	if declared != "" {
		return declared
	}
	if v, ok := m.Pinned(name); ok {
		return v
	}
	return LatestTag
}
