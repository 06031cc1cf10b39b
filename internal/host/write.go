// SPDX-License-Identifier: MPL-2.0

package host

import (
	"fmt"
	"path/filepath"

	"github.com/invowk/userpack/internal/issue"
	"github.com/invowk/userpack/pkg/pipeline"

	"github.com/spf13/afero"
)

// WriteArtifacts writes every artifact under dir, naming each file
// rename(name). rename may be nil. It returns the written paths in artifact
// order.
func WriteArtifacts(fsys afero.Fs, dir string, artifacts pipeline.Artifacts, rename func(string) string) ([]string, error) {
	names := artifacts.Names()
	written := make([]string, 0, len(names))
	for _, name := range names {
		content, ok := artifacts.Get(name)
		if !ok {
			continue
		}
		target := name
		if rename != nil {
			target = rename(name)
		}
		path := filepath.Join(dir, filepath.FromSlash(target))
		if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, writeError(path, err)
		}
		if err := afero.WriteFile(fsys, path, content, 0o644); err != nil {
			return written, writeError(path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func writeError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("write artifact").
		WithResource(path).
		WithIssue(issue.HeaderWriteFailedId).
		WithSuggestion("Check that the output directory is writable").
		Wrap(fmt.Errorf("writing %s: %w", filepath.Base(path), err)).
		BuildError()
}
