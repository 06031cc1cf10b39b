// SPDX-License-Identifier: MPL-2.0

package inject

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/invowk/userpack/internal/external"
	"github.com/invowk/userpack/internal/issue"
	"github.com/invowk/userpack/pkg/metadata"
	"github.com/invowk/userpack/pkg/pipeline"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	scriptExt     = ".js"
	userScriptExt = ".user.js"
	sourceMapExt  = ".map"
)

type (
	// Header is the part of the metadata accumulator the injector needs.
	Header interface {
		Has(key, value string) bool
		AddMetadata(key, value string)
		Render() string
	}

	// Injector prepends the rendered header to script artifacts.
	Injector struct {
		header Header
		logger *slog.Logger
	}
)

// New creates an Injector writing the given header.
func New(header Header, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{header: header, logger: logger}
}

// Inject adds a @require line per link, renders the header and prepends it,
// followed by a blank line, to every .js artifact. A sibling .js.map artifact
// has its mappings shifted by the same number of lines. It returns the
// rendered header.
func (i *Injector) Inject(ctx context.Context, links []external.Link, artifacts pipeline.Artifacts) (string, error) {
	for _, link := range links {
		if i.header.Has(metadata.KeyRequire, link.URL) {
			continue
		}
		i.header.AddMetadata(metadata.KeyRequire, link.URL)
	}

	header := i.header.Render()
	prefix := header + "\n\n"
	shift := strings.Count(prefix, "\n")

	for _, name := range artifacts.Names() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !strings.HasSuffix(name, scriptExt) {
			continue
		}
		content, ok := artifacts.Get(name)
		if !ok {
			continue
		}
		if err := artifacts.Replace(name, append([]byte(prefix), content...)); err != nil {
			return "", writeError(name, err)
		}

		mapName := name + sourceMapExt
		if m, ok := artifacts.Get(mapName); ok {
			shifted, err := ShiftSourceMap(m, shift)
			if err != nil {
				return "", writeError(mapName, err)
			}
			if err := artifacts.Replace(mapName, shifted); err != nil {
				return "", writeError(mapName, err)
			}
		}
		i.logger.Debug("header injected", "artifact", name, "lines", shift)
	}

	return header, nil
}

// ShiftSourceMap moves every mapping in a v3 source map down by lines
// generated lines. Other fields are left untouched.
func ShiftSourceMap(data []byte, lines int) ([]byte, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("source map is not valid JSON")
	}
	mappings := gjson.GetBytes(data, "mappings")
	if !mappings.Exists() || lines <= 0 {
		return data, nil
	}
	return sjson.SetBytes(data, "mappings", strings.Repeat(";", lines)+mappings.String())
}

// NormalizeFilename gives an output name the .user.js suffix userscript
// managers look for. Names that already have it are returned unchanged.
func NormalizeFilename(name string) string {
	if strings.HasSuffix(name, userScriptExt) || !strings.HasSuffix(name, scriptExt) {
		return name
	}
	return strings.TrimSuffix(name, scriptExt) + userScriptExt
}

func writeError(name string, err error) error {
	return issue.NewErrorContext().
		WithOperation("write header").
		WithResource(name).
		WithIssue(issue.HeaderWriteFailedId).
		WithSuggestion("Check that the output directory is writable").
		Wrap(err).
		BuildError()
}
