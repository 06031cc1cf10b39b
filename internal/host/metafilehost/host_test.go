// SPDX-License-Identifier: MPL-2.0

package metafilehost

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/invowk/userpack/internal/config"
	"github.com/invowk/userpack/internal/issue"
	"github.com/invowk/userpack/internal/session"
	"github.com/invowk/userpack/internal/testutil"
	"github.com/invowk/userpack/pkg/pipeline"
	"github.com/invowk/userpack/pkg/types"

	"github.com/spf13/afero"
)

const metafile = `{
  "inputs": {"src/index.js": {"bytes": 80, "imports": []}},
  "outputs": {
    "dist/index.js": {
      "entryPoint": "src/index.js",
      "imports": [
        {"path": "dayjs", "kind": "import-statement", "external": true},
        {"path": "dayjs", "kind": "import-statement", "external": true},
        {"path": "./chunk.js", "kind": "import-statement"}
      ],
      "bytes": 30
    },
    "other/skip.js": {"imports": [], "bytes": 3}
  }
}`

func TestHost_RunRewritesBundles(t *testing.T) {
	t.Parallel()

	fsys := testutil.MemFS(t, map[string]string{
		"/proj/meta.json":     metafile,
		"/proj/src/index.js":  "// ==UserScript==\n// @name Clock\n// ==/UserScript==\nimport dayjs from 'dayjs';\n",
		"/proj/dist/index.js": "(()=>{dayjs()})();\n",
		"/proj/other/skip.js": "x;\n",
	})

	cfg := config.DefaultConfig()
	cfg.Externals = []config.External{{Name: "dayjs", Version: "1.11.10"}}
	s, err := session.New(context.Background(), cfg, types.ModeProduction, session.Deps{FS: fsys, Resolver: &testutil.Resolver{}})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}

	h := New(Options{Metafile: "/proj/meta.json", Root: "/proj", DistDir: "dist", FS: fsys})
	s.Register(h)

	written, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(written) != 1 || written[0] != "/proj/dist/index.user.js" {
		t.Fatalf("written = %v", written)
	}

	out, err := afero.ReadFile(fsys, "/proj/dist/index.user.js")
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	if !strings.HasPrefix(text, "// ==UserScript==\n// @name Clock\n") {
		t.Errorf("header missing:\n%s", text)
	}
	if n := strings.Count(text, "https://cdn.test/dayjs@1.11.10/production.js"); n != 1 {
		t.Errorf("dayjs require appears %d times, want 1", n)
	}
	if !strings.HasSuffix(text, "\n\n(()=>{dayjs()})();\n") {
		t.Errorf("bundle body should follow the header:\n%s", text)
	}

	if ok, _ := afero.Exists(fsys, "/proj/dist/index.js"); ok {
		t.Error("the un-suffixed bundle should be removed")
	}
	if got, _ := afero.ReadFile(fsys, "/proj/other/skip.js"); string(got) != "x;\n" {
		t.Errorf("output outside the dist dir changed: %q", got)
	}
}

func TestHost_ReplaysRequestsInOrder(t *testing.T) {
	t.Parallel()

	fsys := testutil.MemFS(t, map[string]string{
		"/proj/meta.json":     metafile,
		"/proj/dist/index.js": "x",
	})
	h := New(Options{Metafile: "/proj/meta.json", Root: "/proj", DistDir: "/proj/dist", FS: fsys})

	var (
		gotEntries  []pipeline.Entry
		gotRequests []string
		assetsSeen  []string
	)
	h.OnEntryResolved(func(_ context.Context, root string, entries []pipeline.Entry) error {
		if root != "/proj" {
			t.Errorf("root = %q", root)
		}
		gotEntries = entries
		return nil
	})
	h.OnModuleRequest(func(_ context.Context, req pipeline.ModuleRequest) (pipeline.Decision, error) {
		gotRequests = append(gotRequests, req.Request)
		return pipeline.Decision{External: true, Global: "dayjs"}, nil
	})
	h.OnOptimizeAssetsComplete(func(_ context.Context, a pipeline.Artifacts) error {
		assetsSeen = a.Names()
		return nil
	})

	if _, err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(gotEntries) != 1 || gotEntries[0] != (pipeline.Entry{Name: "index", Path: "src/index.js"}) {
		t.Errorf("entries = %+v", gotEntries)
	}
	if strings.Join(gotRequests, ",") != "dayjs" {
		t.Errorf("requests = %v, want one dayjs request", gotRequests)
	}
	if strings.Join(assetsSeen, ",") != "index.js" {
		t.Errorf("artifacts = %v", assetsSeen)
	}
}

func TestHost_PhaseErrorWritesNothing(t *testing.T) {
	t.Parallel()

	fsys := testutil.MemFS(t, map[string]string{
		"/proj/meta.json":     metafile,
		"/proj/dist/index.js": "x",
	})
	h := New(Options{Metafile: "/proj/meta.json", Root: "/proj", DistDir: "dist", FS: fsys})
	boom := errors.New("boom")
	h.OnOptimizeAssetsComplete(func(context.Context, pipeline.Artifacts) error { return boom })

	if _, err := h.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want boom", err)
	}
	if ok, _ := afero.Exists(fsys, "/proj/dist/index.user.js"); ok {
		t.Error("nothing should be written after a failed phase")
	}
	if got, _ := afero.ReadFile(fsys, "/proj/dist/index.js"); string(got) != "x" {
		t.Errorf("original bundle changed: %q", got)
	}
}

func TestHost_InvalidMetafile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		files   map[string]string
		wantErr error
	}{
		{"missing file", map[string]string{}, nil},
		{"not json", map[string]string{"/proj/meta.json": "{"}, ErrInvalidMetafile},
		{"no outputs", map[string]string{"/proj/meta.json": `{"inputs":{}}`}, ErrInvalidMetafile},
		{"nothing in dist", map[string]string{"/proj/meta.json": `{"outputs":{"out/a.js":{}}}`}, ErrNoOutputs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := New(Options{Metafile: "/proj/meta.json", Root: "/proj", DistDir: "dist", FS: testutil.MemFS(t, tt.files)})
			_, err := h.Run(context.Background())
			if err == nil {
				t.Fatal("expected an error")
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) || ae.Issue != issue.MetafileInvalidId {
				t.Errorf("error should carry the metafile issue, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
