// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/invowk/userpack/internal/config"
	"github.com/invowk/userpack/internal/issue"
	"github.com/invowk/userpack/internal/resolver"
	"github.com/invowk/userpack/pkg/pipeline"
	"github.com/invowk/userpack/pkg/types"

	"github.com/spf13/afero"
)

type cdnResolver struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (r *cdnResolver) ResolveLink(_ context.Context, name, version string, mode types.Mode) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, name+"@"+version)
	err := r.fail[name]
	r.mu.Unlock()
	if err != nil {
		return "", err
	}
	variant := "production.min"
	if mode.IsDev() {
		variant = "development"
	}
	return fmt.Sprintf("https://unpkg.com/%s@%s/umd/%s.%s.js", name, version, name, variant), nil
}

func newFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, content := range files {
		if err := afero.WriteFile(fsys, name, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return fsys
}

func build(t *testing.T, s *Session, entries []pipeline.Entry, requests []string, artifacts pipeline.Artifacts) error {
	t.Helper()
	var hub pipeline.Hub
	s.Register(&hub)

	ctx := context.Background()
	if err := hub.EmitEntryResolved(ctx, "/proj", entries); err != nil {
		return err
	}
	for _, req := range requests {
		if _, err := hub.EmitModuleRequest(ctx, pipeline.ModuleRequest{Request: req}); err != nil {
			return err
		}
	}
	return hub.EmitOptimizeAssetsComplete(ctx, artifacts)
}

func TestSession_FullBuild(t *testing.T) {
	t.Parallel()

	fsys := newFS(t, map[string]string{
		"/proj/src/index.js": "// ==UserScript==\n// @name X\n// ==/UserScript==\nconsole.log(1)",
	})
	cfg := config.DefaultConfig()
	cfg.UIFrameworkVersion = "18.2.0"
	cfg.Externals = []config.External{
		{Name: "lodash", Version: "4.17.21", As: "_"},
		{Name: "dayjs", Version: "1.11.10"},
	}
	res := &cdnResolver{}

	s, err := New(context.Background(), cfg, types.ModeProduction, Deps{FS: fsys, Resolver: res})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	artifacts := pipeline.NewMemoryArtifacts(map[string][]byte{"index.user.js": []byte("bundle();")})
	err = build(t, s, []pipeline.Entry{{Name: "index", Path: "src/index.js"}}, []string{"react", "react-dom/client", "lodash/get"}, artifacts)
	if err != nil {
		t.Fatalf("build error = %v", err)
	}

	want := "// ==UserScript==\n" +
		"// @name X\n" +
		"// @require     https://unpkg.com/react@18.2.0/umd/react.production.min.js\n" +
		"// @require     https://unpkg.com/lodash@4.17.21/umd/lodash.production.min.js\n" +
		"// @require     https://unpkg.com/dayjs@1.11.10/umd/dayjs.production.min.js\n" +
		"// ==/UserScript=="
	if s.Header() != want {
		t.Errorf("header =\n%s\nwant\n%s", s.Header(), want)
	}
	out, _ := artifacts.Get("index.user.js")
	if string(out) != want+"\n\nbundle();" {
		t.Errorf("artifact = %q", out)
	}
	if s.Entry() != "/proj/src/index.js" {
		t.Errorf("Entry() = %q", s.Entry())
	}
}

func TestSession_FrameworkBoundOnlyWithRequire(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		src        string
		altVersion string
		want       map[string]bool
	}{
		{
			name: "react-dom without version is bundled",
			src:  "// ==UserScript==\n// @name X\n// ==/UserScript==\n",
			want: map[string]bool{"react": true, "react/jsx-runtime": true, "react-dom": false, "react-dom/client": false},
		},
		{
			name:       "react-dom with alt version is external",
			src:        "// ==UserScript==\n// @name X\n// ==/UserScript==\n",
			altVersion: "18.2.0",
			want:       map[string]bool{"react": true, "react-dom/client": true},
		},
		{
			name: "react-dom required by the source header is external",
			src:  "// ==UserScript==\n// @require https://cdn.example/react-dom@18.2.0/umd/react-dom.production.min.js\n// ==/UserScript==\n",
			want: map[string]bool{"react": true, "react-dom/client": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fsys := newFS(t, map[string]string{"/proj/src/index.js": tt.src})
			cfg := config.DefaultConfig()
			cfg.UIFrameworkVersion = "18.2.0"
			cfg.UIFrameworkAltVersion = tt.altVersion

			s, err := New(context.Background(), cfg, types.ModeProduction, Deps{FS: fsys, Resolver: &cdnResolver{}})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			var hub pipeline.Hub
			s.Register(&hub)

			ctx := context.Background()
			if err := hub.EmitEntryResolved(ctx, "/proj", []pipeline.Entry{{Path: "src/index.js"}}); err != nil {
				t.Fatalf("entry phase error = %v", err)
			}
			for request, external := range tt.want {
				d, err := hub.EmitModuleRequest(ctx, pipeline.ModuleRequest{Request: request})
				if err != nil {
					t.Fatalf("module request %q error = %v", request, err)
				}
				if d.External != external {
					t.Errorf("decision for %q = %+v, want external=%v", request, d, external)
				}
			}
			if err := hub.EmitOptimizeAssetsComplete(ctx, pipeline.NewMemoryArtifacts(nil)); err != nil {
				t.Fatalf("assets phase error = %v", err)
			}

			hasReactDOM := strings.Contains(s.Header(), "react-dom@")
			if hasReactDOM != tt.want["react-dom/client"] {
				t.Errorf("react-dom require present = %v, bound = %v:\n%s", hasReactDOM, tt.want["react-dom/client"], s.Header())
			}
		})
	}
}

func TestSession_EveryDeclaredExternalHasOneRequire(t *testing.T) {
	t.Parallel()

	fsys := newFS(t, map[string]string{"/proj/a.js": "// ==UserScript==\n// @name A\n// ==/UserScript==\n"})
	cfg := config.DefaultConfig()
	cfg.Externals = []config.External{
		{Name: "lodash", Version: "4.17.21"},
		{Name: "vue", URL: config.AliasURL{Dev: "https://x/vue.js", Prod: "https://x/vue.min.js"}},
		{Name: "moment", Version: "2.30.1"},
	}

	s, err := New(context.Background(), cfg, types.ModeDevelopment, Deps{FS: fsys, Resolver: &cdnResolver{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	artifacts := pipeline.NewMemoryArtifacts(map[string][]byte{"a.js": nil})
	if err := build(t, s, []pipeline.Entry{{Path: "/proj/a.js"}}, []string{"lodash", "lodash/fp", "lodash"}, artifacts); err != nil {
		t.Fatalf("build error = %v", err)
	}

	for _, url := range []string{
		"https://unpkg.com/lodash@4.17.21/umd/lodash.development.js",
		"https://x/vue.js",
		"https://unpkg.com/moment@2.30.1/umd/moment.development.js",
	} {
		if n := strings.Count(s.Header(), url); n != 1 {
			t.Errorf("%s appears %d times, want 1", url, n)
		}
	}
}

func TestSession_ManifestVersions(t *testing.T) {
	t.Parallel()

	fsys := newFS(t, map[string]string{
		"/proj/a.js": "// ==UserScript==\n// @name A\n// ==/UserScript==\n",
		"package.json": `{
			"devDependencies": {"react": "17.0.2"},
			"dependencies": {"react-dom": "17.0.2", "dayjs": "1.11.10"}
		}`,
	})
	cfg := config.DefaultConfig()
	cfg.Externals = []config.External{{Name: "dayjs"}}
	res := &cdnResolver{}

	s, err := New(context.Background(), cfg, types.ModeProduction, Deps{FS: fsys, Resolver: res})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := build(t, s, []pipeline.Entry{{Path: "/proj/a.js"}}, nil, pipeline.NewMemoryArtifacts(nil)); err != nil {
		t.Fatalf("build error = %v", err)
	}

	want := []string{"react@17.0.2", "react-dom@17.0.2", "dayjs@1.11.10"}
	if strings.Join(res.calls, ",") != strings.Join(want, ",") {
		t.Errorf("resolver calls = %v, want %v", res.calls, want)
	}
}

func TestSession_HeaderlessEntryGetsDefaults(t *testing.T) {
	t.Parallel()

	fsys := newFS(t, map[string]string{
		"/proj/plain.js":  "console.log('no header')",
		"/proj/second.js": "console.log('still none')",
	})
	cfg := config.DefaultConfig()
	cfg.UseRemoteAssets = false

	s, err := New(context.Background(), cfg, types.ModeProduction, Deps{FS: fsys, Resolver: &cdnResolver{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	entries := []pipeline.Entry{{Path: "plain.js"}, {Path: "second.js"}}
	if err := build(t, s, entries, []string{"react"}, pipeline.NewMemoryArtifacts(nil)); err != nil {
		t.Fatalf("build error = %v", err)
	}

	if s.Entry() != "/proj/plain.js" {
		t.Errorf("Entry() = %q, want the first entry", s.Entry())
	}
	for _, want := range []string{"// ==UserScript==", "// @name        New Userscript", "// @match       *://*/*", "// ==/UserScript=="} {
		if !strings.Contains(s.Header(), want) {
			t.Errorf("header missing %q:\n%s", want, s.Header())
		}
	}
	if strings.Contains(s.Header(), "@require") {
		t.Error("no require expected with remote assets disabled")
	}
}

func TestSession_PrefersEntryWithHeader(t *testing.T) {
	t.Parallel()

	fsys := newFS(t, map[string]string{
		"/proj/vendor.js": "export {}",
		"/proj/main.js":   "// ==UserScript==\n// @name Main\n// ==/UserScript==\n",
	})
	cfg := config.DefaultConfig()
	cfg.UseRemoteAssets = false

	s, err := New(context.Background(), cfg, types.ModeProduction, Deps{FS: fsys, Resolver: &cdnResolver{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	entries := []pipeline.Entry{{Path: "vendor.js"}, {Path: "main.js"}}
	if err := build(t, s, entries, nil, pipeline.NewMemoryArtifacts(nil)); err != nil {
		t.Fatalf("build error = %v", err)
	}
	if s.Entry() != "/proj/main.js" {
		t.Errorf("Entry() = %q, want /proj/main.js", s.Entry())
	}
}

func TestSession_ResolutionFailureAbortsBuild(t *testing.T) {
	t.Parallel()

	fsys := newFS(t, map[string]string{"/proj/a.js": "// ==UserScript==\n// @name A\n// ==/UserScript==\n"})
	cfg := config.DefaultConfig()
	cfg.Externals = []config.External{{Name: "ghost", Version: "0.0.1"}}
	res := &cdnResolver{fail: map[string]error{
		"ghost": &resolver.ResolutionError{Name: "ghost", Version: "0.0.1"},
	}}

	s, err := New(context.Background(), cfg, types.ModeProduction, Deps{FS: fsys, Resolver: res})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	artifacts := pipeline.NewMemoryArtifacts(map[string][]byte{"a.js": []byte("x")})
	err = build(t, s, []pipeline.Entry{{Path: "/proj/a.js"}}, []string{"ghost"}, artifacts)

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("error should carry an ActionableError, got %v", err)
	}
	if ae.Issue != issue.ResolutionFailedId || ae.Resource != "ghost@0.0.1" {
		t.Errorf("unexpected context %+v", ae)
	}
	if !errors.Is(err, resolver.ErrCannotResolve) {
		t.Errorf("error should wrap ErrCannotResolve: %v", err)
	}
	if got, _ := artifacts.Get("a.js"); string(got) != "x" {
		t.Errorf("artifact written despite failure: %q", got)
	}
}

func TestSession_NoEntries(t *testing.T) {
	t.Parallel()

	s, err := New(context.Background(), config.DefaultConfig(), types.ModeProduction, Deps{FS: afero.NewMemMapFs(), Resolver: &cdnResolver{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	err = build(t, s, nil, nil, pipeline.NewMemoryArtifacts(nil))
	if !errors.Is(err, ErrNoEntries) {
		t.Errorf("error = %v, want ErrNoEntries", err)
	}
}

func TestSession_AssetsBeforeEntry(t *testing.T) {
	t.Parallel()

	s, err := New(context.Background(), config.DefaultConfig(), types.ModeProduction, Deps{FS: afero.NewMemMapFs(), Resolver: &cdnResolver{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var hub pipeline.Hub
	s.Register(&hub)
	err = hub.EmitOptimizeAssetsComplete(context.Background(), pipeline.NewMemoryArtifacts(nil))
	if !errors.Is(err, ErrHeaderNotLoaded) {
		t.Errorf("error = %v, want ErrHeaderNotLoaded", err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), config.DefaultConfig(), types.Mode("staging"), Deps{Resolver: &cdnResolver{}}); !errors.Is(err, types.ErrInvalidMode) {
		t.Errorf("invalid mode error = %v", err)
	}
	if _, err := New(context.Background(), config.DefaultConfig(), types.ModeProduction, Deps{}); err == nil {
		t.Error("missing resolver should fail")
	}
}

func TestNew_DistinctBuildIDs(t *testing.T) {
	t.Parallel()

	deps := Deps{FS: afero.NewMemMapFs(), Resolver: &cdnResolver{}}
	a, _ := New(context.Background(), config.DefaultConfig(), types.ModeProduction, deps)
	b, _ := New(context.Background(), config.DefaultConfig(), types.ModeProduction, deps)
	if a.ID() == b.ID() {
		t.Error("sessions should have distinct build IDs")
	}
}
