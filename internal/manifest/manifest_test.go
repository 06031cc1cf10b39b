// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"testing"

	"github.com/spf13/afero"
)

const pkgJSON = `{
  "name": "demo",
  "dependencies": {"lodash": "4.17.21", "react": "17.0.0", "@scope/pkg.js": "2.0.0"},
  "devDependencies": {"react": "18.2.0", "react-dom": "^18.2.0"}
}`

func TestVersionFor(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(pkgJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		name     string
		declared string
		want     string
	}{
		{name: "react", want: "18.2.0"},
		{name: "react-dom", want: "^18.2.0"},
		{name: "lodash", want: "4.17.21"},
		{name: "@scope/pkg.js", want: "2.0.0"},
		{name: "dayjs", want: LatestTag},
		{name: "react", declared: "16.14.0", want: "16.14.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.declared, func(t *testing.T) {
			t.Parallel()
			if got := m.VersionFor(tt.name, tt.declared); got != tt.want {
				t.Errorf("VersionFor(%q, %q) = %q, want %q", tt.name, tt.declared, got, tt.want)
			}
		})
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	m, err := Load(afero.NewMemMapFs(), "package.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.VersionFor("react", ""); got != LatestTag {
		t.Errorf("VersionFor on empty manifest = %q, want %q", got, LatestTag)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "package.json", []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(fs, "package.json"); err == nil {
		t.Error("expected an error for invalid JSON")
	}
}
