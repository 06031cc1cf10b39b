// SPDX-License-Identifier: MPL-2.0

package metadata

import (
	"errors"
	"testing"
)

func TestParse_CompleteHeader(t *testing.T) {
	t.Parallel()

	src := "// ==UserScript==\n// @name        X\n// @match       https://example.com/*\n// ==/UserScript==\nconsole.log(1)"
	res := Parse(src)

	if !res.Start || !res.End {
		t.Fatalf("expected complete header, got Start=%v End=%v", res.Start, res.End)
	}
	if err := res.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}

	header := res.Header()
	if len(header) != 4 {
		t.Fatalf("expected 4 header lines, got %d", len(header))
	}
	if !header[0].Start || !header[3].End {
		t.Error("first and last header lines should be the markers")
	}

	entries := res.Entries()
	want := []Entry{{Key: "name", Value: "X"}, {Key: "match", Value: "https://example.com/*"}}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry[%d] = %+v, want %+v", i, entries[i], want[i])
		}
	}

	last := res.Lines[len(res.Lines)-1]
	if last.InBlock || last.Entry != nil {
		t.Errorf("code after the header must not be part of the block: %+v", last)
	}
}

func TestParse_IgnoresDirectivesOutsideBlock(t *testing.T) {
	t.Parallel()

	src := "// @require https://evil.example/a.js\n// ==UserScript==\n// @name X\n// ==/UserScript==\n// @require https://evil.example/b.js"
	res := Parse(src)

	for _, l := range res.Lines {
		if !l.InBlock && l.Entry != nil {
			t.Errorf("line %d outside the block produced an entry: %q", l.Number, l.Raw)
		}
	}
	entries := res.Entries()
	if len(entries) != 1 || entries[0].Key != "name" {
		t.Errorf("expected only the @name entry, got %+v", entries)
	}
}

func TestParse_InvalidLinesArePreserved(t *testing.T) {
	t.Parallel()

	src := "// ==UserScript==\n// @noframes\nvar x = 1\n// plain comment\n// @name X\n// ==/UserScript=="
	res := Parse(src)

	header := res.Header()
	if len(header) != 6 {
		t.Fatalf("expected every block line to be kept, got %d", len(header))
	}
	for _, idx := range []int{1, 2, 3} {
		if !header[idx].Invalid {
			t.Errorf("line %q should be flagged invalid", header[idx].Raw)
		}
		if header[idx].Entry != nil {
			t.Errorf("invalid line %q must not carry an entry", header[idx].Raw)
		}
	}
	if header[4].Invalid || header[4].Entry == nil {
		t.Errorf("line %q should be a valid entry", header[4].Raw)
	}
}

func TestParse_CRLF(t *testing.T) {
	t.Parallel()

	res := Parse("// ==UserScript==\r\n// @name X\r\n// ==/UserScript==\r\n")
	if !res.End {
		t.Fatal("CRLF header should be recognized")
	}
	if got := res.Entries(); len(got) != 1 || got[0].Value != "X" {
		t.Errorf("unexpected entries %+v", got)
	}
}

func TestParse_MissingHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src      string
		wantErr  error
		wantLine int
	}{
		{name: "no markers", src: "console.log(1)", wantErr: ErrNoHeader},
		{name: "empty source", src: "", wantErr: ErrNoHeader},
		{name: "unterminated", src: "'use strict'\n// ==UserScript==\n// @name X", wantErr: ErrUnterminatedHeader, wantLine: 2},
		{name: "end marker only", src: "// ==/UserScript==", wantErr: ErrNoHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := Parse(tt.src)
			if res.End {
				t.Fatal("End should be false")
			}
			if res.Header() != nil {
				t.Error("Header() should be nil without a complete block")
			}

			err := res.Err()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Err() = %v, want %v", err, tt.wantErr)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Err() should be a *ParseError, got %T", err)
			}
			if pe.Line != tt.wantLine {
				t.Errorf("ParseError.Line = %d, want %d", pe.Line, tt.wantLine)
			}
		})
	}
}

func TestEntryString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		entry Entry
		want  string
	}{
		{Entry{Key: "name", Value: "X"}, "// @name        X"},
		{Entry{Key: "require", Value: "https://a/b.js"}, "// @require     https://a/b.js"},
		{Entry{Key: "downloadURL", Value: "u"}, "// @downloadURL  u"},
		{Entry{Key: "averyveryverylongkey", Value: "v"}, "// @averyveryverylongkey  v"},
	}

	for _, tt := range tests {
		if got := tt.entry.String(); got != tt.want {
			t.Errorf("Entry%+v.String() = %q, want %q", tt.entry, got, tt.want)
		}
	}
}
