// SPDX-License-Identifier: MPL-2.0

package metadata

import (
	"errors"
	"fmt"
	"regexp"
)

const (
	// StartMarker is the canonical opening line of a metadata block.
	StartMarker = "// ==UserScript=="
	// EndMarker is the canonical closing line of a metadata block.
	EndMarker = "// ==/UserScript=="
)

var (
	// ErrNoHeader is returned by Result.Err when the source has no metadata block.
	ErrNoHeader = errors.New("no userscript header found")
	// ErrUnterminatedHeader is returned by Result.Err when the start marker has no matching end marker.
	ErrUnterminatedHeader = errors.New("userscript header is not terminated")

	startRe = regexp.MustCompile(`^\s*//\s*==UserScript==\s*$`)
	endRe   = regexp.MustCompile(`^\s*//\s*==/UserScript==\s*$`)
	// entryRe captures the key and the (possibly empty) value of `// @key value`.
	entryRe   = regexp.MustCompile(`^\s*//\s*@(\S+)(?:\s+(.*?))?\s*$`)
	commentRe = regexp.MustCompile(`^\s*//`)
	lineSplit = regexp.MustCompile(`\r?\n`)
)

type (
	// Entry is one `@key value` directive.
	// Keys are not unique: a header usually carries several `require` entries.
	Entry struct {
		Key   string
		Value string
	}

	// Line is a single source line annotated with its role in the header.
	Line struct {
		// Raw is the line text exactly as it appeared in the source.
		Raw string
		// Number is the 1-based line number in the source.
		Number int
		// InBlock reports whether the line lies between the markers (inclusive).
		InBlock bool
		// Start and End mark the opening and closing marker lines.
		Start bool
		End   bool
		// Invalid flags lines inside the block that are not well-formed directives.
		Invalid bool
		// Entry is set for well-formed `// @key value` lines inside the block.
		Entry *Entry
	}

	// Result is the output of Parse.
	Result struct {
		Lines []Line
		// Start reports whether an opening marker was seen.
		Start bool
		// End reports whether a complete block (both markers) was found.
		End bool
	}

	// ParseError describes why a source has no usable header.
	// It is informational: callers start a fresh header instead of failing.
	ParseError struct {
		// Line is the 1-based line of the opening marker, or 0 when absent.
		Line  int
		Cause error
	}
)

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v", e.Line, e.Cause)
	}
	return e.Cause.Error()
}

// Unwrap returns the sentinel cause for errors.Is() compatibility.
func (e *ParseError) Unwrap() error { return e.Cause }

// String renders the entry in canonical header form.
func (e Entry) String() string {
	return formatEntry(e.Key, e.Value)
}

// Parse splits src into lines and annotates the metadata block.
//
// Only the first block is recognized. Lines outside it are returned untouched
// and never carry an Entry, even if they look like directives.
func Parse(src string) *Result {
	raw := lineSplit.Split(src, -1)
	res := &Result{Lines: make([]Line, 0, len(raw))}

	inBlock := false
	for i, text := range raw {
		line := Line{Raw: text, Number: i + 1}

		switch {
		case !res.Start && startRe.MatchString(text):
			res.Start = true
			inBlock = true
			line.InBlock = true
			line.Start = true
		case inBlock && endRe.MatchString(text):
			inBlock = false
			res.End = true
			line.InBlock = true
			line.End = true
		case inBlock:
			line.InBlock = true
			classify(&line)
		}

		res.Lines = append(res.Lines, line)
	}

	return res
}

func classify(line *Line) {
	m := entryRe.FindStringSubmatch(line.Raw)
	if m == nil || m[2] == "" {
		line.Invalid = true
		return
	}
	line.Entry = &Entry{Key: m[1], Value: m[2]}
}

// Err reports why the result holds no complete header, or nil when it does.
func (r *Result) Err() error {
	if r.End {
		return nil
	}
	if !r.Start {
		return &ParseError{Cause: ErrNoHeader}
	}
	for _, l := range r.Lines {
		if l.Start {
			return &ParseError{Line: l.Number, Cause: ErrUnterminatedHeader}
		}
	}
	return &ParseError{Cause: ErrUnterminatedHeader}
}

// Header returns the lines of the block, markers included.
// It returns nil unless a complete block was found.
func (r *Result) Header() []Line {
	if !r.End {
		return nil
	}
	var out []Line
	for _, l := range r.Lines {
		if l.InBlock {
			out = append(out, l)
		}
		if l.End {
			break
		}
	}
	return out
}

// Entries returns the directives of the block in source order.
func (r *Result) Entries() []Entry {
	var out []Entry
	for _, l := range r.Header() {
		if l.Entry != nil {
			out = append(out, *l.Entry)
		}
	}
	return out
}
