// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/invowk/userpack/pkg/types"
)

var (
	// minMarker identifies minified production bundles.
	minMarker = regexp.MustCompile(`\.min\.`)
	jsFile    = regexp.MustCompile(`\.js$`)
)

// bundles holds the candidate files of one directory split by variant.
type bundles struct {
	dev  []string
	prod []string
}

// hasMinified reports whether any name carries the minified marker.
// Directories without one are not treated as UMD bundle directories.
func hasMinified(names []string) bool {
	return slices.ContainsFunc(names, func(n string) bool {
		return minMarker.MatchString(path.Base(n))
	})
}

// classify splits the .js files of names into dev and prod buckets.
func classify(names []string) bundles {
	var b bundles
	for _, n := range names {
		file := path.Base(n)
		if !jsFile.MatchString(file) {
			continue
		}
		if minMarker.MatchString(file) {
			b.prod = append(b.prod, n)
		} else {
			b.dev = append(b.dev, n)
		}
	}
	return b
}

// pick returns the bundle for mode, or "" when the bucket is empty.
//
// Ties are broken by: the variant keyword ("development"/"production") in the
// file name, then a name starting with the package's base name, then the
// shortest name, then lexical order.
func (b bundles) pick(pkg string, mode types.Mode) string {
	candidates, keyword := b.prod, "production"
	if mode.IsDev() {
		candidates, keyword = b.dev, "development"
	}
	if len(candidates) == 0 {
		return ""
	}

	base := path.Base(pkg)
	score := func(name string) int {
		file := path.Base(name)
		s := 0
		if strings.Contains(file, keyword) {
			s += 2
		}
		if strings.HasPrefix(file, base+".") {
			s++
		}
		return s
	}

	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, c string) int {
		if d := score(c) - score(a); d != 0 {
			return d
		}
		if d := len(path.Base(a)) - len(path.Base(c)); d != 0 {
			return d
		}
		return strings.Compare(a, c)
	})
	return sorted[0]
}
