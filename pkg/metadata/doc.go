// SPDX-License-Identifier: MPL-2.0

// Package metadata reads and writes the userscript metadata block
// (`// ==UserScript==` ... `// ==/UserScript==`) that userscript hosts expect
// at the top of every distributed script.
//
// Parse splits source text into annotated lines without interpreting anything
// outside the block. Accumulator owns the header of a single build: it is
// seeded from the entry file, gains synthesized entries (framework requires,
// update URLs) and resolved external requires, and renders the final header
// text byte-for-byte in insertion order.
package metadata
