// SPDX-License-Identifier: MPL-2.0

// Package types defines small value types shared by the userpack packages:
// the build mode and process exit codes.
//
// This package is a leaf dependency: it imports only the standard library.
package types
