// SPDX-License-Identifier: MPL-2.0

// Package resolver turns a dependency (name, version, build mode) into a CDN
// URL of the dependency's UMD bundle.
//
// Resolution is local first: the installed package in the local dependency
// cache (node_modules) is probed across a fixed, ranked list of layouts and
// the first layout holding a recognizable bundle wins. Only when every layout
// is exhausted does the resolver ask the CDN's directory-listing endpoint.
//
// Errors are typed so callers can tell them apart with errors.As:
//   - ResolutionError: nothing matched locally or remotely (also timeouts)
//   - NetworkError: the CDN could not be reached or answered garbage
//   - FilesystemError: the local cache exists but cannot be read
package resolver
