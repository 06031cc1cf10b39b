// SPDX-License-Identifier: MPL-2.0

// Package host holds the build pipelines a session can be registered on.
//
// esbuildhost bundles entry files with esbuild and emits every lifecycle
// phase itself. metafilehost replays the phases of a build that already ran,
// from the metafile it left behind.
package host
