// SPDX-License-Identifier: MPL-2.0

// Package pipeline defines the contract between userpack and the build
// pipeline that hosts it.
//
// A host exposes three lifecycle extension points (entry resolution,
// module-request interception, asset finalization) through Hooks and a
// mutable mapping of output artifacts through Artifacts. Hosts embed Hub for
// subscription bookkeeping and fan-out.
package pipeline
