// SPDX-License-Identifier: MPL-2.0

// Package cmd implements the userpack command line.
//
// Every command receives an App, the composition root holding the config
// provider and the link resolver factory. Commands report failures as
// ExitError values so main can pick the process exit code.
package cmd
