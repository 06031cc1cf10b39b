// SPDX-License-Identifier: MPL-2.0

// Package testutil provides fixtures shared by package tests: project trees
// on disk or in memory, and a link resolver that never touches the network.
package testutil
