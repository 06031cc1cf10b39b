// SPDX-License-Identifier: MPL-2.0

// Package inject writes the finished userscript header into build output.
package inject
