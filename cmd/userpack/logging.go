// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"io"

	"github.com/charmbracelet/log"
)

const logPrefix = "userpack"

// newLogger creates the terminal log handler. Build and resolver logs go
// through slog with it as the handler.
func newLogger(w io.Writer, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Prefix: logPrefix,
		Level:  level,
	})
}
