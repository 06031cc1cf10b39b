// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/invowk/userpack/internal/config"
	"github.com/invowk/userpack/internal/resolver"
	"github.com/invowk/userpack/pkg/types"
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCodeFor maps a command error to the process exit code.
func exitCodeFor(err error) types.ExitCode {
	var exitErr *ExitError
	switch {
	case err == nil:
		return types.ExitOK
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, resolver.ErrCannotResolve):
		return types.ExitResolution
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, types.ErrInvalidMode):
		return types.ExitUsage
	default:
		return types.ExitFailure
	}
}
