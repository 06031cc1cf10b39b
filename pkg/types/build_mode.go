// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
)

const (
	// ModeDevelopment selects readable (non-minified) dependency bundles.
	ModeDevelopment Mode = "development"
	// ModeProduction selects minified dependency bundles.
	ModeProduction Mode = "production"
)

// ErrInvalidMode is the sentinel error wrapped by InvalidModeError.
var ErrInvalidMode = errors.New("invalid build mode")

type (
	// Mode is the build mode requested by the pipeline.
	// The zero value is treated as production by IsDev.
	Mode string

	// InvalidModeError is returned when a Mode value is not recognized.
	InvalidModeError struct {
		Value Mode
	}
)

// Error implements the error interface.
func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("invalid build mode %q (must be %q or %q)", e.Value, ModeDevelopment, ModeProduction)
}

// Unwrap returns ErrInvalidMode for errors.Is() compatibility.
func (e *InvalidModeError) Unwrap() error { return ErrInvalidMode }

// Validate returns an error if the Mode is not one of the known modes.
func (m Mode) Validate() error {
	switch m {
	case ModeDevelopment, ModeProduction:
		return nil
	default:
		return &InvalidModeError{Value: m}
	}
}

// IsDev reports whether readable development bundles should be selected.
func (m Mode) IsDev() bool { return m == ModeDevelopment }

// String returns the string representation of the Mode.
func (m Mode) String() string { return string(m) }
