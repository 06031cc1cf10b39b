// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"errors"
	"fmt"
)

// ErrCannotResolve is the sentinel wrapped by every ResolutionError.
var ErrCannotResolve = errors.New("cannot resolve dependency link")

type (
	// ResolutionError is returned when neither the local cache nor the CDN
	// yields a bundle for the requested dependency.
	ResolutionError struct {
		Name    string
		Version string
		// Cause is the last underlying failure, if any (e.g. a timeout).
		Cause error
	}

	// NetworkError is returned when the CDN listing cannot be fetched or decoded.
	NetworkError struct {
		URL   string
		Cause error
	}

	// FilesystemError is returned when the local dependency cache cannot be read.
	FilesystemError struct {
		Path  string
		Cause error
	}
)

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("%v: %s@%s", ErrCannotResolve, e.Name, e.Version)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is reports ErrCannotResolve as a match for errors.Is.
func (e *ResolutionError) Is(target error) bool { return target == ErrCannotResolve }

// Unwrap returns the underlying cause.
func (e *ResolutionError) Unwrap() error { return e.Cause }

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *NetworkError) Unwrap() error { return e.Cause }

// Error implements the error interface.
func (e *FilesystemError) Error() string {
	return fmt.Sprintf("reading dependency cache %s: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *FilesystemError) Unwrap() error { return e.Cause }
