// Package operr defines the symbolic error kinds shared by repositories,
// services and the HTTP boundary. Services either propagate a kind
// unchanged or translate a low-level failure into one; the boundary maps
// each kind to a fixed status and a stable JSON shape.
package operr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced entity is absent from the store.
	ErrNotFound = errors.New("not found")

	// ErrInvalidResult indicates a query returned an unexpected shape,
	// e.g. more than one row for a unique key.
	ErrInvalidResult = errors.New("invalid result")

	// ErrForbidden covers authentication and authorization failures,
	// including locked accounts and malformed compile tokens.
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateKey indicates a unique-constraint violation on create.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrCompilerError indicates the build step failed or the target is
	// unsupported.
	ErrCompilerError = errors.New("compiler error")

	// ErrUnauthenticated indicates missing or invalid session credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ParameterError reports request parameters that are missing or invalid.
// It renders as a 400 with the offending field names.
type ParameterError struct {
	Missing bool
	Fields  []string
}

func (e *ParameterError) Error() string {
	if e.Missing {
		return fmt.Sprintf("missing required parameters: %v", e.Fields)
	}
	return fmt.Sprintf("invalid parameters: %v", e.Fields)
}

// MissingParameters builds a ParameterError for absent required fields.
func MissingParameters(fields ...string) error {
	return &ParameterError{Missing: true, Fields: fields}
}

// InvalidParameters builds a ParameterError for malformed fields.
func InvalidParameters(fields ...string) error {
	return &ParameterError{Fields: fields}
}
