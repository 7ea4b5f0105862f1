// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the typed error kinds shared across glassgate.
//
// Callers branch on the kind (revoked, transient, fatal, ...) rather than on
// concrete error types coming from the OAuth2 or HTTP layers.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrRevoked is returned when the identity provider has revoked the grant (invalid_grant)
	ErrRevoked = "revoked"

	// ErrTransient is returned for failures worth retrying (network, 5xx, 429)
	ErrTransient = "transient"

	// ErrFatal is returned for remote failures that will not succeed on retry
	ErrFatal = "fatal"

	// ErrNotFound is returned when a referenced record does not exist
	ErrNotFound = "not_found"

	// ErrInvalidArgument is returned when an invalid argument is provided
	ErrInvalidArgument = "invalid_argument"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewRevokedError creates a new revoked error
func NewRevokedError(message string, cause error) *Error {
	return NewError(ErrRevoked, message, cause)
}

// NewTransientError creates a new transient error
func NewTransientError(message string, cause error) *Error {
	return NewError(ErrTransient, message, cause)
}

// NewFatalError creates a new fatal error
func NewFatalError(message string, cause error) *Error {
	return NewError(ErrFatal, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string, cause error) *Error {
	return NewError(ErrInvalidArgument, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// TypeOf returns the type of the first *Error in err's chain, or "" if there is none.
func TypeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsRevoked checks if the error is a revoked error
func IsRevoked(err error) bool {
	return TypeOf(err) == ErrRevoked
}

// IsTransient checks if the error is a transient error
func IsTransient(err error) bool {
	return TypeOf(err) == ErrTransient
}

// IsFatal checks if the error is a fatal error
func IsFatal(err error) bool {
	return TypeOf(err) == ErrFatal
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrNotFound
}

// IsInvalidArgument checks if the error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return TypeOf(err) == ErrInvalidArgument
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return TypeOf(err) == ErrInternal
}
