// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err: &Error{
				Type:    ErrRevoked,
				Message: "token refresh failed",
				Cause:   errors.New("invalid_grant"),
			},
			want: "revoked: token refresh failed: invalid_grant",
		},
		{
			name: "error without cause",
			err: &Error{
				Type:    ErrTransient,
				Message: "upstream unavailable",
			},
			want: "transient: upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying error")
	err := NewInternalError("test message", cause)
	assert.Same(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)

	assert.Nil(t, NewInternalError("test message", nil).Unwrap())
}

func TestNewErrorConstructors(t *testing.T) {
	t.Parallel()

	cause := errors.New("cause")

	tests := []struct {
		name        string
		constructor func(string, error) *Error
		wantType    string
	}{
		{"NewRevokedError", NewRevokedError, ErrRevoked},
		{"NewTransientError", NewTransientError, ErrTransient},
		{"NewFatalError", NewFatalError, ErrFatal},
		{"NewNotFoundError", NewNotFoundError, ErrNotFound},
		{"NewInvalidArgumentError", NewInvalidArgumentError, ErrInvalidArgument},
		{"NewInternalError", NewInternalError, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.constructor("test message", cause)
			assert.Equal(t, tt.wantType, err.Type)
			assert.Equal(t, "test message", err.Message)
			assert.Same(t, cause, err.Cause)
		})
	}
}

func TestErrorTypeCheckers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		checker func(error) bool
		want    bool
	}{
		{"IsRevoked with matching error", NewRevokedError("x", nil), IsRevoked, true},
		{"IsRevoked with transient error", NewTransientError("x", nil), IsRevoked, false},
		{"IsRevoked with wrapped error", fmt.Errorf("calling api: %w", NewRevokedError("x", nil)), IsRevoked, true},
		{"IsRevoked with plain error", errors.New("invalid_grant"), IsRevoked, false},
		{"IsRevoked with nil", nil, IsRevoked, false},
		{"IsTransient with matching error", NewTransientError("x", nil), IsTransient, true},
		{"IsFatal with matching error", NewFatalError("x", nil), IsFatal, true},
		{"IsFatal with revoked error", NewRevokedError("x", nil), IsFatal, false},
		{"IsNotFound with matching error", NewNotFoundError("x", nil), IsNotFound, true},
		{"IsInvalidArgument with matching error", NewInvalidArgumentError("x", nil), IsInvalidArgument, true},
		{"IsInternal with matching error", NewInternalError("x", nil), IsInternal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.checker(tt.err))
		})
	}
}

func TestTypeOf_OutermostWins(t *testing.T) {
	t.Parallel()

	inner := NewTransientError("connection reset", nil)
	outer := NewRevokedError("refresh rejected", inner)
	assert.Equal(t, ErrRevoked, TypeOf(outer))
	assert.Equal(t, "", TypeOf(errors.New("plain")))
}
