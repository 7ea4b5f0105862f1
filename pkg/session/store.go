// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session binds a browser session to a signed-in user.
//
// A session is identified by an opaque cookie value and holds a small
// [Binding]: the user ID, a single-use flash message and the pending
// authorization state of an in-flight OAuth2 redirect. Nothing in this
// package performs network calls other than to its own backing store.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a session ID is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Binding is the state attached to one session.
type Binding struct {
	UserID string `json:"user_id,omitempty"`
	Flash  string `json:"flash,omitempty"`

	// State and Verifier belong to the authorization redirect in flight.
	State    string `json:"state,omitempty"`
	Verifier string `json:"verifier,omitempty"`
}

// Store persists bindings by session ID.
type Store interface {
	Get(ctx context.Context, id string) (*Binding, error)
	Save(ctx context.Context, id string, b *Binding) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// GenerateID returns a random session ID with 256 bits of entropy.
func GenerateID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
