// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package credentials stores OAuth2 token material keyed by user ID.
//
// Every backend implements [Store]. Writes to the same user ID are serialized;
// writes to different user IDs proceed independently. ListKeys returns a
// snapshot and is safe to call while writes are in flight.
package credentials

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=credentials.go Store

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotFound is returned when no credential exists for a user ID.
var ErrNotFound = errors.New("credential not found")

// Credential is one user's OAuth2 grant.
type Credential struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	// ExpirationTimeMillis is an absolute epoch timestamp; zero means unknown.
	ExpirationTimeMillis int64 `json:"expiration_time_millis,omitempty"`
}

// UpdateFunc receives the current credential (nil when absent) and returns
// the credential to store. Returning nil leaves the store untouched.
type UpdateFunc func(current *Credential) (*Credential, error)

// Store is the credential record store.
type Store interface {
	// Get returns the credential for userID or an error wrapping ErrNotFound.
	Get(ctx context.Context, userID string) (*Credential, error)
	// Put creates or replaces the credential for userID.
	Put(ctx context.Context, userID string, cred *Credential) error
	// Update performs an atomic read-modify-write of the credential for userID.
	Update(ctx context.Context, userID string, fn UpdateFunc) error
	// Delete removes the credential for userID. Deleting an absent key is not an error.
	Delete(ctx context.Context, userID string) error
	// ListKeys returns the user IDs that currently have a credential.
	ListKeys(ctx context.Context) ([]string, error)
	// Close releases backend resources.
	Close() error
}

// FromToken converts an OAuth2 token into a credential.
func FromToken(tok *oauth2.Token) *Credential {
	cred := &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		cred.ExpirationTimeMillis = tok.Expiry.UnixMilli()
	}
	return cred
}

// Token converts the credential into an OAuth2 token.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.Expiry(),
	}
}

// Expiry returns the expiration time, or the zero time when unknown.
func (c *Credential) Expiry() time.Time {
	if c.ExpirationTimeMillis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.ExpirationTimeMillis)
}

// Merge returns c with the refresh token of prev kept when c carries none.
// Providers do not always reissue a refresh token on re-consent.
func (c *Credential) Merge(prev *Credential) *Credential {
	out := *c
	if out.RefreshToken == "" && prev != nil {
		out.RefreshToken = prev.RefreshToken
	}
	return &out
}

func (c *Credential) clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// keyLocks hands out one mutex per key. Entries are reference counted and
// dropped once no caller holds or waits for them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// lock acquires the mutex for key and returns its release function.
func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
