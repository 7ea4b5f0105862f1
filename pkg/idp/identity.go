// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package idp

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	// ErrIdentityMissing is returned when the token response has no id_token.
	ErrIdentityMissing = errors.New("token response has no id_token")

	// ErrIdentityInvalid is returned when the id_token fails verification or
	// carries no subject.
	ErrIdentityInvalid = errors.New("id_token is invalid")
)

// IdentityExtractor resolves the stable user identifier from a token response.
type IdentityExtractor struct {
	verifier *oidc.IDTokenVerifier
}

// NewIdentityExtractor creates an extractor that verifies ID tokens with verifier.
func NewIdentityExtractor(verifier *oidc.IDTokenVerifier) *IdentityExtractor {
	return &IdentityExtractor{verifier: verifier}
}

// UserID verifies the id_token carried by tok and returns its subject.
func (e *IdentityExtractor) UserID(ctx context.Context, tok *oauth2.Token) (string, error) {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return "", ErrIdentityMissing
	}

	idToken, err := e.verifier.Verify(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIdentityInvalid, err)
	}
	if idToken.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrIdentityInvalid)
	}
	return idToken.Subject, nil
}
