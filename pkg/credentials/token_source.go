// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/stacklok/glassgate/pkg/logger"
)

// PersistingTokenSource wraps an oauth2.TokenSource and writes refreshed
// tokens back to the store, so a refresh performed while serving one request
// is visible to the next.
type PersistingTokenSource struct {
	source oauth2.TokenSource
	store  Store
	userID string
	ctx    context.Context

	mu              sync.Mutex
	lastAccessToken string
}

// TokenSource returns a token source for cred that refreshes through cfg and
// persists every new access token for userID.
func TokenSource(ctx context.Context, cfg *oauth2.Config, store Store, userID string, cred *Credential) *PersistingTokenSource {
	tok := cred.Token()
	return &PersistingTokenSource{
		source:          oauth2.ReuseTokenSource(tok, cfg.TokenSource(ctx, tok)),
		store:           store,
		userID:          userID,
		ctx:             context.WithoutCancel(ctx),
		lastAccessToken: tok.AccessToken,
	}
}

// Token returns a valid token, refreshing it if necessary.
// Refresh failures are returned unchanged so callers can classify them.
func (p *PersistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.source.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken == p.lastAccessToken {
		return tok, nil
	}

	refreshed := FromToken(tok)
	err = p.store.Update(p.ctx, p.userID, func(current *Credential) (*Credential, error) {
		if current == nil {
			// signed out while the request was in flight
			return nil, nil
		}
		return refreshed.Merge(current), nil
	})
	if err != nil {
		logger.Warnw("failed to persist refreshed token", "user_id", p.userID, "error", err)
	} else {
		logger.Debugw("persisted refreshed token", "user_id", p.userID)
	}
	p.lastAccessToken = tok.AccessToken

	return tok, nil
}
