// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package idp talks to the upstream OAuth2/OIDC identity provider: it builds
// the consent URL, exchanges authorization codes and extracts the stable
// user identifier from the returned ID token.
package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/stacklok/glassgate/pkg/config"
	"github.com/stacklok/glassgate/pkg/logger"
)

// DefaultExchangeTimeout bounds a code exchange when none is configured.
const DefaultExchangeTimeout = 10 * time.Second

// Provider builds consent URLs and exchanges authorization codes.
type Provider struct {
	config          *oauth2.Config
	httpClient      *http.Client
	exchangeTimeout time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the HTTP client used for token requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithExchangeTimeout sets the wall-clock limit of a code exchange.
func WithExchangeTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.exchangeTimeout = d
		}
	}
}

// NewProvider creates a Provider over cfg.
func NewProvider(cfg *oauth2.Config, opts ...Option) *Provider {
	p := &Provider{
		config:          cfg,
		exchangeTimeout: DefaultExchangeTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OAuth2Config returns the underlying client configuration. It is shared
// with the token sources that refresh stored credentials.
func (p *Provider) OAuth2Config() *oauth2.Config {
	return p.config
}

// HTTPContext returns ctx carrying the provider's HTTP client for the oauth2
// package to pick up.
func (p *Provider) HTTPContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// AuthCodeURL returns the consent URL. It always requests offline access and
// forces the approval prompt so a refresh token is issued on every consent.
func (p *Provider) AuthCodeURL(state, verifier string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)
}

// Exchange trades code for a token. Failures are classified with Classify.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(p.HTTPContext(ctx), p.exchangeTimeout)
	defer cancel()

	tok, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to exchange authorization code: %w", err))
	}

	logger.Debugw("authorization code exchange successful",
		"has_refresh_token", tok.RefreshToken != "",
		"expires_at", tok.Expiry.Format(time.RFC3339),
	)
	return tok, nil
}

// New builds the Provider and IdentityExtractor for cfg. With an issuer the
// endpoints and signing keys come from OIDC discovery; otherwise the
// configured auth, token and JWKS URLs are used directly.
func New(ctx context.Context, cfg config.OAuthConfig, redirectURL string, opts ...Option) (*Provider, *IdentityExtractor, error) {
	p := NewProvider(&oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       cfg.Scopes,
	}, append([]Option{WithExchangeTimeout(cfg.ExchangeTimeout)}, opts...)...)

	if p.httpClient != nil {
		ctx = oidc.ClientContext(ctx, p.httpClient)
	}

	if cfg.Issuer != "" {
		provider, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to discover OIDC endpoints: %w", err)
		}
		endpoint := provider.Endpoint()
		p.config.Endpoint = oauth2.Endpoint{
			AuthURL:   endpoint.AuthURL,
			TokenURL:  endpoint.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		}

		logger.Debugw("oidc provider discovered", "issuer", cfg.Issuer, "client_id", cfg.ClientID)
		return p, NewIdentityExtractor(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})), nil
	}

	if cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.JWKSURL == "" {
		return nil, nil, errors.New("auth_url, token_url and jwks_url are required without an issuer")
	}
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:   cfg.AuthURL,
		TokenURL:  cfg.TokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	keySet := oidc.NewRemoteKeySet(ctx, cfg.JWKSURL)
	verifier := oidc.NewVerifier("", keySet, &oidc.Config{
		ClientID:        cfg.ClientID,
		SkipIssuerCheck: true,
	})
	return p, NewIdentityExtractor(verifier), nil
}
