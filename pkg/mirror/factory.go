// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/stacklok/glassgate/pkg/config"
	"github.com/stacklok/glassgate/pkg/credentials"
	glerrors "github.com/stacklok/glassgate/pkg/errors"
)

// Factory builds per-user clients from stored credentials. Tokens refreshed
// while a client is in use are written back to the store.
type Factory struct {
	store      credentials.Store
	oauth      *oauth2.Config
	baseURL    string
	baseClient *http.Client
	clientOpts []HTTPClientOption
}

var _ ClientFactory = (*Factory)(nil)

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithBaseHTTPClient sets the transport under the OAuth2 layer. It is also
// used for token refreshes.
func WithBaseHTTPClient(client *http.Client) FactoryOption {
	return func(f *Factory) {
		f.baseClient = client
	}
}

// WithClientOptions passes opts to every client built by the factory.
func WithClientOptions(opts ...HTTPClientOption) FactoryOption {
	return func(f *Factory) {
		f.clientOpts = append(f.clientOpts, opts...)
	}
}

// NewFactory creates a Factory. oauthCfg is the provider configuration used
// to refresh tokens.
func NewFactory(store credentials.Store, oauthCfg *oauth2.Config, cfg config.MirrorConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		store:   store,
		oauth:   oauthCfg,
		baseURL: cfg.BaseURL,
		clientOpts: []HTTPClientOption{
			WithTimeout(cfg.Timeout),
			WithMaxRetries(cfg.MaxRetries),
		},
	}
	if f.baseURL == "" {
		f.baseURL = DefaultBaseURL
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ForUser returns a client acting as userID. A user without a stored
// credential yields a not_found error.
func (f *Factory) ForUser(ctx context.Context, userID string) (Client, error) {
	cred, err := f.store.Get(ctx, userID)
	if errors.Is(err, credentials.ErrNotFound) {
		return nil, glerrors.NewNotFoundError("no credential stored for user", err)
	}
	if err != nil {
		return nil, glerrors.NewInternalError("failed to load credential", err)
	}

	if f.baseClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.baseClient)
	}
	ts := credentials.TokenSource(ctx, f.oauth, f.store, userID, cred)

	client, err := NewHTTPClient(f.baseURL, oauth2.NewClient(ctx, ts), f.clientOpts...)
	if err != nil {
		return nil, glerrors.NewInternalError("failed to build mirror client", err)
	}
	return client, nil
}
