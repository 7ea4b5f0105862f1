// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	neturl "net/url"
	"slices"

	gerrors "github.com/stacklok/glassgate/pkg/errors"
)

// Error message templates for consistent error formatting
const (
	errInvalidURL       = "%s: invalid URL format: %w"
	errInvalidURLScheme = "%s: URL must use http or https"
	errRequired         = "%s is required"
	errOneOf            = "%s must be one of %v, got %q"
)

// Validate checks the configuration for missing or inconsistent values.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, validateURL("server.base_url", c.Server.BaseURL))

	if c.OAuth.ClientID == "" {
		errs = append(errs, fmt.Errorf(errRequired, "oauth.client_id"))
	}
	if c.OAuth.ClientSecret == "" {
		errs = append(errs, fmt.Errorf(errRequired, "oauth.client_secret"))
	}
	if c.OAuth.Issuer != "" {
		errs = append(errs, validateURL("oauth.issuer", c.OAuth.Issuer))
	} else {
		errs = append(errs,
			validateURL("oauth.auth_url", c.OAuth.AuthURL),
			validateURL("oauth.token_url", c.OAuth.TokenURL),
			validateURL("oauth.jwks_url", c.OAuth.JWKSURL),
		)
	}
	if !slices.Contains(c.OAuth.Scopes, "openid") {
		errs = append(errs, errors.New("oauth.scopes must include openid"))
	}

	errs = append(errs, c.validateCredentials())

	if !slices.Contains([]string{"memory", "redis"}, c.Session.Type) {
		errs = append(errs, fmt.Errorf(errOneOf, "session.type", []string{"memory", "redis"}, c.Session.Type))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, fmt.Errorf(errRequired, "session.cookie_name"))
	}

	errs = append(errs, validateURL("mirror.base_url", c.Mirror.BaseURL))

	if c.Notify.MaxLines <= 0 {
		errs = append(errs, errors.New("notify.max_lines must be positive"))
	}
	reactions := []string{ReactionEcho, ReactionCaption}
	if !slices.Contains(reactions, c.Notify.TimelineReaction) {
		errs = append(errs, fmt.Errorf(errOneOf, "notify.timeline_reaction", reactions, c.Notify.TimelineReaction))
	}
	if !slices.Contains([]string{"memory", "redis"}, c.Notify.DedupBackend) {
		errs = append(errs, fmt.Errorf(errOneOf, "notify.dedup_backend", []string{"memory", "redis"}, c.Notify.DedupBackend))
	}
	if c.Notify.RateLimit <= 0 || c.Notify.RateBurst <= 0 {
		errs = append(errs, errors.New("notify.rate_limit and notify.rate_burst must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return gerrors.NewInvalidArgumentError("invalid configuration", err)
	}
	return nil
}

func (c *Config) validateCredentials() error {
	switch c.Credentials.Type {
	case StoreMemory:
		return nil
	case StoreSQLite:
		if c.Credentials.SQLite.Path == "" {
			return fmt.Errorf(errRequired, "credentials.sqlite.path")
		}
	case StorePostgres:
		if c.Credentials.Postgres.DSN == "" {
			return fmt.Errorf(errRequired, "credentials.postgres.dsn")
		}
	case StoreRedis:
		if c.Credentials.Redis.Addr == "" {
			return fmt.Errorf(errRequired, "credentials.redis.addr")
		}
	default:
		valid := []string{StoreMemory, StoreSQLite, StorePostgres, StoreRedis}
		return fmt.Errorf(errOneOf, "credentials.type", valid, c.Credentials.Type)
	}
	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf(errRequired, field)
	}
	u, err := neturl.Parse(raw)
	if err != nil {
		return fmt.Errorf(errInvalidURL, field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf(errInvalidURLScheme, field)
	}
	return nil
}
