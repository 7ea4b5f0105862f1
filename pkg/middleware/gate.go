// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package middleware holds the HTTP middlewares that guard the application:
// the access gate in front of every route and the revocation recovery
// wrapper around application handlers.
package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/stacklok/glassgate/pkg/credentials"
	"github.com/stacklok/glassgate/pkg/logger"
	"github.com/stacklok/glassgate/pkg/session"
)

// Unauthenticated routes.
const (
	LoginPath  = "/oauth2callback"
	NotifyPath = "/notify"
)

// GateOptions configures AccessGate.
type GateOptions struct {
	// PublicPaths are served without a signed-in user, in addition to the
	// login and notify routes.
	PublicPaths []string
}

type userIDKey struct{}

// UserIDFromContext returns the user ID the gate admitted the request for.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// AccessGate runs ahead of every request. In order, it:
//
//  1. redirects plaintext requests for non-local hosts to https
//  2. passes the login, notify and configured public routes through
//  3. redirects to the login route unless the session has a user with a
//     stored, non-empty access token
//
// Admitted requests carry the session handle and the user ID in their
// context. A request without a Host is logged and passed through.
func AccessGate(sessions *session.Manager, store credentials.Store, opts GateOptions) func(http.Handler) http.Handler {
	public := append([]string{LoginPath, NotifyPath}, opts.PublicPaths...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Host == "" {
				logger.Warnw("request without host, skipping access checks", "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			if !isSecure(r) && !isLocalHost(r.Host) {
				target := "https://" + r.Host + r.URL.RequestURI()
				http.Redirect(w, r, target, http.StatusFound)
				return
			}

			if slices.Contains(public, r.URL.Path) {
				logger.Debugw("skipping auth check for public route", "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			sess, err := sessions.Load(w, r)
			if err != nil {
				logger.Errorw("failed to load session", "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			r = session.WithHandle(r, sess)

			userID := sess.UserID()
			if userID == "" {
				http.Redirect(w, r, LoginPath, http.StatusFound)
				return
			}

			cred, err := store.Get(r.Context(), userID)
			switch {
			case errors.Is(err, credentials.ErrNotFound):
				logger.Debugw("no stored credential for session user", "user_id", userID)
				http.Redirect(w, r, LoginPath, http.StatusFound)
				return
			case err != nil:
				logger.Errorw("failed to load credential", "user_id", userID, "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			case cred.AccessToken == "":
				http.Redirect(w, r, LoginPath, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// isSecure reports whether the client reached us over TLS, directly or
// through a proxy that sets X-Forwarded-Proto.
func isSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func isLocalHost(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
