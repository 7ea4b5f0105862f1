// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/glassgate/pkg/credentials"
	"github.com/stacklok/glassgate/pkg/logger"
	"github.com/stacklok/glassgate/pkg/middleware"
	"github.com/stacklok/glassgate/pkg/session"
	"github.com/stacklok/glassgate/pkg/web"
)

// DefaultRequestTimeout bounds the handling of a single request.
const DefaultRequestTimeout = 60 * time.Second

// Routes are the handlers the router dispatches to.
type Routes struct {
	Sessions *session.Manager
	Store    credentials.Store
	// Auth serves GET /oauth2callback.
	Auth http.Handler
	// Notify serves POST /notify.
	Notify http.Handler
	App    *web.Handler
}

type routerOptions struct {
	healthPath  string
	healthCheck func(context.Context) error
	middlewares []func(http.Handler) http.Handler
	timeout     time.Duration
}

// RouterOption configures NewRouter.
type RouterOption func(*routerOptions)

// WithHealthCheck serves check on path without authentication.
func WithHealthCheck(path string, check func(context.Context) error) RouterOption {
	return func(o *routerOptions) {
		o.healthPath = path
		o.healthCheck = check
	}
}

// WithMiddleware adds mw after the request-scoped chi middlewares and
// before the access gate.
func WithMiddleware(mw ...func(http.Handler) http.Handler) RouterOption {
	return func(o *routerOptions) {
		o.middlewares = append(o.middlewares, mw...)
	}
}

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) RouterOption {
	return func(o *routerOptions) {
		o.timeout = d
	}
}

// NewRouter assembles the application router. The access gate runs in
// front of every route; the callback, notification and health routes are
// on its allow list.
func NewRouter(routes Routes, opts ...RouterOption) http.Handler {
	o := &routerOptions{timeout: DefaultRequestTimeout}
	for _, opt := range opts {
		opt(o)
	}

	var public []string
	if o.healthCheck != nil {
		public = append(public, o.healthPath)
	}

	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
	)
	r.Use(o.middlewares...)
	r.Use(
		chimw.Timeout(o.timeout),
		middleware.AccessGate(routes.Sessions, routes.Store, middleware.GateOptions{PublicPaths: public}),
	)

	r.Method(http.MethodGet, middleware.LoginPath, routes.Auth)
	r.Method(http.MethodPost, middleware.NotifyPath, routes.Notify)
	if o.healthCheck != nil {
		r.Get(o.healthPath, healthHandler(o.healthCheck))
	}
	routes.App.Register(r)

	return r
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := check(r.Context()); err != nil {
			logger.Warnw("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unhealthy"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	}
}
