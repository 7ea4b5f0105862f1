// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/glassgate/pkg/authflow"
	"github.com/stacklok/glassgate/pkg/config"
	"github.com/stacklok/glassgate/pkg/credentials"
	"github.com/stacklok/glassgate/pkg/idp"
	"github.com/stacklok/glassgate/pkg/logger"
	"github.com/stacklok/glassgate/pkg/mirror"
	"github.com/stacklok/glassgate/pkg/notify"
	"github.com/stacklok/glassgate/pkg/session"
	"github.com/stacklok/glassgate/pkg/telemetry"
	"github.com/stacklok/glassgate/pkg/web"
)

// HealthPath is the unauthenticated health check route.
const HealthPath = "/healthz"

// Run builds every component from cfg and serves until ctx is cancelled.
// The credential store is built once here and shared by all components.
func Run(ctx context.Context, cfg *config.Config) error {
	store, err := credentials.NewStore(ctx, cfg.Credentials)
	if err != nil {
		return fmt.Errorf("failed to create credential store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnw("failed to close credential store", "error", err)
		}
	}()

	sessions, sessionStore, err := session.NewManagerFromConfig(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}
	defer func() {
		if err := sessionStore.Close(); err != nil {
			logger.Warnw("failed to close session store", "error", err)
		}
	}()

	provider, identity, err := idp.New(ctx, cfg.OAuth, cfg.RedirectURL())
	if err != nil {
		return fmt.Errorf("failed to create identity provider: %w", err)
	}

	var meterProvider metric.MeterProvider = otel.GetMeterProvider()
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		mp, handler, err := telemetry.NewMeterProvider(ctx, cfg.Metrics)
		if err != nil {
			return fmt.Errorf("failed to create meter provider: %w", err)
		}
		defer func() {
			if err := mp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warnw("failed to shut down meter provider", "error", err)
			}
		}()
		meterProvider, metricsHandler = mp, handler
	}

	clients := mirror.NewFactory(store, provider.OAuth2Config(), cfg.Mirror)

	auth := authflow.NewHandler(provider, identity, store, sessions,
		authflow.WithBootstrapper(mirror.NewBootstrapper(clients, cfg.NotifyURL(), "")),
	)
	defer auth.Wait()

	deduper, closeDeduper, err := notify.NewDeduper(ctx, cfg.Notify, cfg.Credentials.Redis)
	if err != nil {
		return fmt.Errorf("failed to create notification deduper: %w", err)
	}
	defer func() { _ = closeDeduper() }()

	notifier, err := notify.NewHandler(clients, cfg.Notify,
		notify.WithDeduper(deduper),
		notify.WithMeterProvider(meterProvider),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification handler: %w", err)
	}

	app := web.NewHandler(clients, store, sessions,
		web.WithSignout(auth.Signout),
		web.WithCallbackURL(cfg.NotifyURL()),
	)

	router := NewRouter(Routes{
		Sessions: sessions,
		Store:    store,
		Auth:     auth,
		Notify:   notifier,
		App:      app,
	},
		WithHealthCheck(HealthPath, func(ctx context.Context) error { return credentials.Health(ctx, store) }),
		WithMiddleware(telemetry.NewHTTPMiddleware(meterProvider)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return Serve(gctx, cfg.Server, router)
	})
	if metricsHandler != nil {
		metricsCfg := cfg.Server
		metricsCfg.Address = cfg.Metrics.Address
		g.Go(func() error {
			return Serve(gctx, metricsCfg, metricsHandler)
		})
	}
	return g.Wait()
}
