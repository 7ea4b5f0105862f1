// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"
	"fmt"

	"github.com/stacklok/glassgate/pkg/config"
	"github.com/stacklok/glassgate/pkg/logger"
)

// NewStore builds the store selected by cfg.Type and returns it ready for use.
func NewStore(ctx context.Context, cfg config.CredentialsConfig) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Type {
	case config.StoreMemory:
		store = NewMemoryStore()
	case config.StoreSQLite:
		store, err = OpenSQLite(ctx, cfg.SQLite.Path)
	case config.StorePostgres:
		store, err = OpenPostgres(ctx, cfg.Postgres.DSN)
	case config.StoreRedis:
		store, err = NewRedisStore(ctx, RedisConfig{
			Addr:      cfg.Redis.Addr,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown credential store type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s credential store: %w", cfg.Type, err)
	}

	logger.Infow("credential store ready", "backend", cfg.Type)
	return store, nil
}

// Pinger is implemented by stores with a remote backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health pings the backend when it supports it.
func Health(ctx context.Context, store Store) error {
	if p, ok := store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
