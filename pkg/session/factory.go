// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/glassgate/pkg/config"
)

// NewStore builds the session store selected by cfg.Type.
func NewStore(ctx context.Context, cfg config.SessionConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.TTL), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown session store type %q", cfg.Type)
	}
}

// NewManagerFromConfig builds the store and the manager in one step.
func NewManagerFromConfig(ctx context.Context, cfg config.SessionConfig) (*Manager, Store, error) {
	store, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return NewManager(store, CookieOptions{
		Name:   cfg.CookieName,
		Secure: cfg.Secure,
		MaxAge: cfg.TTL,
	}), store, nil
}
