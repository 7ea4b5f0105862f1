// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/glassgate/pkg/config"
)

// DefaultDedupTTL is how long a delivery key stays claimed.
const DefaultDedupTTL = 10 * time.Minute

// Deduper absorbs duplicate deliveries of the same notification.
type Deduper interface {
	// Claim returns true if key was not already claimed.
	Claim(ctx context.Context, key string) (bool, error)
	// Release drops a claim so a redelivery is processed again.
	Release(ctx context.Context, key string) error
}

// NewDeduper builds the deduper selected by cfg.DedupBackend. The redis
// backend connects with redisCfg. The returned close function releases the
// backend.
func NewDeduper(ctx context.Context, cfg config.NotifyConfig, redisCfg config.RedisConfig) (Deduper, func() error, error) {
	ttl := cfg.DedupTTL
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}

	switch cfg.DedupBackend {
	case "", "memory":
		return NewMemoryDeduper(ttl), func() error { return nil }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Username: redisCfg.Username,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedisDeduper(client, redisCfg.KeyPrefix, ttl), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown dedup backend %q", cfg.DedupBackend)
	}
}

// MemoryDeduper keeps claims in a TTL map.
type MemoryDeduper struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	claims map[string]time.Time
}

// NewMemoryDeduper creates a MemoryDeduper whose claims expire after ttl.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{
		ttl:    ttl,
		now:    time.Now,
		claims: make(map[string]time.Time),
	}
}

// Claim implements Deduper. Expired claims are swept on every call.
func (d *MemoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.claims {
		if !now.Before(exp) {
			delete(d.claims, k)
		}
	}

	if _, ok := d.claims[key]; ok {
		return false, nil
	}
	d.claims[key] = now.Add(d.ttl)
	return true, nil
}

// Release implements Deduper.
func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claims, key)
	return nil
}

// RedisDeduper claims keys with SETNX so replicas share one view.
type RedisDeduper struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisDeduper creates a RedisDeduper.
func NewRedisDeduper(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (d *RedisDeduper) key(k string) string {
	return d.keyPrefix + "notify:" + k
}

// Claim implements Deduper.
func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(key), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim delivery: %w", err)
	}
	return ok, nil
}

// Release implements Deduper.
func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to release delivery: %w", err)
	}
	return nil
}
