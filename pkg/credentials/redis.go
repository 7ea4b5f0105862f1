// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/glassgate/pkg/logger"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// maxUpdateRetries bounds optimistic-lock retries in Update.
const maxUpdateRetries = 10

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces every key, e.g. "glassgate:".
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements Store on Redis. Each credential is a JSON string at
// <prefix>cred:<userID>; the set <prefix>cred:index lists the stored user IDs.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	locks     *keyLocks
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreWithClient creates a RedisStore with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		locks:     newKeyLocks(),
	}
}

func (s *RedisStore) recordKey(userID string) string {
	return s.keyPrefix + "cred:" + userID
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "cred:index"
}

// Get returns the credential for userID.
func (s *RedisStore) Get(ctx context.Context, userID string) (*Credential, error) {
	return s.get(ctx, s.client, userID)
}

func (s *RedisStore) get(ctx context.Context, c redis.Cmdable, userID string) (*Credential, error) {
	data, err := c.Get(ctx, s.recordKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

// Put writes the record and its index entry in one MULTI/EXEC.
func (s *RedisStore) Put(ctx context.Context, userID string, cred *Credential) error {
	if cred == nil {
		return fmt.Errorf("credential for %s is nil", userID)
	}
	unlock := s.locks.lock(userID)
	defer unlock()

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(userID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	logger.Debugw("stored credential", "user_id", userID, "backend", "redis")
	return nil
}

// Update uses WATCH on the record key so writers in other processes cannot
// interleave with the read-modify-write.
func (s *RedisStore) Update(ctx context.Context, userID string, fn UpdateFunc) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	key := s.recordKey(userID)
	txf := func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, userID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			current = nil
		}

		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal credential: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.indexKey(), userID)
			return nil
		})
		return err
	}

	for range maxUpdateRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			logger.Debugw("credential update raced, retrying", "user_id", userID)
			continue
		}
		return err
	}
	return fmt.Errorf("credential update for %s exceeded %d retries", userID, maxUpdateRetries)
}

// Delete removes the record and its index entry.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(userID))
		pipe.SRem(ctx, s.indexKey(), userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	logger.Debugw("deleted credential", "user_id", userID, "backend", "redis")
	return nil
}

// ListKeys returns the members of the index set, sorted.
func (s *RedisStore) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	slices.Sort(keys)
	return keys, nil
}

// Ping checks Redis connectivity (health check).
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
