// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/stacklok/glassgate/pkg/logger"
)

// MemoryStore implements Store with an in-memory map.
// It is suitable for development and tests; records do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Credential
	locks   *keyLocks
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Credential),
		locks:   newKeyLocks(),
	}
}

// Get returns a copy of the credential for userID.
func (s *MemoryStore) Get(_ context.Context, userID string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.records[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	return cred.clone(), nil
}

// Put stores a copy of cred under userID.
func (s *MemoryStore) Put(_ context.Context, userID string, cred *Credential) error {
	if cred == nil {
		return fmt.Errorf("credential for %s is nil", userID)
	}
	unlock := s.locks.lock(userID)
	defer unlock()

	s.set(userID, cred)
	logger.Debugw("stored credential", "user_id", userID, "backend", "memory")
	return nil
}

// Update applies fn to the current credential while holding the key lock.
func (s *MemoryStore) Update(ctx context.Context, userID string, fn UpdateFunc) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	current, err := s.Get(ctx, userID)
	if err != nil {
		current = nil
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	s.set(userID, next)
	return nil
}

// Delete removes the credential for userID if present.
func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	s.mu.Lock()
	delete(s.records, userID)
	s.mu.Unlock()
	logger.Debugw("deleted credential", "user_id", userID, "backend", "memory")
	return nil
}

// ListKeys returns a sorted snapshot of the stored user IDs.
func (s *MemoryStore) ListKeys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	slices.Sort(keys)
	return keys, nil
}

// Close is a no-op.
func (*MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) set(userID string, cred *Credential) {
	s.mu.Lock()
	s.records[userID] = cred.clone()
	s.mu.Unlock()
}
