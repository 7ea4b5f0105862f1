// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/glassgate/pkg/config"
)

func storeBackends(t *testing.T) map[string]Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	stores := map[string]Store{
		"memory": NewMemoryStore(time.Hour),
		"redis":  NewRedisStore(client, "test:", time.Hour),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			_, err := store.Get(ctx, "sid")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Save(ctx, "sid", &Binding{UserID: "u1", Flash: "hi"}))
			got, err := store.Get(ctx, "sid")
			require.NoError(t, err)
			assert.Equal(t, &Binding{UserID: "u1", Flash: "hi"}, got)

			require.NoError(t, store.Delete(ctx, "sid"))
			require.NoError(t, store.Delete(ctx, "sid"))
			_, err = store.Get(ctx, "sid")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(20*time.Millisecond, WithCleanupInterval(10*time.Millisecond))
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(t.Context(), "sid", &Binding{UserID: "u1"}))

	require.Eventually(t, func() bool {
		store.mu.RLock()
		defer store.mu.RUnlock()
		return len(store.sessions) == 0
	}, time.Second, 10*time.Millisecond)

	_, err := store.Get(t.Context(), "sid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_TTL(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "gg:", time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(t.Context(), "sid", &Binding{UserID: "u1"}))
	assert.Equal(t, time.Minute, mr.TTL("gg:session:sid"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(t.Context(), "sid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func newManager(t *testing.T) (*Manager, Store) {
	t.Helper()
	store := NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	return NewManager(store, CookieOptions{Name: "sid", MaxAge: time.Hour}), store
}

func cookieFrom(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestManager_LoadIssuesCookieForNewSession(t *testing.T) {
	t.Parallel()

	m, store := newManager(t)
	rec := httptest.NewRecorder()
	h, err := m.Load(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	c := cookieFrom(t, rec, "sid")
	require.NotNil(t, c)
	assert.Equal(t, h.ID(), c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Empty(t, h.UserID())

	// not persisted until first mutation
	_, err = store.Get(t.Context(), h.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_LoadResolvesExistingSession(t *testing.T) {
	t.Parallel()

	m, store := newManager(t)
	require.NoError(t, store.Save(t.Context(), "existing", &Binding{UserID: "u1"}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "existing"})
	rec := httptest.NewRecorder()

	h, err := m.Load(rec, req)
	require.NoError(t, err)
	assert.Equal(t, "existing", h.ID())
	assert.Equal(t, "u1", h.UserID())
	assert.Nil(t, cookieFrom(t, rec, "sid"), "no new cookie for a known session")
}

func TestManager_LoadReplacesUnknownSession(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "forged"})
	rec := httptest.NewRecorder()

	h, err := m.Load(rec, req)
	require.NoError(t, err)
	assert.NotEqual(t, "forged", h.ID())
	assert.Empty(t, h.UserID())
}

func TestManager_LoadReusesContextHandle(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	first, err := m.Load(rec, req)
	require.NoError(t, err)

	second, err := m.Load(rec, WithHandle(req, first))
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestHandle_Mutations(t *testing.T) {
	t.Parallel()

	m, store := newManager(t)
	ctx := context.Background()
	h, err := m.Load(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	require.NoError(t, h.SetUserID(ctx, "u1"))
	require.NoError(t, h.SetFlash(ctx, "Saved"))

	persisted, err := store.Get(ctx, h.ID())
	require.NoError(t, err)
	assert.Equal(t, "u1", persisted.UserID)
	assert.Equal(t, "Saved", persisted.Flash)

	msg, err := h.PopFlash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Saved", msg)

	msg, err = h.PopFlash(ctx)
	require.NoError(t, err)
	assert.Empty(t, msg, "flash is single use")

	persisted, err = store.Get(ctx, h.ID())
	require.NoError(t, err)
	assert.Empty(t, persisted.Flash)
}

func TestHandle_PendingAuthIsSingleUse(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t)
	ctx := context.Background()
	h, err := m.Load(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	require.NoError(t, h.SetPendingAuth(ctx, "state-1", "verifier-1"))

	state, verifier, err := h.TakePendingAuth(ctx)
	require.NoError(t, err)
	assert.Equal(t, "state-1", state)
	assert.Equal(t, "verifier-1", verifier)

	state, verifier, err = h.TakePendingAuth(ctx)
	require.NoError(t, err)
	assert.Empty(t, state)
	assert.Empty(t, verifier)
}

func TestHandle_Clear(t *testing.T) {
	t.Parallel()

	m, store := newManager(t)
	ctx := context.Background()
	h, err := m.Load(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, h.SetUserID(ctx, "u1"))

	rec := httptest.NewRecorder()
	h.w = rec
	require.NoError(t, h.Clear(ctx))

	assert.Empty(t, h.UserID())
	_, err = store.Get(ctx, h.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	c := cookieFrom(t, rec, "sid")
	require.NotNil(t, c)
	assert.Equal(t, -1, c.MaxAge)
}

func TestGenerateID(t *testing.T) {
	t.Parallel()

	a, err := GenerateID()
	require.NoError(t, err)
	b, err := GenerateID()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestNewManagerFromConfig(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	for _, cfg := range []config.SessionConfig{
		{Type: "memory", CookieName: "a", TTL: time.Hour},
		{Type: "redis", CookieName: "b", TTL: time.Hour, Redis: config.RedisConfig{Addr: mr.Addr()}},
	} {
		m, store, err := NewManagerFromConfig(t.Context(), cfg)
		require.NoError(t, err, cfg.Type)
		assert.Equal(t, cfg.CookieName, m.cookie.Name)
		require.NoError(t, store.Close())
	}

	_, _, err := NewManagerFromConfig(t.Context(), config.SessionConfig{Type: "cookie"})
	assert.ErrorContains(t, err, "unknown session store type")
}
