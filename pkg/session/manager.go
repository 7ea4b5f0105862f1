// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/stacklok/glassgate/pkg/logger"
)

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Name     string
	Path     string
	Secure   bool
	SameSite http.SameSite
	// MaxAge is the cookie lifetime; it should match the store TTL.
	MaxAge time.Duration
}

func (o CookieOptions) normalize() CookieOptions {
	if o.Name == "" {
		o.Name = "glassgate_session"
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		// Lax keeps the cookie on the top-level redirect back from the provider.
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// Manager resolves sessions from requests.
type Manager struct {
	store  Store
	cookie CookieOptions
}

// NewManager creates a Manager over store.
func NewManager(store Store, cookie CookieOptions) *Manager {
	return &Manager{store: store, cookie: cookie.normalize()}
}

type handleKey struct{}

// Load returns the session handle for r. A handle already attached to the
// request context is reused. Otherwise the session cookie is resolved; when
// it is missing or unknown a new session ID is issued on w. New sessions are
// persisted lazily on their first mutation.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) (*Handle, error) {
	if h, ok := r.Context().Value(handleKey{}).(*Handle); ok {
		return h, nil
	}

	if c, err := r.Cookie(m.cookie.Name); err == nil && c.Value != "" {
		b, err := m.store.Get(r.Context(), c.Value)
		switch {
		case err == nil:
			return &Handle{id: c.Value, binding: *b, manager: m, w: w}, nil
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
		logger.Debugw("session cookie references unknown session, issuing a new one")
	}

	id, err := GenerateID()
	if err != nil {
		return nil, err
	}
	m.setCookie(w, id)
	return &Handle{id: id, manager: m, w: w}, nil
}

// WithHandle attaches h to r's context so later Load calls reuse it.
func WithHandle(r *http.Request, h *Handle) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), handleKey{}, h))
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie.Name,
		Value:    id,
		Path:     m.cookie.Path,
		MaxAge:   int(m.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: m.cookie.SameSite,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie.Name,
		Value:    "",
		Path:     m.cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: m.cookie.SameSite,
	})
}

// Handle is the explicit session-binding handle passed to components.
// Each mutation is written through to the store.
type Handle struct {
	id      string
	manager *Manager
	w       http.ResponseWriter

	mu      sync.Mutex
	binding Binding
}

// ID returns the session ID.
func (h *Handle) ID() string {
	return h.id
}

// UserID returns the bound user ID, or "" when no user is signed in.
func (h *Handle) UserID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.binding.UserID
}

// SetUserID binds userID to the session.
func (h *Handle) SetUserID(ctx context.Context, userID string) error {
	return h.mutate(ctx, func(b *Binding) { b.UserID = userID })
}

// Clear removes every value from the session and expires the cookie.
func (h *Handle) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.binding = Binding{}
	h.manager.clearCookie(h.w)
	return h.manager.store.Delete(ctx, h.id)
}

// SetFlash stores a message shown once on the next page.
func (h *Handle) SetFlash(ctx context.Context, msg string) error {
	return h.mutate(ctx, func(b *Binding) { b.Flash = msg })
}

// PopFlash returns and clears the flash message.
func (h *Handle) PopFlash(ctx context.Context) (string, error) {
	var msg string
	err := h.mutateIf(ctx, func(b *Binding) bool {
		msg = b.Flash
		b.Flash = ""
		return msg != ""
	})
	return msg, err
}

// SetPendingAuth records the state and PKCE verifier of an authorization redirect.
func (h *Handle) SetPendingAuth(ctx context.Context, state, verifier string) error {
	return h.mutate(ctx, func(b *Binding) {
		b.State = state
		b.Verifier = verifier
	})
}

// TakePendingAuth returns and clears the pending authorization, so each
// state value is accepted at most once.
func (h *Handle) TakePendingAuth(ctx context.Context) (state, verifier string, err error) {
	err = h.mutateIf(ctx, func(b *Binding) bool {
		state, verifier = b.State, b.Verifier
		b.State, b.Verifier = "", ""
		return state != "" || verifier != ""
	})
	return state, verifier, err
}

func (h *Handle) mutate(ctx context.Context, fn func(*Binding)) error {
	return h.mutateIf(ctx, func(b *Binding) bool {
		fn(b)
		return true
	})
}

// mutateIf applies fn and saves the binding when fn reports a change.
func (h *Handle) mutateIf(ctx context.Context, fn func(*Binding) bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !fn(&h.binding) {
		return nil
	}
	b := h.binding
	return h.manager.store.Save(ctx, h.id, &b)
}
