// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authflow drives the OAuth2 authorization-code grant on the
// callback route and commits the resulting credential.
//
// A request to the callback is in one of three states:
//
//   - no context: a fresh state value and PKCE verifier are stored in the
//     session and the browser is sent to the consent URL
//   - error returned: the provider rejected the request; a plain-text
//     failure is shown and nothing is written
//   - code returned: the code is exchanged, the user ID is read from the ID
//     token, the credential is committed, the session is bound and the
//     browser is sent to the application root
//
// A code that arrives without a matching pending state is treated as no
// context and restarts the flow.
package authflow

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/stacklok/glassgate/pkg/credentials"
	"github.com/stacklok/glassgate/pkg/logger"
	"github.com/stacklok/glassgate/pkg/session"
)

// CallbackPath is the route the provider redirects back to.
const CallbackPath = "/oauth2callback"

// DefaultBootstrapTimeout bounds the new-user bootstrap hook.
const DefaultBootstrapTimeout = 30 * time.Second

const (
	providerErrorMessage = "Something went wrong during auth. Please check your log for details"
	exchangeErrorMessage = "Authorization failed. Please try again."
)

//go:generate mockgen -destination=mocks/mock_authflow.go -package=mocks -source=authflow.go Provider,IdentityExtractor,Bootstrapper

// Provider builds consent URLs and exchanges codes. *idp.Provider implements it.
type Provider interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
}

// IdentityExtractor returns the stable user ID carried by a token response.
type IdentityExtractor interface {
	UserID(ctx context.Context, tok *oauth2.Token) (string, error)
}

// Bootstrapper prepares a user who signed in for the first time.
type Bootstrapper interface {
	OnNewUser(ctx context.Context, userID string) error
}

// Handler serves the callback route.
type Handler struct {
	provider  Provider
	identity  IdentityExtractor
	store     credentials.Store
	sessions  *session.Manager
	bootstrap Bootstrapper

	bootstrapTimeout time.Duration
	wg               sync.WaitGroup
}

// Option configures a Handler.
type Option func(*Handler)

// WithBootstrapper runs b after the first successful sign-in of a user.
func WithBootstrapper(b Bootstrapper) Option {
	return func(h *Handler) {
		h.bootstrap = b
	}
}

// WithBootstrapTimeout bounds each bootstrap run.
func WithBootstrapTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.bootstrapTimeout = d
		}
	}
}

// NewHandler creates the callback handler.
func NewHandler(
	provider Provider,
	identity IdentityExtractor,
	store credentials.Store,
	sessions *session.Manager,
	opts ...Option,
) *Handler {
	h := &Handler{
		provider:         provider,
		identity:         identity,
		store:            store,
		sessions:         sessions,
		bootstrapTimeout: DefaultBootstrapTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP implements the callback state machine.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Load(w, r)
	if err != nil {
		logger.Errorw("failed to load session", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		logger.Errorw("provider returned an error during authorization",
			"error", providerErr,
			"error_description", q.Get("error_description"),
		)
		writePlain(w, http.StatusOK, providerErrorMessage)
		return
	}

	code := q.Get("code")
	if code == "" {
		logger.Info("no authorization context found, starting a new flow")
		h.startFlow(w, r, sess)
		return
	}

	state, verifier, err := sess.TakePendingAuth(r.Context())
	if err != nil {
		logger.Errorw("failed to read pending authorization", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(q.Get("state"))) != 1 {
		logger.Warn("authorization code arrived without a matching state, restarting the flow")
		h.startFlow(w, r, sess)
		return
	}

	h.complete(w, r, sess, code, verifier)
}

func (h *Handler) startFlow(w http.ResponseWriter, r *http.Request, sess *session.Handle) {
	state, err := randomState()
	if err != nil {
		logger.Errorw("failed to generate state", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	verifier := oauth2.GenerateVerifier()

	if err := sess.SetPendingAuth(r.Context(), state, verifier); err != nil {
		logger.Errorw("failed to store pending authorization", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.provider.AuthCodeURL(state, verifier), http.StatusFound)
}

// complete exchanges code and commits the credential. Nothing is written
// unless both the exchange and the identity extraction succeed.
func (h *Handler) complete(w http.ResponseWriter, r *http.Request, sess *session.Handle, code, verifier string) {
	ctx := r.Context()

	tok, err := h.provider.Exchange(ctx, code, verifier)
	if err != nil {
		logger.Errorw("authorization code exchange failed", "error", err)
		writePlain(w, http.StatusInternalServerError, exchangeErrorMessage)
		return
	}

	userID, err := h.identity.UserID(ctx, tok)
	if err != nil {
		logger.Errorw("failed to extract user identity", "error", err)
		writePlain(w, http.StatusInternalServerError, exchangeErrorMessage)
		return
	}

	isNew := false
	err = h.store.Update(ctx, userID, func(current *credentials.Credential) (*credentials.Credential, error) {
		isNew = current == nil
		return credentials.FromToken(tok).Merge(current), nil
	})
	if err != nil {
		logger.Errorw("failed to store credential", "user_id", userID, "error", err)
		writePlain(w, http.StatusInternalServerError, exchangeErrorMessage)
		return
	}

	if err := sess.SetUserID(ctx, userID); err != nil {
		logger.Errorw("failed to bind session", "user_id", userID, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	logger.Infow("user signed in", "user_id", userID, "new_user", isNew)

	if isNew && h.bootstrap != nil {
		h.runBootstrap(ctx, userID)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// runBootstrap runs the hook in the background on a context that outlives
// the request. Failures are logged only.
func (h *Handler) runBootstrap(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.bootstrapTimeout)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer cancel()
		if err := h.bootstrap.OnNewUser(ctx, userID); err != nil {
			logger.Warnw("new user bootstrap failed", "user_id", userID, "error", err)
		}
	}()
}

// Wait blocks until every bootstrap started by the handler has returned.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Signout deletes the signed-in user's credential, clears the session and
// redirects to the application root.
func (h *Handler) Signout(w http.ResponseWriter, r *http.Request) error {
	sess, err := h.sessions.Load(w, r)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if userID := sess.UserID(); userID != "" {
		if err := h.store.Delete(r.Context(), userID); err != nil {
			return fmt.Errorf("failed to delete credential: %w", err)
		}
		logger.Infow("user signed out", "user_id", userID)
	}
	if err := sess.Clear(r.Context()); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func writePlain(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, msg)
}
