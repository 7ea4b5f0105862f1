// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authflow_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/oauth2"

	"github.com/stacklok/glassgate/pkg/authflow"
	"github.com/stacklok/glassgate/pkg/authflow/mocks"
	"github.com/stacklok/glassgate/pkg/credentials"
	credmocks "github.com/stacklok/glassgate/pkg/credentials/mocks"
	"github.com/stacklok/glassgate/pkg/session"
)

const cookieName = "sid"

type harness struct {
	provider  *mocks.MockProvider
	identity  *mocks.MockIdentityExtractor
	bootstrap *mocks.MockBootstrapper
	store     *credentials.MemoryStore
	sessions  session.Store
	handler   *authflow.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	h := &harness{
		provider:  mocks.NewMockProvider(ctrl),
		identity:  mocks.NewMockIdentityExtractor(ctrl),
		bootstrap: mocks.NewMockBootstrapper(ctrl),
		store:     credentials.NewMemoryStore(),
		sessions:  session.NewMemoryStore(time.Hour),
	}
	t.Cleanup(func() { _ = h.sessions.Close() })

	manager := session.NewManager(h.sessions, session.CookieOptions{Name: cookieName})
	h.handler = authflow.NewHandler(h.provider, h.identity, h.store, manager,
		authflow.WithBootstrapper(h.bootstrap),
		authflow.WithBootstrapTimeout(5*time.Second),
	)
	return h
}

func (h *harness) do(target string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", cookieName)
	return nil
}

// startFlow performs the no-context step and returns the session cookie and
// the state and verifier handed to the provider.
func (h *harness) startFlow(t *testing.T) (cookie *http.Cookie, state, verifier string) {
	t.Helper()

	h.provider.EXPECT().AuthCodeURL(gomock.Any(), gomock.Any()).DoAndReturn(
		func(s, v string) string {
			state, verifier = s, v
			return "https://auth.example.com/authorize?state=" + url.QueryEscape(s)
		})

	rec := h.do(authflow.CallbackPath, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://auth.example.com/authorize?state="+url.QueryEscape(state), rec.Header().Get("Location"))
	return sessionCookie(t, rec), state, verifier
}

func callbackURL(code, state string) string {
	q := url.Values{"code": {code}, "state": {state}}
	return authflow.CallbackPath + "?" + q.Encode()
}

func tokenFor(access, refresh string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       time.Now().Add(time.Hour),
	}
}

func TestHandler_NoContextRedirectsToConsent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cookie, state, verifier := h.startFlow(t)

	assert.NotEmpty(t, state)
	assert.GreaterOrEqual(t, len(verifier), 43)

	b, err := h.sessions.Get(t.Context(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, state, b.State)
	assert.Equal(t, verifier, b.Verifier)
	assert.Empty(t, b.UserID)

	keys, err := h.store.ListKeys(t.Context())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestHandler_CodeReturnedCommitsCredential(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cookie, state, verifier := h.startFlow(t)

	tok := tokenFor("T1", "R1")
	bootstrapped := make(chan string, 1)
	h.provider.EXPECT().Exchange(gomock.Any(), "abc123", verifier).Return(tok, nil)
	h.identity.EXPECT().UserID(gomock.Any(), tok).Return("u1", nil)
	h.bootstrap.EXPECT().OnNewUser(gomock.Any(), "u1").DoAndReturn(func(ctx context.Context, userID string) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		bootstrapped <- userID
		return nil
	})

	rec := h.do(callbackURL("abc123", state), cookie)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	cred, err := h.store.Get(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "T1", cred.AccessToken)
	assert.Equal(t, "R1", cred.RefreshToken)
	assert.Equal(t, tok.Expiry.UnixMilli(), cred.ExpirationTimeMillis)

	b, err := h.sessions.Get(t.Context(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "u1", b.UserID)
	assert.Empty(t, b.State, "pending state is consumed")

	h.handler.Wait()
	assert.Equal(t, "u1", <-bootstrapped)
}

func TestHandler_ReturningUserKeepsRefreshToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.store.Put(t.Context(), "u1", &credentials.Credential{AccessToken: "T0", RefreshToken: "R0"}))

	cookie, state, verifier := h.startFlow(t)
	tok := tokenFor("T1", "")
	h.provider.EXPECT().Exchange(gomock.Any(), "abc123", verifier).Return(tok, nil)
	h.identity.EXPECT().UserID(gomock.Any(), tok).Return("u1", nil)
	// no bootstrap for a known user

	rec := h.do(callbackURL("abc123", state), cookie)
	require.Equal(t, http.StatusFound, rec.Code)
	h.handler.Wait()

	cred, err := h.store.Get(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "T1", cred.AccessToken)
	assert.Equal(t, "R0", cred.RefreshToken)
}

func TestHandler_ProviderErrorIsTerminal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := h.do(authflow.CallbackPath+"?error=access_denied", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "Something went wrong during auth")

	keys, err := h.store.ListKeys(t.Context())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestHandler_FailuresWriteNothing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(h *harness, verifier string)
	}{
		{
			name: "exchange fails",
			setup: func(h *harness, verifier string) {
				h.provider.EXPECT().Exchange(gomock.Any(), "abc123", verifier).
					Return(nil, &oauth2.RetrieveError{ErrorCode: "invalid_grant"})
			},
		},
		{
			name: "identity extraction fails",
			setup: func(h *harness, verifier string) {
				tok := tokenFor("T1", "R1")
				h.provider.EXPECT().Exchange(gomock.Any(), "abc123", verifier).Return(tok, nil)
				h.identity.EXPECT().UserID(gomock.Any(), tok).Return("", errors.New("bad id_token"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			cookie, state, verifier := h.startFlow(t)
			tt.setup(h, verifier)

			rec := h.do(callbackURL("abc123", state), cookie)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

			keys, err := h.store.ListKeys(t.Context())
			require.NoError(t, err)
			assert.Empty(t, keys)

			b, err := h.sessions.Get(t.Context(), cookie.Value)
			require.NoError(t, err)
			assert.Empty(t, b.UserID)
		})
	}
}

func TestHandler_StateMismatchRestartsFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cookie, _, _ := h.startFlow(t)

	// a second AuthCodeURL call proves the flow restarted; Exchange is never expected
	h.provider.EXPECT().AuthCodeURL(gomock.Any(), gomock.Any()).Return("https://auth.example.com/authorize")

	rec := h.do(callbackURL("abc123", "forged"), cookie)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://auth.example.com/authorize", rec.Header().Get("Location"))

	keys, err := h.store.ListKeys(t.Context())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestHandler_CodeWithoutSessionRestartsFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.provider.EXPECT().AuthCodeURL(gomock.Any(), gomock.Any()).Return("https://auth.example.com/authorize")

	rec := h.do(callbackURL("abc123", "whatever"), nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://auth.example.com/authorize", rec.Header().Get("Location"))
}

func TestHandler_BootstrapFailureIsOnlyLogged(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cookie, state, verifier := h.startFlow(t)

	tok := tokenFor("T1", "R1")
	h.provider.EXPECT().Exchange(gomock.Any(), "abc123", verifier).Return(tok, nil)
	h.identity.EXPECT().UserID(gomock.Any(), tok).Return("u1", nil)
	h.bootstrap.EXPECT().OnNewUser(gomock.Any(), "u1").Return(errors.New("subscription rejected"))

	rec := h.do(callbackURL("abc123", state), cookie)
	assert.Equal(t, http.StatusFound, rec.Code)
	h.handler.Wait()

	_, err := h.store.Get(t.Context(), "u1")
	assert.NoError(t, err)
}

func TestHandler_StoreFailureIsGenericError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	identity := mocks.NewMockIdentityExtractor(ctrl)
	store := credmocks.NewMockStore(ctrl)
	sessions := session.NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = sessions.Close() })

	handler := authflow.NewHandler(provider, identity, store, session.NewManager(sessions, session.CookieOptions{Name: cookieName}))

	var state, verifier string
	provider.EXPECT().AuthCodeURL(gomock.Any(), gomock.Any()).DoAndReturn(func(s, v string) string {
		state, verifier = s, v
		return "https://auth.example.com/authorize"
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, authflow.CallbackPath, nil))
	cookie := sessionCookie(t, rec)

	tok := tokenFor("T1", "R1")
	provider.EXPECT().Exchange(gomock.Any(), "abc123", verifier).Return(tok, nil)
	identity.EXPECT().UserID(gomock.Any(), tok).Return("u1", nil)
	store.EXPECT().Update(gomock.Any(), "u1", gomock.Any()).Return(errors.New("database is locked"))

	req := httptest.NewRequest(http.MethodGet, callbackURL("abc123", state), nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	b, err := sessions.Get(t.Context(), cookie.Value)
	require.NoError(t, err)
	assert.Empty(t, b.UserID)
}

func TestHandler_Signout(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.store.Put(t.Context(), "u1", &credentials.Credential{AccessToken: "T1"}))
	require.NoError(t, h.sessions.Save(t.Context(), "existing", &session.Binding{UserID: "u1"}))

	req := httptest.NewRequest(http.MethodPost, "/signout", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "existing"})
	rec := httptest.NewRecorder()

	require.NoError(t, h.handler.Signout(rec, req))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	_, err := h.store.Get(t.Context(), "u1")
	assert.ErrorIs(t, err, credentials.ErrNotFound)
	_, err = h.sessions.Get(t.Context(), "existing")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, -1, sessionCookie(t, rec).MaxAge)
}
