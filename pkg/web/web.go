// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package web serves the signed-in user's pages. Every route runs behind the
// access gate, so a user ID is always present in the request context.
package web

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/glassgate/pkg/credentials"
	glerrors "github.com/stacklok/glassgate/pkg/errors"
	"github.com/stacklok/glassgate/pkg/logger"
	"github.com/stacklok/glassgate/pkg/middleware"
	"github.com/stacklok/glassgate/pkg/mirror"
	"github.com/stacklok/glassgate/pkg/session"
)

const (
	// DefaultMaxBroadcastUsers is the largest user count a broadcast reaches.
	DefaultMaxBroadcastUsers = 10
	// DefaultBroadcastConcurrency bounds parallel inserts during a broadcast.
	DefaultBroadcastConcurrency = 4

	latestItems   = 3
	broadcastText = "Hello Everyone!"
)

// Handler serves the application routes.
type Handler struct {
	clients     mirror.ClientFactory
	store       credentials.Store
	sessions    *session.Manager
	signout     middleware.AppHandler
	callbackURL string

	maxBroadcast int
	concurrency  int
}

// Option configures a Handler.
type Option func(*Handler)

// WithSignout mounts fn on POST /signout.
func WithSignout(fn middleware.AppHandler) Option {
	return func(h *Handler) {
		h.signout = fn
	}
}

// WithCallbackURL sets the notification URL used by POST /subscriptions.
func WithCallbackURL(url string) Option {
	return func(h *Handler) {
		h.callbackURL = url
	}
}

// WithBroadcastLimits overrides the broadcast user cap and concurrency.
func WithBroadcastLimits(maxUsers, concurrency int) Option {
	return func(h *Handler) {
		h.maxBroadcast = maxUsers
		h.concurrency = concurrency
	}
}

// NewHandler creates a Handler.
func NewHandler(clients mirror.ClientFactory, store credentials.Store, sessions *session.Manager, opts ...Option) *Handler {
	h := &Handler{
		clients:      clients,
		store:        store,
		sessions:     sessions,
		maxBroadcast: DefaultMaxBroadcastUsers,
		concurrency:  DefaultBroadcastConcurrency,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.concurrency <= 0 {
		h.concurrency = 1
	}
	return h
}

// Register mounts the application routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Method(http.MethodGet, "/", middleware.Recover(h.index))
	r.Method(http.MethodPost, "/timeline", middleware.Recover(h.insertItem))
	r.Method(http.MethodPost, "/timeline/{id}/delete", middleware.Recover(h.deleteItem))
	r.Method(http.MethodPost, "/broadcast", middleware.Recover(h.broadcast))
	r.Method(http.MethodPost, "/subscriptions", middleware.Recover(h.subscribe))
	r.Method(http.MethodGet, "/attachment", middleware.Recover(h.attachment))
	if h.signout != nil {
		r.Method(http.MethodPost, "/signout", middleware.Recover(h.signout))
	}
}

// client returns the Mirror client of the user the gate admitted.
func (h *Handler) client(r *http.Request) (string, mirror.Client, error) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return "", nil, glerrors.NewRevokedError("request has no signed-in user", nil)
	}
	client, err := h.clients.ForUser(r.Context(), userID)
	if err != nil {
		if glerrors.IsNotFound(err) {
			return "", nil, glerrors.NewRevokedError("credential disappeared", err)
		}
		return "", nil, err
	}
	return userID, client, nil
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, msg string) error {
	sess, err := h.sessions.Load(w, r)
	if err != nil {
		return glerrors.NewInternalError("failed to load session", err)
	}
	if err := sess.SetFlash(r.Context(), msg); err != nil {
		return glerrors.NewInternalError("failed to set flash", err)
	}
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) error {
	userID, client, err := h.client(r)
	if err != nil {
		return err
	}

	sess, err := h.sessions.Load(w, r)
	if err != nil {
		return glerrors.NewInternalError("failed to load session", err)
	}
	flash, err := sess.PopFlash(r.Context())
	if err != nil {
		return glerrors.NewInternalError("failed to read flash", err)
	}

	list, err := client.ListTimeline(r.Context(), latestItems)
	if err != nil {
		return fmt.Errorf("failed to list timeline: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Signed in as %s\n", userID)
	if flash != "" {
		fmt.Fprintf(&b, "\n%s\n", flash)
	}
	b.WriteString("\nLatest timeline items:\n")
	if len(list.Items) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, item := range list.Items {
		fmt.Fprintf(&b, "  %s\n", item.ID)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err = w.Write([]byte(b.String()))
	return err
}

func (h *Handler) insertItem(w http.ResponseWriter, r *http.Request) error {
	_, client, err := h.client(r)
	if err != nil {
		return err
	}

	item := &mirror.TimelineItem{
		Text:         r.PostFormValue("message"),
		Notification: &mirror.NotificationConfig{Level: mirror.NotificationLevelDefault},
	}
	if _, err := client.InsertTimelineItem(r.Context(), item); err != nil {
		return fmt.Errorf("failed to insert timeline item: %w", err)
	}
	return h.redirectWithFlash(w, r, "A timeline item has been inserted.")
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) error {
	_, client, err := h.client(r)
	if err != nil {
		return err
	}

	id := chi.URLParam(r, "id")
	if err := client.DeleteTimelineItem(r.Context(), id); err != nil {
		return fmt.Errorf("failed to delete timeline item: %w", err)
	}
	return h.redirectWithFlash(w, r, "A timeline item has been deleted.")
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) error {
	userID, client, err := h.client(r)
	if err != nil {
		return err
	}

	collection := r.PostFormValue("collection")
	if collection != mirror.CollectionTimeline && collection != mirror.CollectionLocations {
		http.Error(w, "collection must be timeline or locations", http.StatusBadRequest)
		return nil
	}

	_, err = client.InsertSubscription(r.Context(), &mirror.Subscription{
		Collection:  collection,
		CallbackURL: h.callbackURL,
		UserToken:   userID,
	})
	if err != nil {
		if glerrors.IsRevoked(err) {
			return err
		}
		logger.Warnw("failed to subscribe", "user_id", userID, "collection", collection, "error", err)
		return h.redirectWithFlash(w, r, "Failed to subscribe. Check your log for details")
	}
	return h.redirectWithFlash(w, r, "Application is now subscribed to updates.")
}

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) error {
	users, err := h.store.ListKeys(r.Context())
	if err != nil {
		return glerrors.NewInternalError("failed to list users", err)
	}
	logger.Infow("broadcasting to users", "count", len(users))

	if len(users) > h.maxBroadcast {
		return h.redirectWithFlash(w, r, fmt.Sprintf(
			"Total user count is %d. Aborting broadcast to save your quota.", len(users)))
	}

	var succeeded, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(h.concurrency)
	for _, userID := range users {
		g.Go(func() error {
			client, err := h.clients.ForUser(r.Context(), userID)
			if err == nil {
				_, err = client.InsertTimelineItem(r.Context(), &mirror.TimelineItem{Text: broadcastText})
			}
			if err != nil {
				logger.Warnw("broadcast insert failed", "user_id", userID, "kind", glerrors.TypeOf(err), "error", err)
				failed.Add(1)
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return h.redirectWithFlash(w, r, fmt.Sprintf(
		"Successfully sent cards to %d users (%d failed).", succeeded.Load(), failed.Load()))
}

func (h *Handler) attachment(w http.ResponseWriter, r *http.Request) error {
	itemID := r.URL.Query().Get("item")
	attachmentID := r.URL.Query().Get("id")
	if itemID == "" || attachmentID == "" {
		http.Error(w, "item and id are required", http.StatusBadRequest)
		return nil
	}

	_, client, err := h.client(r)
	if err != nil {
		return err
	}

	content, err := client.GetAttachmentContent(r.Context(), itemID, attachmentID)
	if err != nil {
		if glerrors.IsNotFound(err) {
			http.NotFound(w, r)
			return nil
		}
		return fmt.Errorf("failed to get attachment: %w", err)
	}

	w.Header().Set("Content-Type", content.ContentType)
	_, err = w.Write(content.Data)
	return err
}
