// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package notify ingests the change notifications the Mirror API pushes to
// glassgate. A request is handled in two phases: the body is read with a
// line bound, checked and acknowledged; then the payload is validated and
// dispatched to the reactor for its collection on a context that outlives
// the request.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/stacklok/glassgate/pkg/config"
	glerrors "github.com/stacklok/glassgate/pkg/errors"
	"github.com/stacklok/glassgate/pkg/logger"
	"github.com/stacklok/glassgate/pkg/mirror"
)

// DefaultDispatchTimeout bounds phase 2 of a notification.
const DefaultDispatchTimeout = 30 * time.Second

// maxBodyBytes caps the body independently of its line count.
const maxBodyBytes = 4 << 20

// DeliveryHeader carries a sender-assigned delivery ID. A sender that retries
// a delivery repeats the ID; only deliveries carrying it are deduplicated.
const DeliveryHeader = "X-Glassgate-Delivery"

const ack = "OK"

// Handler serves the notification callback.
type Handler struct {
	clients         mirror.ClientFactory
	reactors        map[string]Reactor
	deduper         Deduper
	limiter         *rate.Limiter
	maxLines        int
	secret          []byte
	tolerance       time.Duration
	dispatchTimeout time.Duration
	meterProvider   metric.MeterProvider
	metrics         *metrics
	now             func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithDeduper replaces the default in-memory deduper.
func WithDeduper(d Deduper) Option {
	return func(h *Handler) {
		h.deduper = d
	}
}

// WithMeterProvider sets the provider the notification counters are created from.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(h *Handler) {
		h.meterProvider = mp
	}
}

// WithReactor registers r for collection, replacing any existing reactor.
func WithReactor(collection string, r Reactor) Option {
	return func(h *Handler) {
		h.reactors[collection] = r
	}
}

// WithSignatureTolerance sets the accepted clock drift of signed requests.
func WithSignatureTolerance(d time.Duration) Option {
	return func(h *Handler) {
		h.tolerance = d
	}
}

// NewHandler creates a Handler from cfg. Location and timeline reactors are
// registered by default.
func NewHandler(clients mirror.ClientFactory, cfg config.NotifyConfig, opts ...Option) (*Handler, error) {
	timeline := TimelineReactor{Mode: cfg.TimelineReaction}
	switch cfg.TimelineReaction {
	case "":
		timeline.Mode = config.ReactionEcho
	case config.ReactionEcho, config.ReactionCaption:
	default:
		return nil, fmt.Errorf("unknown timeline reaction %q", cfg.TimelineReaction)
	}
	if cfg.EnableLaunchReply {
		timeline.Launch = &LaunchReactor{}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	h := &Handler{
		clients: clients,
		reactors: map[string]Reactor{
			mirror.CollectionLocations: LocationReactor{},
			mirror.CollectionTimeline:  timeline,
		},
		limiter:         rate.NewLimiter(limit, burst),
		maxLines:        cfg.MaxLines,
		tolerance:       DefaultSignatureTolerance,
		dispatchTimeout: cfg.DispatchTimeout,
		now:             time.Now,
	}
	if cfg.SigningSecret != "" {
		h.secret = []byte(cfg.SigningSecret)
	}
	if h.maxLines <= 0 {
		h.maxLines = DefaultMaxLines
	}
	if h.dispatchTimeout <= 0 {
		h.dispatchTimeout = DefaultDispatchTimeout
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.deduper == nil {
		h.deduper = NewMemoryDeduper(DefaultDedupTTL)
	}
	if h.meterProvider == nil {
		h.meterProvider = otel.GetMeterProvider()
	}
	h.metrics = newMetrics(h.meterProvider)
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.metrics.recordReceived(ctx)

	if !h.limiter.Allow() {
		h.metrics.recordRejected(ctx, reasonRateLimited)
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}

	body, err := readLines(http.MaxBytesReader(w, r.Body, maxBodyBytes), h.maxLines)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.Is(err, ErrTooManyLines) || errors.As(err, &maxBytesErr) {
			logger.Warnw("rejecting oversized notification", "error", err)
			h.metrics.recordRejected(ctx, reasonTooLarge)
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		logger.Warnw("failed to read notification", "error", err)
		h.metrics.recordRejected(ctx, reasonBadRequest)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if h.secret != nil {
		if err := verifyRequest(h.secret, r.Header, body, h.now(), h.tolerance); err != nil {
			logger.Warnw("rejecting unsigned notification", "error", err)
			h.metrics.recordRejected(ctx, reasonBadSignature)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
	}

	// The length makes the ack a complete response once flushed, so the
	// sender is not held until phase 2 returns.
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(ack)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ack)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.dispatchTimeout)
	defer cancel()
	h.Dispatch(dispatchCtx, r.Header.Get(DeliveryHeader), body)
}

// Dispatch validates body and runs the reactor for its collection. Every
// failure is logged and swallowed. A non-empty deliveryID is claimed so a
// retried delivery runs its reactor once; without one, every call reacts.
func (h *Handler) Dispatch(ctx context.Context, deliveryID string, body []byte) {
	logID := deliveryID
	if logID == "" {
		logID = uuid.NewString()
	}

	n, err := Parse(body)
	if err != nil {
		logger.Warnw("dropping malformed notification", "delivery_id", logID, "error", err)
		h.metrics.recordRejected(ctx, reasonInvalidPayload)
		return
	}

	log := []any{"delivery_id", logID, "user_id", n.UserToken, "collection", n.Collection, "item_id", n.ItemID}

	client, err := h.clients.ForUser(ctx, n.UserToken)
	if err != nil {
		if glerrors.IsNotFound(err) {
			logger.Warnw("no credential for notification user", append(log, "error", err)...)
		} else {
			logger.Errorw("failed to build client for notification", append(log, "error", err)...)
		}
		h.metrics.recordRejected(ctx, reasonNoCredential)
		return
	}

	reactor, ok := h.reactors[n.Collection]
	if !ok {
		logger.Infow("unrecognized notification collection", log...)
		h.metrics.recordDispatched(ctx, collectionOther, outcomeIgnored)
		return
	}

	var claimed bool
	key := n.UserToken + "|" + deliveryID
	if deliveryID != "" {
		claimed, err = h.deduper.Claim(ctx, key)
		switch {
		case err != nil:
			logger.Warnw("dedup unavailable, processing anyway", append(log, "error", err)...)
		case !claimed:
			logger.Debugw("duplicate delivery", log...)
			h.metrics.recordDispatched(ctx, n.Collection, outcomeDuplicate)
			return
		}
	}

	if err := reactor.React(ctx, client, n); err != nil {
		logger.Errorw("notification reactor failed", append(log, "kind", glerrors.TypeOf(err), "error", err)...)
		if claimed {
			if rerr := h.deduper.Release(ctx, key); rerr != nil {
				logger.Warnw("failed to release delivery", append(log, "error", rerr)...)
			}
		}
		h.metrics.recordDispatched(ctx, n.Collection, outcomeError)
		return
	}

	logger.Debugw("notification dispatched", log...)
	h.metrics.recordDispatched(ctx, n.Collection, outcomeOK)
}
