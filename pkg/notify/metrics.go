// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/stacklok/glassgate/pkg/notify"

// Rejection reasons.
const (
	reasonRateLimited    = "rate_limited"
	reasonTooLarge       = "too_large"
	reasonBadRequest     = "bad_request"
	reasonBadSignature   = "bad_signature"
	reasonInvalidPayload = "invalid_payload"
	reasonNoCredential   = "no_credential"
)

// Dispatch outcomes.
const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
)

// collectionOther labels collections without a registered reactor.
const collectionOther = "other"

type metrics struct {
	received   metric.Int64Counter
	rejected   metric.Int64Counter
	dispatched metric.Int64Counter
}

func newMetrics(provider metric.MeterProvider) *metrics {
	meter := provider.Meter(instrumentationName)

	received, _ := meter.Int64Counter(
		"glassgate_notifications_received",
		metric.WithDescription("Total number of notification requests received"),
	)
	rejected, _ := meter.Int64Counter(
		"glassgate_notifications_rejected",
		metric.WithDescription("Total number of notifications rejected before dispatch"),
	)
	dispatched, _ := meter.Int64Counter(
		"glassgate_notifications_dispatched",
		metric.WithDescription("Total number of notifications dispatched, by collection and outcome"),
	)

	return &metrics{received: received, rejected: rejected, dispatched: dispatched}
}

func (m *metrics) recordReceived(ctx context.Context) {
	m.received.Add(ctx, 1)
}

func (m *metrics) recordRejected(ctx context.Context, reason string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) recordDispatched(ctx context.Context, collection, outcome string) {
	m.dispatched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("outcome", outcome),
	))
}
