// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/glassgate/pkg/logger"
)

// ContactID identifies the glassgate share target on the device.
const ContactID = "glassgate"

// Bootstrapper prepares the timeline of a user who just signed in for the
// first time.
type Bootstrapper struct {
	clients     ClientFactory
	callbackURL string
	imageURL    string
}

// NewBootstrapper creates a Bootstrapper that subscribes callbackURL to the
// user's notifications. imageURL is the contact icon and may be empty.
func NewBootstrapper(clients ClientFactory, callbackURL, imageURL string) *Bootstrapper {
	return &Bootstrapper{clients: clients, callbackURL: callbackURL, imageURL: imageURL}
}

// OnNewUser subscribes to the timeline and locations collections, inserts
// the share contact and a welcome card. Every step is attempted; the
// failures are returned joined.
func (b *Bootstrapper) OnNewUser(ctx context.Context, userID string) error {
	client, err := b.clients.ForUser(ctx, userID)
	if err != nil {
		return err
	}

	var errs []error
	for _, collection := range []string{CollectionTimeline, CollectionLocations} {
		sub, err := client.InsertSubscription(ctx, &Subscription{
			Collection:  collection,
			CallbackURL: b.callbackURL,
			UserToken:   userID,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to subscribe to %s: %w", collection, err))
			continue
		}
		logger.Debugw("subscribed to collection", "user_id", userID, "collection", collection, "subscription_id", sub.ID)
	}

	contact := &Contact{
		ID:             ContactID,
		DisplayName:    "glassgate",
		AcceptTypes:    []string{"image/*"},
		AcceptCommands: []Command{{Type: "TAKE_A_NOTE"}},
	}
	if b.imageURL != "" {
		contact.ImageURLs = []string{b.imageURL}
	}
	if _, err := client.InsertContact(ctx, contact); err != nil {
		errs = append(errs, fmt.Errorf("failed to insert contact: %w", err))
	}

	if _, err := client.InsertTimelineItem(ctx, &TimelineItem{
		Text:         "Welcome to glassgate",
		Notification: &NotificationConfig{Level: NotificationLevelDefault},
	}); err != nil {
		errs = append(errs, fmt.Errorf("failed to insert welcome card: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Infow("bootstrapped new user", "user_id", userID)
	return nil
}
