// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package mirror is a client for the Mirror timeline API. Every call is made
// on behalf of one user with that user's stored OAuth2 credential.
package mirror

import (
	"context"
	"io"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client,ClientFactory

// Client is the set of Mirror API calls glassgate makes for a single user.
// Errors are tagged with a kind from pkg/errors: revoked, transient, fatal
// or not_found.
type Client interface {
	GetLocation(ctx context.Context, id string) (*Location, error)

	ListTimeline(ctx context.Context, maxResults int) (*TimelineList, error)
	GetTimelineItem(ctx context.Context, id string) (*TimelineItem, error)
	InsertTimelineItem(ctx context.Context, item *TimelineItem) (*TimelineItem, error)
	// InsertTimelineItemWithMedia uploads item together with one media
	// attachment as a multipart/related request.
	InsertTimelineItemWithMedia(ctx context.Context, item *TimelineItem, contentType string, media io.Reader) (*TimelineItem, error)
	PatchTimelineItem(ctx context.Context, id string, patch *TimelineItem) (*TimelineItem, error)
	DeleteTimelineItem(ctx context.Context, id string) error
	GetAttachmentContent(ctx context.Context, itemID, attachmentID string) (*AttachmentContent, error)

	InsertSubscription(ctx context.Context, sub *Subscription) (*Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	InsertContact(ctx context.Context, contact *Contact) (*Contact, error)
}

// ClientFactory builds a Client bound to a user's stored credential.
type ClientFactory interface {
	ForUser(ctx context.Context, userID string) (Client, error)
}
