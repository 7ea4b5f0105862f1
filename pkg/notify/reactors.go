// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"math/rand/v2"

	"github.com/stacklok/glassgate/pkg/config"
	"github.com/stacklok/glassgate/pkg/logger"
	"github.com/stacklok/glassgate/pkg/mirror"
)

// Reactor handles the notifications of one collection.
type Reactor interface {
	React(ctx context.Context, client mirror.Client, n *Notification) error
}

// LocationReactor tells the user where they are.
type LocationReactor struct{}

// React implements Reactor.
func (LocationReactor) React(ctx context.Context, client mirror.Client, n *Notification) error {
	loc, err := client.GetLocation(ctx, n.ItemID)
	if err != nil {
		return fmt.Errorf("failed to get location %q: %w", n.ItemID, err)
	}
	logger.Debugw("new location", "user_id", n.UserToken, "latitude", loc.Latitude, "longitude", loc.Longitude)

	_, err = client.InsertTimelineItem(ctx, &mirror.TimelineItem{
		Text:         fmt.Sprintf("You are now at %v, %v", loc.Latitude, loc.Longitude),
		Location:     loc,
		MenuItems:    []mirror.MenuItem{{Action: mirror.ActionNavigate}},
		Notification: &mirror.NotificationConfig{Level: mirror.NotificationLevelDefault},
	})
	if err != nil {
		return fmt.Errorf("failed to insert location card: %w", err)
	}
	return nil
}

// EchoText is the text of the card that echoes a shared photo.
const EchoText = "Echoing your shared photo"

// CaptionPrefix starts the caption of an acknowledged photo.
const CaptionPrefix = "glassgate got your photo! "

const defaultMediaType = "image/jpeg"

// TimelineReactor reacts to photos shared with glassgate. In echo mode the
// first attachment is sent back as a new card; in caption mode the shared
// item's caption is patched. Exactly one of the two happens per share.
type TimelineReactor struct {
	Mode string
	// Launch handles voice notes. Nil disables it.
	Launch *LaunchReactor
}

// React implements Reactor.
func (t TimelineReactor) React(ctx context.Context, client mirror.Client, n *Notification) error {
	item, err := client.GetTimelineItem(ctx, n.ItemID)
	if err != nil {
		return fmt.Errorf("failed to get timeline item %q: %w", n.ItemID, err)
	}

	switch {
	case n.HasAction(ActionShare) && len(item.Attachments) > 0:
		if t.Mode == config.ReactionCaption {
			return t.caption(ctx, client, item)
		}
		return t.echo(ctx, client, item)
	case n.HasAction(ActionLaunch) && t.Launch != nil:
		return t.Launch.React(ctx, client, item)
	default:
		logger.Infow("ignoring timeline notification", "user_id", n.UserToken, "item_id", n.ItemID)
		return nil
	}
}

func (TimelineReactor) echo(ctx context.Context, client mirror.Client, item *mirror.TimelineItem) error {
	attachment := item.Attachments[0]
	content, err := client.GetAttachmentContent(ctx, item.ID, attachment.ID)
	if err != nil {
		return fmt.Errorf("failed to get attachment %q: %w", attachment.ID, err)
	}

	mediaType := content.ContentType
	if mediaType == "" {
		mediaType = defaultMediaType
	}

	_, err = client.InsertTimelineItemWithMedia(ctx, &mirror.TimelineItem{
		Text:         EchoText,
		Notification: &mirror.NotificationConfig{Level: mirror.NotificationLevelDefault},
	}, mediaType, bytes.NewReader(content.Data))
	if err != nil {
		return fmt.Errorf("failed to echo photo: %w", err)
	}
	return nil
}

func (TimelineReactor) caption(ctx context.Context, client mirror.Client, item *mirror.TimelineItem) error {
	_, err := client.PatchTimelineItem(ctx, item.ID, &mirror.TimelineItem{Text: CaptionPrefix + item.Text})
	if err != nil {
		return fmt.Errorf("failed to patch caption: %w", err)
	}
	return nil
}

var utterances = []string{
	"<em class='green'>Purr...</em>",
	"<em class='red'>Hisss... scratch...</em>",
	"<em class='yellow'>Meow...</em>",
}

// LaunchReactor answers a note taken with the voice command.
type LaunchReactor struct{}

// React replies to item with a card the user can delete.
func (LaunchReactor) React(ctx context.Context, client mirror.Client, item *mirror.TimelineItem) error {
	utterance := utterances[rand.IntN(len(utterances))] //nolint:gosec // not security sensitive
	reply := &mirror.TimelineItem{
		BundleID: item.BundleID,
		HTML: "<article><section><p class='text-auto-size'>Oh, did you say " +
			html.EscapeString(item.Text) + "? " + utterance + "</p></section></article>",
		MenuItems: []mirror.MenuItem{{Action: mirror.ActionDelete}},
	}
	if _, err := client.InsertTimelineItem(ctx, reply); err != nil {
		return fmt.Errorf("failed to insert reply card: %w", err)
	}
	return nil
}
