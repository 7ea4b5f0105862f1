// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package mirror

// Collections that can be subscribed to.
const (
	CollectionTimeline  = "timeline"
	CollectionLocations = "locations"
)

// Menu actions.
const (
	ActionNavigate  = "NAVIGATE"
	ActionDelete    = "DELETE"
	ActionReply     = "REPLY"
	ActionReadAloud = "READ_ALOUD"
	ActionOpenURI   = "OPEN_URI"
)

// NotificationLevelDefault makes the device chime when the item arrives.
const NotificationLevelDefault = "DEFAULT"

// Location is a device location.
type Location struct {
	ID          string  `json:"id,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Accuracy    float64 `json:"accuracy,omitempty"`
	DisplayName string  `json:"displayName,omitempty"`
	Address     string  `json:"address,omitempty"`
}

// MenuItem is an action offered on a timeline card.
type MenuItem struct {
	ID      string `json:"id,omitempty"`
	Action  string `json:"action"`
	Payload string `json:"payload,omitempty"`
}

// Attachment is media attached to a timeline item.
type Attachment struct {
	ID                  string `json:"id,omitempty"`
	ContentType         string `json:"contentType,omitempty"`
	ContentURL          string `json:"contentUrl,omitempty"`
	IsProcessingContent bool   `json:"isProcessingContent,omitempty"`
}

// NotificationConfig controls how the device announces an item.
type NotificationConfig struct {
	Level string `json:"level,omitempty"`
}

// TimelineItem is a card on the user's timeline. Only set fields are sent,
// so a partially filled item doubles as a patch body.
type TimelineItem struct {
	ID            string              `json:"id,omitempty"`
	BundleID      string              `json:"bundleId,omitempty"`
	Text          string              `json:"text,omitempty"`
	HTML          string              `json:"html,omitempty"`
	SpeakableText string              `json:"speakableText,omitempty"`
	Created       string              `json:"created,omitempty"`
	Updated       string              `json:"updated,omitempty"`
	Location      *Location           `json:"location,omitempty"`
	MenuItems     []MenuItem          `json:"menuItems,omitempty"`
	Attachments   []Attachment        `json:"attachments,omitempty"`
	Notification  *NotificationConfig `json:"notification,omitempty"`
}

// TimelineList is a page of timeline items.
type TimelineList struct {
	Items         []TimelineItem `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

// Subscription registers a callback URL for a collection.
type Subscription struct {
	ID          string   `json:"id,omitempty"`
	Collection  string   `json:"collection"`
	CallbackURL string   `json:"callbackUrl"`
	UserToken   string   `json:"userToken,omitempty"`
	VerifyToken string   `json:"verifyToken,omitempty"`
	Operation   []string `json:"operation,omitempty"`
}

// Command is a voice command a contact accepts.
type Command struct {
	Type string `json:"type"`
}

// Contact is a share target on the device.
type Contact struct {
	ID             string    `json:"id"`
	DisplayName    string    `json:"displayName"`
	ImageURLs      []string  `json:"imageUrls,omitempty"`
	AcceptTypes    []string  `json:"acceptTypes,omitempty"`
	AcceptCommands []Command `json:"acceptCommands,omitempty"`
}

// AttachmentContent is the downloaded body of an attachment.
type AttachmentContent struct {
	ContentType string
	Data        []byte
}
