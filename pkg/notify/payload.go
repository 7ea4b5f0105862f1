// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// User action types delivered with timeline notifications.
const (
	ActionShare  = "SHARE"
	ActionLaunch = "LAUNCH"
	ActionReply  = "REPLY"
	ActionDelete = "DELETE"
	ActionCustom = "CUSTOM"
)

//go:embed schema.json
var schemaBytes []byte

var payloadSchema = mustCompileSchema(schemaBytes)

func mustCompileSchema(raw []byte) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded notification schema: %v", err))
	}
	return schema
}

// UserAction is one action the user took on an item.
type UserAction struct {
	Type    string `json:"type"`
	Payload string `json:"payload,omitempty"`
}

// Notification is a change notification pushed by the Mirror API.
// Every field is untrusted.
type Notification struct {
	Collection  string       `json:"collection"`
	ItemID      string       `json:"itemId,omitempty"`
	Operation   string       `json:"operation,omitempty"`
	UserToken   string       `json:"userToken"`
	VerifyToken string       `json:"verifyToken,omitempty"`
	UserActions []UserAction `json:"userActions,omitempty"`
}

// HasAction reports whether the user took an action of the given type.
func (n *Notification) HasAction(actionType string) bool {
	return slices.ContainsFunc(n.UserActions, func(a UserAction) bool {
		return a.Type == actionType
	})
}

// Parse validates data against the notification schema and decodes it.
func Parse(data []byte) (*Notification, error) {
	result, err := payloadSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse notification: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("notification does not match schema: %s", strings.Join(msgs, "; "))
	}

	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	return &n, nil
}
