// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/relay-tui/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE IDENTITY
// =============================================================================

// ErrAlreadyPersisted is returned when promoting an ID that already carries
// a server identity. The local-to-server transition happens at most once.
var ErrAlreadyPersisted = errors.New("message already has a server id")

// MessageID identifies a message either by a locally generated token (before
// the backend has acknowledged it) or by the backend's numeric id (after).
// Exactly one side is set at any time.
type MessageID struct {
	local  string
	server int64
}

// NewLocalID creates an identity for a message that only exists client-side.
func NewLocalID() MessageID {
	return MessageID{local: uuid.NewString()}
}

// ServerID creates an identity for a message the backend already knows.
func ServerID(id int64) MessageID {
	return MessageID{server: id}
}

// IsLocal returns true if the message has not been acknowledged by the backend.
func (id MessageID) IsLocal() bool {
	return id.local != ""
}

// Server returns the backend id and whether one is present.
func (id MessageID) Server() (int64, bool) {
	if id.local != "" {
		return 0, false
	}
	return id.server, true
}

// Promote replaces a local identity with the backend-assigned id.
// Promoting an already-persisted identity is an error.
func (id *MessageID) Promote(serverID int64) error {
	if id.local == "" {
		return ErrAlreadyPersisted
	}
	id.local = ""
	id.server = serverID
	return nil
}

// Matches reports whether two identities refer to the same message.
// Local identities compare by token, persisted ones by server id.
func (id MessageID) Matches(other MessageID) bool {
	if id.IsLocal() != other.IsLocal() {
		return false
	}
	if id.IsLocal() {
		return id.local == other.local
	}
	return id.server == other.server
}

// String returns a log-friendly form of the identity.
func (id MessageID) String() string {
	if id.IsLocal() {
		return "local:" + id.local
	}
	return fmt.Sprintf("server:%d", id.server)
}

// messageIDJSON is the wire form used for cache persistence.
type messageIDJSON struct {
	Local  string `json:"local,omitempty"`
	Server int64  `json:"server,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (id MessageID) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageIDJSON{Local: id.local, Server: id.server})
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	var w messageIDJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id.local = w.Local
	id.server = w.Server
	return nil
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Attachment is a raw text block the user attached to a message. Its content
// is embedded into the outgoing message body before transmission.
type Attachment struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Message represents a single message in a chat.
type Message struct {
	ID        MessageID `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Attachments []Attachment `json:"attachments,omitempty"`
}

// NewMessage creates a message with a fresh local identity.
func NewMessage(chatID int64, role Role, content string) Message {
	return Message{
		ID:        NewLocalID(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a new local user message.
func NewUserMessage(chatID int64, content string) Message {
	return NewMessage(chatID, RoleUser, content)
}

// NewAssistantMessage creates a new local assistant message, typically used
// as the placeholder that receives streamed content.
func NewAssistantMessage(chatID int64, modelName string) Message {
	m := NewMessage(chatID, RoleAssistant, "")
	m.Model = modelName
	return m
}

// OutgoingContent returns the content as transmitted to the backend, with
// any attachments embedded as named text blocks.
func (m Message) OutgoingContent() string {
	if len(m.Attachments) == 0 {
		return m.Content
	}
	var sb strings.Builder
	sb.WriteString(m.Content)
	for _, a := range m.Attachments {
		sb.WriteString("\n\n--- ")
		sb.WriteString(a.Name)
		sb.WriteString(" ---\n")
		sb.WriteString(a.Text)
	}
	return sb.String()
}

// Preview returns a single-line truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	content := strings.ReplaceAll(m.Content, "\n", " ")
	content = strings.ReplaceAll(content, "\r", "")
	return util.TruncateRunes(content, maxLen)
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}
