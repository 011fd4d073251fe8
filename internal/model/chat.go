// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// CHAT SUMMARY
// =============================================================================

// ChatSummary holds lightweight metadata about a chat for listing.
// Negative IDs mark chats created locally that the backend has not
// assigned an id to yet.
type ChatSummary struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Model         string    `json:"model,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int       `json:"message_count"`
	LastMessage   string    `json:"last_message,omitempty"`
}

// IsLocal returns true if the chat exists only on this client.
func (s ChatSummary) IsLocal() bool {
	return s.ID < 0
}

// DisplayTitle returns the title or a default for untitled chats.
func (s ChatSummary) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return "New Chat"
}

// =============================================================================
// MODEL CATALOG
// =============================================================================

// ModelInfo describes a model the backend can serve completions with.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// DisplayName returns the friendly name, falling back to the id.
func (m ModelInfo) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}
