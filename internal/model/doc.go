// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
//
// This package defines the core domain types used throughout the application
// for representing chats, messages, and the backend's model catalog.
//
// # Key Types
//
//   - ChatSummary: Lightweight chat metadata for listing (negative id = local-only)
//   - Message: Single message with role, content, and a tagged identity
//   - MessageID: Local token or backend-assigned id, promoted exactly once
//   - ModelInfo: Catalog entry for a model the backend serves
//   - Role: Message role enumeration (user, assistant, system)
//
// # Usage
//
// Create an optimistic local message and promote it once the backend
// acknowledges it:
//
//	msg := model.NewUserMessage(chatID, "Hello!")
//	if err := msg.ID.Promote(serverID); err != nil {
//	    // already persisted
//	}
package model
