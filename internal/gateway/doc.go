// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway implements the HTTP client for the Relay sync backend.
//
// The backend is the single source of truth for chats, messages, and the
// model catalog. This package covers its REST surface (chat CRUD, message
// append, regenerate-delete, model listing, health) and opens streaming
// completion requests whose SSE bodies are handed to the stream package.
//
// # Error Handling
//
// Non-2xx responses become *GatewayError values carrying the HTTP status and
// the backend's detail message. Well-known statuses also match sentinel
// errors via errors.Is:
//
//	if errors.Is(err, gateway.ErrRateLimited) { ... }
//
// # Retries
//
// GET requests retry with exponential backoff on 5xx and transport errors.
// Mutating requests run exactly once; the caller decides how to recover.
package gateway
