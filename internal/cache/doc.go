// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache holds recently used chats and the model catalog in memory,
// backed by a pluggable persistence store.
//
// The cache is an availability layer, not a source of truth: the backend
// always wins. It keeps at most MaxEntries chats, evicting the least
// recently accessed, and ages its contents with three windows: the chat
// list (SummaryTTL), each chat's messages (EntryTTL), and the model catalog
// (CatalogTTL).
//
// Persistence is fail-open. Storage errors are logged and swallowed; a
// corrupt blob loads as an empty cache. Two Store implementations ship:
// FileStore (atomic JSON files) and SQLiteStore (single-table key/value
// database).
package cache
