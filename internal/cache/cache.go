// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jeranaias/relay-tui/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// MaxEntries is the number of chats kept in the cache. The least
	// recently accessed entry is evicted when the cap is exceeded.
	MaxEntries = 10

	// SummaryTTL is how long the chat list is trusted before a refresh.
	SummaryTTL = time.Hour

	// EntryTTL is how long a chat's materialized messages are trusted.
	EntryTTL = 5 * time.Minute

	// CatalogTTL is how long the model catalog is trusted.
	CatalogTTL = 24 * time.Hour

	chatsKey  = "chats"
	modelsKey = "models"
)

// =============================================================================
// ENTRY
// =============================================================================

// Entry is one cached chat: its summary plus, when materialized, the full
// message list.
type Entry struct {
	Summary      model.ChatSummary `json:"summary"`
	Messages     []model.Message   `json:"messages,omitempty"`
	FetchedAt    time.Time         `json:"fetched_at"`
	LastAccessed time.Time         `json:"last_accessed"`
}

// Materialized returns true if the entry carries a message list.
func (e *Entry) Materialized() bool {
	return e.Messages != nil
}

// chatsBlob is the persisted form of the chat cache.
type chatsBlob struct {
	LastUpdated time.Time `json:"last_updated"`
	Entries     []Entry   `json:"entries"`
}

// modelsBlob is the persisted form of the model catalog.
type modelsBlob struct {
	LastUpdated time.Time         `json:"last_updated"`
	Models      []model.ModelInfo `json:"models"`
}

// =============================================================================
// SESSION CACHE
// =============================================================================

// SessionCache keeps the most recently used chats and the model catalog.
//
// All methods are safe for concurrent use. Persistence is best effort:
// storage failures are logged and the in-memory state stays authoritative,
// so a broken disk degrades to a purely in-memory cache.
type SessionCache struct {
	mu    sync.Mutex
	store Store

	entries     []Entry // most recent first
	listUpdated time.Time

	models        []model.ModelInfo
	modelsUpdated time.Time

	now func() time.Time
}

// NewSessionCache creates a cache backed by the given store and loads any
// persisted state. A corrupt or unreadable blob yields an empty cache, never
// an error.
func NewSessionCache(store Store) *SessionCache {
	c := &SessionCache{
		store: store,
		now:   time.Now,
	}
	c.load()
	return c
}

// SetClock overrides the cache's time source. Used by tests to age entries.
func (c *SessionCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// load restores persisted state. Failures fall back to empty.
func (c *SessionCache) load() {
	if c.store == nil {
		return
	}

	if data, err := c.store.Get(chatsKey); err == nil {
		var blob chatsBlob
		if err := json.Unmarshal(data, &blob); err != nil {
			log.Printf("cache: discarding corrupt chat blob: %v", err)
		} else {
			c.entries = blob.Entries
			c.listUpdated = blob.LastUpdated
		}
	} else if !errors.Is(err, ErrKeyNotFound) {
		log.Printf("cache: failed to load chats: %v", err)
	}

	if data, err := c.store.Get(modelsKey); err == nil {
		var blob modelsBlob
		if err := json.Unmarshal(data, &blob); err != nil {
			log.Printf("cache: discarding corrupt model blob: %v", err)
		} else {
			c.models = blob.Models
			c.modelsUpdated = blob.LastUpdated
		}
	} else if !errors.Is(err, ErrKeyNotFound) {
		log.Printf("cache: failed to load models: %v", err)
	}
}

// persistChats writes the chat blob. Caller must hold the lock.
func (c *SessionCache) persistChats() {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(chatsBlob{LastUpdated: c.listUpdated, Entries: c.entries})
	if err != nil {
		log.Printf("cache: failed to marshal chats: %v", err)
		return
	}
	if err := c.store.Set(chatsKey, data); err != nil {
		log.Printf("cache: failed to persist chats: %v", err)
	}
}

// persistModels writes the model blob. Caller must hold the lock.
func (c *SessionCache) persistModels() {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(modelsBlob{LastUpdated: c.modelsUpdated, Models: c.models})
	if err != nil {
		log.Printf("cache: failed to marshal models: %v", err)
		return
	}
	if err := c.store.Set(modelsKey, data); err != nil {
		log.Printf("cache: failed to persist models: %v", err)
	}
}

// =============================================================================
// CHAT LIST
// =============================================================================

// Summaries returns the cached chat summaries ordered by most recent
// activity. A duplicate id means an upstream bug, so it is logged and the
// first occurrence wins.
func (c *SessionCache) Summaries() []model.ChatSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.ChatSummary, 0, len(c.entries))
	seen := make(map[int64]bool, len(c.entries))
	for i := range c.entries {
		s := c.entries[i].Summary
		if seen[s.ID] {
			log.Printf("cache: chat %d appears more than once in the summary list, keeping first", s.ID)
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return activityTime(out[i]).After(activityTime(out[j]))
	})
	return out
}

// SummariesStale returns true when the chat list should be refreshed from
// the backend. An empty list is never fresh.
func (c *SessionCache) SummariesStale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries) == 0 || c.listUpdated.IsZero() || c.now().Sub(c.listUpdated) > SummaryTTL
}

// ReplaceAll replaces the summary list with a fresh backend snapshot:
// duplicates are filtered with a warning (first occurrence wins), the list
// is ordered by most recent activity, and materialized messages of chats
// still present are preserved. Chats beyond the capacity are dropped.
func (c *SessionCache) ReplaceAll(summaries []model.ChatSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := make(map[int64]Entry, len(c.entries))
	for _, e := range c.entries {
		prev[e.Summary.ID] = e
	}

	seen := make(map[int64]bool, len(summaries))
	deduped := make([]model.ChatSummary, 0, len(summaries))
	for _, s := range summaries {
		if seen[s.ID] {
			log.Printf("cache: chat %d appears more than once in the backend list, keeping first", s.ID)
			continue
		}
		seen[s.ID] = true
		deduped = append(deduped, s)
	}
	sort.SliceStable(deduped, func(i, j int) bool {
		return activityTime(deduped[i]).After(activityTime(deduped[j]))
	})

	entries := make([]Entry, 0, len(deduped))
	for _, s := range deduped {
		if len(entries) >= MaxEntries {
			break
		}
		e := Entry{Summary: s, LastAccessed: c.now()}
		if old, ok := prev[s.ID]; ok {
			e.Messages = old.Messages
			e.FetchedAt = old.FetchedAt
			e.LastAccessed = old.LastAccessed
		}
		entries = append(entries, e)
	}

	// Local-only chats are unknown to the backend; they survive the
	// replacement.
	for _, e := range c.entries {
		if e.Summary.IsLocal() {
			entries = append([]Entry{e}, entries...)
		}
	}

	c.entries = entries
	c.listUpdated = c.now()
	c.evictLocked()
	c.persistChats()
}

// UpsertSummary inserts or updates a single chat summary, moving it to the
// front of the list.
func (c *SessionCache) UpsertSummary(s model.ChatSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := Entry{Summary: s, LastAccessed: c.now()}
	if idx := c.indexLocked(s.ID); idx >= 0 {
		e.Messages = c.entries[idx].Messages
		e.FetchedAt = c.entries[idx].FetchedAt
		c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
	}
	c.entries = append([]Entry{e}, c.entries...)
	c.evictLocked()
	c.persistChats()
}

// Remove drops a chat from the cache.
func (c *SessionCache) Remove(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexLocked(chatID); idx >= 0 {
		c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
		c.persistChats()
	}
}

// Rehome reassigns a locally created chat to its backend id once the chat
// has been synced.
func (c *SessionCache) Rehome(oldID, newID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexLocked(oldID)
	if idx < 0 {
		return
	}
	c.entries[idx].Summary.ID = newID
	for i := range c.entries[idx].Messages {
		c.entries[idx].Messages[i].ChatID = newID
	}
	c.persistChats()
}

// =============================================================================
// MESSAGES
// =============================================================================

// GetMessages returns a copy of the materialized messages for a chat.
// The second return is false when the chat is absent or not materialized.
func (c *SessionCache) GetMessages(chatID int64) ([]model.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexLocked(chatID)
	if idx < 0 || !c.entries[idx].Materialized() {
		return nil, false
	}
	msgs := make([]model.Message, len(c.entries[idx].Messages))
	copy(msgs, c.entries[idx].Messages)
	return msgs, true
}

// PutMessages atomically replaces the message list of a chat. An entry is
// created if the chat is not cached yet.
func (c *SessionCache) PutMessages(chatID int64, messages []model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]model.Message, len(messages))
	copy(msgs, messages)

	idx := c.indexLocked(chatID)
	if idx < 0 {
		c.entries = append([]Entry{{
			Summary: model.ChatSummary{ID: chatID},
		}}, c.entries...)
		idx = 0
	}

	e := &c.entries[idx]
	e.Messages = msgs
	e.FetchedAt = c.now()
	e.LastAccessed = c.now()
	e.Summary.MessageCount = len(msgs)
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		e.Summary.LastMessage = last.Preview(80)
		e.Summary.LastMessageAt = last.CreatedAt
	}

	c.evictLocked()
	c.persistChats()
}

// ShouldRefetch returns true when a chat's messages must be fetched from
// the backend before display. Materialized messages are trusted while the
// entry has been accessed within EntryTTL; both PutMessages and
// MarkAccessed reset that window. Local-only chats have nothing to fetch.
func (c *SessionCache) ShouldRefetch(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if chatID < 0 {
		return false
	}
	idx := c.indexLocked(chatID)
	if idx < 0 || !c.entries[idx].Materialized() {
		return true
	}
	return c.now().Sub(c.entries[idx].LastAccessed) > EntryTTL
}

// MarkAccessed refreshes a chat's recency without touching its messages.
func (c *SessionCache) MarkAccessed(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexLocked(chatID); idx >= 0 {
		c.entries[idx].LastAccessed = c.now()
		c.persistChats()
	}
}

// =============================================================================
// MODEL CATALOG
// =============================================================================

// Models returns the cached catalog and whether it is still fresh.
func (c *SessionCache) Models() ([]model.ModelInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := !c.modelsUpdated.IsZero() && c.now().Sub(c.modelsUpdated) <= CatalogTTL
	out := make([]model.ModelInfo, len(c.models))
	copy(out, c.models)
	return out, fresh
}

// PutModels replaces the cached model catalog.
func (c *SessionCache) PutModels(models []model.ModelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.models = make([]model.ModelInfo, len(models))
	copy(c.models, models)
	c.modelsUpdated = c.now()
	c.persistModels()
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Clear drops the cached chats, in memory and on disk. The model catalog
// is untouched; see ClearCatalog and ClearAll.
func (c *SessionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearChatsLocked()
}

// ClearCatalog drops the cached model catalog.
func (c *SessionCache) ClearCatalog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearModelsLocked()
}

// ClearAll wipes the whole cache.
func (c *SessionCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearChatsLocked()
	c.clearModelsLocked()
}

// clearChatsLocked wipes chat state. Caller must hold the lock.
func (c *SessionCache) clearChatsLocked() {
	c.entries = nil
	c.listUpdated = time.Time{}
	if c.store != nil {
		if err := c.store.Delete(chatsKey); err != nil {
			log.Printf("cache: failed to delete chats: %v", err)
		}
	}
}

// clearModelsLocked wipes the catalog. Caller must hold the lock.
func (c *SessionCache) clearModelsLocked() {
	c.models = nil
	c.modelsUpdated = time.Time{}
	if c.store != nil {
		if err := c.store.Delete(modelsKey); err != nil {
			log.Printf("cache: failed to delete models: %v", err)
		}
	}
}

// Stats describes the cache contents for diagnostics.
type Stats struct {
	Chats        int
	Materialized int
	Models       int
	ListUpdated  time.Time
}

// GetStats returns a snapshot of cache statistics.
func (c *SessionCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{Chats: len(c.entries), Models: len(c.models), ListUpdated: c.listUpdated}
	for i := range c.entries {
		if c.entries[i].Materialized() {
			st.Materialized++
		}
	}
	return st
}

// =============================================================================
// INTERNAL
// =============================================================================

// activityTime is the ordering key for summaries: the last message time
// when present, else the creation time.
func activityTime(s model.ChatSummary) time.Time {
	if !s.LastMessageAt.IsZero() {
		return s.LastMessageAt
	}
	return s.CreatedAt
}

// indexLocked finds an entry by chat id. Caller must hold the lock.
func (c *SessionCache) indexLocked(chatID int64) int {
	for i := range c.entries {
		if c.entries[i].Summary.ID == chatID {
			return i
		}
	}
	return -1
}

// evictLocked drops least recently accessed entries beyond the capacity.
// Caller must hold the lock.
func (c *SessionCache) evictLocked() {
	if len(c.entries) <= MaxEntries {
		return
	}

	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].LastAccessed.After(c.entries[j].LastAccessed)
	})
	c.entries = c.entries[:MaxEntries]
}
