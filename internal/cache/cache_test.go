// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/jeranaias/relay-tui/internal/model"
)

func newTestCache(t *testing.T) *SessionCache {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewSessionCache(store)
}

func summary(id int64, title string) model.ChatSummary {
	return model.ChatSummary{ID: id, Title: title, CreatedAt: time.Now()}
}

// =============================================================================
// CHAT LIST TESTS
// =============================================================================

func TestSessionCache_ReplaceAllAndSummaries(t *testing.T) {
	c := newTestCache(t)

	base := time.Now()
	c.ReplaceAll([]model.ChatSummary{
		{ID: 1, Title: "a", CreatedAt: base.Add(-time.Hour)},
		{ID: 2, Title: "b", CreatedAt: base},
	})

	got := c.Summaries()
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 1 {
		t.Errorf("Summaries() = %+v", got)
	}
	if c.SummariesStale() {
		t.Error("list should be fresh right after ReplaceAll")
	}
}

func TestSessionCache_SummariesOrderedByActivity(t *testing.T) {
	c := newTestCache(t)
	base := time.Now()

	// Handed over out of order; last-message time wins over creation time.
	c.ReplaceAll([]model.ChatSummary{
		{ID: 1, Title: "idle", CreatedAt: base.Add(-3 * time.Hour)},
		{ID: 2, Title: "busy", CreatedAt: base.Add(-2 * time.Hour), LastMessageAt: base},
		{ID: 3, Title: "recent", CreatedAt: base.Add(-time.Hour)},
	})

	got := c.Summaries()
	if len(got) != 3 {
		t.Fatalf("got %d summaries, want 3", len(got))
	}
	wantOrder := []int64{2, 3, 1}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Errorf("Summaries()[%d].ID = %d, want %d", i, got[i].ID, want)
		}
	}
}

func TestSessionCache_ReplaceAllFiltersDuplicates(t *testing.T) {
	c := newTestCache(t)
	base := time.Now()

	c.ReplaceAll([]model.ChatSummary{
		{ID: 1, Title: "first", CreatedAt: base},
		{ID: 1, Title: "second", CreatedAt: base.Add(time.Minute)},
	})

	got := c.Summaries()
	if len(got) != 1 {
		t.Fatalf("got %d summaries, want 1", len(got))
	}
	if got[0].Title != "first" {
		t.Errorf("Title = %q, the first occurrence should win", got[0].Title)
	}
}

func TestSessionCache_EmptyListIsStale(t *testing.T) {
	c := newTestCache(t)
	if !c.SummariesStale() {
		t.Error("an empty cache should be stale")
	}

	c.ReplaceAll(nil)
	if !c.SummariesStale() {
		t.Error("an empty list is stale even right after ReplaceAll")
	}
}

func TestSessionCache_SummariesStaleAfterTTL(t *testing.T) {
	c := newTestCache(t)
	c.ReplaceAll([]model.ChatSummary{summary(1, "a")})

	base := time.Now()
	c.now = func() time.Time { return base.Add(SummaryTTL + time.Minute) }

	if !c.SummariesStale() {
		t.Error("list should be stale after the TTL")
	}
}

func TestSessionCache_ReplaceAllPreservesMessages(t *testing.T) {
	c := newTestCache(t)
	c.ReplaceAll([]model.ChatSummary{summary(1, "a")})
	c.PutMessages(1, []model.Message{model.NewUserMessage(1, "hi")})

	c.ReplaceAll([]model.ChatSummary{summary(1, "a renamed"), summary(2, "b")})

	msgs, ok := c.GetMessages(1)
	if !ok || len(msgs) != 1 {
		t.Errorf("messages lost across ReplaceAll: %v, %v", msgs, ok)
	}
	if _, ok := c.GetMessages(2); ok {
		t.Error("chat 2 should not be materialized")
	}
}

func TestSessionCache_ReplaceAllKeepsLocalChats(t *testing.T) {
	c := newTestCache(t)
	base := time.Now()
	c.UpsertSummary(model.ChatSummary{ID: -1, Title: "draft", CreatedAt: base})

	c.ReplaceAll([]model.ChatSummary{{ID: 1, Title: "synced", CreatedAt: base.Add(-time.Hour)}})

	got := c.Summaries()
	if len(got) != 2 {
		t.Fatalf("got %d summaries, want 2", len(got))
	}
	if got[0].ID != -1 {
		t.Errorf("draft has the latest activity and should sort first, got %+v", got)
	}
}

func TestSessionCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	c := newTestCache(t)

	base := time.Now()
	tick := 0
	c.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := int64(1); i <= int64(MaxEntries); i++ {
		c.UpsertSummary(summary(i, "chat"))
	}
	// Touch chat 1 so chat 2 becomes the eviction candidate.
	c.MarkAccessed(1)

	c.UpsertSummary(summary(100, "new"))

	got := c.Summaries()
	if len(got) != MaxEntries {
		t.Fatalf("got %d entries, want %d", len(got), MaxEntries)
	}
	for _, s := range got {
		if s.ID == 2 {
			t.Error("chat 2 should have been evicted")
		}
	}
	found := false
	for _, s := range got {
		if s.ID == 1 {
			found = true
		}
	}
	if !found {
		t.Error("recently accessed chat 1 should survive eviction")
	}
}

func TestSessionCache_Rehome(t *testing.T) {
	c := newTestCache(t)
	c.UpsertSummary(summary(-3, "draft"))
	c.PutMessages(-3, []model.Message{model.NewUserMessage(-3, "hi")})

	c.Rehome(-3, 42)

	msgs, ok := c.GetMessages(42)
	if !ok || len(msgs) != 1 {
		t.Fatalf("messages not rehomed: %v, %v", msgs, ok)
	}
	if msgs[0].ChatID != 42 {
		t.Errorf("message ChatID = %d, want 42", msgs[0].ChatID)
	}
	if _, ok := c.GetMessages(-3); ok {
		t.Error("old id should be gone")
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestSessionCache_PutMessagesUpdatesSummary(t *testing.T) {
	c := newTestCache(t)
	c.UpsertSummary(summary(1, "a"))

	c.PutMessages(1, []model.Message{
		model.NewUserMessage(1, "question"),
		{ID: model.ServerID(2), ChatID: 1, Role: model.RoleAssistant, Content: "answer", CreatedAt: time.Now()},
	})

	got := c.Summaries()
	if got[0].MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", got[0].MessageCount)
	}
	if got[0].LastMessage != "answer" {
		t.Errorf("LastMessage = %q", got[0].LastMessage)
	}
}

func TestSessionCache_GetMessagesReturnsCopy(t *testing.T) {
	c := newTestCache(t)
	c.PutMessages(1, []model.Message{model.NewUserMessage(1, "original")})

	msgs, _ := c.GetMessages(1)
	msgs[0].Content = "mutated"

	again, _ := c.GetMessages(1)
	if again[0].Content != "original" {
		t.Error("cache content was mutated through a returned slice")
	}
}

func TestSessionCache_ShouldRefetch(t *testing.T) {
	c := newTestCache(t)
	c.UpsertSummary(summary(1, "a"))

	if !c.ShouldRefetch(1) {
		t.Error("unmaterialized chat should refetch")
	}
	if !c.ShouldRefetch(99) {
		t.Error("unknown chat should refetch")
	}

	c.PutMessages(1, []model.Message{model.NewUserMessage(1, "hi")})
	if c.ShouldRefetch(1) {
		t.Error("fresh materialized chat should not refetch")
	}

	base := time.Now()
	c.now = func() time.Time { return base.Add(EntryTTL + time.Minute) }
	if !c.ShouldRefetch(1) {
		t.Error("stale entry should refetch")
	}

	if c.ShouldRefetch(-5) {
		t.Error("local chats have nothing to fetch")
	}
}

func TestSessionCache_MarkAccessedKeepsMessagesFresh(t *testing.T) {
	c := newTestCache(t)
	c.PutMessages(1, []model.Message{model.NewUserMessage(1, "hi")})

	base := time.Now()
	offset := time.Duration(0)
	c.now = func() time.Time { return base.Add(offset) }

	offset = EntryTTL - time.Minute
	c.MarkAccessed(1)
	if c.ShouldRefetch(1) {
		t.Error("entry should be fresh immediately after MarkAccessed")
	}

	// Still within EntryTTL of the last access, even though the fetch is
	// long past.
	offset = 2*EntryTTL - 2*time.Minute
	if c.ShouldRefetch(1) {
		t.Error("entry accessed within the window should not refetch")
	}

	offset = 3 * EntryTTL
	if !c.ShouldRefetch(1) {
		t.Error("entry should go stale once the access window passes")
	}
}

// =============================================================================
// MODEL CATALOG TESTS
// =============================================================================

func TestSessionCache_Models(t *testing.T) {
	c := newTestCache(t)

	if _, fresh := c.Models(); fresh {
		t.Error("empty catalog should not be fresh")
	}

	c.PutModels([]model.ModelInfo{{ID: "m1", Name: "One"}})
	models, fresh := c.Models()
	if !fresh || len(models) != 1 {
		t.Errorf("Models() = %v, fresh=%v", models, fresh)
	}

	base := time.Now()
	c.now = func() time.Time { return base.Add(CatalogTTL + time.Hour) }
	if _, fresh := c.Models(); fresh {
		t.Error("catalog should expire after the TTL")
	}
}

// =============================================================================
// PERSISTENCE TESTS
// =============================================================================

func TestSessionCache_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	c := NewSessionCache(store)
	c.ReplaceAll([]model.ChatSummary{summary(1, "kept")})
	c.PutMessages(1, []model.Message{model.NewUserMessage(1, "hello")})
	c.PutModels([]model.ModelInfo{{ID: "m1"}})

	store2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	c2 := NewSessionCache(store2)

	if got := c2.Summaries(); len(got) != 1 || got[0].Title != "kept" {
		t.Errorf("summaries not restored: %+v", got)
	}
	msgs, ok := c2.GetMessages(1)
	if !ok || len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Errorf("messages not restored: %v, %v", msgs, ok)
	}
	if models, _ := c2.Models(); len(models) != 1 {
		t.Errorf("models not restored: %v", models)
	}
}

func TestSessionCache_CorruptBlobLoadsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Set(chatsKey, []byte("{not json")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	c := NewSessionCache(store)
	if got := c.Summaries(); len(got) != 0 {
		t.Errorf("corrupt blob should load empty, got %+v", got)
	}
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Get(string) ([]byte, error)  { return nil, errors.New("disk gone") }
func (brokenStore) Set(string, []byte) error    { return errors.New("disk gone") }
func (brokenStore) Delete(string) error         { return errors.New("disk gone") }

func TestSessionCache_FailsOpenOnStorageErrors(t *testing.T) {
	c := NewSessionCache(brokenStore{})

	c.ReplaceAll([]model.ChatSummary{summary(1, "a")})
	c.PutMessages(1, []model.Message{model.NewUserMessage(1, "hi")})
	c.Clear()
	c.PutModels([]model.ModelInfo{{ID: "m"}})

	// In-memory state must keep working despite the dead store.
	if models, _ := c.Models(); len(models) != 1 {
		t.Error("in-memory catalog lost after storage failure")
	}
}

func TestSessionCache_ClearScopes(t *testing.T) {
	c := newTestCache(t)
	c.ReplaceAll([]model.ChatSummary{summary(1, "a")})
	c.PutModels([]model.ModelInfo{{ID: "m"}})

	c.Clear()
	if len(c.Summaries()) != 0 {
		t.Error("summaries survived Clear")
	}
	if models, _ := c.Models(); len(models) != 1 {
		t.Error("Clear should leave the catalog alone")
	}

	c.ClearCatalog()
	if models, _ := c.Models(); len(models) != 0 {
		t.Error("catalog survived ClearCatalog")
	}

	c.ReplaceAll([]model.ChatSummary{summary(2, "b")})
	c.PutModels([]model.ModelInfo{{ID: "m2"}})
	c.ClearAll()
	if st := c.GetStats(); st.Chats != 0 || st.Models != 0 {
		t.Errorf("stats after ClearAll = %+v", st)
	}
}
