// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeranaias/relay-tui/internal/cache"
	"github.com/jeranaias/relay-tui/internal/gateway"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/stream"
)

// =============================================================================
// TEST BACKEND
// =============================================================================

// testBackend is a scriptable stand-in for the sync backend.
type testBackend struct {
	mu       sync.Mutex
	requests []string // "METHOD /path" in arrival order
	nextID   int64

	mux *http.ServeMux
	srv *httptest.Server
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{mux: http.NewServeMux(), nextID: 100}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Method+" "+r.URL.Path)
		b.mu.Unlock()
		b.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBackend) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.requests))
	copy(out, b.requests)
	return out
}

func (b *testBackend) sawRequest(line string) bool {
	for _, r := range b.seen() {
		if r == line {
			return true
		}
	}
	return false
}

// handleAppend registers a message-append route that hands out sequential ids.
func (b *testBackend) handleAppend(chatID int64) {
	b.mux.HandleFunc(fmt.Sprintf("POST /chats/%d/messages", chatID), func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.nextID++
		id := b.nextID
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]int64{"id": id})
	})
}

// handleStream registers an SSE completion route replaying the given frames.
func (b *testBackend) handleStream(path string, frames ...string) {
	b.mux.HandleFunc("POST "+path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprint(w, f)
		}
	})
}

func contentFrame(s string) string {
	payload, _ := json.Marshal(map[string]string{"content": s})
	return "event: message\ndata: " + string(payload) + "\n\n"
}

func doneFrame() string {
	return "event: done\ndata: {\"status\": \"complete\"}\n\n"
}

func errorFrame(msg string) string {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return "event: error\ndata: " + string(payload) + "\n\n"
}

// newTestController wires a controller against the backend with a short
// decoder grace window.
func newTestController(t *testing.T, b *testBackend, token string) *Controller {
	t.Helper()
	store, err := cache.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	gw := gateway.NewClient(b.srv.URL).WithToken(token).WithMaxRetries(1)
	c := New(gw, cache.NewSessionCache(store))
	c.newDecoder = func() *stream.Decoder {
		d := stream.NewDecoder()
		d.GraceWindow = 20 * time.Millisecond
		return d
	}
	c.SetModel("test-model")
	return c
}

// selectEmptyChat makes chatID active with an empty server transcript.
func selectEmptyChat(t *testing.T, c *Controller, b *testBackend, chatID int64) {
	t.Helper()
	b.mux.HandleFunc(fmt.Sprintf("GET /chats/%d/messages", chatID), func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	})
	if err := c.SelectChat(context.Background(), chatID); err != nil {
		t.Fatalf("SelectChat: %v", err)
	}
}

// =============================================================================
// SEND
// =============================================================================

func TestController_SendStreamsReply(t *testing.T) {
	b := newTestBackend(t)
	b.handleAppend(7)
	b.handleStream("/completions", contentFrame("Hello"), contentFrame("Hello world"), doneFrame())

	c := newTestController(t, b, "tok")
	selectEmptyChat(t, c, b, 7)

	var changes atomic.Int64
	c.OnChange = func() { changes.Add(1) }

	if err := c.Send(context.Background(), "hi there", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "hi there" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != "Hello world" {
		t.Errorf("assistant message = %+v", msgs[1])
	}
	if msgs[0].ID.IsLocal() {
		t.Error("user message should have been promoted to a server id")
	}
	if msgs[1].ID.IsLocal() {
		t.Error("assistant message should have been promoted to a server id")
	}
	if c.IsStreaming() {
		t.Error("streaming flag should clear after Send returns")
	}
	if changes.Load() == 0 {
		t.Error("OnChange never fired")
	}

	// Both messages were persisted, in order.
	var appends int
	for _, r := range b.seen() {
		if r == "POST /chats/7/messages" {
			appends++
		}
	}
	if appends != 2 {
		t.Errorf("got %d message appends, want 2", appends)
	}
}

func TestController_SendSyncsLocalChat(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("POST /chats/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 12, "title": "hi"})
	})
	b.handleAppend(12)
	b.handleStream("/completions", contentFrame("ok"), doneFrame())

	c := newTestController(t, b, "tok")
	localID := c.NewLocalChat("draft")
	if localID >= 0 {
		t.Fatalf("local chat id = %d, want negative", localID)
	}

	if err := c.Send(context.Background(), "hi", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := c.ActiveChat(); got != 12 {
		t.Errorf("ActiveChat = %d, want 12", got)
	}
	for _, m := range c.Messages() {
		if m.ChatID != 12 {
			t.Errorf("message still homed on %d", m.ChatID)
		}
	}
}

func TestController_GuestSendStaysLocal(t *testing.T) {
	b := newTestBackend(t)
	b.handleStream("/guest/completions", contentFrame("guest reply"), doneFrame())

	c := newTestController(t, b, "")
	localID := c.NewLocalChat("guest draft")

	if err := c.Send(context.Background(), "hello", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := c.ActiveChat(); got != localID {
		t.Errorf("ActiveChat = %d, want %d (guest chats never sync)", got, localID)
	}
	if b.sawRequest("POST /chats/") {
		t.Error("guest send should not create a server chat")
	}
	msgs := c.Messages()
	if len(msgs) != 2 || msgs[1].Content != "guest reply" {
		t.Errorf("transcript = %+v", msgs)
	}
}

func TestController_SendFailureCopy(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCopy string
	}{
		{"missing credential", http.StatusBadRequest, missingCredentialCopy},
		{"rate limited", http.StatusTooManyRequests, rateLimitedCopy},
		{"server error", http.StatusInternalServerError, genericFailureCopy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBackend(t)
			b.handleAppend(7)
			b.mux.HandleFunc("POST /completions", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"detail": "backend says no"}`)
			})

			c := newTestController(t, b, "tok")
			selectEmptyChat(t, c, b, 7)

			if err := c.Send(context.Background(), "hi", nil); err == nil {
				t.Fatal("Send should fail")
			}

			msgs := c.Messages()
			if len(msgs) != 2 {
				t.Fatalf("got %d messages, want 2", len(msgs))
			}
			if msgs[1].Content != tt.wantCopy {
				t.Errorf("assistant copy = %q, want %q", msgs[1].Content, tt.wantCopy)
			}
			if c.IsStreaming() {
				t.Error("streaming flag stuck after failure")
			}
		})
	}
}

func TestController_ErrorFrameReplacesPartialReply(t *testing.T) {
	b := newTestBackend(t)
	b.handleAppend(7)
	b.handleStream("/completions", contentFrame("partial answ"), errorFrame("model ran out of fuel"))

	c := newTestController(t, b, "tok")
	selectEmptyChat(t, c, b, 7)

	err := c.Send(context.Background(), "hi", nil)
	var failure *stream.StreamFailure
	if !errors.As(err, &failure) {
		t.Fatalf("Send error = %v, want StreamFailure", err)
	}

	msgs := c.Messages()
	if msgs[1].Content != "model ran out of fuel" {
		t.Errorf("assistant content = %q, want the error text", msgs[1].Content)
	}
}

func TestController_SendWhileStreaming(t *testing.T) {
	b := newTestBackend(t)
	c := newTestController(t, b, "tok")
	c.mu.Lock()
	c.activeChat = 7
	c.streaming = true
	c.mu.Unlock()

	if err := c.Send(context.Background(), "hi", nil); !errors.Is(err, ErrStreamInProgress) {
		t.Errorf("Send error = %v, want ErrStreamInProgress", err)
	}
}

func TestController_SendWithoutChat(t *testing.T) {
	b := newTestBackend(t)
	c := newTestController(t, b, "tok")

	if err := c.Send(context.Background(), "hi", nil); !errors.Is(err, ErrNoActiveChat) {
		t.Errorf("Send error = %v, want ErrNoActiveChat", err)
	}
}

func TestController_SendEmbedsAttachments(t *testing.T) {
	b := newTestBackend(t)
	b.handleAppend(7)

	var gotTurns []gateway.ChatTurn
	b.mux.HandleFunc("POST /completions", func(w http.ResponseWriter, r *http.Request) {
		var req gateway.CompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		gotTurns = req.Messages
		b.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, contentFrame("noted"), doneFrame())
	})

	c := newTestController(t, b, "tok")
	selectEmptyChat(t, c, b, 7)

	att := []model.Attachment{{Name: "notes.txt", Text: "remember the milk"}}
	if err := c.Send(context.Background(), "see attached", att); err != nil {
		t.Fatalf("Send: %v", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(gotTurns) != 1 {
		t.Fatalf("got %d turns, want 1", len(gotTurns))
	}
	if !strings.Contains(gotTurns[0].Content, "--- notes.txt ---") ||
		!strings.Contains(gotTurns[0].Content, "remember the milk") {
		t.Errorf("attachment not embedded: %q", gotTurns[0].Content)
	}
}

func TestController_SendRejectsEmptyMessage(t *testing.T) {
	b := newTestBackend(t)
	c := newTestController(t, b, "tok")
	selectEmptyChat(t, c, b, 7)

	if err := c.Send(context.Background(), "   \n", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Send error = %v, want ErrEmptyMessage", err)
	}
	if got := c.Messages(); len(got) != 0 {
		t.Errorf("an empty send should not touch the transcript, got %+v", got)
	}

	// Attachments alone are enough to send.
	b.handleAppend(7)
	b.handleStream("/completions", contentFrame("got it"), doneFrame())
	att := []model.Attachment{{Name: "log.txt", Text: "stack trace"}}
	if err := c.Send(context.Background(), "", att); err != nil {
		t.Fatalf("Send with attachments: %v", err)
	}
}

func TestController_SendAbortsWhenPersistFails(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("POST /chats/7/messages", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "db down"}`, http.StatusInternalServerError)
	})
	b.handleStream("/completions", contentFrame("should never stream"), doneFrame())

	c := newTestController(t, b, "tok")
	selectEmptyChat(t, c, b, 7)

	if err := c.Send(context.Background(), "hi", nil); err == nil {
		t.Fatal("Send should fail when the user message cannot be persisted")
	}

	if b.sawRequest("POST /completions") {
		t.Error("no completion should be attempted after a persist failure")
	}
	msgs := c.Messages()
	if len(msgs) != 2 || msgs[1].Content != genericFailureCopy {
		t.Errorf("assistant slot should carry failure copy, got %+v", msgs)
	}
	if c.IsStreaming() {
		t.Error("streaming flag stuck after failure")
	}
}

func TestController_StreamSnapshotsPartialToCache(t *testing.T) {
	b := newTestBackend(t)
	b.handleAppend(7)

	release := make(chan struct{})
	b.mux.HandleFunc("POST /completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, contentFrame("partial reply"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
		fmt.Fprint(w, doneFrame())
	})

	c := newTestController(t, b, "tok")
	selectEmptyChat(t, c, b, 7)

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "hi", nil) }()

	// The partial reply must land in the cache while the stream is still
	// open, so a restart mid-stream repaints it.
	deadline := time.After(2 * time.Second)
	for {
		msgs, ok := c.cache.GetMessages(7)
		if ok && len(msgs) == 2 && msgs[1].Content == "partial reply" {
			break
		}
		select {
		case <-deadline:
			close(release)
			t.Fatalf("cache never saw the partial reply, got %v", msgs)
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestController_SendRefreshesChatListAfterStream(t *testing.T) {
	b := newTestBackend(t)
	b.handleAppend(7)
	b.handleStream("/completions", contentFrame("done deal"), doneFrame())
	b.mux.HandleFunc("GET /chats/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 7, "title": "busy chat"}]`)
	})

	c := newTestController(t, b, "tok")
	selectEmptyChat(t, c, b, 7)

	if err := c.Send(context.Background(), "hi", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !b.sawRequest("GET /chats/") {
		t.Error("a completed stream should trigger a chat list refresh")
	}
}

// =============================================================================
// REGENERATE
// =============================================================================

func TestController_Regenerate(t *testing.T) {
	b := newTestBackend(t)
	b.handleAppend(7)
	b.handleStream("/completions", contentFrame("a better answer"), doneFrame())
	b.mux.HandleFunc("DELETE /chats/7/messages/regenerate/55", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	b.mux.HandleFunc("GET /chats/7/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 54, "role": "user", "content": "question", "created_at": time.Now()},
			{"id": 55, "role": "assistant", "content": "weak answer", "created_at": time.Now()},
		})
	})

	c := newTestController(t, b, "tok")
	if err := c.SelectChat(context.Background(), 7); err != nil {
		t.Fatalf("SelectChat: %v", err)
	}

	target := c.Messages()[1].ID
	if err := c.Regenerate(context.Background(), target, ""); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[1].Content != "a better answer" {
		t.Errorf("regenerated content = %q", msgs[1].Content)
	}
	if !b.sawRequest("DELETE /chats/7/messages/regenerate/55") {
		t.Error("old reply was not deleted on the backend")
	}
}

func TestController_RegenerateDeleteFailureIsNonFatal(t *testing.T) {
	b := newTestBackend(t)
	b.handleAppend(7)
	b.handleStream("/completions", contentFrame("retry answer"), doneFrame())
	b.mux.HandleFunc("DELETE /chats/7/messages/regenerate/55", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "boom"}`, http.StatusInternalServerError)
	})
	b.mux.HandleFunc("GET /chats/7/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 54, "role": "user", "content": "question", "created_at": time.Now()},
			{"id": 55, "role": "assistant", "content": "weak answer", "created_at": time.Now()},
		})
	})

	c := newTestController(t, b, "tok")
	if err := c.SelectChat(context.Background(), 7); err != nil {
		t.Fatalf("SelectChat: %v", err)
	}

	target := c.Messages()[1].ID
	if err := c.Regenerate(context.Background(), target, ""); err != nil {
		t.Fatalf("Regenerate should succeed despite delete failure, got %v", err)
	}
	if got := c.Messages()[1].Content; got != "retry answer" {
		t.Errorf("content = %q", got)
	}
}

func TestController_RegenerateWithoutReply(t *testing.T) {
	b := newTestBackend(t)
	c := newTestController(t, b, "tok")
	selectEmptyChat(t, c, b, 7)

	if err := c.Regenerate(context.Background(), model.ServerID(99), ""); !errors.Is(err, ErrNothingToRegenerate) {
		t.Errorf("Regenerate error = %v, want ErrNothingToRegenerate", err)
	}
}

func TestController_RegenerateLocalReplyIsNoop(t *testing.T) {
	b := newTestBackend(t)
	c := newTestController(t, b, "tok")
	c.mu.Lock()
	c.activeChat = 7
	c.messages = []model.Message{
		model.NewUserMessage(7, "q"),
		model.NewAssistantMessage(7, "test-model"),
	}
	c.messages[1].Content = "draft reply"
	target := c.messages[1].ID
	c.mu.Unlock()

	if err := c.Regenerate(context.Background(), target, ""); err != nil {
		t.Fatalf("Regenerate on an unpersisted reply should be a no-op, got %v", err)
	}
	if got := c.Messages(); len(got) != 2 || got[1].Content != "draft reply" {
		t.Errorf("transcript changed: %+v", got)
	}
	if seen := b.seen(); len(seen) != 0 {
		t.Errorf("no backend calls expected, saw %v", seen)
	}
}

func TestController_RegenerateNeedsPrecedingUserMessage(t *testing.T) {
	b := newTestBackend(t)
	c := newTestController(t, b, "tok")
	c.mu.Lock()
	c.activeChat = 7
	c.messages = []model.Message{
		{ID: model.ServerID(55), ChatID: 7, Role: model.RoleAssistant, Content: "greeting"},
	}
	c.mu.Unlock()

	if err := c.Regenerate(context.Background(), model.ServerID(55), ""); err != nil {
		t.Fatalf("Regenerate without a user turn should be a no-op, got %v", err)
	}
	if got := c.Messages(); len(got) != 1 || got[0].Content != "greeting" {
		t.Errorf("transcript changed: %+v", got)
	}
	if seen := b.seen(); len(seen) != 0 {
		t.Errorf("no backend calls expected, saw %v", seen)
	}
}

func TestController_RegenerateModelOverride(t *testing.T) {
	b := newTestBackend(t)
	b.handleAppend(7)
	b.mux.HandleFunc("DELETE /chats/7/messages/regenerate/55", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	var gotModel string
	b.mux.HandleFunc("POST /completions", func(w http.ResponseWriter, r *http.Request) {
		var req gateway.CompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		gotModel = req.Model
		b.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, contentFrame("alt answer"), doneFrame())
	})
	b.mux.HandleFunc("GET /chats/7/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 54, "role": "user", "content": "question", "created_at": time.Now()},
			{"id": 55, "role": "assistant", "content": "weak answer", "created_at": time.Now()},
		})
	})

	c := newTestController(t, b, "tok")
	if err := c.SelectChat(context.Background(), 7); err != nil {
		t.Fatalf("SelectChat: %v", err)
	}

	target := c.Messages()[1].ID
	if err := c.Regenerate(context.Background(), target, "bigger-model"); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if gotModel != "bigger-model" {
		t.Errorf("completion model = %q, want the override", gotModel)
	}
	if got := c.Messages()[1].Model; got != "bigger-model" {
		t.Errorf("reply model = %q, want bigger-model", got)
	}
}

// =============================================================================
// FORK
// =============================================================================

func TestController_Fork(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("POST /chats/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 30, "title": "forked"})
	})

	var replayed []string
	b.mux.HandleFunc("POST /chats/30/messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		replayed = append(replayed, req.Role+":"+req.Content)
		b.nextID++
		id := b.nextID
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]int64{"id": id})
	})
	b.mux.HandleFunc("GET /chats/7/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "role": "user", "content": "q1", "created_at": time.Now()},
			{"id": 2, "role": "assistant", "content": "a1", "created_at": time.Now()},
		})
	})

	c := newTestController(t, b, "tok")
	if err := c.SelectChat(context.Background(), 7); err != nil {
		t.Fatalf("SelectChat: %v", err)
	}

	msgs := c.Messages()
	newID, err := c.Fork(context.Background(), "forked", msgs[len(msgs)-1].ID)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if newID != 30 {
		t.Errorf("fork id = %d, want 30", newID)
	}
	if got := c.ActiveChat(); got != 30 {
		t.Errorf("ActiveChat = %d, the fork should become the selected chat", got)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	want := []string{"user:q1", "assistant:a1"}
	if len(replayed) != len(want) {
		t.Fatalf("replayed %v, want %v", replayed, want)
	}
	for i := range want {
		if replayed[i] != want[i] {
			t.Errorf("replay[%d] = %q, want %q", i, replayed[i], want[i])
		}
	}
}

func TestController_ForkAtMessageReplaysPrefix(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("POST /chats/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 30, "title": "forked"})
	})

	var replayed []string
	b.mux.HandleFunc("POST /chats/30/messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		replayed = append(replayed, req.Role+":"+req.Content)
		b.nextID++
		id := b.nextID
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]int64{"id": id})
	})
	b.mux.HandleFunc("GET /chats/7/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "role": "user", "content": "q1", "created_at": time.Now()},
			{"id": 2, "role": "assistant", "content": "a1", "created_at": time.Now()},
			{"id": 3, "role": "user", "content": "q2", "created_at": time.Now()},
		})
	})

	c := newTestController(t, b, "tok")
	if err := c.SelectChat(context.Background(), 7); err != nil {
		t.Fatalf("SelectChat: %v", err)
	}

	// Fork at the first assistant reply; the later user turn stays behind.
	forkPoint := c.Messages()[1].ID
	newID, err := c.Fork(context.Background(), "forked", forkPoint)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}

	b.mu.Lock()
	got := make([]string, len(replayed))
	copy(got, replayed)
	b.mu.Unlock()

	want := []string{"user:q1", "assistant:a1"}
	if len(got) != len(want) {
		t.Fatalf("replayed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("replay[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if c.ActiveChat() != newID {
		t.Errorf("ActiveChat = %d, want %d", c.ActiveChat(), newID)
	}
	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("transcript holds %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.ChatID != newID {
			t.Errorf("message still homed on %d", m.ChatID)
		}
	}
}

func TestController_ForkUnknownMessage(t *testing.T) {
	b := newTestBackend(t)
	c := newTestController(t, b, "tok")
	selectEmptyChat(t, c, b, 7)

	if _, err := c.Fork(context.Background(), "", model.ServerID(999)); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("Fork error = %v, want ErrMessageNotFound", err)
	}
}

func TestController_ForkKeepsPartialOnFailure(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("POST /chats/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 31, "title": "forked"})
	})

	var replayCount atomic.Int64
	b.mux.HandleFunc("POST /chats/31/messages", func(w http.ResponseWriter, r *http.Request) {
		if replayCount.Add(1) > 1 {
			http.Error(w, `{"detail": "full"}`, http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]int64{"id": 900})
	})
	b.mux.HandleFunc("GET /chats/7/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "role": "user", "content": "q1", "created_at": time.Now()},
			{"id": 2, "role": "assistant", "content": "a1", "created_at": time.Now()},
		})
	})

	c := newTestController(t, b, "tok")
	if err := c.SelectChat(context.Background(), 7); err != nil {
		t.Fatalf("SelectChat: %v", err)
	}

	// The fork itself succeeds; the partial replay is kept as-is.
	msgs := c.Messages()
	newID, err := c.Fork(context.Background(), "forked", msgs[len(msgs)-1].ID)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	msgs, ok := c.cache.GetMessages(newID)
	if !ok || len(msgs) != 1 {
		t.Errorf("partial fork should cache 1 message, got %v (ok=%v)", msgs, ok)
	}
}

// =============================================================================
// SELECTION AND LISTS
// =============================================================================

func TestController_SelectChatPaintsFromCache(t *testing.T) {
	b := newTestBackend(t)
	// No GET route registered: a fetch would fail loudly.

	c := newTestController(t, b, "tok")
	c.cache.PutMessages(5, []model.Message{
		{ID: model.ServerID(1), ChatID: 5, Role: model.RoleUser, Content: "cached", CreatedAt: time.Now()},
	})

	if err := c.SelectChat(context.Background(), 5); err != nil {
		t.Fatalf("SelectChat: %v", err)
	}
	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Content != "cached" {
		t.Errorf("transcript = %+v", msgs)
	}
	if b.sawRequest("GET /chats/5/messages") {
		t.Error("fresh cache entry should not trigger a fetch")
	}
}

func TestController_SelectChatFallsBackToStaleCache(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("GET /chats/5/messages", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "down"}`, http.StatusInternalServerError)
	})

	c := newTestController(t, b, "tok")
	c.cache.PutMessages(5, []model.Message{
		{ID: model.ServerID(1), ChatID: 5, Role: model.RoleUser, Content: "stale but present", CreatedAt: time.Now()},
	})
	// Age the entry past its freshness window.
	c.cache.SetClock(func() time.Time { return time.Now().Add(cache.EntryTTL + time.Minute) })

	if err := c.SelectChat(context.Background(), 5); err != nil {
		t.Fatalf("SelectChat should fall back to cache, got %v", err)
	}
	if got := c.Messages()[0].Content; got != "stale but present" {
		t.Errorf("content = %q", got)
	}
}

func TestController_RefreshChatsFallsBackToCache(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("GET /chats/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "down"}`, http.StatusInternalServerError)
	})

	c := newTestController(t, b, "tok")
	c.cache.ReplaceAll([]model.ChatSummary{{ID: 1, Title: "kept"}})

	got, err := c.RefreshChats(context.Background())
	if err != nil {
		t.Fatalf("RefreshChats should serve the cache, got %v", err)
	}
	if len(got) != 1 || got[0].Title != "kept" {
		t.Errorf("summaries = %+v", got)
	}
}

func TestController_ModelsCachedWithinTTL(t *testing.T) {
	b := newTestBackend(t)
	var calls atomic.Int64
	b.mux.HandleFunc("GET /models", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"models": [{"id": "m1", "name": "One"}]}`)
	})

	c := newTestController(t, b, "tok")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		models, err := c.Models(ctx)
		if err != nil {
			t.Fatalf("Models: %v", err)
		}
		if len(models) != 1 || models[0].ID != "m1" {
			t.Errorf("models = %+v", models)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("backend hit %d times, want 1", calls.Load())
	}
}

// =============================================================================
// FAILURE COPY
// =============================================================================

func TestFriendlyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"missing credential", &gateway.GatewayError{Status: 400, Message: "no key"}, missingCredentialCopy},
		{"rate limited", &gateway.GatewayError{Status: 429, Message: "slow down"}, rateLimitedCopy},
		{"stream failure", &stream.StreamFailure{Message: "upstream died"}, "upstream died"},
		{"anything else", errors.New("weird"), genericFailureCopy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := friendlyFailure(tt.err); got != tt.want {
				t.Errorf("friendlyFailure() = %q, want %q", got, tt.want)
			}
		})
	}
}
