// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package controller orchestrates chats: optimistic sends, streamed replies,
// regeneration, and forking, on top of the gateway client and session cache.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/relay-tui/internal/cache"
	"github.com/jeranaias/relay-tui/internal/gateway"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/stream"
)

// =============================================================================
// ERRORS AND USER-FACING COPY
// =============================================================================

var (
	// ErrStreamInProgress is returned when a send or regenerate is attempted
	// while a reply is still streaming.
	ErrStreamInProgress = errors.New("a reply is already streaming")

	// ErrNoActiveChat is returned when an operation needs a selected chat.
	ErrNoActiveChat = errors.New("no chat selected")

	// ErrNothingToRegenerate is returned when the transcript holds no
	// assistant reply to regenerate.
	ErrNothingToRegenerate = errors.New("nothing to regenerate")

	// ErrEmptyMessage is returned when a send carries neither text nor
	// attachments.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageNotFound is returned when an operation targets a message
	// that is not in the visible transcript.
	ErrMessageNotFound = errors.New("message not found in transcript")
)

const (
	missingCredentialCopy = "An API credential is required for this model. Add one in Settings and try again."
	rateLimitedCopy       = "You're sending messages too quickly. Wait a moment and try again."
	genericFailureCopy    = "Something went wrong while generating a reply. Please try again."
)

// friendlyFailure converts a streaming or transport error into the text
// shown in place of the assistant reply.
func friendlyFailure(err error) string {
	switch {
	case errors.Is(err, gateway.ErrMissingCredential):
		return missingCredentialCopy
	case errors.Is(err, gateway.ErrRateLimited):
		return rateLimitedCopy
	}
	var failure *stream.StreamFailure
	if errors.As(err, &failure) && failure.Message != "" {
		return failure.Message
	}
	return genericFailureCopy
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the transcript of the selected chat and drives every
// conversation operation against the backend.
//
// The mutex guards transcript state only. Network calls run outside the
// lock; overlapping operations on the same chat are last-writer-wins, which
// matches the backend's own semantics. At most one reply streams at a time.
type Controller struct {
	mu sync.Mutex

	gw    *gateway.Client
	cache *cache.SessionCache

	activeChat int64
	messages   []model.Message
	modelID    string

	streaming    bool
	cancelStream context.CancelFunc
	localSeq     int64

	// newDecoder builds the stream decoder; replaceable in tests.
	newDecoder func() *stream.Decoder

	// OnChange, if set, is called after every visible transcript mutation.
	// It must be cheap and must not call back into the controller.
	OnChange func()
}

// New creates a controller. The cache may be shared with other components.
func New(gw *gateway.Client, sc *cache.SessionCache) *Controller {
	return &Controller{
		gw:         gw,
		cache:      sc,
		newDecoder: stream.NewDecoder,
	}
}

// SetModel selects the model used for subsequent completions.
func (c *Controller) SetModel(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modelID = id
}

// Model returns the selected model id.
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modelID
}

// ActiveChat returns the selected chat id (0 when none).
func (c *Controller) ActiveChat() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeChat
}

// IsStreaming returns true while a reply is being streamed.
func (c *Controller) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// Messages returns a copy of the visible transcript.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// CancelStream aborts the in-flight reply, if any. Partial content already
// received stays in the transcript.
func (c *Controller) CancelStream() {
	c.mu.Lock()
	cancel := c.cancelStream
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// notify fires the change hook outside the lock.
func (c *Controller) notify() {
	if c.OnChange != nil {
		c.OnChange()
	}
}

// =============================================================================
// CHAT SELECTION
// =============================================================================

// SelectChat makes a chat active, painting its transcript from the cache
// when fresh and fetching from the backend otherwise.
func (c *Controller) SelectChat(ctx context.Context, chatID int64) error {
	if !c.cache.ShouldRefetch(chatID) {
		msgs, _ := c.cache.GetMessages(chatID)
		c.mu.Lock()
		c.activeChat = chatID
		c.messages = msgs
		c.mu.Unlock()
		c.cache.MarkAccessed(chatID)
		c.notify()
		return nil
	}

	msgs, err := c.gw.ListMessages(ctx, chatID)
	if err != nil {
		// Stale cache beats an empty screen.
		if cached, ok := c.cache.GetMessages(chatID); ok {
			c.mu.Lock()
			c.activeChat = chatID
			c.messages = cached
			c.mu.Unlock()
			c.notify()
			return nil
		}
		return fmt.Errorf("failed to load chat %d: %w", chatID, err)
	}

	c.cache.PutMessages(chatID, msgs)
	c.cache.MarkAccessed(chatID)

	c.mu.Lock()
	c.activeChat = chatID
	c.messages = msgs
	c.mu.Unlock()
	c.notify()
	return nil
}

// NewLocalChat starts a chat that exists only on this client until the
// first message syncs it to the backend.
func (c *Controller) NewLocalChat(title string) int64 {
	c.mu.Lock()
	c.localSeq--
	id := c.localSeq
	c.activeChat = id
	c.messages = nil
	c.mu.Unlock()

	c.cache.UpsertSummary(model.ChatSummary{ID: id, Title: title, CreatedAt: time.Now()})
	c.notify()
	return id
}

// RefreshChats reloads the chat list from the backend. On transport failure
// the cached list, if any, keeps serving and no error is returned.
func (c *Controller) RefreshChats(ctx context.Context) ([]model.ChatSummary, error) {
	summaries, err := c.gw.ListChats(ctx)
	if err != nil {
		cached := c.cache.Summaries()
		if len(cached) > 0 {
			log.Printf("controller: chat list refresh failed, serving cache: %v", err)
			return cached, nil
		}
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	c.cache.ReplaceAll(summaries)
	return c.cache.Summaries(), nil
}

// Summaries returns the cached chat list, refreshing it first when stale.
func (c *Controller) Summaries(ctx context.Context) ([]model.ChatSummary, error) {
	if c.cache.SummariesStale() {
		return c.RefreshChats(ctx)
	}
	return c.cache.Summaries(), nil
}

// Models returns the model catalog, served from the cache within its TTL.
// A fetch failure falls back to the stale catalog when one exists.
func (c *Controller) Models(ctx context.Context) ([]model.ModelInfo, error) {
	if models, fresh := c.cache.Models(); fresh {
		return models, nil
	}

	models, err := c.gw.ListModels(ctx)
	if err != nil {
		if stale, _ := c.cache.Models(); len(stale) > 0 {
			log.Printf("controller: model catalog refresh failed, serving cache: %v", err)
			return stale, nil
		}
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	c.cache.PutModels(models)
	return models, nil
}

// RenameChat renames the active chat on the backend and in the cache.
func (c *Controller) RenameChat(ctx context.Context, title string) error {
	c.mu.Lock()
	chatID := c.activeChat
	c.mu.Unlock()
	if chatID == 0 {
		return ErrNoActiveChat
	}

	if chatID > 0 {
		if err := c.gw.RenameChat(ctx, chatID, title); err != nil {
			return fmt.Errorf("failed to rename chat: %w", err)
		}
	}

	for _, s := range c.cache.Summaries() {
		if s.ID == chatID {
			s.Title = title
			c.cache.UpsertSummary(s)
			break
		}
	}
	c.notify()
	return nil
}

// =============================================================================
// SEND
// =============================================================================

// Send appends the user's message optimistically, streams the assistant
// reply, and persists both to the backend. On failure the assistant
// placeholder carries user-facing error copy instead of a reply; the
// optimistic user message is never rolled back.
func (c *Controller) Send(ctx context.Context, content string, attachments []model.Attachment) error {
	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return ErrStreamInProgress
	}
	if c.activeChat == 0 {
		c.mu.Unlock()
		return ErrNoActiveChat
	}
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		c.mu.Unlock()
		return ErrEmptyMessage
	}
	chatID := c.activeChat
	modelID := c.modelID

	userMsg := model.NewUserMessage(chatID, content)
	userMsg.Attachments = attachments
	asstMsg := model.NewAssistantMessage(chatID, modelID)

	c.messages = append(c.messages, userMsg, asstMsg)
	userIdx := len(c.messages) - 2
	asstIdx := len(c.messages) - 1
	c.streaming = true
	c.mu.Unlock()
	c.notify()

	defer c.clearStreaming()

	// A local chat syncs to the backend on first send, unless we are a
	// guest, in which case it stays client-side.
	chatID, err := c.ensureServerChat(ctx, chatID, content)
	if err != nil {
		c.failAssistant(asstIdx, err)
		return err
	}

	// Persist the user message before streaming so regenerate has a server
	// id to anchor on. A persistence failure aborts the send: streaming
	// against a transcript the backend never saw would let the two
	// histories diverge.
	if chatID > 0 {
		serverID, err := c.gw.AppendMessage(ctx, chatID, model.RoleUser, userMsg.OutgoingContent(), modelID)
		if err != nil {
			c.failAssistant(asstIdx, err)
			return fmt.Errorf("failed to persist message: %w", err)
		}
		c.mu.Lock()
		if userIdx < len(c.messages) {
			if err := c.messages[userIdx].ID.Promote(serverID); err != nil {
				log.Printf("controller: promote user message: %v", err)
			}
		}
		c.mu.Unlock()
	}

	return c.streamReply(ctx, chatID, asstIdx)
}

// ensureServerChat creates the chat on the backend if it is still local.
// Guests keep chatting against the negative id.
func (c *Controller) ensureServerChat(ctx context.Context, chatID int64, firstContent string) (int64, error) {
	if chatID > 0 || !c.gw.IsAuthenticated() {
		return chatID, nil
	}

	title := model.Message{Content: firstContent}.Preview(50)
	serverID, err := c.gw.CreateChat(ctx, title, c.Model())
	if err != nil {
		return chatID, fmt.Errorf("failed to create chat: %w", err)
	}

	c.cache.Rehome(chatID, serverID)
	c.mu.Lock()
	c.activeChat = serverID
	for i := range c.messages {
		c.messages[i].ChatID = serverID
	}
	c.mu.Unlock()
	return serverID, nil
}

// streamReply runs the completion stream into the assistant placeholder at
// asstIdx, then persists and caches the outcome.
func (c *Controller) streamReply(ctx context.Context, chatID int64, asstIdx int) error {
	c.mu.Lock()
	prompt := make([]model.Message, asstIdx)
	copy(prompt, c.messages[:asstIdx])
	// The placeholder carries the model for this reply, which may differ
	// from the session default on a regenerate override.
	modelID := c.modelID
	if asstIdx < len(c.messages) && c.messages[asstIdx].Model != "" {
		modelID = c.messages[asstIdx].Model
	}
	streamCtx, cancel := context.WithCancel(ctx)
	c.cancelStream = cancel
	c.mu.Unlock()
	defer cancel()

	req := &gateway.CompletionRequest{
		ChatID:   chatID,
		Model:    modelID,
		Messages: gateway.TurnsFromMessages(prompt),
	}

	resp, err := c.gw.StreamCompletion(streamCtx, req)
	if err != nil {
		c.failAssistant(asstIdx, err)
		return fmt.Errorf("failed to start stream: %w", err)
	}

	decoder := c.newDecoder()
	decoder.OnDelta = func(full string) {
		c.setAssistantContent(asstIdx, full)
		// Snapshot every increment so a restart mid-stream still shows
		// the partial reply instead of nothing.
		c.snapshotToCache(chatID)
	}

	text, err := decoder.Decode(streamCtx, resp.Body)
	switch {
	case err == nil:
		c.setAssistantContent(asstIdx, text)
	case errors.Is(err, context.Canceled):
		// User abort keeps partial content.
		c.setAssistantContent(asstIdx, text)
	default:
		c.failAssistant(asstIdx, err)
		return err
	}

	c.persistAssistant(ctx, chatID, asstIdx, modelID)
	c.snapshotToCache(chatID)

	// Refresh the chat list so ordering and previews reflect the new
	// activity. Failure falls back to the cached list inside RefreshChats.
	if _, err := c.RefreshChats(ctx); err != nil {
		log.Printf("controller: chat list refresh after stream failed: %v", err)
	}
	return nil
}

// persistAssistant saves the finished reply to the backend and promotes its
// identity. Persistence failure is logged, not fatal; the reply is visible
// and the next fetch reconciles.
func (c *Controller) persistAssistant(ctx context.Context, chatID int64, asstIdx int, modelID string) {
	if chatID <= 0 {
		return
	}

	c.mu.Lock()
	if asstIdx >= len(c.messages) {
		c.mu.Unlock()
		return
	}
	content := c.messages[asstIdx].Content
	c.mu.Unlock()

	serverID, err := c.gw.AppendMessage(ctx, chatID, model.RoleAssistant, content, modelID)
	if err != nil {
		log.Printf("controller: failed to persist assistant message: %v", err)
		return
	}

	c.mu.Lock()
	if asstIdx < len(c.messages) {
		if err := c.messages[asstIdx].ID.Promote(serverID); err != nil {
			log.Printf("controller: promote assistant message: %v", err)
		}
	}
	c.mu.Unlock()
}

// =============================================================================
// REGENERATE
// =============================================================================

// Regenerate discards the target message and everything after it, then
// streams a fresh reply, optionally under a different model. Only a message
// the backend already knows can be regenerated, and a preceding user
// message must exist to prompt with; either guard failing is a logged
// no-op. The backend delete races the new stream; a delete failure is
// logged and the stream proceeds regardless.
func (c *Controller) Regenerate(ctx context.Context, target model.MessageID, modelOverride string) error {
	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return ErrStreamInProgress
	}
	if c.activeChat == 0 {
		c.mu.Unlock()
		return ErrNoActiveChat
	}
	chatID := c.activeChat

	asstIdx := -1
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID.Matches(target) {
			asstIdx = i
			break
		}
	}
	if asstIdx < 0 {
		c.mu.Unlock()
		return ErrNothingToRegenerate
	}
	if target.IsLocal() {
		// The backend has no row to replace yet.
		c.mu.Unlock()
		log.Printf("controller: cannot regenerate %s: not persisted yet", target)
		return nil
	}
	hasUser := false
	for i := asstIdx - 1; i >= 0; i-- {
		if c.messages[i].Role == model.RoleUser {
			hasUser = true
			break
		}
	}
	if !hasUser {
		c.mu.Unlock()
		log.Printf("controller: cannot regenerate %s: no preceding user message", target)
		return nil
	}

	modelID := c.modelID
	if modelOverride != "" {
		modelID = modelOverride
	}
	c.messages = c.messages[:asstIdx]
	asstMsg := model.NewAssistantMessage(chatID, modelID)
	c.messages = append(c.messages, asstMsg)
	c.streaming = true
	c.mu.Unlock()
	c.notify()

	defer c.clearStreaming()

	// Race the backend delete against the new stream. Losing the race is
	// harmless: the delete is anchored on the old reply's id.
	var wg sync.WaitGroup
	if serverID, ok := target.Server(); ok && chatID > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.gw.DeleteFromMessage(ctx, chatID, serverID); err != nil {
				log.Printf("controller: regenerate delete failed (non-fatal): %v", err)
			}
		}()
	}
	defer wg.Wait()

	return c.streamReply(ctx, chatID, asstIdx)
}

// =============================================================================
// FORK
// =============================================================================

// Fork copies the transcript up to and including the fork point into a
// brand new backend chat by replaying each message in order, then makes the
// fork the selected chat. Replay stops at the first failure; the partially
// forked chat is kept, never rolled back.
func (c *Controller) Fork(ctx context.Context, title string, forkPoint model.MessageID) (int64, error) {
	c.mu.Lock()
	if c.activeChat == 0 {
		c.mu.Unlock()
		return 0, ErrNoActiveChat
	}
	chatID := c.activeChat

	cut := -1
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID.Matches(forkPoint) {
			cut = i
			break
		}
	}
	if cut < 0 {
		c.mu.Unlock()
		return 0, ErrMessageNotFound
	}
	msgs := make([]model.Message, cut+1)
	copy(msgs, c.messages[:cut+1])
	modelID := c.modelID
	c.mu.Unlock()

	if title == "" {
		title = "Fork"
		for _, s := range c.cache.Summaries() {
			if s.ID == chatID {
				title = "Fork of " + s.DisplayTitle()
				break
			}
		}
	}

	newID, err := c.gw.CreateChat(ctx, title, modelID)
	if err != nil {
		return 0, fmt.Errorf("failed to create fork: %w", err)
	}

	forked := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		serverID, err := c.gw.AppendMessage(ctx, newID, m.Role, m.OutgoingContent(), m.Model)
		if err != nil {
			// Keep what replayed so far.
			log.Printf("controller: fork replay stopped at %s: %v", m.ID, err)
			break
		}
		fm := m
		fm.ID = model.ServerID(serverID)
		fm.ChatID = newID
		forked = append(forked, fm)
	}

	c.cache.UpsertSummary(model.ChatSummary{
		ID:           newID,
		Title:        title,
		MessageCount: len(forked),
		CreatedAt:    time.Now(),
	})
	c.cache.PutMessages(newID, forked)

	// The fork becomes the selected chat.
	c.mu.Lock()
	c.activeChat = newID
	c.messages = forked
	c.mu.Unlock()
	c.notify()
	return newID, nil
}

// =============================================================================
// INTERNAL STATE HELPERS
// =============================================================================

// setAssistantContent updates the streaming placeholder's visible text.
func (c *Controller) setAssistantContent(asstIdx int, content string) {
	c.mu.Lock()
	if asstIdx < len(c.messages) {
		c.messages[asstIdx].Content = content
	}
	c.mu.Unlock()
	c.notify()
}

// failAssistant replaces the placeholder content with user-facing copy.
func (c *Controller) failAssistant(asstIdx int, err error) {
	log.Printf("controller: reply failed: %v", err)
	c.setAssistantContent(asstIdx, friendlyFailure(err))
}

// clearStreaming releases the streaming state. Runs on every exit path.
func (c *Controller) clearStreaming() {
	c.mu.Lock()
	c.streaming = false
	c.cancelStream = nil
	c.mu.Unlock()
	c.notify()
}

// snapshotToCache writes the current transcript to the cache as one atomic
// message list update.
func (c *Controller) snapshotToCache(chatID int64) {
	c.mu.Lock()
	msgs := make([]model.Message, len(c.messages))
	copy(msgs, c.messages)
	c.mu.Unlock()

	// Drop placeholders that never got content.
	trimmed := msgs[:0]
	for _, m := range msgs {
		if m.Role == model.RoleAssistant && strings.TrimSpace(m.Content) == "" {
			continue
		}
		trimmed = append(trimmed, m)
	}
	c.cache.PutMessages(chatID, trimmed)
}
