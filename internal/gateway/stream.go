// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jeranaias/relay-tui/internal/model"
)

// =============================================================================
// COMPLETION STREAMING
// =============================================================================

// ChatTurn is one message of the completion prompt.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes a streaming completion call.
type CompletionRequest struct {
	ChatID   int64      `json:"chat_id,omitempty"`
	Model    string     `json:"model"`
	Messages []ChatTurn `json:"messages"`
}

// TurnsFromMessages converts transcript messages into prompt turns, using
// the outgoing form so attachments travel with the text.
func TurnsFromMessages(messages []model.Message) []ChatTurn {
	turns := make([]ChatTurn, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			continue
		}
		turns = append(turns, ChatTurn{Role: m.Role.String(), Content: m.OutgoingContent()})
	}
	return turns
}

// StreamCompletion opens a streaming completion and returns the raw SSE body
// for the stream decoder to consume. The caller owns closing the body.
//
// Authenticated clients use the completions endpoint; clients without a
// credential fall back to the guest endpoint, which the backend rate limits
// more aggressively.
func (c *Client) StreamCompletion(ctx context.Context, req *CompletionRequest) (*http.Response, error) {
	path := "/completions"
	if !c.IsAuthenticated() {
		path = "/guest/completions"
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Connection", "keep-alive")
	logRequest(httpReq)

	// Streaming lifetime is bounded by ctx, not a client timeout.
	resp, err := sharedStreamingClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := readResponse(resp)
		resp.Body.Close()
		return nil, handleErrorResponse(resp.StatusCode, body)
	}

	return resp, nil
}
