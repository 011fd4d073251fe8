// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway implements the HTTP client for the Relay sync backend.
package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/util"
)

// Configuration constants for the gateway API.
const (
	// DefaultBaseURL is the base URL for a locally hosted backend.
	DefaultBaseURL = "http://localhost:8000/api/v1"

	// DefaultTimeout is the default timeout for REST requests.
	DefaultTimeout = 60 * time.Second

	// HealthTimeout bounds the health probe.
	HealthTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of attempts for idempotent requests.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit
)

var (
	// Shared HTTP client with connection pooling for all REST requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests.
	// No timeout; streaming lifetime is controlled via context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrMissingCredential indicates the backend rejected the request for
	// lack of an API credential.
	ErrMissingCredential = errors.New("missing credential")

	// ErrAuthFailed indicates authentication failed (invalid or expired token).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound indicates the chat, message, or model does not exist.
	ErrNotFound = errors.New("not found")
)

// GatewayError represents an error response from the backend.
type GatewayError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("gateway error (HTTP %d)", e.Status)
}

// Is maps well-known status codes onto the sentinel errors so callers can
// use errors.Is without caring which layer produced the error.
func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrMissingCredential:
		return e.Status == http.StatusBadRequest
	case ErrAuthFailed:
		return e.Status == http.StatusUnauthorized
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// apiErrorResponse covers both error body shapes the backend produces.
type apiErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
	Error  json.RawMessage `json:"error"`
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type chatJSON struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Model         string    `json:"model,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int       `json:"message_count"`
	LastMessage   string    `json:"last_message,omitempty"`
}

func (c chatJSON) toSummary() model.ChatSummary {
	return model.ChatSummary{
		ID:            c.ID,
		Title:         c.Title,
		Model:         c.Model,
		CreatedAt:     c.CreatedAt,
		LastMessageAt: c.LastMessageAt,
		MessageCount:  c.MessageCount,
		LastMessage:   c.LastMessage,
	}
}

type messageJSON struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (m messageJSON) toMessage(chatID int64) model.Message {
	return model.Message{
		ID:        model.ServerID(m.ID),
		ChatID:    chatID,
		Role:      model.Role(m.Role),
		Content:   m.Content,
		Model:     m.Model,
		CreatedAt: m.CreatedAt,
	}
}

type modelsResponse struct {
	Models []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"models"`
}

type createChatRequest struct {
	Title  string `json:"title"`
	Model  string `json:"model,omitempty"`
	UserID int64  `json:"user_id"`
}

type renameChatRequest struct {
	Title string `json:"title"`
}

type appendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the Relay backend over HTTP.
type Client struct {
	baseURL    string
	token      string
	userID     int64
	maxRetries int
	userAgent  string
}

// NewClient creates a client for the given base URL. An empty token is
// allowed; completion requests then go through the guest endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		maxRetries: DefaultMaxRetries,
		userAgent:  "relay-tui/0.3.0",
	}
}

// WithToken sets the bearer credential for authenticated requests.
func (c *Client) WithToken(token string) *Client {
	c.token = strings.TrimSpace(token)
	return c
}

// WithUserID sets the backend user id attached to chat operations.
func (c *Client) WithUserID(id int64) *Client {
	c.userID = id
	return c
}

// WithMaxRetries sets the maximum number of attempts for idempotent requests.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// IsAuthenticated returns true if a credential is configured.
func (c *Client) IsAuthenticated() bool {
	return c.token != ""
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// setHeaders sets the standard headers for backend requests.
func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
}

// logRequest logs an API request without exposing sensitive data.
func logRequest(req *http.Request) {
	log.Printf("API Request: %s %s", req.Method, req.URL.Path)
}

// logResponse logs status code and duration only.
func logResponse(resp *http.Response, duration time.Duration) {
	log.Printf("API Response: %d (%v)", resp.StatusCode, duration)
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts a non-2xx response body into a GatewayError.
func handleErrorResponse(statusCode int, body []byte) error {
	gwErr := &GatewayError{Status: statusCode}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil {
		raw := apiErr.Detail
		if len(raw) == 0 {
			raw = apiErr.Error
		}
		if len(raw) > 0 {
			var s string
			if json.Unmarshal(raw, &s) == nil {
				gwErr.Message = s
			} else {
				var obj struct {
					Message string `json:"message"`
				}
				if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
					gwErr.Message = obj.Message
				} else {
					gwErr.Message = string(raw)
				}
			}
		}
	}
	if gwErr.Message == "" {
		gwErr.Message = strings.TrimSpace(string(body))
	}
	return gwErr
}

// calculateBackoff returns the delay before the next retry attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// isRetryable reports whether a request error warrants another attempt.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Status >= 500 || gwErr.Status == http.StatusTooManyRequests
	}
	// Network errors are retryable.
	return true
}

// getJSON performs a GET with retry and decodes the response into out.
// Only GETs retry; mutating requests run exactly once.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		err := c.doJSON(ctx, http.MethodGet, path, nil, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doJSON performs a single request with an optional JSON body, decoding the
// response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var bodyReader io.Reader
	if in != nil {
		bodyBytes, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	logRequest(req)

	startTime := time.Now()
	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	logResponse(resp, time.Since(startTime))

	body, err := readResponse(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp.StatusCode, body)
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// HEALTH AND CATALOG
// =============================================================================

// Health probes the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

// ListModels retrieves the catalog of models the backend serves.
func (c *Client) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	var resp modelsResponse
	if err := c.getJSON(ctx, "/models", &resp); err != nil {
		return nil, err
	}

	models := make([]model.ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, model.ModelInfo{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
		})
	}
	return models, nil
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// ListChats retrieves the chat summaries for the configured user.
func (c *Client) ListChats(ctx context.Context) ([]model.ChatSummary, error) {
	path := "/chats/"
	if c.userID != 0 {
		path += "?user_id=" + util.Int64ToString(c.userID)
	}

	var chats []chatJSON
	if err := c.getJSON(ctx, path, &chats); err != nil {
		return nil, err
	}

	summaries := make([]model.ChatSummary, 0, len(chats))
	for _, ch := range chats {
		summaries = append(summaries, ch.toSummary())
	}
	return summaries, nil
}

// CreateChat creates a chat and returns its backend-assigned id.
func (c *Client) CreateChat(ctx context.Context, title, modelName string) (int64, error) {
	req := createChatRequest{Title: title, Model: modelName, UserID: c.userID}
	var resp chatJSON
	if err := c.doJSON(ctx, http.MethodPost, "/chats/", req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// GetChat retrieves a single chat summary.
func (c *Client) GetChat(ctx context.Context, chatID int64) (model.ChatSummary, error) {
	var ch chatJSON
	if err := c.getJSON(ctx, "/chats/"+util.Int64ToString(chatID), &ch); err != nil {
		return model.ChatSummary{}, err
	}
	return ch.toSummary(), nil
}

// RenameChat updates the chat title.
func (c *Client) RenameChat(ctx context.Context, chatID int64, title string) error {
	return c.doJSON(ctx, http.MethodPut, "/chats/"+util.Int64ToString(chatID), renameChatRequest{Title: title}, nil)
}

// DeleteChat removes a chat and all its messages.
func (c *Client) DeleteChat(ctx context.Context, chatID int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/chats/"+util.Int64ToString(chatID), nil, nil)
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// ListMessages retrieves the full message list of a chat.
func (c *Client) ListMessages(ctx context.Context, chatID int64) ([]model.Message, error) {
	var msgs []messageJSON
	if err := c.getJSON(ctx, "/chats/"+util.Int64ToString(chatID)+"/messages", &msgs); err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, m.toMessage(chatID))
	}
	return messages, nil
}

// AppendMessage persists a message to a chat and returns its server id.
func (c *Client) AppendMessage(ctx context.Context, chatID int64, role model.Role, content, modelName string) (int64, error) {
	req := appendMessageRequest{Role: role.String(), Content: content, Model: modelName}
	var resp idResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chats/"+util.Int64ToString(chatID)+"/messages", req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// DeleteFromMessage deletes the given message and everything after it.
// The backend treats the id as an inclusive lower bound.
func (c *Client) DeleteFromMessage(ctx context.Context, chatID, messageID int64) error {
	path := "/chats/" + util.Int64ToString(chatID) + "/messages/regenerate/" + util.Int64ToString(messageID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}
