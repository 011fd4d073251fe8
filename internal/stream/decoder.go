// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes server-sent completion streams into message text.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultMinOverlap is the smallest boundary duplication worth suppressing.
	// Shorter matches are overwhelmingly coincidental ("the" resent vs "the"
	// genuinely repeated) and must pass through untouched.
	DefaultMinOverlap = 3

	// DefaultMaxOverlap caps the suffix/prefix scan. Backends that resend
	// boundary text do so for short runs only.
	DefaultMaxOverlap = 20

	// DefaultGraceWindow is how long to keep reading after the terminal
	// sentinel, so content frames flushed late by the backend still land.
	DefaultGraceWindow = 500 * time.Millisecond

	// MaxChunkSize is the maximum allowed size for a single SSE event (64KB).
	MaxChunkSize = 64 * 1024
)

// =============================================================================
// STREAM FAILURE
// =============================================================================

// StreamFailure is a terminal error frame delivered by the backend mid-stream.
// When it occurs the decoder discards accumulated content and surfaces the
// backend's error text instead.
type StreamFailure struct {
	Message string
}

// Error implements the error interface.
func (e *StreamFailure) Error() string {
	return "stream failed: " + e.Message
}

// =============================================================================
// SSE READER
// =============================================================================

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data []byte
}

// sseReader parses server-sent events from a byte stream.
type sseReader struct {
	reader *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{reader: bufio.NewReader(r)}
}

// readEvent reads the next SSE event. A blank line terminates an event;
// multiple data lines are joined with newlines. Returns io.EOF when the
// stream ends with no pending event.
func (s *sseReader) readEvent() (sseEvent, error) {
	var ev sseEvent
	var dataLines [][]byte
	size := 0

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				ev.data = bytes.Join(dataLines, []byte("\n"))
				return ev, nil
			}
			return sseEvent{}, err
		}

		size += len(line)
		if size > MaxChunkSize {
			return sseEvent{}, fmt.Errorf("event too large: %d bytes", size)
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 || ev.name != "" {
				ev.data = bytes.Join(dataLines, []byte("\n"))
				return ev, nil
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			ev.name = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// Ignore other fields (id:, retry:, comments starting with :)
	}
}

// =============================================================================
// FRAME PAYLOAD
// =============================================================================

// framePayload is the JSON body carried by a data line.
type framePayload struct {
	Content *string         `json:"content"`
	Error   json.RawMessage `json:"error"`
	Detail  json.RawMessage `json:"detail"`
	Status  string          `json:"status"`
}

// errorText extracts a displayable message from an error or detail field,
// which may be a bare string or a structured object.
func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns a server-sent completion stream into the final message text.
//
// It accumulates content frames, suppresses duplicated text at frame
// boundaries, and handles the backend's end-of-stream protocol: a terminal
// sentinel arms a short grace window during which trailing content frames
// are still applied.
type Decoder struct {
	// MinOverlap and MaxOverlap bound the boundary duplication scan.
	MinOverlap int
	MaxOverlap int

	// GraceWindow is how long to wait for trailing frames after the
	// terminal sentinel before finishing.
	GraceWindow time.Duration

	// OnDelta, if set, is called with the full accumulated text after
	// every applied content frame.
	OnDelta func(full string)
}

// NewDecoder returns a decoder with default settings.
func NewDecoder() *Decoder {
	return &Decoder{
		MinOverlap:  DefaultMinOverlap,
		MaxOverlap:  DefaultMaxOverlap,
		GraceWindow: DefaultGraceWindow,
	}
}

// Decode consumes the stream until it terminates and returns the message
// text. The body is always closed before returning.
//
// Termination paths:
//   - terminal sentinel followed by a quiet grace window: returns the text
//   - EOF: returns whatever accumulated, even without a sentinel
//   - error frame: returns the backend's error text and a *StreamFailure
//   - context cancellation: returns partial text and ctx.Err()
func (d *Decoder) Decode(ctx context.Context, body io.ReadCloser) (string, error) {
	events := make(chan sseEvent, 16)
	readErr := make(chan error, 1)

	go func() {
		defer close(events)
		r := newSSEReader(body)
		for {
			ev, err := r.readEvent()
			if err != nil {
				if err != io.EOF {
					readErr <- err
				}
				return
			}
			events <- ev
		}
	}()

	defer body.Close()

	var acc string
	var graceC <-chan time.Time
	var graceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			body.Close()
			return acc, ctx.Err()

		case <-graceC:
			// Quiet since the sentinel; the stream is done.
			body.Close()
			return acc, nil

		case ev, ok := <-events:
			if !ok {
				// Reader finished. A stream that ends without the
				// sentinel still yields its accumulated content.
				if graceTimer != nil {
					graceTimer.Stop()
				}
				select {
				case err := <-readErr:
					return acc, fmt.Errorf("stream read: %w", err)
				default:
				}
				return acc, nil
			}

			done, failure, content := d.classify(ev)
			switch {
			case failure != nil:
				if graceTimer != nil {
					graceTimer.Stop()
				}
				body.Close()
				return failure.Message, failure

			case done:
				if graceTimer == nil {
					graceTimer = time.NewTimer(d.GraceWindow)
					graceC = graceTimer.C
				}

			case content != "":
				acc = d.appendFragment(acc, content)
				if d.OnDelta != nil {
					d.OnDelta(acc)
				}
				// A trailing frame proves the backend is still
				// flushing; give it a fresh window.
				if graceTimer != nil {
					if !graceTimer.Stop() {
						<-graceTimer.C
					}
					graceTimer.Reset(d.GraceWindow)
				}
			}
		}
	}
}

// classify interprets one SSE event as terminal sentinel, failure, or content.
func (d *Decoder) classify(ev sseEvent) (done bool, failure *StreamFailure, content string) {
	data := bytes.TrimSpace(ev.data)
	if len(data) == 0 {
		return false, nil, ""
	}

	if bytes.Equal(data, []byte("[DONE]")) {
		return true, nil, ""
	}

	var payload framePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// Malformed frames are skipped, not fatal.
		return false, nil, ""
	}

	if ev.name == "error" || len(payload.Error) > 0 || len(payload.Detail) > 0 {
		raw := payload.Error
		if len(raw) == 0 {
			raw = payload.Detail
		}
		msg := "unknown stream error"
		if len(raw) > 0 {
			msg = errorText(raw)
		}
		return false, &StreamFailure{Message: msg}, ""
	}

	if ev.name == "done" || payload.Status == "complete" {
		return true, nil, ""
	}

	if payload.Content != nil {
		return false, nil, *payload.Content
	}
	return false, nil, ""
}

// appendFragment appends a content fragment, dropping text the backend
// duplicated across the frame boundary. The scan starts at the longest
// plausible overlap and accepts the first suffix/prefix match.
func (d *Decoder) appendFragment(acc, frag string) string {
	max := d.MaxOverlap
	if len(frag) < max {
		max = len(frag)
	}
	for k := max; k >= d.MinOverlap; k-- {
		if strings.HasSuffix(acc, frag[:k]) {
			return acc + frag[k:]
		}
	}
	return acc + frag
}
