// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes server-sent completion streams into message text.
//
// The backend streams assistant replies as SSE frames. This package owns the
// quirks of that wire protocol so callers see only clean text:
//
//   - content frames are accumulated in arrival order
//   - text duplicated across a frame boundary by backend buffering is
//     suppressed (suffix/prefix scan, longest match first)
//   - the terminal sentinel ("[DONE]" or a done event) starts a short grace
//     window so late-flushed frames still land
//   - error frames end the stream and replace its content with the error text
//   - a stream that ends without any sentinel still yields what arrived
//
// # Usage
//
//	d := stream.NewDecoder()
//	d.OnDelta = func(full string) { render(full) }
//	text, err := d.Decode(ctx, resp.Body)
package stream
