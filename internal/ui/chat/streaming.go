// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file implements streaming render coalescing. Delta callbacks arrive
// from the streaming goroutine far faster than a terminal can usefully
// repaint; the SnapshotBuffer marks the transcript dirty and the view pulls
// a fresh snapshot at a capped frame rate.
package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// SNAPSHOT BUFFER
// =============================================================================

// streamFPS is the maximum repaint rate during streaming. 30fps keeps the
// output smooth without burning CPU on redundant renders.
const streamFPS = 30

// SnapshotBuffer coalesces transcript-changed signals into frame-paced
// repaints. The controller's change hook calls Touch from its goroutine;
// the Bubble Tea loop calls Take on each stream tick.
type SnapshotBuffer struct {
	mu        sync.Mutex
	dirty     bool
	lastPaint time.Time
	interval  time.Duration
}

// NewSnapshotBuffer creates a buffer paced at the default stream frame rate.
func NewSnapshotBuffer() *SnapshotBuffer {
	return &SnapshotBuffer{
		interval: time.Second / streamFPS,
	}
}

// Touch marks the transcript as changed. Safe to call from any goroutine.
func (sb *SnapshotBuffer) Touch() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.dirty = true
}

// Take reports whether a repaint is due and, if so, consumes the dirty flag.
// A repaint is due when the transcript changed and at least one frame
// interval has passed since the last paint.
func (sb *SnapshotBuffer) Take() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if !sb.dirty {
		return false
	}
	if time.Since(sb.lastPaint) < sb.interval {
		return false
	}
	sb.dirty = false
	sb.lastPaint = time.Now()
	return true
}

// Force consumes the dirty flag regardless of frame pacing. Used when a
// stream finishes so the final content always lands on screen.
func (sb *SnapshotBuffer) Force() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	wasDirty := sb.dirty
	sb.dirty = false
	sb.lastPaint = time.Now()
	return wasDirty
}

// Pending reports whether a change is waiting to be painted.
func (sb *SnapshotBuffer) Pending() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.dirty
}

// =============================================================================
// STREAMING TICK COMMAND
// =============================================================================

// StreamTickMsg is emitted at the stream frame rate while a reply streams.
type StreamTickMsg struct {
	Time time.Time
}

// streamTickCmd schedules the next streaming repaint check.
func streamTickCmd() tea.Cmd {
	return tea.Tick(time.Second/streamFPS, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
