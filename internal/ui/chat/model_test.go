// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/relay-tui/internal/cache"
	"github.com/jeranaias/relay-tui/internal/config"
	"github.com/jeranaias/relay-tui/internal/controller"
	"github.com/jeranaias/relay-tui/internal/gateway"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/ui/styles"
)

// newTestModel builds a chat model with no live backend. Paths under test
// here never touch the network.
func newTestModel(t *testing.T) *Model {
	t.Helper()
	store, err := cache.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctrl := controller.New(gateway.NewClient("http://127.0.0.1:1"), cache.NewSessionCache(store))
	m := New(ctrl, config.Default(), styles.NewTheme())
	m.resize(100, 30)
	return m
}

func TestModel_SubmitEmptyInputIsNoop(t *testing.T) {
	m := newTestModel(t)

	_, cmd := m.submit()
	if cmd != nil {
		t.Error("empty input should not produce a command")
	}
	if m.state != StateReady {
		t.Error("state should stay ready")
	}
}

func TestModel_UnknownSlashCommand(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("/frobnicate now")

	_, _ = m.submit()
	if !strings.Contains(m.statusMsg, "unknown command") {
		t.Errorf("statusMsg = %q", m.statusMsg)
	}
}

func TestModel_AttachCommand(t *testing.T) {
	m := newTestModel(t)

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("remember the milk"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m.input.SetValue("/attach " + path)
	_, _ = m.submit()

	if len(m.attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(m.attachments))
	}
	if m.attachments[0].Name != "notes.txt" || m.attachments[0].Text != "remember the milk" {
		t.Errorf("attachment = %+v", m.attachments[0])
	}

	m.input.SetValue("/clear")
	_, _ = m.submit()
	if len(m.attachments) != 0 {
		t.Error("clear should drop pending attachments")
	}
}

func TestModel_MoveSelectionBounds(t *testing.T) {
	m := newTestModel(t)
	m.chats = []model.ChatSummary{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}}
	m.selected = 0

	if _, cmd := m.moveSelection(-1); cmd != nil {
		t.Error("moving above the first chat should be a no-op")
	}

	if _, cmd := m.moveSelection(1); cmd == nil {
		t.Error("moving to the next chat should select it")
	}
	if m.selected != 1 {
		t.Errorf("selected = %d", m.selected)
	}

	if _, cmd := m.moveSelection(1); cmd != nil {
		t.Error("moving past the last chat should be a no-op")
	}
}

func TestModel_StreamingBlocksNewWork(t *testing.T) {
	m := newTestModel(t)
	m.state = StateStreaming
	m.input.SetValue("hello")

	if _, cmd := m.submit(); cmd != nil {
		t.Error("submit while streaming should be rejected")
	}
	if got := m.input.Value(); got != "hello" {
		t.Errorf("input should be preserved, got %q", got)
	}
}

func TestModel_ViewRendersWithoutChats(t *testing.T) {
	m := newTestModel(t)

	view := m.View()
	if view == "" {
		t.Fatal("view should render")
	}
	if !strings.Contains(view, ">") {
		t.Error("view should include the input prompt")
	}
}

func TestModel_StreamTickStopsWhenIdle(t *testing.T) {
	m := newTestModel(t)
	m.state = StateReady

	_, cmd := m.Update(StreamTickMsg{})
	if cmd != nil {
		t.Error("idle model should not reschedule stream ticks")
	}
}

var _ tea.Model = (*Model)(nil)
