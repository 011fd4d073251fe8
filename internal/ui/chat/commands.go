// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines the Bubble Tea commands that bridge the UI to the
// conversation controller. Every blocking call runs inside a tea.Cmd so the
// event loop never stalls on the network.
package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/relay-tui/internal/controller"
	"github.com/jeranaias/relay-tui/internal/model"
)

// =============================================================================
// MESSAGES
// =============================================================================

// chatsLoadedMsg carries the refreshed chat list.
type chatsLoadedMsg struct {
	summaries []model.ChatSummary
	err       error
}

// modelsLoadedMsg carries the model catalog.
type modelsLoadedMsg struct {
	models []model.ModelInfo
	err    error
}

// chatSelectedMsg signals a chat switch finished.
type chatSelectedMsg struct {
	chatID int64
	err    error
}

// sendDoneMsg signals a send (or regenerate) finished, streaming included.
type sendDoneMsg struct {
	err error
}

// forkDoneMsg carries the outcome of a fork.
type forkDoneMsg struct {
	chatID int64
	err    error
}

// =============================================================================
// COMMANDS
// =============================================================================

// loadChatsCmd refreshes the chat list through the controller.
func loadChatsCmd(ctrl *controller.Controller) tea.Cmd {
	return func() tea.Msg {
		summaries, err := ctrl.Summaries(context.Background())
		return chatsLoadedMsg{summaries: summaries, err: err}
	}
}

// loadModelsCmd fetches the model catalog.
func loadModelsCmd(ctrl *controller.Controller) tea.Cmd {
	return func() tea.Msg {
		models, err := ctrl.Models(context.Background())
		return modelsLoadedMsg{models: models, err: err}
	}
}

// selectChatCmd makes a chat active.
func selectChatCmd(ctrl *controller.Controller, chatID int64) tea.Cmd {
	return func() tea.Msg {
		err := ctrl.SelectChat(context.Background(), chatID)
		return chatSelectedMsg{chatID: chatID, err: err}
	}
}

// sendCmd sends a message and streams the reply. The command returns when
// the stream finishes; intermediate repaints ride the stream ticks.
func sendCmd(ctrl *controller.Controller, content string, attachments []model.Attachment) tea.Cmd {
	return func() tea.Msg {
		err := ctrl.Send(context.Background(), content, attachments)
		return sendDoneMsg{err: err}
	}
}

// regenerateCmd discards the last assistant reply and streams a new one
// under the session model.
func regenerateCmd(ctrl *controller.Controller) tea.Cmd {
	return func() tea.Msg {
		msgs := ctrl.Messages()
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == model.RoleAssistant {
				err := ctrl.Regenerate(context.Background(), msgs[i].ID, "")
				return sendDoneMsg{err: err}
			}
		}
		return sendDoneMsg{err: controller.ErrNothingToRegenerate}
	}
}

// forkCmd copies the current chat into a new one, forking at the last
// message.
func forkCmd(ctrl *controller.Controller) tea.Cmd {
	return func() tea.Msg {
		msgs := ctrl.Messages()
		if len(msgs) == 0 {
			return forkDoneMsg{err: controller.ErrMessageNotFound}
		}
		id, err := ctrl.Fork(context.Background(), "", msgs[len(msgs)-1].ID)
		return forkDoneMsg{chatID: id, err: err}
	}
}
