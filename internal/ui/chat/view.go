// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file renders the chat layout: header, chat list sidebar, transcript
// viewport, input area, and status bar.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	transcript := m.viewport.View()
	if m.showList {
		sidebar := m.renderChatList()
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, sidebar, transcript))
	} else {
		b.WriteString(transcript)
	}
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString(m.renderHelp())
		b.WriteString("\n")
	}

	b.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	return b.String()
}

// renderHeader shows the active chat title and selected model.
func (m *Model) renderHeader() string {
	title := "relay"
	if m.selected < len(m.chats) {
		title = m.chats[m.selected].DisplayTitle()
	}

	left := m.theme.HeaderTitle.Render(title)
	right := ""
	if len(m.models) > 0 && m.modelIdx < len(m.models) {
		right = m.theme.HeaderMeta.Render(m.models[m.modelIdx].DisplayName())
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// renderChatList draws the sidebar of cached chat summaries.
func (m *Model) renderChatList() string {
	var lines []string
	for i, s := range m.chats {
		label := util.TruncateWidth(s.DisplayTitle(), chatListWidth-4)

		style := m.theme.ChatItem
		switch {
		case i == m.selected:
			style = m.theme.ChatItemSelected
		case s.IsLocal():
			style = m.theme.ChatItemLocal
		}
		lines = append(lines, style.Render(label))

		if s.LastMessage != "" && !m.cfg.UI.CompactMode {
			preview := util.TruncateWidth(s.LastMessage, chatListWidth-6)
			lines = append(lines, "  "+m.theme.ChatMeta.Render(preview))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, m.theme.ChatMeta.Render("no chats yet"))
	}

	return m.theme.ChatList.
		Width(chatListWidth).
		Height(m.viewport.Height).
		Render(strings.Join(lines, "\n"))
}

// renderTranscript renders the active chat's messages.
func (m *Model) renderTranscript() string {
	msgs := m.ctrl.Messages()
	if len(msgs) == 0 {
		return m.theme.ThinkingText.Render("Start the conversation below.")
	}

	var parts []string
	for i, msg := range msgs {
		parts = append(parts, m.renderMessage(msg, i == len(msgs)-1))
	}
	return strings.Join(parts, "\n\n")
}

// renderMessage renders one message with its role label and body.
func (m *Model) renderMessage(msg model.Message, last bool) string {
	var b strings.Builder

	label := m.theme.RoleLabel(msg.Role.String()).Render(msg.Role.DisplayName())
	b.WriteString(label)
	if m.cfg.UI.ShowTimestamps && !msg.CreatedAt.IsZero() {
		b.WriteString(" ")
		b.WriteString(m.theme.Timestamp.Render(msg.CreatedAt.Format("15:04")))
	}
	if last && m.state == StateStreaming && msg.Role == model.RoleAssistant {
		b.WriteString(" ")
		b.WriteString(m.theme.StreamingBadge.Render(m.spinner.View()))
	}
	b.WriteString("\n")

	body := msg.Content
	if body == "" && m.state == StateStreaming && last {
		body = m.theme.ThinkingText.Render("thinking...")
	} else if msg.Role == model.RoleAssistant && m.renderer != nil {
		// Markdown rendering is skipped mid-stream; partial markdown
		// renders worse than plain text.
		if !(last && m.state == StateStreaming) {
			if rendered, err := m.renderer.Render(body); err == nil {
				body = strings.TrimRight(rendered, "\n")
			}
		}
	}

	block := m.theme.AssistantBlock
	if msg.Role == model.RoleUser {
		block = m.theme.UserBlock
	}
	b.WriteString(block.Render(body))

	for _, a := range msg.Attachments {
		b.WriteString("\n")
		b.WriteString(m.theme.Attachment.Render("[attachment: " + a.Name + "]"))
	}
	return b.String()
}

// renderStatusBar draws the bottom bar: connection state, counters, and
// shortcut hints or the transient status message.
func (m *Model) renderStatusBar() string {
	var left string
	switch {
	case m.state == StateStreaming:
		left = m.theme.StreamingBadge.Render("streaming")
	case m.statusMsg != "":
		left = m.theme.ErrorMessage.Render(m.statusMsg)
	default:
		left = m.theme.StatusConnOK.Render("ready")
	}

	var hints []string
	for _, binding := range m.keyMap.ShortHelp() {
		h := binding.Help()
		hints = append(hints,
			m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	right := strings.Join(hints, "  ")

	if len(m.attachments) > 0 {
		right = m.theme.Attachment.Render(fmt.Sprintf("%d attached", len(m.attachments))) + "  " + right
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// renderHelp draws the full keybinding reference.
func (m *Model) renderHelp() string {
	var lines []string
	for _, group := range m.keyMap.FullHelp() {
		var cols []string
		for _, binding := range group {
			h := binding.Help()
			cols = append(cols,
				m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
		}
		lines = append(lines, strings.Join(cols, "    "))
	}
	return m.theme.Container.Render(strings.Join(lines, "\n"))
}
