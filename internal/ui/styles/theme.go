// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// APPLICATION CONTAINER STYLES
	// ==========================================================================

	App       lipgloss.Style
	Container lipgloss.Style

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderMeta  lipgloss.Style

	// ==========================================================================
	// CHAT LIST STYLES
	// ==========================================================================

	ChatList         lipgloss.Style
	ChatItem         lipgloss.Style
	ChatItemSelected lipgloss.Style
	ChatItemLocal    lipgloss.Style
	ChatMeta         lipgloss.Style

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	MessageBody    lipgloss.Style
	UserBlock      lipgloss.Style
	AssistantBlock lipgloss.Style
	Timestamp      lipgloss.Style
	Attachment     lipgloss.Style

	// ==========================================================================
	// INPUT AREA STYLES
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	// ==========================================================================
	// STATUS BAR STYLES
	// ==========================================================================

	StatusBar      lipgloss.Style
	StatusConnOK   lipgloss.Style
	StatusConnBad  lipgloss.Style
	StatusGuest    lipgloss.Style
	StatusModel    lipgloss.Style
	ShortcutKey    lipgloss.Style
	ShortcutDesc   lipgloss.Style
	StreamingBadge lipgloss.Style

	// ==========================================================================
	// FEEDBACK STYLES
	// ==========================================================================

	ErrorBox     lipgloss.Style
	ErrorTitle   lipgloss.Style
	ErrorMessage lipgloss.Style
	Spinner      lipgloss.Style
	ThinkingText lipgloss.Style
}

// NewTheme creates a new theme with all styles configured.
func NewTheme() *Theme {
	t := &Theme{}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	// App container
	t.App = lipgloss.NewStyle()
	t.Container = lipgloss.NewStyle().Padding(0, 1)

	// Header
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 2)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.HeaderMeta = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	// Chat list
	t.ChatList = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		PaddingRight(1)

	t.ChatItem = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Padding(0, 1)

	t.ChatItemSelected = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(Overlay).
		Bold(true).
		Padding(0, 1)

	t.ChatItemLocal = lipgloss.NewStyle().
		Foreground(Amber).
		Italic(true).
		Padding(0, 1)

	t.ChatMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Messages
	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(UserAccent)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(AssistantAccent)

	t.SystemLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(SystemAccent)

	t.MessageBody = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.UserBlock = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserBorder).
		PaddingLeft(1)

	t.AssistantBlock = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(AssistantBorder).
		PaddingLeft(1)

	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Attachment = lipgloss.NewStyle().
		Foreground(Cyan).
		Italic(true)

	// Input area
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	// Status bar
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.StatusConnOK = lipgloss.NewStyle().
		Bold(true).
		Foreground(Emerald)

	t.StatusConnBad = lipgloss.NewStyle().
		Bold(true).
		Foreground(Rose)

	t.StatusGuest = lipgloss.NewStyle().
		Bold(true).
		Foreground(Amber)

	t.StatusModel = lipgloss.NewStyle().
		Foreground(Purple)

	t.ShortcutKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.StreamingBadge = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	// Feedback
	t.ErrorBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Rose).
		Padding(0, 1)

	t.ErrorTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Rose)

	t.ErrorMessage = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Purple)

	t.ThinkingText = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)
}

// Resize updates the theme's layout dimensions.
func (t *Theme) Resize(width, height int) {
	t.Width = width
	t.Height = height
}

// RoleLabel returns the style for a message role label.
func (t *Theme) RoleLabel(role string) lipgloss.Style {
	switch role {
	case "user":
		return t.UserLabel
	case "assistant":
		return t.AssistantLabel
	default:
		return t.SystemLabel
	}
}
