// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the relay TUI.

This package defines the color palette and the Theme struct used throughout
the application. All colors use Lip Gloss AdaptiveColor for automatic
light/dark terminal detection.

# Color System (colors.go)

  - Purple - Primary accent for assistant messages and selections
  - Cyan - Brand color for info and user highlights
  - Emerald - Success states and the connected indicator
  - Amber - Warnings and the guest mode indicator
  - Rose - Errors and critical warnings

Surface and text colors follow a layered system: Surface and SurfaceDim for
backgrounds, Overlay for borders, and TextPrimary / TextSecondary /
TextMuted for the text hierarchy.

# Theme System (theme.go)

The Theme struct bundles the pre-built lipgloss styles for the chat view,
chat list, input area, and status bar:

	theme := styles.NewTheme()
	header := theme.Header.Render("relay")
	label := theme.RoleLabel("assistant").Render("Assistant")
*/
package styles
