// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared lipgloss styles for CLI command output.
package cli

import "github.com/charmbracelet/lipgloss"

var (
	// Title style for command headers
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")). // Cyan
			MarginBottom(1)

	// Section header style
	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")). // White
			MarginTop(1)

	// Label style for field names
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(14)

	// Value styles
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")) // White

	valueGreenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")) // Green

	valueYellowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("220")) // Yellow

	valueRedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // Red

	valueDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")) // Dim
)

// field renders a label/value row.
func field(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}
