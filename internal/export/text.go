// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
)

// =============================================================================
// TEXT EXPORTER
// =============================================================================

// TextExporter exports transcripts as plain text.
type TextExporter struct {
	options *Options
}

// NewTextExporter creates a new plain text exporter.
func NewTextExporter(opts *Options) *TextExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &TextExporter{options: opts}
}

// FileExtension returns ".txt".
func (e *TextExporter) FileExtension() string { return ".txt" }

// Export converts a transcript to plain text.
func (e *TextExporter) Export(t *Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString(t.Summary.DisplayTitle())
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat("=", len(t.Summary.DisplayTitle())))
		sb.WriteString("\n\n")
	}

	for i, msg := range t.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		header := msg.Role.DisplayName()
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			header = fmt.Sprintf("%s [%s]", header, msg.CreatedAt.Format("2006-01-02 15:04"))
		}
		sb.WriteString(header)
		sb.WriteString(":\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}

	return []byte(sb.String()), nil
}
