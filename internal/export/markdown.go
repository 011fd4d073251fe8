// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// FileExtension returns ".md".
func (e *MarkdownExporter) FileExtension() string { return ".md" }

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(t.Summary.DisplayTitle())))
		if t.Summary.Model != "" {
			sb.WriteString(fmt.Sprintf("model: %s\n", t.Summary.Model))
		}
		if !t.Summary.CreatedAt.IsZero() {
			sb.WriteString(fmt.Sprintf("date: %s\n", t.Summary.CreatedAt.Format(time.RFC3339)))
		}
		sb.WriteString(fmt.Sprintf("messages: %d\n", len(t.Messages)))
		sb.WriteString(fmt.Sprintf("exported: %s\n", time.Now().Format(time.RFC3339)))
		sb.WriteString("generator: relay-tui\n")
		sb.WriteString("---\n\n")
	}

	sb.WriteString(fmt.Sprintf("# %s\n\n", t.Summary.DisplayTitle()))

	for _, msg := range t.Messages {
		sb.WriteString(fmt.Sprintf("## %s", msg.Role.DisplayName()))
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			sb.WriteString(fmt.Sprintf(" (%s)", msg.CreatedAt.Format("2006-01-02 15:04")))
		}
		sb.WriteString("\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}

	return []byte(sb.String()), nil
}

// escapeYAML quotes a string for a YAML frontmatter value when needed.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#{}[]&*!|>'\"%@`") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
