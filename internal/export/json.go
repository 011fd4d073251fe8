// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import "encoding/json"

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports transcripts as indented JSON.
type JSONExporter struct{}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter() *JSONExporter { return &JSONExporter{} }

// FileExtension returns ".json".
func (e *JSONExporter) FileExtension() string { return ".json" }

// Export converts a transcript to JSON.
func (e *JSONExporter) Export(t *Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}
	return json.MarshalIndent(t, "", "  ")
}
