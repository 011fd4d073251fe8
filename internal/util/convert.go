// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions for the relay-tui application.
package util

import "strconv"

// Int64ToString converts an int64 to string.
func Int64ToString(i int64) string {
	return strconv.FormatInt(i, 10)
}
