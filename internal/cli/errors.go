// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for relay CLI commands.
//
// Handlers always return errors; main decides how to display them and
// which exit code to use.
package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/relay-tui/internal/gateway"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates a configuration error
	ExitConfigError = 3
	// ExitAuthError indicates authentication failure
	ExitAuthError = 4
	// ExitNetworkError indicates the backend was unreachable
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError marks an error caused by bad command usage, so main can
// print help and exit with ExitUsageError.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// Usagef builds a UsageError.
func Usagef(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// ExitCodeFor maps an error onto a process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	switch {
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.Is(err, gateway.ErrAuthFailed), errors.Is(err, gateway.ErrMissingCredential):
		return ExitAuthError
	case errors.Is(err, gateway.ErrNotFound):
		return ExitNotFoundError
	case errors.Is(err, gateway.ErrRateLimited):
		return ExitNetworkError
	}
	return ExitGeneralError
}
