// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/grok-cli/internal/config"
	"github.com/jeranaias/grok-cli/internal/storage"
	"github.com/jeranaias/grok-cli/internal/xai"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitAuthError    = 4
	ExitNetworkError = 5
	ExitRateLimited  = 6
	ExitNotFound     = 7
	ExitAPIError     = 8
	ExitInterrupted  = 130
)

// UsageError reports invalid command usage or arguments.
type UsageError struct {
	msg string
}

func (e *UsageError) Error() string {
	return e.msg
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{msg: fmt.Sprintf(format, args...)}
}

// errMissingKey is returned before any request when no key is configured.
var errMissingKey = &xai.Error{
	Code:    xai.CodeConfiguration,
	Message: "API key not configured",
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var validation config.ValidateErrors
	switch {
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &validation):
		return ExitConfigError
	case errors.Is(err, storage.ErrNotFound):
		return ExitNotFound
	}

	switch xai.CodeOf(err) {
	case xai.CodeConfiguration:
		return ExitConfigError
	case xai.CodeAuth:
		return ExitAuthError
	case xai.CodeNetwork:
		return ExitNetworkError
	case xai.CodeRateLimit:
		return ExitRateLimited
	case xai.CodeAPI:
		return ExitAPIError
	}
	return ExitGeneralError
}

const (
	keyHint   = `Run "grok config set-key" or set GROK_API_KEY.`
	modelHint = `Pass -m <model> or run "grok config set-model <model>".`
)

// Hint returns a suggestion for recovering from err, or "".
func Hint(err error) string {
	xe, ok := xai.AsError(err)
	if !ok {
		return ""
	}
	switch xe.Code {
	case xai.CodeAuth:
		return keyHint
	case xai.CodeConfiguration:
		if strings.Contains(xe.Message, "API key") {
			return keyHint
		}
		return modelHint
	case xai.CodeRateLimit:
		if xe.RetryAfter > 0 {
			return fmt.Sprintf("Try again in %s.", xe.RetryAfter)
		}
		return "Wait a moment and try again."
	case xai.CodeNetwork:
		return "Check your network connection and api.base_url."
	}
	return ""
}
