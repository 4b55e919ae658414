// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package xai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Code is the machine-readable classification of a transport failure.
type Code string

const (
	CodeConfiguration Code = "CONFIGURATION_ERROR"
	CodeAuth          Code = "AUTH_ERROR"
	CodeRateLimit     Code = "RATE_LIMIT"
	CodeNetwork       Code = "NETWORK_ERROR"
	CodeAPI           Code = "API_ERROR"
)

// Sentinel errors matched by *Error through errors.Is.
var (
	// ErrConfiguration indicates a caller bug, such as a missing model.
	ErrConfiguration = errors.New("configuration error")

	// ErrAuth indicates the API key was rejected (HTTP 401).
	ErrAuth = errors.New("authentication failed")

	// ErrRateLimit indicates too many requests were made (HTTP 429).
	ErrRateLimit = errors.New("rate limited")

	// ErrNetwork indicates a DNS, connection, or timeout failure.
	ErrNetwork = errors.New("network error")

	// ErrAPI indicates any other error response from the API.
	ErrAPI = errors.New("api error")
)

var sentinels = map[Code]error{
	CodeConfiguration: ErrConfiguration,
	CodeAuth:          ErrAuth,
	CodeRateLimit:     ErrRateLimit,
	CodeNetwork:       ErrNetwork,
	CodeAPI:           ErrAPI,
}

// Error is the single shape every transport failure is normalized to.
type Error struct {
	Code    Code
	Status  int    // HTTP status, zero when no response was received
	Message string // human-readable explanation
	APICode string // server-provided error.code, if any

	// RetryAfter is the server's requested back-off for rate limit errors.
	RetryAfter time.Duration

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code == CodeAPI && e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's code.
func (e *Error) Is(target error) bool {
	return sentinels[e.Code] == target
}

// Retryable reports whether the caller may reasonably try the same call again.
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeNetwork, CodeRateLimit:
		return true
	case CodeAPI:
		return e.Status >= 500
	default:
		return false
	}
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var xe *Error
	if errors.As(err, &xe) {
		return xe, true
	}
	return nil, false
}

// CodeOf returns the code of err, or "" if err is not a transport error.
func CodeOf(err error) Code {
	if xe, ok := AsError(err); ok {
		return xe.Code
	}
	return ""
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

func errMissingModel() *Error {
	return &Error{
		Code:    CodeConfiguration,
		Message: "model must be specified, no default model available",
	}
}

func errMissingKey() *Error {
	return &Error{
		Code:    CodeConfiguration,
		Message: "API key not configured",
	}
}

// networkError wraps a failure that happened before or while reading a response.
func networkError(err error, timeout time.Duration, timedOut bool) *Error {
	msg := "unable to connect to xAI API"
	if timedOut || errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("request timed out after %s", timeout)
	} else if errors.Is(err, context.Canceled) {
		msg = "request canceled"
	}
	return &Error{Code: CodeNetwork, Message: msg, Err: err}
}

// apiErrorResponse is the error envelope returned by the API.
type apiErrorResponse struct {
	Error struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	} `json:"error"`
}

// responseError converts an HTTP error response into an *Error.
func responseError(resp *http.Response, body []byte) *Error {
	status := resp.StatusCode

	switch status {
	case http.StatusUnauthorized:
		return &Error{
			Code:    CodeAuth,
			Status:  status,
			Message: "authentication failed: invalid API key",
		}
	case http.StatusTooManyRequests:
		return &Error{
			Code:       CodeRateLimit,
			Status:     status,
			Message:    "rate limit exceeded: please try again later",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	e := &Error{Code: CodeAPI, Status: status}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		e.Message = apiErr.Error.Message
		e.APICode = rawCode(apiErr.Error.Code)
		return e
	}

	e.Message = http.StatusText(status)
	if e.Message == "" {
		e.Message = fmt.Sprintf("unexpected status %d", status)
	}
	return e
}

// rawCode accepts error.code as either a JSON string or number.
func rawCode(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// parseRetryAfter parses a Retry-After header value in seconds or HTTP-date form.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
