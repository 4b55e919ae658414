// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "fmt"

// DefaultContextLength is used when the catalog omits a model's context length.
const DefaultContextLength = 32768

// ChatOptions are the per-call request parameters.
//
// Model is required for every call. Temperature and MaxTokens are optional;
// nil means "let the server decide" and the field is omitted from the request.
type ChatOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
	Stream      bool
}

// WithTemperature returns a copy of o with Temperature set.
func (o ChatOptions) WithTemperature(t float64) ChatOptions {
	o.Temperature = &t
	return o
}

// WithMaxTokens returns a copy of o with MaxTokens set.
func (o ChatOptions) WithMaxTokens(n int) ChatOptions {
	o.MaxTokens = &n
	return o
}

// Completion is one choice of a chat response.
type Completion struct {
	Message      Message
	FinishReason string
}

// Usage holds server-reported token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add returns the element-wise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// String formats usage the way the CLI reports it after each call.
func (u Usage) String() string {
	return fmt.Sprintf("%d (%d prompt + %d completion)", u.TotalTokens, u.PromptTokens, u.CompletionTokens)
}

// Response is a complete chat completion.
type Response struct {
	ID          string
	Model       string
	Completions []Completion
	Usage       Usage
}

// Content returns the content of the first completion, or empty string if none.
func (r *Response) Content() string {
	if r == nil || len(r.Completions) == 0 {
		return ""
	}
	return r.Completions[0].Message.Content
}

// Reply returns the first completion's message. The role is forced to
// assistant so the reply can be appended to history as-is.
func (r *Response) Reply() Message {
	return AssistantMessage(r.Content())
}

// Descriptor describes one model from the account's catalog.
type Descriptor struct {
	ID            string
	DisplayName   string
	Description   string
	ContextLength int
}

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	if d.Description != "" {
		return fmt.Sprintf("%s (%d ctx) - %s", d.ID, d.ContextLength, d.Description)
	}
	return fmt.Sprintf("%s (%d ctx)", d.ID, d.ContextLength)
}
