// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"

	ctxwin "github.com/jeranaias/grok-cli/internal/context"
	"github.com/jeranaias/grok-cli/internal/model"
	"github.com/jeranaias/grok-cli/internal/xai"
)

// Transport is the remote side of a conversation. *xai.Client implements it.
type Transport interface {
	Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.Response, error)
	Stream(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*xai.Stream, error)
	Models(ctx context.Context) ([]model.Descriptor, error)
}

// Errors returned by this package.
var (
	// ErrEmptyMessage indicates the user input was blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNothingToResubmit indicates the history does not end with an
	// unanswered user message.
	ErrNothingToResubmit = errors.New("no unanswered message to resubmit")
)

// AnalysisTemperature is used by Analyze when the caller sets none.
const AnalysisTemperature = 0.3

// AnalysisPrompt is the default request sent by Analyze.
const AnalysisPrompt = `Please analyze the following codebase and provide insights about:

1. **Architecture & Structure**: Overall project organization and patterns
2. **Code Quality**: Areas that could be improved
3. **Dependencies**: Key libraries and frameworks used
4. **Potential Issues**: Bugs, security concerns, or technical debt
5. **Suggestions**: Recommendations for improvement

Focus on providing actionable insights.`

// Ask sends text as a single user message and waits for the reply.
func Ask(ctx context.Context, t Transport, text string, opts model.ChatOptions) (*model.Response, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	return t.Chat(ctx, []model.Message{model.UserMessage(text)}, opts)
}

// AskStream sends text as a single user message and streams the reply.
func AskStream(ctx context.Context, t Transport, text string, opts model.ChatOptions) (*xai.Stream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	return t.Stream(ctx, []model.Message{model.UserMessage(text)}, opts)
}

// Analyze adds prompt to a window already holding files and sends the
// window's projection as a one-shot request. An empty prompt selects
// AnalysisPrompt. Temperature defaults to AnalysisTemperature.
func Analyze(ctx context.Context, t Transport, win *ctxwin.Window, prompt string, opts model.ChatOptions) (*model.Response, error) {
	if strings.TrimSpace(prompt) == "" {
		prompt = AnalysisPrompt
	}
	if opts.Temperature == nil {
		opts = opts.WithTemperature(AnalysisTemperature)
	}

	win.AddMessage(model.UserMessage(prompt))
	return t.Chat(ctx, win.Messages(), opts)
}
