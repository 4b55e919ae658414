// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing/iotest"

	"github.com/jeranaias/grok-cli/internal/model"
	"github.com/jeranaias/grok-cli/internal/xai"
)

// fakeTransport answers with scripted replies and records every request.
type fakeTransport struct {
	mu sync.Mutex

	reply     string
	fragments []string
	usage     model.Usage
	err       error
	streamErr error // failure after all fragments are delivered

	calls [][]model.Message
	opts  []model.ChatOptions
}

func (f *fakeTransport) record(msgs []model.Message, opts model.ChatOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]model.Message(nil), msgs...))
	f.opts = append(f.opts, opts)
}

func (f *fakeTransport) lastCall() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeTransport) Chat(_ context.Context, msgs []model.Message, opts model.ChatOptions) (*model.Response, error) {
	f.record(msgs, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &model.Response{
		ID:          "fake-1",
		Model:       opts.Model,
		Completions: []model.Completion{{Message: model.AssistantMessage(f.reply), FinishReason: "stop"}},
		Usage:       f.usage,
	}, nil
}

func (f *fakeTransport) Stream(_ context.Context, msgs []model.Message, opts model.ChatOptions) (*xai.Stream, error) {
	f.record(msgs, opts)
	if f.err != nil {
		return nil, f.err
	}

	var sb strings.Builder
	for _, frag := range f.fragments {
		payload, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"delta": map[string]string{"content": frag}}},
		})
		sb.WriteString("data: ")
		sb.Write(payload)
		sb.WriteString("\n")
	}

	var body io.Reader = strings.NewReader(sb.String())
	if f.streamErr != nil {
		body = io.MultiReader(body, iotest.ErrReader(f.streamErr))
	} else {
		body = io.MultiReader(body, strings.NewReader("data: [DONE]\n"))
	}
	return xai.NewStream(io.NopCloser(body)), nil
}

func (f *fakeTransport) Models(context.Context) ([]model.Descriptor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.Descriptor{
		{ID: "grok-beta", DisplayName: "grok-beta", ContextLength: 32768},
		{ID: "grok-2", DisplayName: "grok-2", ContextLength: 65536},
	}, nil
}
