// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package xai is the HTTP transport for the xAI chat completions API.
//
// The client translates a list of messages plus per-call options into a
// request against the OpenAI-compatible endpoints served under
// https://api.x.ai/v1, and decodes the result.
//
// # Key Types
//
//   - Client: Issues chat, streaming chat, and model catalog requests
//   - Stream: Pull-based sequence of text fragments from a streaming call
//   - Decoder: Line reassembly and frame parsing for the streaming wire format
//   - Error: Normalized failure carrying a Code and optional HTTP status
//
// # Errors
//
// Every failure leaving this package is an *Error. Use errors.Is with the
// sentinels ErrConfiguration, ErrAuth, ErrRateLimit, ErrNetwork and ErrAPI
// to classify it. The transport never retries; retry policy belongs to the
// caller.
//
// # Usage
//
//	client := xai.NewClient(xai.Config{APIKey: key})
//	stream, err := client.Stream(ctx, msgs, model.ChatOptions{Model: "grok-beta"})
//	if err != nil {
//	    return err
//	}
//	for text, err := range stream.Fragments() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(text)
//	}
package xai
