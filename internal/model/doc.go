// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures exchanged with the chat API.
//
// These are plain value types shared by the transport, the context window,
// and the chat orchestrator. None of them perform I/O.
//
// # Key Types
//
//   - Message: A single chat message with a role and content
//   - Role: Message role enumeration (user, assistant, system)
//   - ChatOptions: Per-call request options (model, temperature, limits)
//   - Response: A complete, non-streaming chat completion
//   - Descriptor: One entry of the account's model catalog
//
// # Usage
//
//	msgs := []model.Message{
//	    model.SystemMessage("You are terse."),
//	    model.UserMessage("Hello!"),
//	}
//	opts := model.ChatOptions{Model: "grok-beta"}
package model
