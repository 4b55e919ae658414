// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package context manages the bounded context window sent with each request.
//
// A Window holds an ordered list of entries (source files, conversation
// messages, and system instructions) under a token budget. When the budget
// is exceeded the oldest entries are evicted first, regardless of kind, but
// the last remaining entry is always kept.
//
// # Key Types
//
//   - Window: Budgeted, insertion-ordered entry list
//   - Entry: One admitted piece of context with its token estimate
//   - Kind: Entry classification (file, message, system)
//
// # Usage
//
//	win := context.NewWindow(30000)
//	win.AddSystemMessage("Answer in English.")
//	win.AddFile("main.go", src)
//	win.AddMessage(model.UserMessage("What does main do?"))
//	msgs := win.Messages()
//
// The projection returned by Messages always orders system entries first,
// then one synthetic message carrying every file, then conversation messages.
package context
