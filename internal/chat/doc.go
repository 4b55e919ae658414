// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the per-turn control flow between the user, the
// context window, and the transport.
//
// Single-shot calls (Ask, AskStream) wrap one input as a user message and
// go straight to the transport. Interactive use goes through a Session,
// which keeps the ordered turn history and, optionally, a context window
// whose projection is sent ahead of the history on every request.
//
// Nothing in this package retries. A failed turn leaves the user message in
// history; the caller decides whether to Resubmit it.
package chat
