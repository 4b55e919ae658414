// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/grok-cli/internal/model"
	"github.com/jeranaias/grok-cli/internal/tokens"
)

// DefaultBudget is the token budget used when NewWindow is given zero.
const DefaultBudget = 30000

// fileContextHeader prefixes the synthetic message that carries file entries.
const fileContextHeader = "Here are the relevant files for context:\n\n"

// =============================================================================
// ENTRY TYPES
// =============================================================================

// Kind classifies a context entry.
type Kind int

const (
	KindFile Kind = iota
	KindMessage
	KindSystem
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindMessage:
		return "message"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Metadata is attached to every entry on admission.
type Metadata struct {
	FilePath        string
	CreatedAt       time.Time
	EstimatedTokens int
}

// Entry is one admitted piece of context.
type Entry struct {
	Kind     Kind
	Content  string
	Metadata Metadata
}

// =============================================================================
// WINDOW
// =============================================================================

// Window is a bounded, insertion-ordered holder of context entries.
//
// The running total always equals the sum of EstimatedTokens over the
// entries currently held. Eviction only ever removes from the head.
type Window struct {
	mu      sync.RWMutex
	entries []Entry
	total   int
	budget  int
	now     func() time.Time
}

// NewWindow creates an empty window with the given token budget.
// A budget of zero or less selects DefaultBudget.
func NewWindow(budget int) *Window {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Window{
		budget: budget,
		now:    time.Now,
	}
}

// AddFile admits a source file.
func (w *Window) AddFile(path, content string) {
	w.add(Entry{Kind: KindFile, Content: content, Metadata: Metadata{FilePath: path}})
}

// AddMessage admits a conversation message. Only the content is kept; the
// projection re-emits every message entry with the user role.
func (w *Window) AddMessage(msg model.Message) {
	w.add(Entry{Kind: KindMessage, Content: msg.Content})
}

// AddSystemMessage admits a system instruction.
func (w *Window) AddSystemMessage(content string) {
	w.add(Entry{Kind: KindSystem, Content: content})
}

func (w *Window) add(e Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e.Metadata.EstimatedTokens = tokens.Estimate(e.Content)
	e.Metadata.CreatedAt = w.now()

	w.entries = append(w.entries, e)
	w.total += e.Metadata.EstimatedTokens

	w.evictLocked()
}

// evictLocked drops entries from the head until the total fits the budget.
// The last entry is kept even when it alone exceeds the budget.
func (w *Window) evictLocked() {
	for w.total > w.budget && len(w.entries) > 1 {
		w.total -= w.entries[0].Metadata.EstimatedTokens
		w.entries[0] = Entry{}
		w.entries = w.entries[1:]
	}
}

// Messages projects the held entries into a request payload: system entries
// first, then a single system message listing every file, then conversation
// messages as user messages. Each group keeps insertion order.
func (w *Window) Messages() []model.Message {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var system, files, turns []Entry
	for _, e := range w.entries {
		switch e.Kind {
		case KindSystem:
			system = append(system, e)
		case KindFile:
			files = append(files, e)
		case KindMessage:
			turns = append(turns, e)
		}
	}

	msgs := make([]model.Message, 0, len(system)+1+len(turns))
	for _, e := range system {
		msgs = append(msgs, model.SystemMessage(e.Content))
	}

	if len(files) > 0 {
		blocks := make([]string, len(files))
		for i, e := range files {
			blocks[i] = fmt.Sprintf("File: %s\n```\n%s\n```", e.Metadata.FilePath, e.Content)
		}
		msgs = append(msgs, model.SystemMessage(fileContextHeader+strings.Join(blocks, "\n\n")))
	}

	for _, e := range turns {
		msgs = append(msgs, model.UserMessage(e.Content))
	}

	return msgs
}

// Clear removes every entry and resets the running total.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = nil
	w.total = 0
}

// TokenCount returns the running token total.
func (w *Window) TokenCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.total
}

// Budget returns the configured token budget.
func (w *Window) Budget() int {
	return w.budget
}

// Remaining returns the unused portion of the budget.
func (w *Window) Remaining() int {
	return tokens.Remaining(w.budget, w.TokenCount())
}

// Len returns the number of entries held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}

// Entries returns a copy of the held entries in insertion order.
func (w *Window) Entries() []Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Summary returns a one-line description such as
// "Context: 2 files, 3 messages, 840 tokens".
func (w *Window) Summary() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var files, messages int
	for _, e := range w.entries {
		switch e.Kind {
		case KindFile:
			files++
		case KindMessage:
			messages++
		}
	}
	return fmt.Sprintf("Context: %d files, %d messages, %d tokens", files, messages, w.total)
}
