// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/grok-cli/internal/model"
)

func sumEstimates(w *Window) int {
	total := 0
	for _, e := range w.Entries() {
		total += e.Metadata.EstimatedTokens
	}
	return total
}

func TestNewWindow_DefaultBudget(t *testing.T) {
	assert.Equal(t, DefaultBudget, NewWindow(0).Budget())
	assert.Equal(t, DefaultBudget, NewWindow(-5).Budget())
	assert.Equal(t, 100, NewWindow(100).Budget())
}

func TestWindow_AddTracksTokens(t *testing.T) {
	w := NewWindow(1000)
	w.AddFile("a.go", strings.Repeat("x", 40))
	w.AddMessage(model.UserMessage("abcd"))
	w.AddSystemMessage("")

	require.Equal(t, 3, w.Len())
	assert.Equal(t, 11, w.TokenCount())
	assert.Equal(t, sumEstimates(w), w.TokenCount())

	entries := w.Entries()
	assert.Equal(t, KindFile, entries[0].Kind)
	assert.Equal(t, "a.go", entries[0].Metadata.FilePath)
	assert.Equal(t, 10, entries[0].Metadata.EstimatedTokens)
	assert.False(t, entries[0].Metadata.CreatedAt.IsZero())
	assert.Equal(t, KindSystem, entries[2].Kind)
	assert.Equal(t, 0, entries[2].Metadata.EstimatedTokens)
}

func TestWindow_EvictsOldestFirst(t *testing.T) {
	w := NewWindow(20)
	msg := strings.Repeat("m", 40)

	w.AddMessage(model.UserMessage(msg + "1"))
	w.AddMessage(model.UserMessage(msg + "2"))
	w.AddMessage(model.UserMessage(msg + "3"))

	// Each entry alone is 11 tokens, so only the newest fits.
	entries := w.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, msg+"3", entries[0].Content)
	assert.Equal(t, 11, w.TokenCount())
}

func TestWindow_BudgetKeepsNewestThatFit(t *testing.T) {
	w := NewWindow(20)
	for _, c := range []string{"a", "b", "c"} {
		w.AddMessage(model.UserMessage(strings.Repeat(c, 40)))
	}

	// 10 tokens each: the two newest exactly fill the budget.
	entries := w.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, strings.Repeat("b", 40), entries[0].Content)
	assert.Equal(t, strings.Repeat("c", 40), entries[1].Content)
	assert.Equal(t, 20, w.TokenCount())
}

func TestWindow_SoleEntryNeverEvicted(t *testing.T) {
	w := NewWindow(5)
	w.AddFile("big.txt", strings.Repeat("z", 400))

	require.Equal(t, 1, w.Len())
	assert.Equal(t, 100, w.TokenCount())
	assert.Greater(t, w.TokenCount(), w.Budget())
	assert.Equal(t, 0, w.Remaining())
}

func TestWindow_EvictionIgnoresKind(t *testing.T) {
	w := NewWindow(10)
	w.AddSystemMessage(strings.Repeat("s", 20)) // 5
	w.AddFile("f.go", strings.Repeat("f", 20))  // 5
	w.AddMessage(model.UserMessage("hello"))    // 2

	entries := w.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, KindFile, entries[0].Kind)
	assert.Equal(t, KindMessage, entries[1].Kind)
	assert.Equal(t, 7, w.TokenCount())
	assert.Equal(t, sumEstimates(w), w.TokenCount())
}

func TestWindow_MessagesOrdering(t *testing.T) {
	w := NewWindow(1000)
	w.AddMessage(model.UserMessage("first question"))
	w.AddFile("a.go", "package a")
	w.AddSystemMessage("be brief")
	w.AddFile("b.go", "package b")
	w.AddMessage(model.AssistantMessage("an answer"))
	w.AddSystemMessage("use English")

	msgs := w.Messages()
	require.Len(t, msgs, 5)

	assert.Equal(t, model.SystemMessage("be brief"), msgs[0])
	assert.Equal(t, model.SystemMessage("use English"), msgs[1])

	assert.Equal(t, model.RoleSystem, msgs[2].Role)
	want := "Here are the relevant files for context:\n\n" +
		"File: a.go\n```\npackage a\n```" +
		"\n\n" +
		"File: b.go\n```\npackage b\n```"
	assert.Equal(t, want, msgs[2].Content)

	// Message entries are always re-emitted with the user role.
	assert.Equal(t, model.UserMessage("first question"), msgs[3])
	assert.Equal(t, model.UserMessage("an answer"), msgs[4])
}

func TestWindow_MessagesWithoutFiles(t *testing.T) {
	w := NewWindow(1000)
	w.AddMessage(model.UserMessage("hi"))
	w.AddSystemMessage("sys")

	msgs := w.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleSystem, msgs[0].Role)
	assert.Equal(t, model.RoleUser, msgs[1].Role)

	assert.Empty(t, NewWindow(0).Messages())
}

func TestWindow_Clear(t *testing.T) {
	w := NewWindow(1000)
	w.AddFile("a.go", "package a")
	w.AddMessage(model.UserMessage("hi"))
	w.Clear()

	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 0, w.TokenCount())
	assert.Empty(t, w.Messages())
	assert.Equal(t, "Context: 0 files, 0 messages, 0 tokens", w.Summary())
}

func TestWindow_Summary(t *testing.T) {
	w := NewWindow(1000)
	w.AddFile("a.go", strings.Repeat("a", 8))
	w.AddFile("b.go", strings.Repeat("b", 8))
	w.AddMessage(model.UserMessage(strings.Repeat("c", 12)))
	w.AddSystemMessage("sys")

	assert.Equal(t, "Context: 2 files, 1 messages, 8 tokens", w.Summary())
}

func TestWindow_EntriesIsCopy(t *testing.T) {
	w := NewWindow(1000)
	w.AddMessage(model.UserMessage("original"))

	entries := w.Entries()
	entries[0].Content = "mutated"

	assert.Equal(t, "original", w.Entries()[0].Content)
}

func TestWindow_ConcurrentAccess(t *testing.T) {
	w := NewWindow(50)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				w.AddMessage(model.UserMessage("some words here"))
				_ = w.Summary()
				_ = w.Messages()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, w.TokenCount(), w.Budget())
	assert.Equal(t, sumEstimates(w), w.TokenCount())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "file", KindFile.String())
	assert.Equal(t, "message", KindMessage.String())
	assert.Equal(t, "system", KindSystem.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
