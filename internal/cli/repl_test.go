// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/grok-cli/internal/model"
)

func script(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func TestREPL_ConversationKeepsHistory(t *testing.T) {
	env := newTestEnv(t)
	env.api.replies = []string{"First answer", "Second answer"}

	res := env.run(script("One", "Two"))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Grok: First answer")
	assert.Contains(t, res.stdout, "Grok: Second answer")
	assert.Contains(t, res.stdout, "Goodbye!")

	reqs := env.api.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []model.Message{
		model.UserMessage("One"),
		model.AssistantMessage("First answer"),
		model.UserMessage("Two"),
	}, reqs[1].Messages)
}

func TestREPL_ClearKeyword(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(script("One", "clear", "Again", "exit"))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Chat history cleared.")

	reqs := env.api.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []model.Message{model.UserMessage("Again")}, reqs[1].Messages)
}

func TestREPL_QuitStopsReading(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(script("/quit", "never sent"))
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "Goodbye!")
	assert.Empty(t, env.api.Requests())
}

func TestREPL_Help(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(script("/help"))
	require.Equal(t, ExitSuccess, res.code)
	for _, cmd := range []string{"/clear", "/model", "/add", "/context", "/retry", "/save", "/load", "/sessions", "/quit"} {
		assert.Contains(t, res.stdout, cmd)
	}
}

func TestREPL_UnknownCommandContinues(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(script("/bogus", "hi"))
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stderr, "unknown command /bogus")
	assert.Len(t, env.api.Requests(), 1)
}

func TestREPL_SwitchModel(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(script("/model", "/model grok-2", "hi"))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "grok-beta")
	assert.Contains(t, res.stdout, "Switched to grok-2")

	reqs := env.api.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "grok-2", reqs[0].Model)
}

func TestREPL_StreamToggle(t *testing.T) {
	env := newTestEnv(t)
	env.api.replies = []string{"streamed reply here"}

	res := env.run(script("/stream", "hi"))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Streaming on")
	assert.Contains(t, res.stdout, "Grok: streamed reply here")

	reqs := env.api.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Stream)
}

func TestREPL_RetryAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	env.api.failNext(http.StatusInternalServerError, 1)

	res := env.run(script("hi", "/retry", "/retry"))
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stderr, "upstream exploded")
	assert.Contains(t, res.stdout, "Type /retry to resend your last message.")
	assert.Contains(t, res.stdout, "Hello from Grok")
	assert.Contains(t, res.stderr, "no unanswered message to resubmit")

	reqs := env.api.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []model.Message{model.UserMessage("hi")}, reqs[1].Messages)
}

func TestREPL_NoRetryHintForClientError(t *testing.T) {
	env := newTestEnv(t)
	env.api.failNext(http.StatusUnauthorized, 1)

	res := env.run(script("hi"))
	require.Equal(t, ExitSuccess, res.code)
	assert.NotEmpty(t, res.stderr)
	assert.NotContains(t, res.stdout, "Type /retry")
}

func TestREPL_StreamRetryAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	env.api.failNext(http.StatusInternalServerError, 1)

	res := env.run(script("/stream", "hi", "/r", "/history"))
	require.Equal(t, ExitSuccess, res.code)

	reqs := env.api.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, reqs[1].Stream)
	assert.Equal(t, []model.Message{model.UserMessage("hi")}, reqs[1].Messages)
	assert.Contains(t, res.stdout, "You: hi")
	assert.Contains(t, res.stdout, "Grok: Hello from Grok")
}

func TestREPL_AddAndContext(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile("util.go", []byte("package util\n"), 0644))

	res := env.run(script("/add util.go", "/context", "explain"))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Added 1 files.")
	assert.Contains(t, res.stdout, "Context: 1 files, 0 messages")
	assert.Contains(t, res.stdout, "util.go")

	reqs := env.api.Requests()
	require.Len(t, reqs, 1)
	msgs := reqs[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "File: util.go")
	assert.Equal(t, model.UserMessage("explain"), msgs[1])
}

func TestREPL_AddRequiresPath(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(script("/add", "/add missing.go"))
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stderr, "usage: /add <path>...")
	assert.Contains(t, res.stderr, "missing.go")
}

func TestREPL_Usage(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(script("hi", "/usage"))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "1,234 (1,200 prompt + 34 completion)")
}

func TestREPL_SaveAndLoad(t *testing.T) {
	env := newTestEnv(t)
	env.api.replies = []string{"Noted."}

	res := env.run(script("/save", "Remember the number 7", "/save"))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Nothing to save yet.")
	assert.Contains(t, res.stdout, "Saved session")

	id := onlySession(t, env).ID

	res = env.run(script("/sessions", "/load "+id[:8], "What was the number?"))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Remember the number 7")
	assert.Contains(t, res.stdout, `Loaded "Remember the number 7" (2 messages)`)

	reqs := env.api.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []model.Message{
		model.UserMessage("Remember the number 7"),
		model.AssistantMessage("Noted."),
		model.UserMessage("What was the number?"),
	}, reqs[1].Messages)
}

func TestREPL_LoadKeepsAttachedFiles(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, ExitSuccess, env.run(script("first", "/save")).code)
	id := onlySession(t, env).ID
	require.NoError(t, os.WriteFile("util.go", []byte("package util\n"), 0644))

	res := env.run(script("/add util.go", "/load "+id[:8], "/context", "explain"))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Context: 1 files")

	reqs := env.api.Requests()
	require.Len(t, reqs, 2)
	msgs := reqs[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, model.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "File: util.go")
	assert.Equal(t, model.UserMessage("first"), msgs[1])
	assert.Equal(t, model.UserMessage("explain"), msgs[3])
}

func TestREPL_ResumeFlag(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, ExitSuccess, env.run(script("first", "/save")).code)
	id := onlySession(t, env).ID

	res := env.run(script("second"), "chat", "--resume", id)
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	reqs := env.api.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 3)
}

func TestREPL_LoadUnknown(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(script("/load nope", "/load"))
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stderr, "not found")
	assert.Contains(t, res.stderr, "usage: /load <id>")
}

func TestCompleteSlash(t *testing.T) {
	assert.Equal(t, []string{"/model", "/models"}, completeSlash("/mod"))
	assert.Equal(t, []string{"/stream", "/save", "/sessions"}, completeSlash("/s"))
	assert.Nil(t, completeSlash("hello"))
	assert.Nil(t, completeSlash("/add foo"))
}

func TestFindReplCommand(t *testing.T) {
	require.NotNil(t, findReplCommand("q"))
	assert.Equal(t, "quit", findReplCommand("EXIT").name)
	assert.Equal(t, "context", findReplCommand("ctx").name)
	assert.Nil(t, findReplCommand("nope"))
}
