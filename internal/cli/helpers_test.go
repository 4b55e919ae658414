// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jeranaias/grok-cli/internal/model"
)

const testKey = "xai-test-key"

// recordedRequest is a chat completion request as the fake API saw it.
type recordedRequest struct {
	Model       string          `json:"model"`
	Messages    []model.Message `json:"messages"`
	Temperature *float64        `json:"temperature"`
	MaxTokens   *int            `json:"max_tokens"`
	Stream      bool            `json:"stream"`
}

// fakeAPI imitates the xAI chat and models endpoints.
type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	replies  []string
	// status, when set, is returned for the next failures requests.
	status   int
	failures int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/models"):
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"id":"grok-beta","context_length":131072},{"id":"grok-2","description":"Flagship model"}]}`)
		return
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/chat/completions"):
	default:
		http.NotFound(w, r)
		return
	}

	var req recordedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status := 0
	if f.failures > 0 {
		f.failures--
		status = f.status
	}
	reply := "Hello from Grok"
	if len(f.replies) > 0 {
		reply, f.replies = f.replies[0], f.replies[1:]
	}
	f.mu.Unlock()

	if status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error":{"message":"upstream exploded","code":"internal"}}`)
		return
	}

	if req.Stream {
		w.Header().Set("Content-Type", "text/event-stream")
		for i, word := range strings.SplitAfter(reply, " ") {
			if i > 0 {
				fmt.Fprint(w, "\n")
			}
			chunk, _ := json.Marshal(map[string]any{
				"choices": []any{map[string]any{"delta": map[string]string{"content": word}}},
			})
			fmt.Fprintf(w, "data: %s\n", chunk)
		}
		fmt.Fprint(w, "\ndata: [DONE]\n\n")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":    "resp-1",
		"model": req.Model,
		"choices": []any{map[string]any{
			"message":       map[string]string{"role": "assistant", "content": reply},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 1200, "completion_tokens": 34, "total_tokens": 1234},
	})
}

func (f *fakeAPI) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeAPI) failNext(status, n int) {
	f.mu.Lock()
	f.status, f.failures = status, n
	f.mu.Unlock()
}

// testEnv isolates config, data and working directories for one test.
type testEnv struct {
	t         *testing.T
	api       *fakeAPI
	configDir string
	workDir   string
}

type result struct {
	code   int
	stdout string
	stderr string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	api := &fakeAPI{}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	env := &testEnv{t: t, api: api, configDir: t.TempDir(), workDir: t.TempDir()}
	t.Setenv("GROK_CONFIG_DIR", env.configDir)
	t.Setenv("GROK_API_KEY", testKey)
	t.Setenv("GROK_BASE_URL", server.URL)
	t.Setenv("GROK_MODEL", "")
	t.Setenv("GROK_TIMEOUT", "")
	t.Setenv("GROK_LOG_FILE", "")
	t.Setenv("NO_COLOR", "1")
	t.Setenv("FORCE_COLOR", "")
	t.Chdir(env.workDir)
	return env
}

// run executes one command line with stdin as input.
func (e *testEnv) run(stdin string, args ...string) result {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	app := New(BuildInfo{Version: "1.2.3", GitCommit: "abc1234", BuildDate: "2025-01-01"},
		strings.NewReader(stdin), &stdout, &stderr)
	code := app.Run(context.Background(), args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}
