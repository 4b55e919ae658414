// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
)

// errPromptAborted is returned by a lineReader when Ctrl+C is pressed at
// the prompt.
var errPromptAborted = liner.ErrPromptAborted

// lineReader reads REPL input one line at a time. Prompt returns io.EOF
// when input ends.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// =============================================================================
// TERMINAL INPUT
// =============================================================================

// linerReader provides line editing and persistent history on a terminal.
type linerReader struct {
	state       *liner.State
	historyPath string
}

func newLinerReader(historyPath string, complete func(string) []string) *linerReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	if complete != nil {
		state.SetCompleter(complete)
	}

	r := &linerReader{state: state, historyPath: historyPath}
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = state.ReadHistory(f)
			f.Close()
		}
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	return r.state.Prompt(prompt)
}

func (r *linerReader) AppendHistory(line string) {
	r.state.AppendHistory(line)
}

// Close saves history with owner-only permissions and restores the terminal.
func (r *linerReader) Close() error {
	if r.historyPath != "" {
		if f, err := os.OpenFile(r.historyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = r.state.WriteHistory(f)
			f.Close()
		}
	}
	return r.state.Close()
}

// =============================================================================
// PIPED INPUT
// =============================================================================

// scanReader reads lines from a non-terminal reader.
type scanReader struct {
	sc *bufio.Scanner
}

func newScanReader(r io.Reader) *scanReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxPipedInput)
	return &scanReader{sc: sc}
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return strings.TrimRight(r.sc.Text(), "\r"), nil
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *scanReader) AppendHistory(string) {}

func (r *scanReader) Close() error { return nil }

// isAbort reports whether err is Ctrl+C at the prompt.
func isAbort(err error) bool {
	return errors.Is(err, errPromptAborted)
}
