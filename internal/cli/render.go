// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jeranaias/grok-cli/internal/model"
)

// =============================================================================
// MARKDOWN
// =============================================================================

// markdown renders replies for a terminal. A nil *markdown passes text
// through unchanged.
type markdown struct {
	renderer *glamour.TermRenderer
}

// newMarkdown returns a renderer wrapping at width, or nil when rendering
// is disabled or the renderer cannot be built.
func newMarkdown(enabled bool, width int) *markdown {
	if !enabled {
		return nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(min(width, MaxRenderWidth)),
	)
	if err != nil {
		return nil
	}
	return &markdown{renderer: r}
}

// Render returns content rendered as terminal markdown, or content itself
// if rendering fails.
func (m *markdown) Render(content string) string {
	if m == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// =============================================================================
// NUMBERS
// =============================================================================

var numbers = message.NewPrinter(language.English)

// formatCount formats n with thousands separators.
func formatCount(n int) string {
	return numbers.Sprintf("%d", n)
}

// formatUsage formats server-reported token usage.
func formatUsage(u model.Usage) string {
	return fmt.Sprintf("%s (%s prompt + %s completion)",
		formatCount(u.TotalTokens), formatCount(u.PromptTokens), formatCount(u.CompletionTokens))
}

// =============================================================================
// SPINNER
// =============================================================================

type spinnerDoneMsg struct{}

type spinnerModel struct {
	spinner spinner.Model
	label   string
	start   time.Time
	done    bool
}

func newSpinnerModel(label string) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	s.Style = DimStyle
	return spinnerModel{spinner: s, label: label, start: time.Now()}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinnerDoneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	if m.done {
		return ""
	}
	elapsed := time.Since(m.start).Truncate(100 * time.Millisecond)
	return fmt.Sprintf("%s %s %s", m.spinner.View(), m.label, DimStyle.Render(elapsed.String()))
}

// withSpinner runs fn while a spinner animates on w. When disabled, fn
// simply runs. The spinner never reads input or handles signals, so
// Ctrl+C still reaches the caller's context.
func withSpinner(enabled bool, w io.Writer, label string, fn func() error) error {
	if !enabled {
		return fn()
	}

	p := tea.NewProgram(newSpinnerModel(label),
		tea.WithOutput(w),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_, _ = p.Run()
	}()

	err := fn()
	p.Send(spinnerDoneMsg{})
	<-finished
	return err
}
