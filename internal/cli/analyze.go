// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"

	"github.com/jeranaias/grok-cli/internal/chat"
	ctxwin "github.com/jeranaias/grok-cli/internal/context"
	"github.com/jeranaias/grok-cli/internal/files"
	"github.com/jeranaias/grok-cli/internal/model"
)

func (a *App) analyzeCommand() *Command {
	return &Command{
		Name:    "analyze",
		Summary: "Analyze files or directories",
		Usage:   "grok analyze <path> [flags]",
		Examples: []string{
			`grok analyze main.go                   Analyze one file`,
			`grok analyze ./internal -r             Analyze a tree of source files`,
			`grok analyze . -r -e go,md             Only .go and .md files`,
			`grok analyze . -r -p "Find data races" Ask a specific question`,
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("analyze", pflag.ContinueOnError)
			fs.BoolP("recursive", "r", false, "analyze directories recursively")
			fs.StringP("extensions", "e", "", "file extensions to include, comma-separated (default: code files)")
			fs.StringP("prompt", "p", "", "question to ask instead of the default analysis request")
			fs.StringSlice("exclude", nil, "additional exclude patterns")
			addRequestFlags(fs)
			return fs
		},
		Run: func(ctx context.Context, fs *pflag.FlagSet, args []string) error {
			if len(args) != 1 {
				return usageErrorf("analyze takes exactly one path\n\nRun 'grok analyze --help' for usage.")
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			opts, err := requestOptions(cfg, fs)
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}

			recursive, _ := fs.GetBool("recursive")
			exts, _ := fs.GetString("extensions")
			prompt, _ := fs.GetString("prompt")
			excludes, _ := fs.GetStringSlice("exclude")

			proc := files.NewProcessor(0)
			for _, pattern := range excludes {
				proc.AddExclude(pattern)
			}

			return a.analyze(ctx, client, analyzeRequest{
				path:      args[0],
				recursive: recursive,
				exts:      files.ParseExtensions(exts),
				prompt:    prompt,
				budget:    cfg.Chat.ContextBudget,
				opts:      opts,
				proc:      proc,
			})
		},
	}
}

type analyzeRequest struct {
	path      string
	recursive bool
	exts      []string
	prompt    string
	budget    int
	opts      model.ChatOptions
	proc      *files.Processor
}

func (a *App) analyze(ctx context.Context, client chat.Transport, req analyzeRequest) error {
	found, err := req.proc.RelevantFiles(req.path, req.exts, req.recursive)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Fprintln(a.stderr, WarningStyle.Render("No relevant files found."))
		return nil
	}

	var total int64
	win := ctxwin.NewWindow(req.budget)
	for _, fi := range found {
		win.AddFile(fi.Path, fi.Content)
		total += fi.Size
	}
	a.printInfo("Found %d files (%s). %s", len(found), files.HumanSize(total), win.Summary())

	kept := 0
	for _, e := range win.Entries() {
		if e.Kind == ctxwin.KindFile {
			kept++
		}
	}
	if dropped := len(found) - kept; dropped > 0 {
		fmt.Fprintln(a.stderr, WarningStyle.Render(fmt.Sprintf(
			"%d files did not fit the context budget of %s and were left out.", dropped, formatCount(req.budget))))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var resp *model.Response
	err = withSpinner(a.spinnerEnabled(), a.stderr, "Getting analysis from Grok...", func() error {
		var err error
		resp, err = chat.Analyze(ctx, client, win, req.prompt, req.opts)
		return err
	})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	rule := separator(60)
	fmt.Fprintln(a.stdout, rule)
	fmt.Fprintln(a.stdout, TitleStyle.Render("CODEBASE ANALYSIS REPORT"))
	fmt.Fprintln(a.stdout, rule)
	fmt.Fprintln(a.stdout, field("Path:", req.path))
	if root, err := files.FindGitRoot(req.path); err == nil {
		fmt.Fprintln(a.stdout, field("Repository:", root))
	}
	fmt.Fprintln(a.stdout, field("Files analyzed:", formatCount(kept)))
	fmt.Fprintln(a.stdout, field("Total tokens:", formatCount(win.TokenCount())))
	fmt.Fprintln(a.stdout, rule)
	fmt.Fprintln(a.stdout)
	fmt.Fprintln(a.stdout, strings.TrimSpace(a.markdown().Render(resp.Content())))
	fmt.Fprintln(a.stdout)
	fmt.Fprintln(a.stdout, rule)

	if resp.Usage.TotalTokens > 0 {
		a.printInfo("Analysis complete. Tokens used: %s", formatCount(resp.Usage.TotalTokens))
	}
	return nil
}

func (a *App) modelsCommand() *Command {
	return &Command{
		Name:    "models",
		Summary: "List models available to your API key",
		Run: func(ctx context.Context, _ *pflag.FlagSet, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			descs, err := client.Models(ctx)
			if err != nil {
				return err
			}
			printModels(a.stdout, descs, cfg.Chat.Model)
			return nil
		},
	}
}
