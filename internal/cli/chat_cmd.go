// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"

	"github.com/jeranaias/grok-cli/internal/chat"
	"github.com/jeranaias/grok-cli/internal/config"
	ctxwin "github.com/jeranaias/grok-cli/internal/context"
	"github.com/jeranaias/grok-cli/internal/files"
	"github.com/jeranaias/grok-cli/internal/model"
)

// maxPipedInput bounds a message read from a non-terminal stdin.
const maxPipedInput = 1 << 20

func (a *App) chatCommand() *Command {
	return &Command{
		Name:    "chat",
		Summary: "Send a single message, or start an interactive chat",
		Usage:   "grok chat [message] [flags]",
		Examples: []string{
			`grok chat                              Interactive chat`,
			`grok chat "What is a monad?"           One question, one answer`,
			`grok chat -s "Write a haiku"           Stream the reply as it arrives`,
			`grok chat -f main.go "Review this"     Attach a file as context`,
			`git diff | grok chat                   Send piped input as the message`,
			`grok chat --resume 3f2a9c1e            Continue a saved session`,
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("chat", pflag.ContinueOnError)
			addRequestFlags(fs)
			fs.BoolP("stream", "s", false, "stream the response as it is generated")
			fs.StringArrayP("file", "f", nil, "attach a file or directory as context (repeatable)")
			fs.String("resume", "", "continue a saved session by id")
			return fs
		},
		Run: func(ctx context.Context, fs *pflag.FlagSet, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			opts, err := requestOptions(cfg, fs)
			if err != nil {
				return err
			}
			if fs.Changed("stream") {
				opts.Stream, _ = fs.GetBool("stream")
			}
			attach, _ := fs.GetStringArray("file")
			resume, _ := fs.GetString("resume")

			message := strings.TrimSpace(strings.Join(args, " "))
			if message == "" && resume == "" && !isTerminal(a.stdin) {
				if message, err = readPiped(a.stdin); err != nil {
					return err
				}
			}

			if message == "" {
				return a.runInteractive(ctx, opts, attach, resume)
			}
			return a.sendOnce(ctx, cfg, message, opts, attach)
		},
	}
}

// addRequestFlags registers the per-request option flags.
func addRequestFlags(fs *pflag.FlagSet) {
	fs.StringP("model", "m", "", "model to use (default from config)")
	fs.Float64P("temperature", "t", 0, "sampling temperature between 0 and 2")
	fs.Int("max-tokens", 0, "maximum tokens in the response")
}

// requestOptions merges request flags over the configured defaults.
func requestOptions(cfg *config.Config, fs *pflag.FlagSet) (model.ChatOptions, error) {
	opts := cfg.ChatOptions()

	if fs.Changed("model") {
		name, _ := fs.GetString("model")
		if strings.TrimSpace(name) == "" {
			return opts, usageErrorf("--model must not be empty")
		}
		opts.Model = name
	}
	if fs.Changed("temperature") {
		t, _ := fs.GetFloat64("temperature")
		if t < 0 || t > 2 {
			return opts, usageErrorf("--temperature must be between 0 and 2, got %g", t)
		}
		opts = opts.WithTemperature(t)
	}
	if fs.Changed("max-tokens") {
		n, _ := fs.GetInt("max-tokens")
		if n <= 0 {
			return opts, usageErrorf("--max-tokens must be positive, got %d", n)
		}
		opts = opts.WithMaxTokens(n)
	}
	return opts, nil
}

func readPiped(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxPipedInput))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// sendOnce sends a single message and prints the reply.
func (a *App) sendOnce(ctx context.Context, cfg *config.Config, message string, opts model.ChatOptions, attach []string) error {
	client, err := a.client()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var session *chat.Session
	if len(attach) > 0 {
		win := ctxwin.NewWindow(cfg.Chat.ContextBudget)
		n, err := attachPaths(files.NewProcessor(0), win, attach)
		if err != nil {
			return err
		}
		a.printInfo("Attached %d files (%s)", n, win.Summary())
		session = chat.NewSession(client, chat.WithWindow(win), chat.WithLogger(a.logger()))
	}

	if opts.Stream {
		var fragments iter.Seq2[string, error]
		if session != nil {
			ts, err := session.SendStream(ctx, message, opts)
			if err != nil {
				return err
			}
			fragments = ts.Fragments()
		} else {
			s, err := chat.AskStream(ctx, client, message, opts)
			if err != nil {
				return err
			}
			fragments = s.Fragments()
		}
		_, err := a.printFragments(fragments)
		return err
	}

	var resp *model.Response
	err = withSpinner(a.spinnerEnabled(), a.stderr, "Thinking...", func() error {
		var err error
		if session != nil {
			resp, err = session.Send(ctx, message, opts)
		} else {
			resp, err = chat.Ask(ctx, client, message, opts)
		}
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, a.markdown().Render(resp.Content()))
	if resp.Usage.TotalTokens > 0 {
		a.printInfo("Tokens used: %s", formatUsage(resp.Usage))
	}
	return nil
}

// printFragments writes fragments to stdout as they arrive and returns
// the text written.
func (a *App) printFragments(fragments iter.Seq2[string, error]) (string, error) {
	var sb strings.Builder
	for text, err := range fragments {
		if err != nil {
			fmt.Fprintln(a.stdout)
			return sb.String(), err
		}
		sb.WriteString(text)
		fmt.Fprint(a.stdout, text)
	}
	fmt.Fprintln(a.stdout)
	return sb.String(), nil
}

// attachPaths loads files under each path into win and returns how many
// were added.
func attachPaths(p *files.Processor, win *ctxwin.Window, paths []string) (int, error) {
	n := 0
	for _, path := range paths {
		found, err := p.RelevantFiles(path, nil, true)
		if err != nil {
			return n, err
		}
		for _, fi := range found {
			win.AddFile(fi.Path, fi.Content)
			n++
		}
	}
	return n, nil
}
