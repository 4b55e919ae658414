// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/pflag"
)

// rootCommand builds the command tree.
func (a *App) rootCommand() *Command {
	return &Command{
		Name:    "grok",
		Summary: "Command-line interface for xAI's Grok models",
		Usage:   "grok [command] [flags]",
		Examples: []string{
			`grok                                  Start an interactive chat`,
			`grok chat "Explain goroutines"        Ask one question`,
			`grok chat -s -m grok-2 "Hello"        Stream a reply from grok-2`,
			`grok analyze ./src -r -e go,md        Analyze a source tree`,
			`grok config set-key                   Store your API key`,
		},
		Subcommands: []*Command{
			a.chatCommand(),
			a.analyzeCommand(),
			a.modelsCommand(),
			a.sessionsCommand(),
			a.configCommand(),
			a.versionCommand(),
		},
		Run: func(ctx context.Context, _ *pflag.FlagSet, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			return a.runInteractive(ctx, cfg.ChatOptions(), nil, "")
		},
	}
}

func (a *App) versionCommand() *Command {
	return &Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(_ context.Context, _ *pflag.FlagSet, _ []string) error {
			fmt.Fprintf(a.stdout, "grok version %s\n", a.build.Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", a.build.GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", a.build.BuildDate)
			fmt.Fprintf(a.stdout, "  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
