// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/jeranaias/grok-cli/internal/config"
	"github.com/jeranaias/grok-cli/internal/xai"
)

func (a *App) configCommand() *Command {
	show := &Command{
		Name:    "show",
		Summary: "Show the effective configuration",
		Run: func(context.Context, *pflag.FlagSet, []string) error {
			return a.showConfig()
		},
	}

	return &Command{
		Name:    "config",
		Summary: "View and change settings",
		Usage:   "grok config <command> [args]",
		Examples: []string{
			`grok config set chat.model grok-2`,
			`grok config get api.base_url`,
			`grok config set-key`,
		},
		Subcommands: []*Command{
			show,
			{
				Name:    "get",
				Summary: "Print one setting",
				Usage:   "grok config get <key>",
				Run: func(_ context.Context, _ *pflag.FlagSet, args []string) error {
					if len(args) != 1 {
						return usageErrorf("usage: grok config get <key>")
					}
					return a.getConfig(args[0])
				},
			},
			{
				Name:    "set",
				Summary: "Change one setting",
				Usage:   "grok config set <key> <value>",
				Run: func(_ context.Context, _ *pflag.FlagSet, args []string) error {
					if len(args) != 2 {
						return usageErrorf("usage: grok config set <key> <value>")
					}
					return a.setConfig(args[0], args[1])
				},
			},
			{
				Name:    "set-key",
				Summary: "Store the xAI API key",
				Usage:   "grok config set-key [key]",
				Run: func(_ context.Context, _ *pflag.FlagSet, args []string) error {
					if len(args) > 1 {
						return usageErrorf("usage: grok config set-key [key]")
					}
					key := ""
					if len(args) == 1 {
						key = args[0]
					} else {
						var err error
						if key, err = a.promptSecret("Enter your xAI API key: "); err != nil {
							return err
						}
					}
					key = strings.TrimSpace(key)
					if key == "" {
						return usageErrorf("API key cannot be empty")
					}
					return a.setConfig("api.key", key)
				},
			},
			{
				Name:    "set-model",
				Summary: "Set the default model",
				Usage:   "grok config set-model <model>",
				Run: func(_ context.Context, _ *pflag.FlagSet, args []string) error {
					if len(args) != 1 {
						return usageErrorf("usage: grok config set-model <model>")
					}
					return a.setConfig("chat.model", args[0])
				},
			},
			{
				Name:    "set-url",
				Summary: "Set the API base URL",
				Usage:   "grok config set-url <url>",
				Run: func(_ context.Context, _ *pflag.FlagSet, args []string) error {
					if len(args) != 1 {
						return usageErrorf("usage: grok config set-url <url>")
					}
					return a.setConfig("api.base_url", args[0])
				},
			},
			{
				Name:    "remove-key",
				Summary: "Remove the stored API key",
				Flags:   yesFlag("remove-key"),
				Run: func(_ context.Context, fs *pflag.FlagSet, _ []string) error {
					ok, err := a.confirm(fs, "Remove the stored API key?")
					if err != nil || !ok {
						return err
					}
					return a.setConfig("api.key", "")
				},
			},
			{
				Name:    "reset",
				Summary: "Delete the saved configuration",
				Flags:   yesFlag("reset"),
				Run: func(_ context.Context, fs *pflag.FlagSet, _ []string) error {
					ok, err := a.confirm(fs, "Reset all settings to defaults?")
					if err != nil || !ok {
						return err
					}
					if err := config.Reset(); err != nil {
						return err
					}
					a.printSuccess("Configuration reset to defaults")
					return nil
				},
			},
			{
				Name:    "path",
				Summary: "Print the config file location",
				Run: func(context.Context, *pflag.FlagSet, []string) error {
					path, err := config.ConfigPathTOML()
					if err != nil {
						return err
					}
					fmt.Fprintln(a.stdout, path)
					return nil
				},
			},
			{
				Name:    "keys",
				Summary: "List settable keys",
				Run: func(context.Context, *pflag.FlagSet, []string) error {
					for _, k := range config.Keys() {
						fmt.Fprintln(a.stdout, k)
					}
					return nil
				},
			},
		},
		Run: show.Run,
	}
}

func yesFlag(name string) func() *pflag.FlagSet {
	return func() *pflag.FlagSet {
		fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
		fs.BoolP("yes", "y", false, "skip the confirmation prompt")
		return fs
	}
}

func (a *App) showConfig() error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}

	temperature := "server default"
	if cfg.Chat.Temperature != nil {
		temperature = fmt.Sprintf("%.2f", *cfg.Chat.Temperature)
	}
	maxTokens := "server default"
	if cfg.Chat.MaxTokens > 0 {
		maxTokens = formatCount(cfg.Chat.MaxTokens)
	}
	dataDir, err := cfg.DataDir()
	if err != nil {
		return err
	}

	w := a.stdout
	fmt.Fprintln(w, TitleStyle.Render("Configuration"))
	fmt.Fprintln(w, separator(40))
	fmt.Fprintln(w, field("API key:", cfg.RedactedKey()))
	fmt.Fprintln(w, field("Base URL:", cfg.API.BaseURL))
	fmt.Fprintln(w, field("Timeout:", fmt.Sprintf("%ds", cfg.API.TimeoutSecs)))
	fmt.Fprintln(w, field("Model:", cfg.Chat.Model))
	fmt.Fprintln(w, field("Temperature:", temperature))
	fmt.Fprintln(w, field("Max tokens:", maxTokens))
	fmt.Fprintln(w, field("Streaming:", fmt.Sprintf("%t", cfg.Chat.Stream)))
	fmt.Fprintln(w, field("Context budget:", formatCount(cfg.Chat.ContextBudget)))
	fmt.Fprintln(w, field("Data dir:", dataDir))
	fmt.Fprintln(w)
	fmt.Fprintln(w, DimStyle.Render("Config file: "+path))
	return nil
}

func (a *App) getConfig(key string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	if config.ResolveKey(key) == "api.key" {
		fmt.Fprintln(a.stdout, cfg.RedactedKey())
		return nil
	}
	v, err := cfg.Get(key)
	if err != nil {
		return usageErrorf("%v", err)
	}
	if v == nil {
		fmt.Fprintln(a.stdout, DimStyle.Render("(not set)"))
		return nil
	}
	fmt.Fprintln(a.stdout, v)
	return nil
}

// setConfig edits the saved file. Environment overrides are not applied to
// the loaded copy so they never end up on disk.
func (a *App) setConfig(key, value string) error {
	cfg, err := config.LoadFile()
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return usageErrorf("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	a.cfg = nil

	key = config.ResolveKey(key)
	switch {
	case key == "api.key" && value == "":
		a.printSuccess("API key removed")
	case key == "api.key":
		a.printSuccess("API key saved (fingerprint %s)", xai.Fingerprint(value))
	default:
		a.printSuccess("Set %s = %s", key, value)
	}
	return nil
}

// promptSecret reads a secret without echo on a terminal, or one line
// from piped input.
func (a *App) promptSecret(prompt string) (string, error) {
	if f, ok := a.stdin.(*os.File); ok && isTerminal(f) {
		fmt.Fprint(a.stderr, prompt)
		secret, err := readSecret(f)
		fmt.Fprintln(a.stderr)
		return secret, err
	}
	return readLine(a.stdin)
}

// confirm asks a yes/no question unless --yes was given.
func (a *App) confirm(fs *pflag.FlagSet, question string) (bool, error) {
	if yes, _ := fs.GetBool("yes"); yes {
		return true, nil
	}
	fmt.Fprintf(a.stderr, "%s [y/N] ", question)
	answer, err := readLine(a.stdin)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	a.printInfo("Cancelled.")
	return false, nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
