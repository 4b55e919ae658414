// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/jeranaias/grok-cli/internal/model"
	"github.com/jeranaias/grok-cli/internal/storage"
)

func (a *App) sessionsCommand() *Command {
	list := &Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Summary: "List saved sessions",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
			fs.IntP("limit", "n", 20, "maximum sessions to show (0 for all)")
			return fs
		},
		Run: func(ctx context.Context, fs *pflag.FlagSet, _ []string) error {
			limit, _ := fs.GetInt("limit")
			return a.withStore(func(store *storage.Store) error {
				metas, err := store.List(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, storage.FormatList(metas))
				return nil
			})
		},
	}

	return &Command{
		Name:    "sessions",
		Aliases: []string{"session"},
		Summary: "Manage saved chat sessions",
		Subcommands: []*Command{
			list,
			{
				Name:    "show",
				Summary: "Print a saved session",
				Usage:   "grok sessions show <id>",
				Run: func(ctx context.Context, _ *pflag.FlagSet, args []string) error {
					if len(args) != 1 {
						return usageErrorf("usage: grok sessions show <id>")
					}
					return a.withStore(func(store *storage.Store) error {
						t, err := store.Load(ctx, args[0])
						if err != nil {
							return err
						}
						a.printTranscript(t)
						return nil
					})
				},
			},
			{
				Name:    "search",
				Summary: "Find sessions containing text",
				Usage:   "grok sessions search <text>",
				Run: func(ctx context.Context, _ *pflag.FlagSet, args []string) error {
					query := strings.TrimSpace(strings.Join(args, " "))
					if query == "" {
						return usageErrorf("usage: grok sessions search <text>")
					}
					return a.withStore(func(store *storage.Store) error {
						metas, err := store.Search(ctx, query)
						if err != nil {
							return err
						}
						fmt.Fprintln(a.stdout, storage.FormatList(metas))
						return nil
					})
				},
			},
			{
				Name:    "delete",
				Aliases: []string{"rm"},
				Summary: "Delete a saved session",
				Usage:   "grok sessions delete <id>",
				Run: func(ctx context.Context, _ *pflag.FlagSet, args []string) error {
					if len(args) != 1 {
						return usageErrorf("usage: grok sessions delete <id>")
					}
					return a.withStore(func(store *storage.Store) error {
						if err := store.Delete(ctx, args[0]); err != nil {
							return err
						}
						a.printSuccess("Deleted session %s", args[0])
						return nil
					})
				},
			},
		},
		Flags:   list.Flags,
		Run:     list.Run,
	}
}

func (a *App) withStore(fn func(*storage.Store) error) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func (a *App) printTranscript(t *storage.Transcript) {
	fmt.Fprintln(a.stdout, TitleStyle.Render(t.Summary))
	fmt.Fprintln(a.stdout, field("ID:", t.ID))
	if t.Model != "" {
		fmt.Fprintln(a.stdout, field("Model:", t.Model))
	}
	fmt.Fprintln(a.stdout, field("Updated:", t.UpdatedAt.Format("2006-01-02 15:04")))
	fmt.Fprintln(a.stdout)

	md := a.markdown()
	for _, m := range t.Messages {
		name := UserPromptStyle.Render(m.Role.DisplayName() + ":")
		if m.Role != model.RoleUser {
			name = AssistantStyle.Render(m.Role.DisplayName() + ":")
		}
		fmt.Fprintln(a.stdout, name)
		fmt.Fprintln(a.stdout, md.Render(m.Content))
		fmt.Fprintln(a.stdout)
	}
}
