// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is a CLI command or a group of subcommands.
type Command struct {
	// Name is the command name as typed by the user.
	Name string

	// Aliases are alternative names.
	Aliases []string

	// Summary is the one-line description shown in the parent's listing.
	Summary string

	// Usage is the usage line. Synthesized from the command path when empty.
	Usage string

	// Examples are shown at the end of the help output.
	Examples []string

	// Flags returns a fresh FlagSet for this command. Nil means no flags.
	Flags func() *pflag.FlagSet

	// Subcommands are dispatched by the first positional argument. An
	// unmatched first argument is an error.
	Subcommands []*Command

	// Run executes the command with the positional arguments left after
	// flag parsing. When Subcommands is also set, Run handles the case
	// where no subcommand is named.
	Run func(ctx context.Context, fs *pflag.FlagSet, args []string) error

	parent *Command
}

// Execute parses args and dispatches to a subcommand or Run.
func (c *Command) Execute(ctx context.Context, w io.Writer, args []string) error {
	if len(args) > 0 && (isHelpFlag(args[0]) || (len(c.Subcommands) > 0 && args[0] == "help")) {
		c.PrintHelp(w)
		return nil
	}

	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		if sub := c.find(args[0]); sub != nil {
			sub.parent = c
			return sub.Execute(ctx, w, args[1:])
		}
		return c.unknown(args[0])
	}

	if c.Run == nil {
		c.PrintHelp(w)
		return usageErrorf("%s: subcommand required", c.fullName())
	}

	fs := pflag.NewFlagSet(c.fullName(), pflag.ContinueOnError)
	if c.Flags != nil {
		fs = c.Flags()
	}
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			c.PrintHelp(w)
			return nil
		}
		msg := err.Error()
		if strings.Contains(msg, "unknown") {
			if s := suggestFlag(args, fs); s != "" {
				return usageErrorf("%s (did you mean %s?)\n\nRun '%s --help' for usage.", msg, s, c.fullName())
			}
		}
		return usageErrorf("%s\n\nRun '%s --help' for usage.", msg, c.fullName())
	}

	return c.Run(ctx, fs, fs.Args())
}

func (c *Command) find(name string) *Command {
	name = strings.ToLower(name)
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			return sub
		}
		for _, alias := range sub.Aliases {
			if alias == name {
				return sub
			}
		}
	}
	return nil
}

func (c *Command) unknown(name string) error {
	if s := suggestCommand(name, c.Subcommands); s != "" {
		return usageErrorf("unknown command %q (did you mean %q?)\n\nRun '%s --help' for usage.", name, s, c.fullName())
	}
	return usageErrorf("unknown command %q\n\nRun '%s --help' for usage.", name, c.fullName())
}

// PrintHelp writes help for c to w.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()

	if c.Summary != "" {
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	switch {
	case c.Usage != "":
		fmt.Fprintf(w, "Usage:\n  %s\n", c.Usage)
	case len(c.Subcommands) > 0:
		fmt.Fprintf(w, "Usage:\n  %s <command> [flags]\n", name)
	default:
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", name)
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		tw.Flush()
	}

	if c.Flags != nil {
		if usage := c.Flags().FlagUsages(); usage != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", usage)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for _, ex := range c.Examples {
			fmt.Fprintf(w, "  %s\n", ex)
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help"
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

// suggestCommand returns the closest subcommand name within an edit
// distance of 3, or "".
func suggestCommand(unknown string, commands []*Command) string {
	best := ""
	bestDistance := 4
	for _, cmd := range commands {
		if d := levenshtein(unknown, cmd.Name); d < bestDistance {
			bestDistance = d
			best = cmd.Name
		}
	}
	return best
}

// suggestFlag returns the closest defined flag to the first undefined
// flag in args, with its dashes, or "".
func suggestFlag(args []string, fs *pflag.FlagSet) string {
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		name := strings.TrimPrefix(arg, "--")
		if i := strings.IndexByte(name, '='); i >= 0 {
			name = name[:i]
		}
		if fs.Lookup(name) != nil {
			continue
		}

		best := ""
		bestDistance := 4
		fs.VisitAll(func(f *pflag.Flag) {
			if d := levenshtein(name, f.Name); d < bestDistance {
				bestDistance = d
				best = f.Name
			}
		})
		if best != "" {
			return "--" + best
		}
		break
	}
	return ""
}

// levenshtein is the edit distance between a and b.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	prev := make([]int, len(a)+1)
	for i := range prev {
		prev[i] = i
	}
	for j := 1; j <= len(b); j++ {
		cur := make([]int, len(a)+1)
		cur[0] = j
		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[i] = min(prev[i]+1, cur[i-1]+1, prev[i-1]+cost)
		}
		prev = cur
	}
	return prev[len(a)]
}
