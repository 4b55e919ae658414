// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTree returns a two-level command tree that records what ran.
func testTree(ran *[]string) *Command {
	record := func(name string) func(context.Context, *pflag.FlagSet, []string) error {
		return func(_ context.Context, fs *pflag.FlagSet, args []string) error {
			entry := name
			if fs.Lookup("loud") != nil {
				if loud, _ := fs.GetBool("loud"); loud {
					entry += "!"
				}
			}
			for _, a := range args {
				entry += " " + a
			}
			*ran = append(*ran, entry)
			return nil
		}
	}
	return &Command{
		Name:    "tool",
		Summary: "A test tool",
		Subcommands: []*Command{
			{
				Name:    "greet",
				Aliases: []string{"hi"},
				Summary: "Say hello",
				Flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("greet", pflag.ContinueOnError)
					fs.BoolP("loud", "l", false, "shout")
					return fs
				},
				Run: record("greet"),
			},
			{
				Name:    "remote",
				Summary: "Manage remotes",
				Subcommands: []*Command{
					{Name: "add", Summary: "Add a remote", Run: record("remote add")},
				},
			},
		},
	}
}

func TestCommand_Dispatch(t *testing.T) {
	var ran []string
	root := testTree(&ran)
	var out bytes.Buffer

	require.NoError(t, root.Execute(context.Background(), &out, []string{"greet", "bob"}))
	require.NoError(t, root.Execute(context.Background(), &out, []string{"hi", "-l", "alice"}))
	require.NoError(t, root.Execute(context.Background(), &out, []string{"GREET", "carol", "--loud"}))
	require.NoError(t, root.Execute(context.Background(), &out, []string{"remote", "add", "origin"}))

	assert.Equal(t, []string{"greet bob", "greet! alice", "greet! carol", "remote add origin"}, ran)
}

func TestCommand_UnknownSubcommand(t *testing.T) {
	var ran []string
	root := testTree(&ran)

	err := root.Execute(context.Background(), &bytes.Buffer{}, []string{"gret"})
	var usage *UsageError
	require.True(t, errors.As(err, &usage))
	assert.Contains(t, err.Error(), `did you mean "greet"`)

	err = root.Execute(context.Background(), &bytes.Buffer{}, []string{"zzzzzzzz"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
	assert.Empty(t, ran)
}

func TestCommand_GroupWithoutRunRequiresSubcommand(t *testing.T) {
	var ran []string
	root := testTree(&ran)
	var out bytes.Buffer

	err := root.Execute(context.Background(), &out, []string{"remote"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool remote: subcommand required")
	assert.Contains(t, out.String(), "add")
}

func TestCommand_Help(t *testing.T) {
	var ran []string
	root := testTree(&ran)

	var out bytes.Buffer
	require.NoError(t, root.Execute(context.Background(), &out, []string{"--help"}))
	assert.Contains(t, out.String(), "A test tool")
	assert.Contains(t, out.String(), "greet")
	assert.Contains(t, out.String(), "Manage remotes")

	out.Reset()
	require.NoError(t, root.Execute(context.Background(), &out, []string{"help"}))
	assert.Contains(t, out.String(), "Commands:")

	out.Reset()
	require.NoError(t, root.Execute(context.Background(), &out, []string{"greet", "-h"}))
	assert.Contains(t, out.String(), "Usage:\n  tool greet [flags]")
	assert.Contains(t, out.String(), "--loud")

	assert.Empty(t, ran)
}

func TestCommand_BadFlag(t *testing.T) {
	var ran []string
	root := testTree(&ran)

	err := root.Execute(context.Background(), &bytes.Buffer{}, []string{"greet", "--lowd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean --loud?")
	assert.Contains(t, err.Error(), "tool greet --help")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"chat", "chat", 0},
		{"chatt", "chat", 1},
		{"modle", "model", 2},
		{"kitten", "sitting", 3},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, levenshtein(tc.a, tc.b), "%q vs %q", tc.a, tc.b)
		assert.Equal(t, tc.want, levenshtein(tc.b, tc.a), "%q vs %q", tc.b, tc.a)
	}
}
