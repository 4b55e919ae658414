// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the grok command line.
//
// Commands:
//
//	grok                          Start an interactive chat
//	grok chat [message]           Send one message, or chat interactively
//	grok analyze <path>           Ask for an analysis of files under path
//	grok models                   List models available to the API key
//	grok sessions [list|show|search|rm]  Manage saved chat transcripts
//	grok config <subcommand>      Show or change configuration
//	grok version                  Print version information
//
// Each command is a Command with its own pflag FlagSet. Run builds the
// tree, dispatches, prints any error with a hint, and returns the
// process exit code.
package cli
