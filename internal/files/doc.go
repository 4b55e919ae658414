// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package files selects and reads source files for the context window.
//
// A Processor walks a file or directory, skips excluded paths and files
// that are too large or unreadable, and returns FileInfo values ready to be
// added to a context window. Unreadable entries are skipped, never fatal.
package files
