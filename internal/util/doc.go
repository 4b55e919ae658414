// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by grok's packages.
//
//   - TruncateRunes, TruncateWidth, PadRight: display-safe string shaping
//   - AtomicWriteFile: crash-safe file writes for config files
package util
