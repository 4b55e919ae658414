// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for grok.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// a .env file, environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - APIConfig: Credentials, endpoint and pacing for the xAI API
//   - ChatConfig: Default request options and context budget
//   - ValidateErrors: Every problem found by Validate
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command-line flags (applied by the caller)
//   - Environment variables (GROK_*), including those set by ./.env
//   - ~/.grok-cli/config.toml
//   - ~/.grok-cli/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client := xai.NewClient(cfg.Transport())
//
// There is no process-wide configuration; the loaded value is passed down
// explicitly.
package config
