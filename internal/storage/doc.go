// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chat transcripts in a local SQLite database.
//
// # Key Types
//
//   - Store: Transcript database handle
//   - Transcript: A saved session with its messages
//   - Meta: Lightweight transcript metadata for listing
//
// # Usage
//
//	store, err := storage.Open(filepath.Join(dataDir, "transcripts.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.Save(ctx, &storage.Transcript{ID: session.ID(), Messages: session.History()})
//	metas, err := store.List(ctx, 20)
//	t, err := store.Load(ctx, metas[0].ID)
//
// Load accepts any unique id prefix, so the short ids shown by
// FormatList can be typed back in.
package storage
