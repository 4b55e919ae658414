// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/grok-cli/internal/model"
	"github.com/jeranaias/grok-cli/internal/util"
)

// DefaultFileName is the database file name inside the data directory.
const DefaultFileName = "transcripts.db"

// Errors returned by the store.
var (
	// ErrNotFound is returned when no transcript matches an id.
	ErrNotFound = errors.New("transcript not found")

	// ErrAmbiguous is returned when an id prefix matches several transcripts.
	ErrAmbiguous = errors.New("transcript id is ambiguous")
)

// =============================================================================
// TYPES
// =============================================================================

// Transcript is a saved chat session.
type Transcript struct {
	ID        string
	Summary   string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []model.Message
}

// Meta is transcript metadata for listing.
type Meta struct {
	ID           string
	Summary      string
	Model        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// =============================================================================
// STORE
// =============================================================================

// Store is a transcript database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces t. Missing summary and timestamps are filled in.
func (s *Store) Save(ctx context.Context, t *Transcript) error {
	if t.ID == "" {
		return errors.New("transcript id is required")
	}
	if t.Summary == "" {
		t.Summary = Summarize(t.Messages)
	}
	t.UpdatedAt = s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transcripts (id, summary, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			model = excluded.model,
			updated_at = excluded.updated_at`,
		t.ID, t.Summary, t.Model, t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE transcript_id = ?`, t.ID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages (transcript_id, seq, role, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range t.Messages {
		if _, err := stmt.ExecContext(ctx, t.ID, i, string(m.Role), m.Content); err != nil {
			return fmt.Errorf("save message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transcript: %w", err)
	}
	return nil
}

// Load returns the transcript whose id equals or uniquely starts with id.
func (s *Store) Load(ctx context.Context, id string) (*Transcript, error) {
	fullID, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	t := &Transcript{ID: fullID}
	var created, updated int64
	err = s.db.QueryRowContext(ctx,
		`SELECT summary, model, created_at, updated_at FROM transcripts WHERE id = ?`, fullID,
	).Scan(&t.Summary, &t.Model, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	t.CreatedAt = time.Unix(0, created)
	t.UpdatedAt = time.Unix(0, updated)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE transcript_id = ? ORDER BY seq`, fullID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		t.Messages = append(t.Messages, model.Message{Role: model.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return t, nil
}

// resolve expands an id prefix to a full id.
func (s *Store) resolve(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM transcripts WHERE substr(id, 1, ?) = ? ORDER BY id = ? DESC LIMIT 2`,
		len(id), id, id)
	if err != nil {
		return "", fmt.Errorf("resolve id: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var found string
		if err := rows.Scan(&found); err != nil {
			return "", fmt.Errorf("resolve id: %w", err)
		}
		if found == id {
			return found, nil
		}
		ids = append(ids, found)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("resolve id: %w", err)
	}

	switch len(ids) {
	case 0:
		return "", ErrNotFound
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}
}

// List returns transcript metadata, most recently updated first.
// A limit of zero or less returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Meta, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.summary, t.model, t.created_at, t.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.transcript_id = t.id)
		FROM transcripts t
		ORDER BY t.updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	return scanMetas(rows)
}

// Search returns transcripts whose summary or any message contains query,
// case-insensitively, most recently updated first.
func (s *Store) Search(ctx context.Context, query string) ([]Meta, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.summary, t.model, t.created_at, t.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.transcript_id = t.id)
		FROM transcripts t
		WHERE lower(t.summary) LIKE ?1 ESCAPE '\'
			OR EXISTS (
				SELECT 1 FROM messages m
				WHERE m.transcript_id = t.id AND lower(m.content) LIKE ?1 ESCAPE '\'
			)
		ORDER BY t.updated_at DESC`, pattern)
	if err != nil {
		return nil, fmt.Errorf("search transcripts: %w", err)
	}
	defer rows.Close()

	return scanMetas(rows)
}

// Delete removes a transcript and its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	fullID, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE transcript_id = ?`, fullID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transcripts WHERE id = ?`, fullID); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return tx.Commit()
}

func scanMetas(rows *sql.Rows) ([]Meta, error) {
	var metas []Meta
	for rows.Next() {
		var m Meta
		var created, updated int64
		if err := rows.Scan(&m.ID, &m.Summary, &m.Model, &created, &updated, &m.MessageCount); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		m.CreatedAt = time.Unix(0, created)
		m.UpdatedAt = time.Unix(0, updated)
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan transcripts: %w", err)
	}
	return metas, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// =============================================================================
// FORMATTING
// =============================================================================

// Summarize derives a one-line summary from the first user message.
func Summarize(msgs []model.Message) string {
	for _, m := range msgs {
		if m.Role == model.RoleUser && strings.TrimSpace(m.Content) != "" {
			line := strings.Join(strings.Fields(m.Content), " ")
			return util.TruncateRunes(line, 50)
		}
	}
	return "New conversation"
}

// ShortID is the id prefix shown in listings.
func ShortID(id string) string {
	return util.TruncateRunesNoEllipsis(id, 8)
}

// FormatList renders transcripts as a table.
func FormatList(metas []Meta) string {
	if len(metas) == 0 {
		return "No saved sessions."
	}

	var sb strings.Builder
	sb.WriteString(util.PadRight("ID", 10) + util.PadRight("Updated", 18) + util.PadRight("Msgs", 6) + "Summary\n")
	sb.WriteString(strings.Repeat("-", 60) + "\n")
	for _, m := range metas {
		sb.WriteString(util.PadRight(ShortID(m.ID), 10))
		sb.WriteString(util.PadRight(m.UpdatedAt.Format("2006-01-02 15:04"), 18))
		sb.WriteString(util.PadRight(strconv.Itoa(m.MessageCount), 6))
		sb.WriteString(util.TruncateWidth(m.Summary, 40))
		sb.WriteString("\n")
	}
	return sb.String()
}
