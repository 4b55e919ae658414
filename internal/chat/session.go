// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ctxwin "github.com/jeranaias/grok-cli/internal/context"
	"github.com/jeranaias/grok-cli/internal/model"
	"github.com/jeranaias/grok-cli/internal/xai"
)

// =============================================================================
// SESSION
// =============================================================================

// Session is an interactive conversation: an ordered turn history plus an
// optional context window sent ahead of it.
//
// A session drives one turn at a time. Accessors are safe to call from
// other goroutines while a turn is in flight.
type Session struct {
	mu        sync.RWMutex
	id        string
	createdAt time.Time
	transport Transport
	window    *ctxwin.Window
	history   []model.Message
	usage     model.Usage
	log       *zap.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithWindow attaches a context window whose projection precedes the
// history in every request.
func WithWindow(w *ctxwin.Window) SessionOption {
	return func(s *Session) {
		s.window = w
	}
}

// WithID sets the session id, used when restoring a saved session.
func WithID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithHistory seeds the turn history, used when restoring a saved session.
func WithHistory(msgs []model.Message) SessionOption {
	return func(s *Session) {
		s.history = append([]model.Message(nil), msgs...)
	}
}

// WithCreatedAt sets the creation time, used when restoring a saved session.
func WithCreatedAt(t time.Time) SessionOption {
	return func(s *Session) {
		if !t.IsZero() {
			s.createdAt = t
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(log *zap.Logger) SessionOption {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSession creates an empty session on transport t.
func NewSession(t Transport, opts ...SessionOption) *Session {
	s := &Session{
		id:        uuid.NewString(),
		createdAt: time.Now(),
		transport: t,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was started.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Window returns the attached context window, or nil.
func (s *Session) Window() *ctxwin.Window {
	return s.window
}

// History returns a copy of the turn history.
func (s *Session) History() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Message(nil), s.history...)
}

// Len returns the number of messages in the history.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Usage returns the token usage accumulated over non-streaming turns.
func (s *Session) Usage() model.Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// Clear empties the history and the attached window.
func (s *Session) Clear() {
	s.mu.Lock()
	s.history = nil
	s.usage = model.Usage{}
	s.mu.Unlock()

	if s.window != nil {
		s.window.Clear()
	}
}

// Pending reports whether the history ends with an unanswered user message.
func (s *Session) Pending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingLocked()
}

func (s *Session) pendingLocked() bool {
	n := len(s.history)
	return n > 0 && s.history[n-1].Role == model.RoleUser
}

// request builds the outgoing message list: window projection, then history.
func (s *Session) request() []model.Message {
	var msgs []model.Message
	if s.window != nil {
		msgs = s.window.Messages()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(msgs, s.history...)
}

func (s *Session) appendUser(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	s.mu.Lock()
	s.history = append(s.history, model.UserMessage(text))
	s.mu.Unlock()
	return nil
}

func (s *Session) appendReply(reply model.Message, usage model.Usage) {
	s.mu.Lock()
	s.history = append(s.history, reply)
	s.usage = s.usage.Add(usage)
	s.mu.Unlock()
}

// =============================================================================
// TURNS
// =============================================================================

// Send appends text as a user message, sends the full history, and appends
// the reply on success. On failure the user message stays in history.
func (s *Session) Send(ctx context.Context, text string, opts model.ChatOptions) (*model.Response, error) {
	if err := s.appendUser(text); err != nil {
		return nil, err
	}
	return s.complete(ctx, opts)
}

// SendStream appends text as a user message and starts a streaming turn.
// The reply is appended once the returned stream runs to completion.
func (s *Session) SendStream(ctx context.Context, text string, opts model.ChatOptions) (*TurnStream, error) {
	if err := s.appendUser(text); err != nil {
		return nil, err
	}
	return s.completeStream(ctx, opts)
}

// Resubmit re-sends the history when it ends with an unanswered user
// message, without adding another copy of that message.
func (s *Session) Resubmit(ctx context.Context, opts model.ChatOptions) (*model.Response, error) {
	if !s.Pending() {
		return nil, ErrNothingToResubmit
	}
	return s.complete(ctx, opts)
}

// ResubmitStream is the streaming form of Resubmit.
func (s *Session) ResubmitStream(ctx context.Context, opts model.ChatOptions) (*TurnStream, error) {
	if !s.Pending() {
		return nil, ErrNothingToResubmit
	}
	return s.completeStream(ctx, opts)
}

func (s *Session) complete(ctx context.Context, opts model.ChatOptions) (*model.Response, error) {
	msgs := s.request()
	start := time.Now()

	resp, err := s.transport.Chat(ctx, msgs, opts)
	if err != nil {
		s.log.Debug("turn failed",
			zap.String("session", s.id),
			zap.String("code", string(xai.CodeOf(err))),
			zap.Error(err))
		return nil, err
	}

	s.appendReply(resp.Reply(), resp.Usage)
	s.log.Debug("turn completed",
		zap.String("session", s.id),
		zap.Int("messages", len(msgs)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)))
	return resp, nil
}

func (s *Session) completeStream(ctx context.Context, opts model.ChatOptions) (*TurnStream, error) {
	stream, err := s.transport.Stream(ctx, s.request(), opts)
	if err != nil {
		s.log.Debug("stream turn failed",
			zap.String("session", s.id),
			zap.String("code", string(xai.CodeOf(err))),
			zap.Error(err))
		return nil, err
	}
	return &TurnStream{stream: stream, session: s}, nil
}

// =============================================================================
// TURN STREAM
// =============================================================================

// TurnStream is a streaming reply bound to a session turn. It accumulates
// the fragments it yields and appends the full reply to the session when
// the stream ends cleanly. A failed or abandoned stream appends nothing.
type TurnStream struct {
	stream    *xai.Stream
	session   *Session
	reply     strings.Builder
	committed bool
}

// Next advances to the next fragment.
func (ts *TurnStream) Next() bool {
	if ts.stream.Next() {
		ts.reply.WriteString(ts.stream.Text())
		return true
	}
	ts.commit()
	return false
}

// Text returns the current fragment.
func (ts *TurnStream) Text() string {
	return ts.stream.Text()
}

// Err returns the error that ended the stream, if any.
func (ts *TurnStream) Err() error {
	return ts.stream.Err()
}

// Close abandons the turn and releases the connection.
func (ts *TurnStream) Close() error {
	return ts.stream.Close()
}

// Reply returns the text received so far.
func (ts *TurnStream) Reply() string {
	return ts.reply.String()
}

// Committed reports whether the reply was appended to the session.
func (ts *TurnStream) Committed() bool {
	return ts.committed
}

// Fragments returns the turn as a range-over-func sequence. Breaking out
// of the loop abandons the turn.
func (ts *TurnStream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer ts.Close()
		for ts.Next() {
			if !yield(ts.Text(), nil) {
				return
			}
		}
		if err := ts.Err(); err != nil {
			yield("", err)
		}
	}
}

func (ts *TurnStream) commit() {
	if ts.committed || !ts.stream.Completed() {
		return
	}
	ts.committed = true
	ts.session.appendReply(model.AssistantMessage(ts.reply.String()), model.Usage{})
}
