// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package xai

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Stream is a single-pass sequence of text fragments from a streaming call.
//
// Use Next and Text to pull fragments, or range over Fragments. The
// connection is released when the sequence ends, when the caller breaks out
// of Fragments, or when Close is called. A Stream is not safe for concurrent
// use, except that Close may be called from another goroutine.
type Stream struct {
	body    io.ReadCloser
	idle    *idleReader
	dec     *Decoder
	cancel  context.CancelFunc
	log     *zap.Logger
	timeout time.Duration

	text  string
	err   error
	count int
	eof   bool

	closeOnce sync.Once
	closed    chan struct{}
}

// newStream reads fragments from body. When timeout is positive, a single
// read that waits longer than timeout calls cancel and ends the stream with
// a timeout error. Time the caller spends between reads does not count.
func newStream(body io.ReadCloser, cancel context.CancelFunc, log *zap.Logger, timeout time.Duration) *Stream {
	s := &Stream{
		body:    body,
		cancel:  cancel,
		log:     log,
		timeout: timeout,
		closed:  make(chan struct{}),
	}
	var r io.Reader = body
	if timeout > 0 {
		s.idle = newIdleReader(body, timeout, cancel)
		r = s.idle
	}
	s.dec = NewDecoder(r)
	return s
}

// NewStream wraps an already-open response body. It is used by transports
// that obtain the body some other way, and by tests. No idle deadline is
// applied; the body's owner bounds it.
func NewStream(body io.ReadCloser) *Stream {
	return newStream(body, func() {}, zap.NewNop(), 0)
}

// Next advances to the next fragment. It returns false when the sequence
// has ended; check Err to distinguish a clean end from a failure.
func (s *Stream) Next() bool {
	if s.err != nil || s.isClosed() {
		return false
	}

	text, err := s.dec.Next()
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			s.eof = true
		case !s.isClosed():
			s.err = networkError(err, s.timeout, s.idle != nil && s.idle.expired())
		}
		s.text = ""
		s.Close()
		return false
	}

	s.text = text
	s.count++
	return true
}

// Text returns the fragment produced by the last successful Next.
func (s *Stream) Text() string {
	return s.text
}

// Err returns the error that ended the sequence, or nil for a clean end.
// Closing the stream early is not an error.
func (s *Stream) Err() error {
	return s.err
}

// Completed reports whether the sequence ran to the end of the response.
// It is false while fragments remain, after a failure, and after an early Close.
func (s *Stream) Completed() bool {
	return s.eof
}

// Close releases the underlying connection. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
		err = s.body.Close()
		s.log.Debug("stream closed",
			zap.Int("fragments", s.count),
			zap.Int("frames", s.dec.Frames()),
			zap.Int("skipped_frames", s.dec.Skipped()))
	})
	return err
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Fragments returns the stream as a range-over-func sequence. A failure is
// delivered as a final ("", err) pair. Breaking out of the loop closes the
// stream.
func (s *Stream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.Text(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield("", err)
		}
	}
}

// Collect drains the stream and returns the concatenated text. On failure
// the text received so far is returned along with the error.
func (s *Stream) Collect() (string, error) {
	var sb strings.Builder
	for text, err := range s.Fragments() {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// idleReader arms a deadline for the duration of each Read.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.fired.Store(true)
		cancel()
	})
	ir.timer.Stop()
	return ir
}

func (r *idleReader) Read(p []byte) (int, error) {
	r.timer.Reset(r.timeout)
	n, err := r.r.Read(p)
	r.timer.Stop()
	return n, err
}

// expired reports whether a read outlived the deadline.
func (r *idleReader) expired() bool {
	return r.fired.Load()
}
