// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package xai

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}` + "\n"
}

// drain collects every fragment until the decoder stops.
func drain(t *testing.T, d *Decoder) ([]string, error) {
	t.Helper()
	var out []string
	for {
		text, err := d.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, text)
	}
}

func TestDecoder_SingleFrameThenDone(t *testing.T) {
	input := frame("Hi") + "data: [DONE]\n"

	got, err := drain(t, NewDecoder(strings.NewReader(input)))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi"}, got)
}

func TestDecoder_MalformedLineIsSkipped(t *testing.T) {
	input := frame("Hello") + "data: {malformed\n" + frame(", world") + "data: [DONE]\n"

	d := NewDecoder(strings.NewReader(input))
	got, err := drain(t, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", ", world"}, got)
	assert.Equal(t, 1, d.Skipped())
	assert.Equal(t, 3, d.Frames())
}

func TestDecoder_SplitReads(t *testing.T) {
	input := frame("one") + "\n" + frame("two") + frame("three") + "data: [DONE]\n"

	got, err := drain(t, NewDecoder(iotest.OneByteReader(strings.NewReader(input))))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestDecoder_IgnoresNonContentLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "blank lines",
			input: "\n\n" + frame("a") + "\r\n\n" + frame("b"),
			want:  []string{"a", "b"},
		},
		{
			name:  "comments and event fields",
			input: ": keep-alive\nevent: message\nid: 7\n" + frame("x"),
			want:  []string{"x"},
		},
		{
			name:  "empty delta",
			input: `data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n" + frame("y"),
			want:  []string{"y"},
		},
		{
			name:  "no choices",
			input: `data: {"choices":[]}` + "\n" + frame("z"),
			want:  []string{"z"},
		},
		{
			name:  "data without space",
			input: `data:{"choices":[{"delta":{"content":"tight"}}]}` + "\n",
			want:  []string{"tight"},
		},
		{
			name:  "crlf line endings",
			input: strings.ReplaceAll(frame("c")+"data: [DONE]\n", "\n", "\r\n"),
			want:  []string{"c"},
		},
		{
			name:  "unterminated last line",
			input: frame("p") + `data: {"choices":[{"delta":{"content":"q"}}]}`,
			want:  []string{"p", "q"},
		},
		{
			name:  "only done",
			input: "data: [DONE]\n",
			want:  nil,
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := drain(t, NewDecoder(strings.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecoder_ContinuesAfterDone(t *testing.T) {
	input := frame("before") + "data: [DONE]\n" + frame("after")

	got, err := drain(t, NewDecoder(strings.NewReader(input)))
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after"}, got)
}

func TestDecoder_ReaderError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader(frame("partial")), iotest.ErrReader(boom))

	got, err := drain(t, NewDecoder(r))
	assert.Equal(t, []string{"partial"}, got)
	assert.ErrorIs(t, err, boom)
}

func TestStream_Collect(t *testing.T) {
	body := io.NopCloser(strings.NewReader(frame("a") + "data: {bad\n" + frame("b") + "data: [DONE]\n"))

	s := NewStream(body)
	text, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
	assert.True(t, s.Completed())
}

func TestStream_ReadFailureIsNetworkError(t *testing.T) {
	r := io.MultiReader(strings.NewReader(frame("a")), iotest.ErrReader(errors.New("reset")))
	s := NewStream(io.NopCloser(r))

	require.True(t, s.Next())
	assert.Equal(t, "a", s.Text())
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), ErrNetwork)
	assert.Equal(t, CodeNetwork, CodeOf(s.Err()))

	assert.False(t, s.Completed())

	// Exhausted streams stay exhausted.
	assert.False(t, s.Next())
}

func TestStream_CloseEndsSequence(t *testing.T) {
	s := NewStream(io.NopCloser(strings.NewReader(frame("a") + frame("b"))))

	require.True(t, s.Next())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
	assert.False(t, s.Completed())
}
