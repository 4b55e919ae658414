// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package xai

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// doneMarker is the payload of the frame that signals end of generation.
var doneMarker = []byte("[DONE]")

// streamChunk is one decoded streaming frame.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// content returns the text delta of the first choice.
func (c *streamChunk) content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// Decoder extracts text deltas from a streaming chat response.
//
// Reads are reassembled into newline-terminated lines before parsing, so a
// frame split across network reads decodes the same as an unsplit one.
// Blank lines, non-data fields, and the [DONE] marker yield nothing. A data
// line whose payload is not valid JSON is skipped and counted.
type Decoder struct {
	r       *bufio.Reader
	skipped int
	frames  int
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next non-empty text delta. It returns io.EOF once the
// underlying reader is exhausted, or the reader's error if it fails.
func (d *Decoder) Next() (string, error) {
	for {
		line, err := d.r.ReadBytes('\n')
		if len(line) > 0 {
			// A final line without a terminator is still a complete frame.
			if text, ok := d.decodeLine(line); ok {
				return text, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", err
		}
	}
}

// decodeLine parses one line and reports whether it carried text.
func (d *Decoder) decodeLine(line []byte) (string, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return "", false
	}

	payload, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		// event:, id:, retry: and ": comment" lines carry no content.
		return "", false
	}
	payload = bytes.TrimSpace(payload)
	if bytes.Equal(payload, doneMarker) {
		return "", false
	}

	d.frames++

	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		d.skipped++
		return "", false
	}

	text := chunk.content()
	return text, text != ""
}

// Frames returns the number of data frames seen, excluding [DONE].
func (d *Decoder) Frames() int {
	return d.frames
}

// Skipped returns the number of data frames dropped as malformed.
func (d *Decoder) Skipped() int {
	return d.skipped
}
