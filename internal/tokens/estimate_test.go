// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tokens

import (
	"strings"
	"testing"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char", "a", 1},
		{"exactly four", "abcd", 1},
		{"five chars", "abcde", 2},
		{"forty chars", strings.Repeat("x", 40), 10},
		{"multibyte counts runes", "日本語テキスト", 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Estimate(tc.text); got != tc.want {
				t.Errorf("Estimate(%q) = %d, want %d", tc.text, got, tc.want)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	if got := Remaining(100, 30); got != 70 {
		t.Errorf("Remaining(100, 30) = %d, want 70", got)
	}
	if got := Remaining(100, 130); got != 0 {
		t.Errorf("Remaining(100, 130) = %d, want 0", got)
	}
}

func TestFormat(t *testing.T) {
	tests := map[int]string{
		0:     "0 tokens",
		999:   "999 tokens",
		1000:  "1.0k tokens",
		12345: "12.3k tokens",
	}
	for n, want := range tests {
		if got := Format(n); got != want {
			t.Errorf("Format(%d) = %q, want %q", n, got, want)
		}
	}
}
