// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tokens approximates token counts for budget accounting and display.
//
// The estimate is a heuristic of roughly four characters per token. It is not
// the count any particular tokenizer would produce and must not be used for
// billing, only for keeping a context window under budget.
package tokens

import (
	"fmt"
	"unicode/utf8"
)

// CharsPerToken is the divisor used by Estimate.
const CharsPerToken = 4

// Estimate returns ceil(chars/4) where chars is the rune count of text.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Remaining returns how many tokens are left under budget, never negative.
func Remaining(budget, used int) int {
	if used >= budget {
		return 0
	}
	return budget - used
}

// Format renders a token count for display: "950 tokens", "1.2k tokens".
func Format(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d tokens", n)
	}
	return fmt.Sprintf("%.1fk tokens", float64(n)/1000)
}
