// Package chunker splits long chapter text into pieces that fit a model
// request, and extracts the closing words of a chapter as continuity context
// for the next one.
package chunker

import (
	"strings"
	"unicode"
)

const (
	// DefaultContextWords is the default number of words extracted by
	// ExtractContext.
	DefaultContextWords = 60

	// maxContextRunes caps the context for scripts written without spaces.
	maxContextRunes = 400
)

// Chunk splits text into pieces each no longer than maxChars code points.
// Splits are attempted, in order of preference, at:
//  1. Paragraph boundaries (a blank line)
//  2. Sentence ends: . ! ? followed by whitespace, or 。！？ (optionally
//     followed by a closing bracket or quote)
//  3. Whitespace
//  4. A hard cut at maxChars
//
// Text that fits, or maxChars ≤ 0, yields a single piece.
func Chunk(text string, maxChars int) []string {
	if maxChars <= 0 || len([]rune(text)) <= maxChars {
		return []string{text}
	}

	var chunks []string
	remaining := []rune(text)

	for len(remaining) > maxChars {
		split := findSplit(remaining, maxChars)
		if chunk := strings.TrimSpace(string(remaining[:split])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = []rune(strings.TrimSpace(string(remaining[split:])))
	}

	if tail := strings.TrimSpace(string(remaining)); tail != "" {
		chunks = append(chunks, tail)
	}

	return chunks
}

// findSplit returns the rune index at which to cut, at most maxChars.
func findSplit(runes []rune, maxChars int) int {
	window := runes[:maxChars]

	// 1. Paragraph boundary.
	for i := len(window) - 1; i > 0; i-- {
		if window[i] == '\n' && window[i-1] == '\n' {
			return i + 1
		}
		if window[i] == '\n' && i >= 2 && window[i-1] == '\r' && window[i-2] == '\n' {
			return i + 1
		}
	}

	// 2. Sentence end.
	for i := len(window) - 1; i > 0; i-- {
		switch window[i] {
		case '。', '！', '？':
			end := i + 1
			for end < len(window) && isClosing(window[end]) {
				end++
			}
			return end
		case '.', '!', '?':
			if i+1 < len(window) && unicode.IsSpace(window[i+1]) {
				return i + 1
			}
		}
	}

	// 3. Whitespace.
	for i := len(window) - 1; i > 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i
		}
	}

	// 4. Hard cut.
	return maxChars
}

func isClosing(r rune) bool {
	switch r {
	case '」', '』', '）', ')', '"', '”', '’', '》', '】':
		return true
	}
	return false
}

// ExtractContext returns the last wordCount words of text joined by single
// spaces, capped to a few hundred runes. If text has fewer words the whole
// trimmed text is returned. If wordCount ≤ 0, DefaultContextWords is used.
func ExtractContext(text string, wordCount int) string {
	if wordCount <= 0 {
		wordCount = DefaultContextWords
	}
	words := strings.Fields(text)
	var out string
	if len(words) <= wordCount {
		out = strings.Join(words, " ")
	} else {
		out = strings.Join(words[len(words)-wordCount:], " ")
	}
	if runes := []rune(out); len(runes) > maxContextRunes {
		out = string(runes[len(runes)-maxContextRunes:])
	}
	return out
}
