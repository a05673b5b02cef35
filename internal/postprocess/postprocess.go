// Package postprocess removes common LLM artifacts from chapter translations
// and normalizes their whitespace.
//
// Clean runs on the raw translation returned by any backend; Normalize runs
// after it, before the text is written to disk.
package postprocess

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Clean removes LLM artifacts from text in two phases and returns the
// trimmed result:
//  1. Thinking / reasoning block removal
//  2. Instruction echo removal (prompt leakage)
//
// Outer quotes are left alone: chapters routinely open and close on dialogue.
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeInstructionEchoes(text)
	return strings.TrimSpace(text)
}

// --- Phase 1: thinking blocks ---

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// RE2 has no backreferences, so each tag pair is listed.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- Phase 2: instruction echoes ---

// echoPatterns match introductory phrases that models prepend even when told
// not to. Each is anchored at the start and requires a colon.
var echoPatterns = []*regexp.Regexp{
	// "Here is / Here's [the] [English] [translation|translated chapter|text]:"
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:english |translated |full )?(?:translation|chapter|text)(?: of the chapter)?\s*:`),
	// "[The] [English] [translation|translated chapter]:"
	regexp.MustCompile(`(?i)^(?:the )?(?:english )?(?:translation|translated (?:text|chapter))\s*:`),
	// "Certainly / Sure / Of course[,] here is [the] translation:"
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]? here(?:'s| is)(?: the)? (?:english |translated |full )?(?:translation|chapter|text)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- Normalization ---

// WallOfTextRunes is the length above which a translation without any line
// break is split into paragraphs.
const WallOfTextRunes = 500

var (
	blankRunRe = regexp.MustCompile(`\n{3,}`)
	// Sentence end, optional closing quote, whitespace, then an optional
	// opening quote and a capital letter.
	sentenceBreakRe = regexp.MustCompile(`([.!?]["'”’»]?)\s+(["'“‘«]?\p{Lu})`)
)

// Normalize strips every line, collapses runs of blank lines to one and trims
// the result. A single line longer than WallOfTextRunes is broken into
// paragraphs at sentence boundaries followed by a capital letter.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if !strings.Contains(text, "\n") && utf8.RuneCountInString(text) > WallOfTextRunes {
		text = sentenceBreakRe.ReplaceAllString(text, "$1\n\n$2")
	}
	return text
}
