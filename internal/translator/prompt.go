package translator

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/valpere/chaptran/internal/glossary"
)

// DefaultInstructions is the base prompt used when none is configured.
const DefaultInstructions = "Translate the following text to English:"

const responseFormat = `Respond with a single JSON object and nothing else:
{"translation": "<the full English translation>", "terms": [{"term": "<English term> [<original>]", "definition": "<short description>"}]}`

// buildSystemPrompt assembles the instructions for a chapter translation:
// base instructions, the glossary block, the known-term list, the term
// proposal rules and the response format.
func buildSystemPrompt(req Request) string {
	var sb strings.Builder

	instructions := req.Instructions
	if instructions == "" {
		instructions = DefaultInstructions
	}
	sb.WriteString(instructions)
	if name := languageName(req.SourceLang); name != "" {
		sb.WriteString(fmt.Sprintf("\nThe source text is written in %s.", name))
	}
	sb.WriteString("\nKeep the paragraph structure of the original. Do not summarize or omit anything.")

	if req.Glossary != "" {
		sb.WriteString("\n\n")
		sb.WriteString(req.Glossary)
	}

	sb.WriteString("\n\nNEW TERMS:\n")
	if req.Strict {
		sb.WriteString(fmt.Sprintf("Propose at most %d new term, and only for a recurring proper noun whose translation must stay fixed.", glossary.StrictLimit))
	} else {
		sb.WriteString(fmt.Sprintf("Propose up to %d new proper nouns (characters, places, organisations, techniques) whose translation must stay fixed across chapters.", glossary.DefaultLimit))
	}
	sb.WriteString(" Write each term as its English rendering followed by the original in square brackets, e.g. \"Mira [ミラ]\". Never propose common words or generic titles.")

	if len(req.KnownTerms) > 0 {
		sb.WriteString("\nThese terms are already known; do not propose them again: ")
		sb.WriteString(strings.Join(req.KnownTerms, "; "))
	}

	if req.PreviousContext != "" {
		sb.WriteString(fmt.Sprintf("\n\nCONTEXT (end of the previous chapter, for continuity; do NOT translate this):\n...%s", req.PreviousContext))
	}

	sb.WriteString("\n\n")
	sb.WriteString(responseFormat)
	return sb.String()
}

const extractFormat = `Respond with a single JSON object and nothing else:
{"terms": [{"term": "<English term> [<original>]", "definition": "<short description>"}]}`

// buildExtractPrompt asks for glossary candidates over a sample of chapters.
func buildExtractPrompt(req ExtractRequest) string {
	var sb strings.Builder
	sb.WriteString("You are building a translation glossary for a serialized novel.")
	if name := languageName(req.SourceLang); name != "" {
		sb.WriteString(fmt.Sprintf(" The text is written in %s.", name))
	}
	sb.WriteString("\nList the recurring proper nouns in the text (characters, places, organisations, techniques, unique items)")
	sb.WriteString(" with the English rendering to use for each. Write each term as its English rendering followed by the original")
	sb.WriteString(" in square brackets, e.g. \"Mira [ミラ]\", and give a short definition. Skip common words and generic titles.")
	sb.WriteString("\n\n")
	sb.WriteString(extractFormat)
	return sb.String()
}

// languageName returns the English name for a BCP 47 tag, or "" when the
// tag is empty, "auto" or unparseable.
func languageName(code string) string {
	if code == "" || code == "auto" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	return display.English.Tags().Name(tag)
}
