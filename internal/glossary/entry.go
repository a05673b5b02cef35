// Package glossary holds the cross-chapter terminology store and the filter
// that decides which proposed terms are allowed into it.
//
// A term may carry its origin-language spelling in a bracketed suffix, for
// example "Elena [エレナ]". Comparisons use the base term: the text before the
// first '[', NFC-normalized and case-folded.
package glossary

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Entry is one persisted glossary mapping.
type Entry struct {
	Term       string
	Definition string
}

// Candidate is a term proposed by the translation backend for one chapter.
// It only becomes an Entry after the filter admits it.
type Candidate struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// Entry converts a candidate into a glossary entry. The definition is folded
// onto one line because the file format is line based.
func (c Candidate) Entry() Entry {
	return Entry{
		Term:       strings.TrimSpace(c.Term),
		Definition: strings.Join(strings.Fields(c.Definition), " "),
	}
}

// BaseTerm returns the comparison key of a term.
func BaseTerm(term string) string {
	if i := strings.IndexRune(term, '['); i >= 0 {
		term = term[:i]
	}
	// A Caser keeps state, so each call builds its own.
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(term)))
}

// HasOrigin reports whether term carries a bracketed origin-language form.
func HasOrigin(term string) bool {
	open := strings.IndexRune(term, '[')
	if open < 0 {
		return false
	}
	end := strings.IndexRune(term[open:], ']')
	return end > 1
}

// Base returns the comparison key of the entry's term.
func (e Entry) Base() string { return BaseTerm(e.Term) }

func (e Entry) String() string { return e.Term + ": " + e.Definition }
