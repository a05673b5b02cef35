// Package detector identifies the language of chapter text.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
)

// sampleRunes bounds how much of a chapter is fed to the detector.
const sampleRunes = 2000

// DefaultLanguages are the source languages serialized novels usually come
// in, plus English for checking output.
var DefaultLanguages = []lingua.Language{
	lingua.English,
	lingua.Japanese,
	lingua.Chinese,
	lingua.Korean,
	lingua.Russian,
	lingua.Ukrainian,
	lingua.Spanish,
	lingua.Portuguese,
	lingua.French,
	lingua.German,
	lingua.Vietnamese,
	lingua.Thai,
	lingua.Indonesian,
}

// Detector wraps a lingua detector. Building one loads language models, so
// reuse the instance.
type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector for langs, or DefaultLanguages when fewer than two
// are given.
func New(langs ...lingua.Language) *Detector {
	if len(langs) < 2 {
		langs = DefaultLanguages
	}
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(langs...).
		Build()

	return &Detector{detector: detector}
}

// Detect returns the most likely language of the start of text.
func (d *Detector) Detect(text string) (lingua.Language, bool) {
	text = sample(text)
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the upper-case ISO 639-1 code of the detected language.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}

// DetectTag returns the detected language as a BCP 47 tag.
func (d *Detector) DetectTag(text string) (language.Tag, bool) {
	code, ok := d.DetectISO(text)
	if !ok {
		return language.Und, false
	}
	tag, err := language.Parse(strings.ToLower(code))
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

func sample(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= sampleRunes {
		return text
	}
	runes := []rune(text)
	if len(runes) <= sampleRunes {
		return text
	}
	return string(runes[:sampleRunes])
}
