// Package validator checks that a chapter translation is in the expected
// target language.
package validator

import (
	"fmt"
	"strings"

	"github.com/valpere/chaptran/internal/detector"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

// Validator checks that a translation is written in the expected language.
// The underlying language detector is expensive to build; reuse the instance.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator backed by the lingua-go language detector.
func New() *Validator {
	return &Validator{det: detector.New()}
}

// NewWithDetector shares an existing detector.
func NewWithDetector(det *detector.Detector) *Validator {
	return &Validator{det: det}
}

// Check returns nil when translated appears to be written in targetLang
// (an ISO 639-1 code, any case).
//
// Short texts and texts whose language cannot be determined pass. Empty text
// and a detected language other than targetLang are errors.
func (v *Validator) Check(translated, targetLang string) error {
	if targetLang == "" {
		return nil
	}

	text := strings.TrimSpace(translated)
	if text == "" {
		return fmt.Errorf("translation is empty")
	}

	if len([]rune(text)) < minValidationLength {
		return nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return nil
	}

	if !strings.EqualFold(detected, targetLang) {
		return fmt.Errorf("expected %s but detected %s", strings.ToUpper(targetLang), detected)
	}

	return nil
}

// IsValid is Check in boolean form.
func (v *Validator) IsValid(translated, targetLang string) (bool, error) {
	if err := v.Check(translated, targetLang); err != nil {
		return false, err
	}
	return true, nil
}
