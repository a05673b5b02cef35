package config

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeMissingCredential = "missing_credential"
	CodeMissingSource     = "missing_source"
	CodeInvalid           = "invalid"
)

// Error is a configuration failure. It is always fatal before any chapter
// is processed.
type Error struct {
	Code string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Key != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Key, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Key != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Key)
	default:
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code extracts the error code, or "" when err is not a config error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
