package translator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/valpere/chaptran/internal/glossary"
)

// Sentinel errors let callers pick a retry policy without knowing the
// backend. Both are retryable.
var (
	// ErrTransient marks server-side and network failures.
	ErrTransient = errors.New("transient backend failure")
	// ErrMalformed marks a response that could not be parsed into a result.
	ErrMalformed = errors.New("malformed backend response")
	// ErrUnsupported is returned by backends that cannot perform an operation.
	ErrUnsupported = errors.New("operation not supported by backend")
)

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrMalformed)
}

// Config carries the settings shared by every backend constructor.
type Config struct {
	APIKey      string        `mapstructure:"api_key" json:"api_key"`
	Model       string        `mapstructure:"model" json:"model"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	Credentials string        `mapstructure:"credentials" json:"credentials"`
	Temperature float32       `mapstructure:"temperature" json:"temperature"`
}

// Request is one chapter translation call.
type Request struct {
	Text         string
	Instructions string
	// Glossary is the rendered glossary block; empty omits the section.
	Glossary   string
	KnownTerms []string
	Strict     bool
	// SourceLang is a BCP 47 tag, or empty when unknown.
	SourceLang string
	// PreviousContext holds the closing words of the previous chapter.
	PreviousContext string
}

// Response is the structured result of a translation call.
type Response struct {
	Translation string
	Terms       []glossary.Candidate
	Model       string
}

// ExtractRequest asks a backend for glossary candidates only.
type ExtractRequest struct {
	Text       string
	SourceLang string
}

// Backend translates chapters and proposes glossary terms.
type Backend interface {
	Name() string
	Translate(ctx context.Context, req Request) (*Response, error)
	ExtractTerms(ctx context.Context, req ExtractRequest) ([]glossary.Candidate, error)
}

// statusError classifies an HTTP status from a backend.
func statusError(service string, code int, detail string) error {
	if code == http.StatusTooManyRequests || code >= 500 {
		return fmt.Errorf("%s: API returned status %d: %s: %w", service, code, detail, ErrTransient)
	}
	return fmt.Errorf("%s: API returned status %d: %s", service, code, detail)
}

// transportError wraps network failures as transient unless the caller's
// context ended.
func transportError(ctx context.Context, service string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: request failed: %w", service, ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: request failed: %v: %w", service, err, ErrTransient)
	}
	return fmt.Errorf("%s: request failed: %w", service, err)
}
