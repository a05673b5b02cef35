package translator

import (
	"context"
	"errors"
	"fmt"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/valpere/chaptran/internal/glossary"
)

// GoogleBackend uses Cloud Translation. It translates plain text only and
// never proposes glossary terms, so a run on it keeps the glossary as is.
type GoogleBackend struct {
	opts []option.ClientOption
}

func NewGoogleBackend(cfg Config) *GoogleBackend {
	var opts []option.ClientOption
	if cfg.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	return &GoogleBackend{opts: opts}
}

func (b *GoogleBackend) Name() string {
	return "google"
}

func (b *GoogleBackend) Translate(ctx context.Context, req Request) (*Response, error) {
	client, err := translate.NewClient(ctx, b.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	var opts *translate.Options
	if req.SourceLang != "" && req.SourceLang != "auto" {
		source, err := language.Parse(req.SourceLang)
		if err != nil {
			return nil, fmt.Errorf("invalid source language: %w", err)
		}
		opts = &translate.Options{Source: source, Format: translate.Text}
	} else {
		opts = &translate.Options{Format: translate.Text}
	}

	translations, err := client.Translate(ctx, []string{req.Text}, language.English, opts)
	if err != nil {
		return nil, googleError(ctx, err)
	}
	if len(translations) == 0 {
		return nil, fmt.Errorf("google: no translation returned: %w", ErrMalformed)
	}

	return &Response{Translation: translations[0].Text, Model: "nmt"}, nil
}

func (b *GoogleBackend) ExtractTerms(ctx context.Context, req ExtractRequest) ([]glossary.Candidate, error) {
	return nil, fmt.Errorf("google: term extraction: %w", ErrUnsupported)
}

func googleError(ctx context.Context, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return statusError("google", apiErr.Code, apiErr.Message)
	}
	return transportError(ctx, "google", err)
}
