package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/valpere/chaptran/internal/glossary"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

var termSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"term":       {Type: genai.TypeString},
		"definition": {Type: genai.TypeString},
	},
	Required: []string{"term", "definition"},
}

var translationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"translation": {Type: genai.TypeString},
		"terms":       {Type: genai.TypeArray, Items: termSchema},
	},
	Required: []string{"translation"},
}

var extractSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"terms": {Type: genai.TypeArray, Items: termSchema},
	},
	Required: []string{"terms"},
}

// GeminiBackend calls the Gemini API with a JSON response schema.
type GeminiBackend struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiBackend creates a Gemini client. BaseURL and Timeout are optional.
func NewGeminiBackend(ctx context.Context, cfg Config) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiBackend{client: client, model: model, temperature: cfg.Temperature}, nil
}

func (b *GeminiBackend) Name() string {
	return "gemini"
}

func (b *GeminiBackend) Translate(ctx context.Context, req Request) (*Response, error) {
	text, err := b.generate(ctx, buildSystemPrompt(req), req.Text, translationSchema)
	if err != nil {
		return nil, err
	}
	resp, err := ParseResponse(text)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	resp.Model = b.model
	return resp, nil
}

func (b *GeminiBackend) ExtractTerms(ctx context.Context, req ExtractRequest) ([]glossary.Candidate, error) {
	text, err := b.generate(ctx, buildExtractPrompt(req), req.Text, extractSchema)
	if err != nil {
		return nil, err
	}
	terms, err := ParseTerms(text)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return terms, nil
}

func (b *GeminiBackend) generate(ctx context.Context, system, user string, schema *genai.Schema) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	}
	if b.temperature > 0 {
		config.Temperature = genai.Ptr(b.temperature)
	}

	result, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(user), config)
	if err != nil {
		return "", geminiError(ctx, err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty response: %w", ErrMalformed)
	}
	return text, nil
}

func geminiError(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return statusError("gemini", apiErr.Code, apiErr.Message)
	}
	return transportError(ctx, "gemini", err)
}
