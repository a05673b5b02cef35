package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/valpere/chaptran/internal/glossary"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.GPT4oMini

// OpenAIBackend calls the OpenAI chat completions API in JSON mode.
type OpenAIBackend struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIBackend creates an OpenAI client. BaseURL points it at any
// compatible endpoint.
func NewOpenAIBackend(cfg Config) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIBackend{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

func (b *OpenAIBackend) Name() string {
	return "openai"
}

func (b *OpenAIBackend) Translate(ctx context.Context, req Request) (*Response, error) {
	content, err := b.complete(ctx, buildSystemPrompt(req), req.Text)
	if err != nil {
		return nil, err
	}
	resp, err := ParseResponse(content)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	resp.Model = b.model
	return resp, nil
}

func (b *OpenAIBackend) ExtractTerms(ctx context.Context, req ExtractRequest) ([]glossary.Candidate, error) {
	content, err := b.complete(ctx, buildExtractPrompt(req), req.Text)
	if err != nil {
		return nil, err
	}
	terms, err := ParseTerms(content)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return terms, nil
}

func (b *OpenAIBackend) complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: b.temperature,
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", openAIError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response from API: %w", ErrMalformed)
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIError(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return statusError("openai", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return statusError("openai", reqErr.HTTPStatusCode, reqErr.Error())
	}
	return transportError(ctx, "openai", err)
}
