package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/valpere/chaptran/internal/glossary"
)

// DefaultOpenRouterModel is used when no model is configured.
const DefaultOpenRouterModel = "google/gemini-2.0-flash-exp:free"

type OpenRouterBackend struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenRouterBackend(cfg Config) *OpenRouterBackend {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenRouterModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &OpenRouterBackend{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *OpenRouterBackend) Name() string {
	return "openrouter"
}

func (b *OpenRouterBackend) Translate(ctx context.Context, req Request) (*Response, error) {
	content, err := b.chat(ctx, buildSystemPrompt(req), req.Text)
	if err != nil {
		return nil, err
	}
	resp, err := ParseResponse(content)
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w", err)
	}
	resp.Model = b.model
	return resp, nil
}

func (b *OpenRouterBackend) ExtractTerms(ctx context.Context, req ExtractRequest) ([]glossary.Candidate, error) {
	content, err := b.chat(ctx, buildExtractPrompt(req), req.Text)
	if err != nil {
		return nil, err
	}
	terms, err := ParseTerms(content)
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w", err)
	}
	return terms, nil
}

func (b *OpenRouterBackend) chat(ctx context.Context, system, user string) (string, error) {
	if b.apiKey == "" {
		return "", fmt.Errorf("OpenRouter API key required")
	}

	openrouterReq := map[string]interface{}{
		"model": b.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"response_format": map[string]string{"type": "json_object"},
	}

	jsonData, err := json.Marshal(openrouterReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/chat/completions", b.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", b.apiKey))
	httpReq.Header.Set("HTTP-Referer", "https://chaptran.local")
	httpReq.Header.Set("X-Title", "chaptran")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", transportError(ctx, b.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", statusError(b.Name(), resp.StatusCode, string(body))
	}

	var openrouterResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&openrouterResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %v: %w", err, ErrMalformed)
	}

	if len(openrouterResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from API: %w", ErrMalformed)
	}

	return openrouterResp.Choices[0].Message.Content, nil
}
