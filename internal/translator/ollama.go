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

// DefaultOllamaModel is used when no model is configured.
const DefaultOllamaModel = "qwen2.5:7b"

// OllamaBackend calls a local Ollama server in JSON format mode.
type OllamaBackend struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaBackend(cfg Config) *OllamaBackend {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	return &OllamaBackend{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *OllamaBackend) Name() string {
	return "ollama"
}

func (b *OllamaBackend) Translate(ctx context.Context, req Request) (*Response, error) {
	content, err := b.generate(ctx, buildSystemPrompt(req), req.Text)
	if err != nil {
		return nil, err
	}
	resp, err := ParseResponse(content)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	resp.Model = b.model
	return resp, nil
}

func (b *OllamaBackend) ExtractTerms(ctx context.Context, req ExtractRequest) ([]glossary.Candidate, error) {
	content, err := b.generate(ctx, buildExtractPrompt(req), req.Text)
	if err != nil {
		return nil, err
	}
	terms, err := ParseTerms(content)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return terms, nil
}

func (b *OllamaBackend) generate(ctx context.Context, system, prompt string) (string, error) {
	ollamaReq := map[string]interface{}{
		"model":  b.model,
		"system": system,
		"prompt": prompt,
		"format": "json",
		"stream": false,
	}

	jsonData, err := json.Marshal(ollamaReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/generate", b.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", transportError(ctx, b.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", statusError(b.Name(), resp.StatusCode, string(body))
	}

	var ollamaResp struct {
		Response string `json:"response"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %v: %w", err, ErrMalformed)
	}

	return ollamaResp.Response, nil
}

// IsAvailable checks that the server answers on its tags endpoint.
func (b *OllamaBackend) IsAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/api/tags", b.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("Ollama not available: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}
	return nil
}
