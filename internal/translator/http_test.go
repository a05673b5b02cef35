package translator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const chapterJSON = `{"translation": "Mira drew her blade.", "terms": [{"term": "Mira [ミラ]", "definition": "protagonist"}]}`

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Errorf("failed to decode request body: %v", err)
	}
	return body
}

func chatCompletionBody(content string) []byte {
	resp := map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	}
	b, _ := json.Marshal(resp)
	return b
}

func TestOpenRouterBackend_Translate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		body := decodeBody(t, r)
		if rf, ok := body["response_format"].(map[string]interface{}); !ok || rf["type"] != "json_object" {
			t.Errorf("expected json_object response format, got %v", body["response_format"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatCompletionBody(chapterJSON))
	}))
	defer server.Close()

	b := NewOpenRouterBackend(Config{APIKey: "test-key", BaseURL: server.URL})

	resp, err := b.Translate(context.Background(), Request{Text: "ミラは剣を抜いた。"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Translation != "Mira drew her blade." {
		t.Errorf("unexpected translation %q", resp.Translation)
	}
	if len(resp.Terms) != 1 || resp.Terms[0].Term != "Mira [ミラ]" {
		t.Errorf("unexpected terms %+v", resp.Terms)
	}
	if resp.Model != DefaultOpenRouterModel {
		t.Errorf("expected default model, got %q", resp.Model)
	}
}

func TestOpenRouterBackend_NoAPIKey(t *testing.T) {
	b := NewOpenRouterBackend(Config{})

	_, err := b.Translate(context.Background(), Request{Text: "Hello"})
	if err == nil {
		t.Fatal("expected error when no API key")
	}
	if IsRetryable(err) {
		t.Error("missing key must not be retryable")
	}
}

func TestOpenRouterBackend_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{name: "server error", status: http.StatusInternalServerError, retryable: true},
		{name: "bad gateway", status: http.StatusBadGateway, retryable: true},
		{name: "rate limited", status: http.StatusTooManyRequests, retryable: true},
		{name: "unauthorized", status: http.StatusUnauthorized, retryable: false},
		{name: "bad request", status: http.StatusBadRequest, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			b := NewOpenRouterBackend(Config{APIKey: "k", BaseURL: server.URL})
			_, err := b.Translate(context.Background(), Request{Text: "Hello"})
			if err == nil {
				t.Fatal("expected error for non-OK status")
			}
			if got := IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v (err: %v)", got, tt.retryable, err)
			}
		})
	}
}

func TestOpenRouterBackend_MalformedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatCompletionBody("Sorry, I cannot help with that."))
	}))
	defer server.Close()

	b := NewOpenRouterBackend(Config{APIKey: "k", BaseURL: server.URL})
	_, err := b.Translate(context.Background(), Request{Text: "Hello"})
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestOpenRouterBackend_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	b := NewOpenRouterBackend(Config{APIKey: "k", BaseURL: server.URL})
	_, err := b.Translate(context.Background(), Request{Text: "Hello"})
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestOpenRouterBackend_ExtractTerms(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatCompletionBody(`{"terms": [{"term": "Zephyr [ゼファー]", "definition": "wind spirit"}, {"term": "Mira [ミラ]", "definition": "protagonist"}]}`))
	}))
	defer server.Close()

	b := NewOpenRouterBackend(Config{APIKey: "k", BaseURL: server.URL})
	terms, err := b.ExtractTerms(context.Background(), ExtractRequest{Text: "...", SourceLang: "ja"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(terms) != 2 || terms[0].Term != "Zephyr [ゼファー]" {
		t.Errorf("unexpected terms %+v", terms)
	}
}

func TestOllamaBackend_Translate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body := decodeBody(t, r)
		if body["format"] != "json" {
			t.Errorf("expected json format, got %v", body["format"])
		}
		if body["stream"] != false {
			t.Errorf("expected stream=false, got %v", body["stream"])
		}
		if !strings.Contains(body["system"].(string), "GLOSSARY") {
			t.Error("expected the rendered glossary in the system prompt")
		}
		resp, _ := json.Marshal(map[string]string{"response": chapterJSON})
		w.Write(resp)
	}))
	defer server.Close()

	b := NewOllamaBackend(Config{BaseURL: server.URL, Model: "llama3.2"})
	resp, err := b.Translate(context.Background(), Request{
		Text:     "ミラは剣を抜いた。",
		Glossary: "GLOSSARY: keep these exact term mappings in the translation:\n- Mira [ミラ]: protagonist",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Translation != "Mira drew her blade." || resp.Model != "llama3.2" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestOllamaBackend_Translate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	b := NewOllamaBackend(Config{BaseURL: server.URL})
	_, err := b.Translate(context.Background(), Request{Text: "Hello"})
	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected ErrTransient, got %v", err)
	}
}

func TestOllamaBackend_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := NewOllamaBackend(Config{BaseURL: server.URL}).IsAvailable(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	down := NewOllamaBackend(Config{BaseURL: "http://localhost:19999", Timeout: 100 * time.Millisecond})
	if err := down.IsAvailable(context.Background()); err == nil {
		t.Error("expected error when Ollama not available")
	}
}

func TestOllamaBackend_NotRunningIsTransient(t *testing.T) {
	b := NewOllamaBackend(Config{BaseURL: "http://localhost:19999", Timeout: 100 * time.Millisecond})
	_, err := b.Translate(context.Background(), Request{Text: "Hello"})
	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected connection failure to be transient, got %v", err)
	}
}

func TestOpenAIBackend_Translate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body := decodeBody(t, r)
		if body["model"] != "gpt-test" {
			t.Errorf("unexpected model %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(chatCompletionBody(chapterJSON))
	}))
	defer server.Close()

	b, err := NewOpenAIBackend(Config{APIKey: "k", BaseURL: server.URL + "/v1", Model: "gpt-test"})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := b.Translate(context.Background(), Request{Text: "ミラは剣を抜いた。"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Translation != "Mira drew her blade." || len(resp.Terms) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestOpenAIBackend_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer server.Close()

	b, err := NewOpenAIBackend(Config{APIKey: "k", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.Translate(context.Background(), Request{Text: "Hello"})
	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected ErrTransient, got %v", err)
	}
}

func TestOpenAIBackend_NoAPIKey(t *testing.T) {
	if _, err := NewOpenAIBackend(Config{}); err == nil {
		t.Error("expected error when no API key")
	}
}

func geminiBody(text string) []byte {
	resp := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"role":  "model",
					"parts": []map[string]string{{"text": text}},
				},
				"finishReason": "STOP",
			},
		},
	}
	b, _ := json.Marshal(resp)
	return b
}

func TestGeminiBackend_Translate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-test:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(raw), "application/json") {
			t.Error("expected JSON response MIME type in request")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(geminiBody(chapterJSON))
	}))
	defer server.Close()

	b, err := NewGeminiBackend(context.Background(), Config{APIKey: "k", BaseURL: server.URL, Model: "gemini-test"})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := b.Translate(context.Background(), Request{Text: "ミラは剣を抜いた。"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Translation != "Mira drew her blade." || len(resp.Terms) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestGeminiBackend_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"code": 500, "message": "internal", "status": "INTERNAL"}}`))
	}))
	defer server.Close()

	b, err := NewGeminiBackend(context.Background(), Config{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.Translate(context.Background(), Request{Text: "Hello"})
	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected ErrTransient, got %v", err)
	}
}

func TestGeminiBackend_NoAPIKey(t *testing.T) {
	if _, err := NewGeminiBackend(context.Background(), Config{}); err == nil {
		t.Error("expected error when no API key")
	}
}

func TestGoogleBackend_ExtractUnsupported(t *testing.T) {
	b := NewGoogleBackend(Config{})
	if b.Name() != "google" {
		t.Errorf("expected 'google', got %q", b.Name())
	}
	_, err := b.ExtractTerms(context.Background(), ExtractRequest{Text: "x"})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
