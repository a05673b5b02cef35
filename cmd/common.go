/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/valpere/chaptran/internal/bootstrap"
	"github.com/valpere/chaptran/internal/chapter"
	"github.com/valpere/chaptran/internal/config"
	"github.com/valpere/chaptran/internal/detector"
	"github.com/valpere/chaptran/internal/glossary"
	"github.com/valpere/chaptran/internal/translator"
)

// addBackendFlags registers the flags that select and tune the backend.
func addBackendFlags(fs *pflag.FlagSet) {
	fs.String("api-key", "", "API key (or CHAPTRAN_API_KEY / provider variable)")
	fs.String("backend", "gemini", "Translation backend: "+strings.Join(config.Backends, ", "))
	fs.String("model", "", "Model name (backend default if empty)")
	fs.String("base-url", "", "Override the backend endpoint")
	fs.String("credentials", "", "Service account JSON for the google backend")
	fs.Duration("timeout", 0, "Per-request timeout (0 uses the backend default)")
	fs.Float32("temperature", 0, "Sampling temperature for LLM backends")
	fs.String("raw-folder", "raw", "Chapter source folder, relative to the novel directory")
	fs.String("source", "auto", "Source language (BCP 47 code or auto)")
	fs.Int("retry-attempts", 3, "Attempts per chapter; the circuit breaker opens after two chapters of consecutive transient failures")
	fs.Duration("retry-delay", 5*time.Second, "Delay between attempts")
	fs.Int("init-chapters", bootstrap.DefaultChapters, "Chapters sampled to seed an empty glossary (0 disables)")
	fs.Bool("skip-review", false, "Do not ask for confirmation of the seeded glossary")
}

// addGlossaryFlags registers the flags that locate and bound the glossary.
func addGlossaryFlags(fs *pflag.FlagSet) {
	fs.String("glossary", "glossary.txt", "Glossary file, relative to the novel directory")
	fs.Int("max-entries", glossary.DefaultMaxEntries, "Glossary capacity")
	fs.String("eviction", "oldest", "Policy when the glossary is full: oldest keeps the oldest entries and refuses new ones, newest keeps the newest entries and drops the oldest")
}

// buildBackend constructs the configured backend behind a circuit breaker.
func buildBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (translator.Backend, error) {
	tc := cfg.Translator()

	var backend translator.Backend
	switch cfg.Backend {
	case "gemini":
		b, err := translator.NewGeminiBackend(ctx, tc)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini backend: %w", err)
		}
		backend = b
	case "openai":
		b, err := translator.NewOpenAIBackend(tc)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai backend: %w", err)
		}
		backend = b
	case "openrouter":
		backend = translator.NewOpenRouterBackend(tc)
	case "ollama":
		b := translator.NewOllamaBackend(tc)
		if err := b.IsAvailable(ctx); err != nil {
			return nil, err
		}
		backend = b
	case "google":
		backend = translator.NewGoogleBackend(tc)
	default:
		return nil, &config.Error{Code: config.CodeInvalid, Key: "backend", Err: fmt.Errorf("unknown backend %q", cfg.Backend)}
	}

	logger.Info("Using backend", zap.String("backend", backend.Name()), zap.String("model", modelName(cfg)))
	return translator.NewBreaker(backend, cfg.Breaker(), logger), nil
}

// modelName is the model recorded with a run.
func modelName(cfg *config.Config) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	switch cfg.Backend {
	case "gemini":
		return translator.DefaultGeminiModel
	case "openai":
		return translator.DefaultOpenAIModel
	case "openrouter":
		return translator.DefaultOpenRouterModel
	case "ollama":
		return translator.DefaultOllamaModel
	case "google":
		return "nmt"
	}
	return ""
}

// sourceLanguage returns the configured source language, or the one detected
// in the first readable chapter. It returns "" when detection fails.
func sourceLanguage(cfg *config.Config, units []chapter.Unit, det *detector.Detector, logger *zap.Logger) string {
	if !cfg.AutoDetect() {
		return cfg.SourceLang
	}
	for _, u := range units {
		text, err := chapter.ReadPlain(u)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		tag, ok := det.DetectTag(text)
		if !ok {
			break
		}
		logger.Info("Detected source language", zap.String("language", tag.String()), zap.String("chapter", u.Name))
		return tag.String()
	}
	logger.Warn("Could not detect the source language; the backend will infer it")
	return ""
}

// confirm asks a yes/no question and defaults to no.
func confirm(out io.Writer, in io.Reader, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
