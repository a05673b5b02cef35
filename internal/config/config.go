// Package config resolves the settings of a translation run from command
// line flags, the environment, the novel's config.json and defaults, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/valpere/chaptran/internal/bootstrap"
	"github.com/valpere/chaptran/internal/chunker"
	"github.com/valpere/chaptran/internal/glossary"
	"github.com/valpere/chaptran/internal/retry"
	"github.com/valpere/chaptran/internal/translator"
)

const (
	// FileName is the per-novel configuration file.
	FileName = "config.json"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CHAPTRAN"
)

// Backends lists the supported backend names.
var Backends = []string{"gemini", "openai", "openrouter", "ollama", "google"}

// providerEnv is the conventional API key variable of each backend.
var providerEnv = map[string]string{
	"gemini":     "GEMINI_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"google":     "GOOGLE_API_KEY",
}

// Config is the resolved configuration of a novel.
type Config struct {
	NovelDir string `mapstructure:"-"`

	APIKey      string        `mapstructure:"api_key"`
	Backend     string        `mapstructure:"backend"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	Credentials string        `mapstructure:"credentials"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float32       `mapstructure:"temperature"`

	BasePrompt       string `mapstructure:"base_prompt"`
	RawFolder        string `mapstructure:"raw_folder"`
	TranslatedFolder string `mapstructure:"translated_folder"`
	SourceLang       string `mapstructure:"source_lang"`
	ValidateOutput   bool   `mapstructure:"validate_output"`
	ContextWords     int    `mapstructure:"context_words"`

	GlossaryFile      string   `mapstructure:"glossary_file"`
	MaxEntries        int      `mapstructure:"max_glossary_entries"`
	Eviction          string   `mapstructure:"eviction"`
	Strict            bool     `mapstructure:"strict"`
	SkipReview        bool     `mapstructure:"skip_review"`
	InitChapters      int      `mapstructure:"glossary_init_chapters"`
	BootstrapMaxChars int      `mapstructure:"bootstrap_max_chars"`
	Stopwords         []string `mapstructure:"stopwords"`

	Parallel        int           `mapstructure:"parallel"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`

	History     bool   `mapstructure:"history"`
	HistoryFile string `mapstructure:"history_file"`
}

// FlagKeys maps command line flag names to configuration keys.
var FlagKeys = map[string]string{
	"api-key":           "api_key",
	"backend":           "backend",
	"model":             "model",
	"base-url":          "base_url",
	"credentials":       "credentials",
	"timeout":           "timeout",
	"temperature":       "temperature",
	"base-prompt":       "base_prompt",
	"raw-folder":        "raw_folder",
	"translated-folder": "translated_folder",
	"source":            "source_lang",
	"validate-output":   "validate_output",
	"context-words":     "context_words",
	"glossary":          "glossary_file",
	"max-entries":       "max_glossary_entries",
	"eviction":          "eviction",
	"strict":            "strict",
	"skip-review":       "skip_review",
	"init-chapters":     "glossary_init_chapters",
	"parallel":          "parallel",
	"retry-attempts":    "retry_attempts",
	"retry-delay":       "retry_delay",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("backend", "gemini")
	v.SetDefault("model", "")
	v.SetDefault("base_url", "")
	v.SetDefault("credentials", "")
	v.SetDefault("timeout", time.Duration(0))
	v.SetDefault("temperature", 0.0)
	v.SetDefault("base_prompt", translator.DefaultInstructions)
	v.SetDefault("raw_folder", "raw")
	v.SetDefault("translated_folder", "translated")
	v.SetDefault("source_lang", "auto")
	v.SetDefault("context_words", chunker.DefaultContextWords)
	v.SetDefault("glossary_file", "glossary.txt")
	v.SetDefault("max_glossary_entries", glossary.DefaultMaxEntries)
	v.SetDefault("eviction", "oldest")
	v.SetDefault("glossary_init_chapters", bootstrap.DefaultChapters)
	v.SetDefault("bootstrap_max_chars", bootstrap.DefaultMaxChars)
	v.SetDefault("stopwords", []string{})
	v.SetDefault("skip_review", false)
	v.SetDefault("strict", false)
	v.SetDefault("validate_output", false)
	v.SetDefault("parallel", 1)
	v.SetDefault("retry_attempts", retry.DefaultMaxAttempts)
	v.SetDefault("retry_delay", retry.DefaultDelay)
	v.SetDefault("breaker_failures", 0)
	v.SetDefault("breaker_cooldown", time.Minute)
	v.SetDefault("history", true)
	v.SetDefault("history_file", "chaptran.db")
}

// Load resolves and validates the configuration of the novel rooted at
// novelDir. flags may be nil.
func Load(novelDir string, flags *pflag.FlagSet) (*Config, error) {
	cfg, err := Read(novelDir, flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read resolves the configuration without validating it, for commands that
// only touch the glossary or the history.
func Read(novelDir string, flags *pflag.FlagSet) (*Config, error) {
	loadDotEnv(filepath.Join(novelDir, ".env"), ".env")

	v := viper.New()
	setDefaults(v)

	cfgPath := filepath.Join(novelDir, FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Code: CodeInvalid, Key: FileName, Err: err}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, &Error{Code: CodeInvalid, Key: key, Err: err}
				}
			}
		}
	}

	// The provider variable outranks config.json but not CHAPTRAN_API_KEY.
	backend := strings.ToLower(v.GetString("backend"))
	keyEnv := []string{"api_key", EnvPrefix + "_API_KEY"}
	if env, ok := providerEnv[backend]; ok {
		keyEnv = append(keyEnv, env)
	}
	_ = v.BindEnv(keyEnv...)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &Error{Code: CodeInvalid, Err: err}
	}
	cfg.NovelDir = novelDir
	cfg.Backend = backend
	return cfg, nil
}

// loadDotEnv loads every existing file. Variables already set are never
// overridden, so earlier files win.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// Validate checks the configuration before any chapter is processed.
func (c *Config) Validate() error {
	if !isBackend(c.Backend) {
		return &Error{Code: CodeInvalid, Key: "backend", Err: fmt.Errorf("unknown backend %q (want one of %s)", c.Backend, strings.Join(Backends, ", "))}
	}
	if c.NeedsAPIKey() && c.APIKey == "" {
		return &Error{Code: CodeMissingCredential, Key: "api_key", Err: fmt.Errorf("set --api-key, %s_API_KEY or %s", EnvPrefix, providerEnv[c.Backend])}
	}

	if info, err := os.Stat(c.RawDir()); err != nil || !info.IsDir() {
		return &Error{Code: CodeMissingSource, Key: "raw_folder", Err: fmt.Errorf("chapter directory %s not found", c.RawDir())}
	}

	if !strings.EqualFold(c.SourceLang, "auto") && c.SourceLang != "" {
		tag, err := language.Parse(c.SourceLang)
		if err != nil {
			return &Error{Code: CodeInvalid, Key: "source_lang", Err: err}
		}
		c.SourceLang = tag.String()
	}

	switch strings.ToLower(c.Eviction) {
	case "oldest", "newest", "keep-oldest", "keep-newest", "drop-oldest":
	default:
		return &Error{Code: CodeInvalid, Key: "eviction", Err: fmt.Errorf("unknown eviction policy %q", c.Eviction)}
	}

	switch {
	case c.MaxEntries <= 0:
		return &Error{Code: CodeInvalid, Key: "max_glossary_entries", Err: errors.New("must be positive")}
	case c.RetryAttempts < 1:
		return &Error{Code: CodeInvalid, Key: "retry_attempts", Err: errors.New("must be at least 1")}
	case c.RetryDelay < 0:
		return &Error{Code: CodeInvalid, Key: "retry_delay", Err: errors.New("must not be negative")}
	case c.Parallel < 1:
		return &Error{Code: CodeInvalid, Key: "parallel", Err: errors.New("must be at least 1")}
	case c.InitChapters < 0:
		return &Error{Code: CodeInvalid, Key: "glossary_init_chapters", Err: errors.New("must not be negative")}
	case c.GlossaryFile == "":
		return &Error{Code: CodeInvalid, Key: "glossary_file", Err: errors.New("must not be empty")}
	}
	return nil
}

// NeedsAPIKey reports whether the backend cannot run without an API key.
func (c *Config) NeedsAPIKey() bool {
	switch c.Backend {
	case "gemini", "openai", "openrouter":
		return true
	}
	return false
}

func isBackend(name string) bool {
	for _, b := range Backends {
		if b == name {
			return true
		}
	}
	return false
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.NovelDir, p)
}

// RawDir is the chapter source directory.
func (c *Config) RawDir() string { return c.resolve(c.RawFolder) }

// TranslatedDir is the output directory.
func (c *Config) TranslatedDir() string { return c.resolve(c.TranslatedFolder) }

// GlossaryPath is the glossary file.
func (c *Config) GlossaryPath() string { return c.resolve(c.GlossaryFile) }

// HistoryPath is the SQLite ledger file.
func (c *Config) HistoryPath() string { return c.resolve(c.HistoryFile) }

// AutoDetect reports whether the source language is detected from the text.
func (c *Config) AutoDetect() bool {
	return c.SourceLang == "" || strings.EqualFold(c.SourceLang, "auto")
}

// StoreOptions returns the glossary store settings.
func (c *Config) StoreOptions() []glossary.Option {
	return []glossary.Option{
		glossary.WithMaxEntries(c.MaxEntries),
		glossary.WithEviction(glossary.ParseEviction(c.Eviction)),
	}
}

// Translator returns the backend settings.
func (c *Config) Translator() translator.Config {
	return translator.Config{
		APIKey:      c.APIKey,
		Model:       c.Model,
		BaseURL:     c.BaseURL,
		Timeout:     c.Timeout,
		Credentials: c.Credentials,
		Temperature: c.Temperature,
	}
}

// Breaker returns the circuit breaker settings. Consecutive transient
// failures are counted across chapters, so the threshold is never below
// retry_attempts: the chapter that meets an outage first always gets all of
// its attempts. Zero selects two chapters' worth of attempts.
func (c *Config) Breaker() translator.BreakerSettings {
	attempts := uint32(max(c.RetryAttempts, 1))
	n := c.BreakerFailures
	switch {
	case n == 0:
		n = 2 * attempts
	case n < attempts:
		n = attempts
	}
	return translator.BreakerSettings{
		ConsecutiveFailures: n,
		Cooldown:            c.BreakerCooldown,
	}
}

// Retry returns the chapter retry policy.
func (c *Config) Retry() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.RetryAttempts,
		Delay:       c.RetryDelay,
		IsRetryable: translator.IsRetryable,
	}
}

// Bootstrap returns the initial glossary settings. The confirmer is left
// to the caller.
func (c *Config) Bootstrap(sourceLang string) bootstrap.Config {
	return bootstrap.Config{
		Chapters:   c.InitChapters,
		MaxChars:   c.BootstrapMaxChars,
		SourceLang: sourceLang,
		Retry:      c.Retry(),
	}
}
