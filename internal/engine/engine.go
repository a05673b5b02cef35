// Package engine translates one chapter at a time while growing the shared
// glossary: it renders the current glossary into the request, cleans the
// model output and merges the proposed terms back through the filter.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/chaptran/internal/glossary"
	"github.com/valpere/chaptran/internal/postprocess"
	"github.com/valpere/chaptran/internal/retry"
	"github.com/valpere/chaptran/internal/translator"
	"github.com/valpere/chaptran/internal/validator"
)

// TargetLang is the output language of every translation.
const TargetLang = "en"

// Config holds the per-run engine settings.
type Config struct {
	Instructions string
	SourceLang   string
	// GlossaryPath is where the store is saved after accepting terms. Empty
	// disables saving.
	GlossaryPath string
	Retry        retry.Policy
	// Validator, when set, rejects output that is not in TargetLang.
	Validator *validator.Validator
}

// Engine runs the per-chapter pipeline.
type Engine struct {
	backend translator.Backend
	filter  *glossary.Filter
	cfg     Config
	logger  *zap.Logger
}

func New(backend translator.Backend, filter *glossary.Filter, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Instructions == "" {
		cfg.Instructions = translator.DefaultInstructions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{backend: backend, filter: filter, cfg: cfg, logger: logger}
}

// Chapter is the input to one engine call.
type Chapter struct {
	Name string
	Text string
	// PreviousContext holds the closing words of the preceding chapter.
	PreviousContext string
}

// Snapshot is the glossary view sent with a request.
type Snapshot struct {
	Glossary string
	Terms    []string
}

// TakeSnapshot captures the current state of store.
func TakeSnapshot(store *glossary.Store) Snapshot {
	return Snapshot{Glossary: store.Render(), Terms: store.Terms()}
}

// Result is the outcome of a successful chapter.
type Result struct {
	Name        string
	Translation string
	Model       string
	Attempts    int
	Duration    time.Duration
	Proposed    int
	Accepted    int
	Decisions   []glossary.Decision
	Saved       bool
}

// Process translates ch against store and merges the proposed terms into
// it, saving the store when anything was accepted.
func (e *Engine) Process(ctx context.Context, ch Chapter, store *glossary.Store, strict bool) (*Result, error) {
	res, resp, err := e.translate(ctx, ch, TakeSnapshot(store), strict)
	if err != nil {
		return nil, err
	}

	res.Proposed = len(resp.Terms)
	res.Accepted, res.Decisions = store.Merge(resp.Terms, e.filter.Batch(glossary.LimitFor(strict)))
	for _, d := range res.Decisions {
		e.logDecision(ch.Name, d)
	}

	if res.Accepted > 0 && e.cfg.GlossaryPath != "" {
		if err := store.Save(e.cfg.GlossaryPath); err != nil {
			e.logger.Warn("Failed to save glossary", zap.String("chapter", ch.Name), zap.Error(err))
		} else {
			res.Saved = true
			e.logger.Info("Saved glossary",
				zap.String("chapter", ch.Name),
				zap.Int("accepted", res.Accepted),
				zap.Int("entries", store.Len()))
		}
	}
	return res, nil
}

// Translate is the frozen form of Process: it uses snap as is and discards
// the proposed terms.
func (e *Engine) Translate(ctx context.Context, ch Chapter, snap Snapshot, strict bool) (*Result, error) {
	res, resp, err := e.translate(ctx, ch, snap, strict)
	if err != nil {
		return nil, err
	}
	res.Proposed = len(resp.Terms)
	return res, nil
}

func (e *Engine) translate(ctx context.Context, ch Chapter, snap Snapshot, strict bool) (*Result, *translator.Response, error) {
	req := translator.Request{
		Text:            ch.Text,
		Instructions:    e.cfg.Instructions,
		Glossary:        snap.Glossary,
		KnownTerms:      snap.Terms,
		Strict:          strict,
		SourceLang:      e.cfg.SourceLang,
		PreviousContext: ch.PreviousContext,
	}

	policy := e.cfg.Retry
	policy.OnRetry = func(attempt int, err error) {
		e.logger.Warn("Retrying chapter",
			zap.String("chapter", ch.Name),
			zap.Int("attempt", attempt),
			zap.Duration("delay", policy.Delay),
			zap.Error(err))
	}

	start := time.Now()
	var (
		resp *translator.Response
		text string
	)
	attempts, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		resp, text, err = e.attempt(ctx, req)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("chapter %s failed after %d attempt(s): %w", ch.Name, attempts, err)
	}

	return &Result{
		Name:        ch.Name,
		Translation: text,
		Model:       resp.Model,
		Attempts:    attempts,
		Duration:    time.Since(start),
	}, resp, nil
}

// attempt makes one backend call and cleans its output. An empty or
// wrong-language translation counts as a malformed response. A missing
// translation field therefore fails the attempt instead of defaulting to
// "": an empty output file would mark the chapter done on every later run.
func (e *Engine) attempt(ctx context.Context, req translator.Request) (*translator.Response, string, error) {
	resp, err := e.backend.Translate(ctx, req)
	if err != nil {
		return nil, "", err
	}
	text := postprocess.Normalize(postprocess.Clean(resp.Translation))
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("%s: empty translation: %w", e.backend.Name(), translator.ErrMalformed)
	}
	if e.cfg.Validator != nil {
		if err := e.cfg.Validator.Check(text, TargetLang); err != nil {
			return nil, "", fmt.Errorf("%s: %v: %w", e.backend.Name(), err, translator.ErrMalformed)
		}
	}
	return resp, text, nil
}

func (e *Engine) logDecision(name string, d glossary.Decision) {
	fields := []zap.Field{zap.String("chapter", name), zap.String("term", d.Candidate.Term)}
	switch {
	case d.Accepted():
		e.logger.Info("Accepted glossary term", append(fields, zap.String("definition", d.Candidate.Definition))...)
	case d.Reason == glossary.RejectedCap, d.Reason == glossary.RejectedFull:
		e.logger.Info("Glossary term capped", append(fields, zap.Stringer("reason", d.Reason))...)
	default:
		fields = append(fields, zap.Stringer("reason", d.Reason))
		if d.Conflict != "" {
			fields = append(fields, zap.String("conflict", d.Conflict))
		}
		e.logger.Debug("Rejected glossary term", fields...)
	}
}
