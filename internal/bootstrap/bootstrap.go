// Package bootstrap seeds an empty glossary from the opening chapters of a
// novel before the first chapter is translated.
package bootstrap

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/valpere/chaptran/internal/chapter"
	"github.com/valpere/chaptran/internal/chunker"
	"github.com/valpere/chaptran/internal/glossary"
	"github.com/valpere/chaptran/internal/retry"
	"github.com/valpere/chaptran/internal/translator"
)

const (
	DefaultChapters = 5
	DefaultMaxChars = 60000
	// MaxTerms bounds the seeded glossary.
	MaxTerms = 20
)

// Extractor proposes glossary candidates for a text.
type Extractor interface {
	ExtractTerms(ctx context.Context, req translator.ExtractRequest) ([]glossary.Candidate, error)
}

// Config controls the bootstrap pass.
type Config struct {
	// Chapters is the number of opening chapters sampled. Zero disables
	// the bootstrap.
	Chapters   int
	MaxChars   int
	SourceLang string
	// Confirmer reviews the result. Nil skips the review.
	Confirmer Confirmer
	Retry     retry.Policy
}

// Builder runs the bootstrap pass.
type Builder struct {
	extractor Extractor
	filter    *glossary.Filter
	cfg       Config
	logger    *zap.Logger
}

func New(extractor Extractor, filter *glossary.Filter, cfg Config, logger *zap.Logger) *Builder {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{extractor: extractor, filter: filter, cfg: cfg, logger: logger}
}

// Needed reports whether the bootstrap should run for store. A store that
// failed to load is never seeded, so the file on disk stays as it was.
func (b *Builder) Needed(store *glossary.Store) bool {
	return b.cfg.Chapters > 0 && store.Len() == 0 && store.Writable()
}

// Result summarises a bootstrap pass.
type Result struct {
	Sampled    int
	Candidates []glossary.Candidate
	Accepted   int
	Decisions  []glossary.Decision
}

// Run seeds store from the first chapters of units and saves it to path.
// When the operator approves, the glossary is reloaded from path so manual
// edits take effect; the returned store replaces the one passed in.
// Extraction failures are logged and leave the glossary empty.
func (b *Builder) Run(ctx context.Context, units []chapter.Unit, store *glossary.Store, path string) (*glossary.Store, *Result, error) {
	res := &Result{}
	if !b.Needed(store) || len(units) == 0 {
		return store, res, nil
	}

	n := b.cfg.Chapters
	if n > len(units) {
		n = len(units)
	}
	var texts []string
	for _, u := range units[:n] {
		text, err := chapter.ReadPlain(u)
		if err != nil {
			b.logger.Warn("Skipping chapter in glossary bootstrap", zap.String("chapter", u.Name), zap.Error(err))
			continue
		}
		texts = append(texts, text)
	}
	res.Sampled = len(texts)
	combined := strings.Join(texts, "\n\n")
	if strings.TrimSpace(combined) == "" {
		return store, res, nil
	}

	b.logger.Info("Building initial glossary",
		zap.Int("chapters", res.Sampled),
		zap.Int("chars", len([]rune(combined))))

	candidates, err := b.extract(ctx, combined)
	if err != nil {
		if ctx.Err() != nil {
			return store, res, ctx.Err()
		}
		b.logger.Warn("Glossary extraction failed, continuing with an empty glossary", zap.Error(err))
		return store, res, nil
	}
	res.Candidates = candidates

	ranked := Rank(candidates, combined, b.filter)
	res.Accepted, res.Decisions = store.Merge(ranked, b.filter.Batch(MaxTerms))
	for _, d := range res.Decisions {
		logDecision(b.logger, d)
	}
	b.logger.Info("Initial glossary built",
		zap.Int("proposed", len(candidates)),
		zap.Int("ranked", len(ranked)),
		zap.Int("accepted", res.Accepted))

	if err := store.Save(path); err != nil {
		b.logger.Warn("Failed to save initial glossary", zap.String("path", path), zap.Error(err))
	}

	if b.cfg.Confirmer == nil {
		return store, res, nil
	}
	ok, err := b.cfg.Confirmer.Confirm(ctx, candidates, path)
	if err != nil {
		return store, res, err
	}
	if !ok {
		return store, res, ErrAborted
	}

	reloaded, err := glossary.Load(path,
		glossary.WithMaxEntries(store.MaxEntries()),
		glossary.WithEviction(store.Eviction()))
	if err != nil {
		b.logger.Warn("Failed to reload reviewed glossary, keeping the generated one", zap.Error(err))
		return store, res, nil
	}
	b.logger.Info("Reloaded reviewed glossary", zap.Int("entries", reloaded.Len()))
	return reloaded, res, nil
}

// extract asks for candidates piece by piece when the sample is too long for
// a single request.
func (b *Builder) extract(ctx context.Context, text string) ([]glossary.Candidate, error) {
	var all []glossary.Candidate
	pieces := chunker.Chunk(text, b.cfg.MaxChars)
	for i, piece := range pieces {
		var terms []glossary.Candidate
		_, err := b.cfg.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
			var err error
			terms, err = b.extractor.ExtractTerms(ctx, translator.ExtractRequest{Text: piece, SourceLang: b.cfg.SourceLang})
			return err
		})
		if err != nil {
			return nil, err
		}
		b.logger.Debug("Extracted glossary candidates",
			zap.Int("piece", i+1),
			zap.Int("pieces", len(pieces)),
			zap.Int("candidates", len(terms)))
		all = append(all, terms...)
	}
	return all, nil
}

type scored struct {
	c      glossary.Candidate
	count  int
	origin bool
	score  int
}

// Rank orders candidates by how often their base term occurs in text,
// doubled for terms that carry their original spelling, and keeps the top
// MaxTerms. Stopwords and terms seen fewer than twice without an original
// spelling are then dropped. Equal scores keep proposal order.
func Rank(candidates []glossary.Candidate, text string, f *glossary.Filter) []glossary.Candidate {
	lower := cases.Fold().String(norm.NFC.String(text))

	list := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		base := glossary.BaseTerm(c.Term)
		s := scored{c: c, origin: glossary.HasOrigin(c.Term)}
		if base != "" {
			s.count = strings.Count(lower, base)
		}
		s.score = s.count
		if s.origin {
			s.score *= 2
		}
		list = append(list, s)
	}

	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })
	if len(list) > MaxTerms {
		list = list[:MaxTerms]
	}

	out := make([]glossary.Candidate, 0, len(list))
	for _, s := range list {
		if f.IsStopword(s.c.Term) {
			continue
		}
		if s.count < 2 && !s.origin {
			continue
		}
		out = append(out, s.c)
	}
	return out
}

func logDecision(logger *zap.Logger, d glossary.Decision) {
	if d.Accepted() {
		logger.Info("Accepted glossary term", zap.String("term", d.Candidate.Term))
		return
	}
	fields := []zap.Field{zap.String("term", d.Candidate.Term), zap.Stringer("reason", d.Reason)}
	if d.Conflict != "" {
		fields = append(fields, zap.String("conflict", d.Conflict))
	}
	logger.Debug("Rejected glossary term", fields...)
}
