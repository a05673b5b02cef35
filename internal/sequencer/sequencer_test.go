package sequencer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/valpere/chaptran/internal/chapter"
	"github.com/valpere/chaptran/internal/engine"
	"github.com/valpere/chaptran/internal/glossary"
	"github.com/valpere/chaptran/internal/translator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// funcBackend answers each request with fn and records the requests.
type funcBackend struct {
	mu   sync.Mutex
	fn   func(req translator.Request) (*translator.Response, error)
	reqs []translator.Request
}

func (b *funcBackend) Name() string { return "func" }

func (b *funcBackend) Translate(_ context.Context, req translator.Request) (*translator.Response, error) {
	b.mu.Lock()
	b.reqs = append(b.reqs, req)
	b.mu.Unlock()
	return b.fn(req)
}

func (b *funcBackend) ExtractTerms(context.Context, translator.ExtractRequest) ([]glossary.Candidate, error) {
	return nil, translator.ErrUnsupported
}

func (b *funcBackend) requests() []translator.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]translator.Request(nil), b.reqs...)
}

// echo translates "src:<name>" into "Translated <name>." and proposes the
// term named in terms.
func echo(terms map[string]glossary.Candidate) func(translator.Request) (*translator.Response, error) {
	return func(req translator.Request) (*translator.Response, error) {
		name := strings.TrimPrefix(req.Text, "src:")
		resp := &translator.Response{Translation: "Translated " + name + ".", Model: "m"}
		if c, ok := terms[name]; ok {
			resp.Terms = []glossary.Candidate{c}
		}
		return resp, nil
	}
}

type novel struct {
	raw, out, glossary string
	units              []chapter.Unit
}

func newNovel(t *testing.T, names ...string) novel {
	t.Helper()
	root := t.TempDir()
	n := novel{
		raw:      filepath.Join(root, "raw"),
		out:      filepath.Join(root, "translated"),
		glossary: filepath.Join(root, "glossary.txt"),
	}
	require.NoError(t, os.MkdirAll(n.raw, 0755))
	for _, name := range names {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		require.NoError(t, os.WriteFile(filepath.Join(n.raw, name), []byte("src:"+stem), 0644))
	}
	units, err := chapter.List(n.raw)
	require.NoError(t, err)
	n.units = units
	return n
}

func (n novel) output(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(n.out, name))
	require.NoError(t, err)
	return string(data)
}

func newSequencer(b translator.Backend, n novel, cfg Config, rec Recorder) *Sequencer {
	e := engine.New(b, glossary.NewFilter(), engine.Config{GlossaryPath: n.glossary}, zap.NewNop())
	cfg.OutDir = n.out
	cfg.GlossaryPath = n.glossary
	return New(e, cfg, zap.NewNop(), rec)
}

func TestRun_SequentialGrowsGlossary(t *testing.T) {
	n := newNovel(t, "chapter10.txt", "chapter2.txt", "chapter1.txt")
	backend := &funcBackend{fn: echo(map[string]glossary.Candidate{
		"chapter1": {Term: "Mira [ミラ]", Definition: "the heroine"},
		"chapter2": {Term: "Kael", Definition: "a swordsman"},
	})}

	report, err := newSequencer(backend, n, Config{}, nil).Run(context.Background(), n.units, glossary.New())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Translated)
	assert.Equal(t, 2, report.TermsAccepted)

	reqs := backend.requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "src:chapter1", reqs[0].Text)
	assert.Equal(t, "src:chapter2", reqs[1].Text)
	assert.Equal(t, "src:chapter10", reqs[2].Text)

	assert.Empty(t, reqs[0].Glossary)
	assert.Contains(t, reqs[1].Glossary, "Mira [ミラ]: the heroine")
	assert.NotContains(t, reqs[1].Glossary, "Kael")
	assert.Contains(t, reqs[2].Glossary, "Kael: a swordsman")

	assert.Empty(t, reqs[0].PreviousContext)
	assert.Equal(t, "Translated chapter1.", reqs[1].PreviousContext)

	assert.Equal(t, "Translated chapter10.\n", n.output(t, "chapter10.txt"))
	data, err := os.ReadFile(n.glossary)
	require.NoError(t, err)
	assert.Equal(t, "Mira [ミラ]: the heroine\nKael: a swordsman\n", string(data))
}

func TestRun_GlossaryThatFailedToLoadIsNotOverwritten(t *testing.T) {
	n := newNovel(t, "chapter1.txt", "chapter2.txt")
	original := "Mira [ミラ]: protagonist\nElena [エレナ]: rival\nBrand [ブランド]: mentor\n"
	require.NoError(t, os.WriteFile(n.glossary, []byte(original), 0644))

	// The read fails after the first line, as on a disk error.
	f, err := os.Open(n.glossary)
	require.NoError(t, err)
	defer f.Close()
	store, err := glossary.Parse(io.MultiReader(io.LimitReader(f, 27), iotest.ErrReader(errors.New("input/output error"))))
	require.Error(t, err)
	require.False(t, store.Writable())

	backend := &funcBackend{fn: echo(map[string]glossary.Candidate{
		"chapter1": {Term: "Kael", Definition: "a swordsman"},
	})}
	report, err := newSequencer(backend, n, Config{}, nil).Run(context.Background(), n.units, store)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Translated)
	assert.Equal(t, 1, report.TermsAccepted)

	reqs := backend.requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].Glossary, "Kael: a swordsman")

	data, err := os.ReadFile(n.glossary)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
}

func TestRun_SkipsExistingOutput(t *testing.T) {
	n := newNovel(t, "chapter1.txt", "chapter2.txt")
	require.NoError(t, chapter.Write(n.out, n.units[0], "Already done."))
	backend := &funcBackend{fn: echo(nil)}

	report, err := newSequencer(backend, n, Config{}, nil).Run(context.Background(), n.units, glossary.New())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Translated)

	reqs := backend.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "src:chapter2", reqs[0].Text)
	assert.Equal(t, "Already done.", reqs[0].PreviousContext)
	assert.Equal(t, "Already done.\n", n.output(t, "chapter1.txt"))
}

func TestRun_FailureDoesNotHalt(t *testing.T) {
	n := newNovel(t, "chapter1.txt", "chapter2.txt", "chapter3.txt")
	permanent := errors.New("content refused")
	ok := echo(map[string]glossary.Candidate{"chapter2": {Term: "Kael", Definition: "a swordsman"}})
	backend := &funcBackend{fn: func(req translator.Request) (*translator.Response, error) {
		if req.Text == "src:chapter2" {
			return nil, permanent
		}
		return ok(req)
	}}

	report, err := newSequencer(backend, n, Config{}, nil).Run(context.Background(), n.units, glossary.New())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Translated)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "chapter2.txt", report.Failures[0].Chapter)
	assert.ErrorIs(t, report.Failures[0].Err, permanent)

	assert.NoFileExists(t, filepath.Join(n.out, "chapter2.txt"))
	assert.FileExists(t, filepath.Join(n.out, "chapter3.txt"))
	assert.Empty(t, backend.requests()[2].PreviousContext)
}

func TestRun_CancelSavesProgress(t *testing.T) {
	n := newNovel(t, "chapter1.txt", "chapter2.txt", "chapter3.txt")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ok := echo(map[string]glossary.Candidate{"chapter1": {Term: "Mira", Definition: "the heroine"}})
	backend := &funcBackend{fn: func(req translator.Request) (*translator.Response, error) {
		resp, err := ok(req)
		if req.Text == "src:chapter2" {
			cancel()
		}
		return resp, err
	}}

	report, err := newSequencer(backend, n, Config{}, nil).Run(ctx, n.units, glossary.New())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Translated)
	assert.Len(t, backend.requests(), 2)
	assert.NoFileExists(t, filepath.Join(n.out, "chapter3.txt"))

	data, rerr := os.ReadFile(n.glossary)
	require.NoError(t, rerr)
	assert.Equal(t, "Mira: the heroine\n", string(data))
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	n := newNovel(t, "chapter1.txt")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	backend := &funcBackend{fn: echo(nil)}

	report, err := newSequencer(backend, n, Config{}, nil).Run(ctx, n.units, glossary.New())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Translated)
	assert.Empty(t, backend.requests())
}

func TestRun_FrozenParallel(t *testing.T) {
	names := []string{"c1.txt", "c2.txt", "c3.txt", "c4.txt", "c5.txt", "c6.txt"}
	n := newNovel(t, names...)
	terms := map[string]glossary.Candidate{}
	for _, name := range names {
		stem := strings.TrimSuffix(name, ".txt")
		terms[stem] = glossary.Candidate{Term: "Name " + stem, Definition: "someone"}
	}
	backend := &funcBackend{fn: echo(terms)}

	store := glossary.New()
	store.Add(glossary.Candidate{Term: "Mira", Definition: "the heroine"}, glossary.NewFilter())

	report, err := newSequencer(backend, n, Config{Parallel: 3}, nil).Run(context.Background(), n.units, store)
	require.NoError(t, err)
	assert.True(t, report.Frozen)
	assert.Equal(t, 6, report.Translated)
	assert.Equal(t, 0, report.TermsAccepted)
	assert.Equal(t, []string{"Mira"}, store.Terms())
	assert.NoFileExists(t, n.glossary)

	for _, req := range backend.requests() {
		assert.Contains(t, req.Glossary, "- Mira: the heroine")
		assert.Empty(t, req.PreviousContext)
	}
	for _, name := range names {
		assert.FileExists(t, filepath.Join(n.out, name))
	}
}

func TestRun_FrozenFailuresInChapterOrder(t *testing.T) {
	n := newNovel(t, "c1.txt", "c2.txt", "c3.txt", "c4.txt")
	backend := &funcBackend{fn: func(req translator.Request) (*translator.Response, error) {
		if req.Text == "src:c2" || req.Text == "src:c4" {
			return nil, errors.New("refused")
		}
		return echo(nil)(req)
	}}

	report, err := newSequencer(backend, n, Config{Parallel: 4}, nil).Run(context.Background(), n.units, glossary.New())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, "c2.txt", report.Failures[0].Chapter)
	assert.Equal(t, "c4.txt", report.Failures[1].Chapter)
}

type memRecorder struct {
	mu       sync.Mutex
	started  []RunInfo
	chapters []ChapterRecord
	finished *Report
}

func (r *memRecorder) StartRun(_ context.Context, info RunInfo) (string, error) {
	r.started = append(r.started, info)
	return "run-1", nil
}

func (r *memRecorder) RecordChapter(_ context.Context, runID string, rec ChapterRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if runID != "run-1" {
		return errors.New("unknown run")
	}
	r.chapters = append(r.chapters, rec)
	return nil
}

func (r *memRecorder) FinishRun(_ context.Context, _ string, report *Report) error {
	r.finished = report
	return nil
}

func TestRun_RecordsEvents(t *testing.T) {
	n := newNovel(t, "chapter1.txt", "chapter2.txt", "chapter3.txt")
	require.NoError(t, chapter.Write(n.out, n.units[0], "done"))
	backend := &funcBackend{fn: func(req translator.Request) (*translator.Response, error) {
		if req.Text == "src:chapter3" {
			return nil, errors.New("refused")
		}
		return echo(map[string]glossary.Candidate{"chapter2": {Term: "Kael", Definition: "a swordsman"}})(req)
	}}
	rec := &memRecorder{}

	report, err := newSequencer(backend, n, Config{Backend: "func", Model: "m", Strict: true}, rec).Run(context.Background(), n.units, glossary.New())
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)

	require.Len(t, rec.started, 1)
	assert.Equal(t, RunInfo{Backend: "func", Model: "m", Strict: true, Chapters: 3}, rec.started[0])

	require.Len(t, rec.chapters, 3)
	assert.Equal(t, StatusSkipped, rec.chapters[0].Status)
	assert.Equal(t, StatusTranslated, rec.chapters[1].Status)
	assert.Equal(t, 1, rec.chapters[1].Accepted)
	require.Len(t, rec.chapters[1].Decisions, 1)
	assert.Equal(t, StatusFailed, rec.chapters[2].Status)
	assert.Contains(t, rec.chapters[2].Error, "refused")

	assert.Same(t, report, rec.finished)
}
